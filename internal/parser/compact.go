package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"signal_bot/internal/models"
)

var compactRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// LineError: ошибка разбора одной строки компактного списка.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

// ParseCompact разбирает список вида "HH:MM;PAIR;CALL;5" (24 часа, экспирация в минутах).
// Пустые строки пропускаются, по битым строкам возвращается LineError.
func ParseCompact(text string) ([]models.TradeIntent, []LineError) {
	var (
		out  []models.TradeIntent
		errs []LineError
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		intent, err := ParseCompactLine(line)
		if err != nil {
			errs = append(errs, LineError{Line: i + 1, Text: line, Err: err})
			continue
		}
		out = append(out, intent)
	}
	return out, errs
}

func ParseCompactLine(line string) (models.TradeIntent, error) {
	sep := ";"
	if !strings.Contains(line, sep) {
		line = strings.Join(strings.Fields(line), sep)
	}
	parts := strings.Split(line, sep)
	if len(parts) < 4 {
		return models.TradeIntent{}, fail(ErrMissingField, "compact", line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	m := compactRe.FindStringSubmatch(parts[0])
	if m == nil {
		return models.TradeIntent{}, fail(ErrBadTimeFormat, "time", parts[0])
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return models.TradeIntent{}, fail(ErrBadTimeFormat, "time", parts[0])
	}

	asset := strings.ToUpper(parts[1])
	if asset == "" {
		return models.TradeIntent{}, fail(ErrMissingField, "asset", "")
	}

	var dir models.Direction
	switch strings.ToUpper(parts[2]) {
	case "CALL":
		dir = models.DirectionCall
	case "PUT":
		dir = models.DirectionPut
	default:
		d, err := directionOf(parts[2])
		if err != nil {
			return models.TradeIntent{}, err
		}
		dir = d
	}

	digits := strings.TrimFunc(parts[3], func(r rune) bool { return r < '0' || r > '9' })
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return models.TradeIntent{}, fail(ErrMissingField, "expiry", parts[3])
	}

	return models.TradeIntent{
		Asset:           asset,
		Direction:       dir,
		EntryTimeOfDay:  models.TimeOfDayFrom24(h, mm),
		DurationSeconds: n * 60,
		Source:          "manual",
	}, nil
}
