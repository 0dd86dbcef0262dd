// Package parser превращает текст сигнала из канала в models.TradeIntent.
//
// Узнаваемый блок выглядит так (эмодзи и флаги вокруг не важны):
//
//	🔔 NEW SIGNAL!
//	🎫 Trade: 🇦🇺 AUD/JPY 🇯🇵 (OTC)
//	⏳ Timer: 5 minutes
//	➡️ Entry: 12:36 PM
//	📈 Direction: BUY 🟩
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"signal_bot/internal/models"
)

const (
	headerMarker    = "NEW SIGNAL"
	tradeMarker     = "TRADE:"
	timerMarker     = "TIMER:"
	entryMarker     = "ENTRY:"
	directionMarker = "DIRECTION:"
)

var (
	pairRe  = regexp.MustCompile(`(?i)\b([A-Z]{3})\s*/\s*([A-Z]{3})\b`)
	otcRe   = regexp.MustCompile(`(?i)\bOTC\b`)
	timerRe = regexp.MustCompile(`(?i)^(\d+)\s*(minutes?|mins?|m)\b`)
	// после AM/PM может идти пометка вроде "(UTC-3)"
	entryRe = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)\b`)
	wordRe  = regexp.MustCompile(`^[A-Za-z]+`)
)

// IsSignal: быстрая проверка, что в тексте есть все маркеры блока.
func IsSignal(text string) bool {
	up := strings.ToUpper(text)
	for _, m := range []string{headerMarker, tradeMarker, timerMarker, entryMarker, directionMarker} {
		if !strings.Contains(up, m) {
			return false
		}
	}
	return true
}

// Parse разбирает одно сообщение канала. Либо полный TradeIntent, либо *ParseError: частично
// заполненный интент наружу не отдаётся.
func Parse(raw string) (models.TradeIntent, error) {
	if !IsSignal(raw) {
		return models.TradeIntent{}, fail(ErrNotASignal, "", "")
	}

	fields := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		up := strings.ToUpper(line)
		for _, m := range []string{tradeMarker, timerMarker, entryMarker, directionMarker} {
			if idx := strings.Index(up, m); idx >= 0 {
				if _, seen := fields[m]; !seen {
					fields[m] = strings.TrimSpace(line[idx+len(m):])
				}
			}
		}
	}

	asset, err := parseAsset(fields[tradeMarker])
	if err != nil {
		return models.TradeIntent{}, err
	}
	seconds, err := parseTimer(fields[timerMarker])
	if err != nil {
		return models.TradeIntent{}, err
	}
	tod, err := parseEntry(fields[entryMarker])
	if err != nil {
		return models.TradeIntent{}, err
	}
	dir, err := parseDirection(fields[directionMarker])
	if err != nil {
		return models.TradeIntent{}, err
	}

	return models.TradeIntent{
		Asset:           asset,
		Direction:       dir,
		EntryTimeOfDay:  tod,
		DurationSeconds: seconds,
		Source:          "channel",
	}, nil
}

func parseAsset(s string) (string, error) {
	s = stripDecoration(s)
	m := pairRe.FindStringSubmatch(s)
	if m == nil {
		return "", fail(ErrMissingField, "asset", s)
	}
	asset := strings.ToUpper(m[1]) + "/" + strings.ToUpper(m[2])
	if otcRe.MatchString(s) {
		asset += "-OTC"
	}
	return asset, nil
}

func parseTimer(s string) (int, error) {
	s = stripDecoration(s)
	m := timerRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fail(ErrMissingField, "timer", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fail(ErrMissingField, "timer", s)
	}
	return n * 60, nil
}

func parseEntry(s string) (models.TimeOfDay, error) {
	s = stripDecoration(s)
	if s == "" {
		return models.TimeOfDay{}, fail(ErrMissingField, "entry", "")
	}
	m := entryRe.FindStringSubmatch(s)
	if m == nil {
		return models.TimeOfDay{}, fail(ErrBadTimeFormat, "entry", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h < 1 || h > 12 || mm > 59 {
		return models.TimeOfDay{}, fail(ErrBadTimeFormat, "entry", s)
	}
	return models.TimeOfDay{Hour: h, Minute: mm, Meridiem: models.Meridiem(strings.ToUpper(m[3]))}, nil
}

func parseDirection(s string) (models.Direction, error) {
	s = stripDecoration(s)
	word := wordRe.FindString(s)
	if word == "" {
		return "", fail(ErrMissingField, "direction", s)
	}
	return directionOf(word)
}

func directionOf(word string) (models.Direction, error) {
	switch strings.ToUpper(word) {
	case "BUY":
		return models.DirectionCall, nil
	case "SELL":
		return models.DirectionPut, nil
	default:
		return "", fail(ErrUnknownDirection, "direction", word)
	}
}

// stripDecoration выкидывает эмодзи, флаги и прочую графику, схлопывает пробелы.
func stripDecoration(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsPrint(r) || r == '\t'):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
