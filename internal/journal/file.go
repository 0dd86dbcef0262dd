package journal

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"signal_bot/internal/clock"
	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

// line: запись в файле; время строками с явным смещением настроенной зоны.
type line struct {
	SessionID   string `json:"session_id"`
	Asset       string `json:"asset"`
	Direction   string `json:"direction"`
	Stake       string `json:"stake"`
	DurationSec int    `json:"duration_sec"`
	GaleIndex   int    `json:"gale_index"`
	Result      string `json:"result"`
	Profit      string `json:"profit"`
	Source      string `json:"source"`
	Error       string `json:"error,omitempty"`
	PlacedAt    string `json:"placed_at"`
	ResolvedAt  string `json:"resolved_at"`
}

// FileStore: JSON lines, одна запись на строку, только дозапись.
type FileStore struct {
	path string
	zone *clock.Zone
	mu   sync.Mutex
}

func NewFileStore(path string, zone *clock.Zone) (*FileStore, error) {
	if zone == nil {
		zone = clock.UTC()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "journal dir")
		}
	}
	return &FileStore{path: path, zone: zone}, nil
}

func (s *FileStore) Save(_ context.Context, rec models.TradeRecord) error {
	l := line{
		SessionID:   rec.SessionID,
		Asset:       rec.Asset,
		Direction:   string(rec.Direction),
		Stake:       rec.Stake.String(),
		DurationSec: rec.DurationSec,
		GaleIndex:   rec.GaleIndex,
		Result:      rec.Result,
		Profit:      rec.Profit.String(),
		Source:      rec.Source,
		Error:       rec.Error,
		PlacedAt:    s.zone.FormatTimestamp(rec.PlacedAt),
		ResolvedAt:  s.zone.FormatTimestamp(rec.ResolvedAt),
	}
	b, err := sonic.Marshal(l)
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return errors.Wrap(err, "write journal")
	}
	return nil
}

func (s *FileStore) List(_ context.Context, since time.Time) ([]models.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	defer f.Close()

	var out []models.TradeRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		rec, err := s.decode(raw)
		if err != nil {
			// битую строку пропускаем, остальной журнал читаем дальше
			logger.Warn("[JOURNAL] %s:%d: %v", s.path, n, err)
			continue
		}
		if !since.IsZero() && rec.PlacedAt.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read journal")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

func (s *FileStore) decode(raw []byte) (models.TradeRecord, error) {
	var l line
	if err := sonic.Unmarshal(raw, &l); err != nil {
		return models.TradeRecord{}, errors.Wrap(err, "unmarshal")
	}
	placed, err := clock.ParseTimestamp(l.PlacedAt)
	if err != nil {
		return models.TradeRecord{}, err
	}
	resolved, err := clock.ParseTimestamp(l.ResolvedAt)
	if err != nil {
		return models.TradeRecord{}, err
	}
	stake, err := decimal.NewFromString(l.Stake)
	if err != nil {
		return models.TradeRecord{}, errors.Wrap(err, "stake")
	}
	profit, err := decimal.NewFromString(l.Profit)
	if err != nil {
		return models.TradeRecord{}, errors.Wrap(err, "profit")
	}
	return models.TradeRecord{
		SessionID:   l.SessionID,
		Asset:       l.Asset,
		Direction:   models.Direction(l.Direction),
		Stake:       stake,
		DurationSec: l.DurationSec,
		GaleIndex:   l.GaleIndex,
		Result:      l.Result,
		Profit:      profit,
		Source:      l.Source,
		Error:       l.Error,
		PlacedAt:    s.zone.In(placed),
		ResolvedAt:  s.zone.In(resolved),
	}, nil
}
