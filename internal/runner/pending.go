package runner

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"signal_bot/internal/clock"
	"signal_bot/internal/models"
)

// pendingEntry: ожидающее исполнение на диске. Время с явным смещением.
type pendingEntry struct {
	Asset       string `json:"asset"`
	Direction   string `json:"direction"`
	Hour        int    `json:"hour"`
	Minute      int    `json:"minute"`
	Meridiem    string `json:"meridiem"`
	DurationSec int    `json:"duration_sec"`
	Source      string `json:"source"`
	At          string `json:"at"`
}

// PendingFile переживает рестарт процесса: планировщик пишет сюда очередь после каждого изменения.
type PendingFile struct {
	path string
	zone *clock.Zone
}

func NewPendingFile(path string, zone *clock.Zone) *PendingFile {
	if zone == nil {
		zone = clock.UTC()
	}
	return &PendingFile{path: path, zone: zone}
}

func (p *PendingFile) SavePending(pending []models.ScheduledExecution) error {
	if p.path == "" {
		return nil
	}
	entries := make([]pendingEntry, 0, len(pending))
	for _, ex := range pending {
		entries = append(entries, pendingEntry{
			Asset:       ex.Intent.Asset,
			Direction:   string(ex.Intent.Direction),
			Hour:        ex.Intent.EntryTimeOfDay.Hour,
			Minute:      ex.Intent.EntryTimeOfDay.Minute,
			Meridiem:    string(ex.Intent.EntryTimeOfDay.Meridiem),
			DurationSec: ex.Intent.DurationSeconds,
			Source:      ex.Intent.Source,
			At:          p.zone.FormatTimestamp(ex.At),
		})
	}
	b, err := sonic.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "encode pending")
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.Wrap(err, "pending dir")
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.Wrap(err, "write pending")
	}
	return errors.Wrap(os.Rename(tmp, p.path), "rename pending")
}

// Stored: интент с его абсолютным моментом входа.
type Stored struct {
	Intent models.TradeIntent
	At     time.Time
}

func (p *PendingFile) Load() ([]Stored, error) {
	if p.path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read pending")
	}
	var entries []pendingEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decode pending")
	}

	out := make([]Stored, 0, len(entries))
	for _, e := range entries {
		at, err := clock.ParseTimestamp(e.At)
		if err != nil {
			return nil, errors.Wrapf(err, "pending %s", e.Asset)
		}
		out = append(out, Stored{
			Intent: models.TradeIntent{
				Asset:     e.Asset,
				Direction: models.Direction(e.Direction),
				EntryTimeOfDay: models.TimeOfDay{
					Hour:     e.Hour,
					Minute:   e.Minute,
					Meridiem: models.Meridiem(e.Meridiem),
				},
				DurationSeconds: e.DurationSec,
				Source:          e.Source,
			},
			At: p.zone.In(at),
		})
	}
	return out, nil
}
