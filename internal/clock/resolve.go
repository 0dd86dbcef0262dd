package clock

import (
	"time"

	"signal_bot/internal/models"
)

// ResolveEntryInstant: момент входа сегодня в зоне loc. Сигналы всегда на текущий день:
// если время уже прошло, вход немедленный (now), а не завтра. Результат никогда не дальше 24ч от now.
func ResolveEntryInstant(tod models.TimeOfDay, loc *time.Location, now time.Time) time.Time {
	local := now.In(loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), tod.Hour24(), tod.Minute, 0, 0, loc)
	if at.Before(local) {
		return local
	}
	return at
}

// Resolver хранит зону и допуск на опоздание сигнала.
type Resolver struct {
	zone      *Zone
	tolerance time.Duration
}

func NewResolver(zone *Zone, tolerance time.Duration) *Resolver {
	return &Resolver{zone: zone, tolerance: tolerance}
}

// Resolve возвращает момент входа и на сколько сигнал опоздал (0, если не опоздал).
// stale == true, когда опоздание больше допуска: вход всё равно немедленный, но это стоит залогировать.
func (r *Resolver) Resolve(tod models.TimeOfDay, now time.Time) (at time.Time, late time.Duration, stale bool) {
	loc := r.zone.Location()
	local := now.In(loc)
	wanted := time.Date(local.Year(), local.Month(), local.Day(), tod.Hour24(), tod.Minute, 0, 0, loc)
	at = ResolveEntryInstant(tod, loc, now)
	if wanted.Before(local) {
		late = local.Sub(wanted)
	}
	return at, late, late > r.tolerance
}

func (r *Resolver) Zone() *Zone { return r.zone }
