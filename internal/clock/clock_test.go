package clock

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"signal_bot/internal/models"
)

func saoPaulo(t *testing.T) *Zone {
	t.Helper()
	z, err := LoadZone("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return z
}

func TestResolveSixMinuteWait(t *testing.T) {
	z := saoPaulo(t)
	now := time.Date(2025, 12, 13, 12, 30, 0, 0, z.Location())
	tod := models.TimeOfDay{Hour: 12, Minute: 36, Meridiem: models.PM}

	at := ResolveEntryInstant(tod, z.Location(), now)
	if wait := at.Sub(now); wait != 6*time.Minute {
		t.Fatalf("expected 6m wait, got %s", wait)
	}
	if _, off := at.Zone(); off != -3*3600 {
		t.Fatalf("expected -03:00, got offset %d", off)
	}

	// тот же момент, пришедший в UTC, резолвится так же
	at2 := ResolveEntryInstant(tod, z.Location(), now.UTC())
	if !at2.Equal(at) {
		t.Fatalf("resolution depends on now's location: %s vs %s", at2, at)
	}
}

func TestResolvePastTimeIsImmediate(t *testing.T) {
	z := saoPaulo(t)
	now := time.Date(2025, 12, 13, 12, 40, 0, 0, z.Location())
	tod := models.TimeOfDay{Hour: 12, Minute: 36, Meridiem: models.PM}

	at := ResolveEntryInstant(tod, z.Location(), now)
	if !at.Equal(now) {
		t.Fatalf("past entry must resolve to now, got %s", at)
	}

	r := NewResolver(z, 2*time.Minute)
	_, late, stale := r.Resolve(tod, now)
	if late != 4*time.Minute || !stale {
		t.Fatalf("expected 4m late and stale, got %s %v", late, stale)
	}
	_, late, stale = NewResolver(z, 5*time.Minute).Resolve(tod, now)
	if late != 4*time.Minute || stale {
		t.Fatalf("4m late within 5m tolerance must not be stale, got %s %v", late, stale)
	}
}

func TestResolveNeverBeyondDay(t *testing.T) {
	z := saoPaulo(t)
	start := time.Date(2025, 12, 13, 0, 0, 0, 0, z.Location())
	for m := 0; m < 24*60; m += 37 {
		now := start.Add(time.Duration(m) * time.Minute)
		for h := 0; h < 24; h++ {
			at := ResolveEntryInstant(models.TimeOfDayFrom24(h, 15), z.Location(), now)
			if d := at.Sub(now); d < 0 || d > 24*time.Hour {
				t.Fatalf("now=%s h=%d: out of range %s", now, h, d)
			}
		}
	}
}

func TestInvalidTimezone(t *testing.T) {
	_, err := LoadZone("Not/A_Zone")
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
	var re *ResolveError
	if !errors.As(err, &re) || re.Name != "Not/A_Zone" {
		t.Fatalf("expected ResolveError with name, got %v", err)
	}
	if z := LoadZoneOrUTC("Not/A_Zone"); z.Name() != "UTC" || z.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %s", z.Name())
	}
	if z := LoadZoneOrUTC(""); z.Name() != "UTC" {
		t.Fatalf("empty name must fall back to UTC")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	z := saoPaulo(t)
	instant := time.Date(2025, 12, 13, 3, 7, 24, 0, time.UTC)

	s := z.FormatTimestamp(instant)
	if s != "2025-12-13T00:07:24-03:00" {
		t.Fatalf("unexpected serialization %q", s)
	}

	back, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	utc := UTC().In(back)
	if !utc.Equal(instant) {
		t.Fatalf("instant changed: %s vs %s", utc, instant)
	}
	if UTC().FormatTimestamp(back) != "2025-12-13T03:07:24Z" {
		t.Fatalf("unexpected UTC display %q", UTC().FormatTimestamp(back))
	}
}

func TestParseTimestampRejectsNaive(t *testing.T) {
	for _, s := range []string{"2025-12-13T00:07:24", "2025-12-13 00:07:24", ""} {
		if _, err := ParseTimestamp(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
	if _, err := ParseTimestamp("2025-12-13T00:07:24.123456-03:00"); err != nil {
		t.Errorf("fractional seconds with offset must parse: %v", err)
	}
}
