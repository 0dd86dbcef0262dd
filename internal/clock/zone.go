package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"signal_bot/pkg/logger"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

type ResolveError struct {
	Reason error
	Name   string
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve: %v %q: %v", e.Reason, e.Name, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Reason }

// Zone: настроенная таймзона процесса. Грузится один раз при старте и дальше не меняется.
type Zone struct {
	name string
	loc  *time.Location
}

func UTC() *Zone { return &Zone{name: "UTC", loc: time.UTC} }

// LoadZone грузит IANA-зону ("America/Sao_Paulo").
func LoadZone(name string) (*Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ResolveError{Reason: ErrInvalidTimezone, Name: name, Err: errors.New("empty name")}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &ResolveError{Reason: ErrInvalidTimezone, Name: name, Err: err}
	}
	return &Zone{name: name, loc: loc}, nil
}

// LoadZoneOrUTC никогда не падает: на кривом имени пишет warning и отдаёт UTC.
func LoadZoneOrUTC(name string) *Zone {
	z, err := LoadZone(name)
	if err != nil {
		logger.Warn("[TZ] unknown timezone %q, falling back to UTC: %v", name, err)
		return UTC()
	}
	logger.Info("[TZ] timezone set to %s", z.name)
	return z
}

func (z *Zone) Name() string             { return z.name }
func (z *Zone) Location() *time.Location { return z.loc }

// Now: текущее время в настроенной зоне.
func (z *Zone) Now() time.Time { return time.Now().In(z.loc) }

func (z *Zone) In(t time.Time) time.Time { return t.In(z.loc) }
