package clock

import (
	"fmt"
	"time"
)

// TimestampLayout: ISO-8601 с явным смещением, например 2025-12-13T00:07:24-03:00.
const TimestampLayout = time.RFC3339

// FormatTimestamp пишет момент в зоне z с явным смещением.
func (z *Zone) FormatTimestamp(t time.Time) string {
	return t.In(z.loc).Format(TimestampLayout)
}

// ParseTimestamp читает сохранённый момент. Строки без смещения отвергаются:
// читать их как локальное время нельзя.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q must carry an explicit UTC offset: %w", s, err)
	}
	return t, nil
}
