package parser

import (
	"errors"
	"testing"

	"signal_bot/internal/models"
)

const sample = `🔔 NEW SIGNAL!

🎫 Trade: 🇦🇺 AUD/JPY 🇯🇵 (OTC)
⏳ Timer: 5 minutes
➡️ Entry: 12:36 PM
📈 Direction: BUY 🟩

↪️ Martingale levels:
1️⃣ level at 12:41 PM
2️⃣ level at 12:46 PM`

func TestParseSample(t *testing.T) {
	got, err := Parse(sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := models.TradeIntent{
		Asset:           "AUD/JPY-OTC",
		Direction:       models.DirectionCall,
		EntryTimeOfDay:  models.TimeOfDay{Hour: 12, Minute: 36, Meridiem: models.PM},
		DurationSeconds: 300,
		Source:          "channel",
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestParseDirectionMapping(t *testing.T) {
	cases := []struct {
		word string
		want models.Direction
	}{
		{"BUY", models.DirectionCall},
		{"buy 🟩", models.DirectionCall},
		{"🔽 SELL 🟥", models.DirectionPut},
		{"Sell", models.DirectionPut},
	}
	for _, c := range cases {
		text := "NEW SIGNAL\nTrade: EUR/USD\nTimer: 1 minute\nEntry: 9:05 AM\nDirection: " + c.word
		got, err := Parse(text)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", c.word, err)
			continue
		}
		if got.Direction != c.want {
			t.Errorf("%q: expected %s, got %s", c.word, c.want, got.Direction)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
		want error
	}{
		{"garbage", "hello, good morning traders 🚀", ErrNotASignal},
		{"no direction line", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 12:36 PM", ErrNotASignal},
		{"unknown direction", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 12:36 PM\nDirection: HOLD", ErrUnknownDirection},
		{"empty direction", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 12:36 PM\nDirection: 🟩", ErrMissingField},
		{"24h time", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 14:36\nDirection: BUY", ErrBadTimeFormat},
		{"hour 13 pm", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 13:10 PM\nDirection: BUY", ErrBadTimeFormat},
		{"minute 61", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 11:61 AM\nDirection: BUY", ErrBadTimeFormat},
		{"missing time", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: \nDirection: BUY", ErrMissingField},
		{"missing duration", "NEW SIGNAL\nTrade: EUR/USD\nTimer: soon\nEntry: 12:36 PM\nDirection: BUY", ErrMissingField},
		{"zero duration", "NEW SIGNAL\nTrade: EUR/USD\nTimer: 0 minutes\nEntry: 12:36 PM\nDirection: BUY", ErrMissingField},
		{"missing pair", "NEW SIGNAL\nTrade: 🇦🇺 gold\nTimer: 5 minutes\nEntry: 12:36 PM\nDirection: BUY", ErrMissingField},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Parse(c.text)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if got != (models.TradeIntent{}) {
				t.Fatalf("partial intent leaked: %+v", got)
			}
		})
	}
}

func TestParseWhitespaceAndDecoration(t *testing.T) {
	text := "  🔔   new signal  \n\n  Trade:    💶  EUR / usd   🇺🇸  \n Timer:   15 min \n Entry:  1:05PM  \n Direction:   SELL"
	got, err := Parse(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Asset != "EUR/USD" || got.DurationSeconds != 900 || got.EntryTimeOfDay.Hour24() != 13 || got.Direction != models.DirectionPut {
		t.Fatalf("unexpected intent %+v", got)
	}
}

func TestEntryWithTrailingNote(t *testing.T) {
	for _, entry := range []string{"12:36 PM (UTC-3)", "12:36PM UTC-3", "12:36 pm, Brasília"} {
		text := "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: " + entry + "\nDirection: BUY"
		got, err := Parse(text)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", entry, err)
		}
		if got.EntryTimeOfDay != (models.TimeOfDay{Hour: 12, Minute: 36, Meridiem: models.PM}) {
			t.Errorf("%q: unexpected time %+v", entry, got.EntryTimeOfDay)
		}
	}

	// 24-часовой формат и склеенный мусор по-прежнему отвергаются
	for _, entry := range []string{"14:36 (UTC-3)", "12:36 PMT"} {
		text := "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: " + entry + "\nDirection: BUY"
		if _, err := Parse(text); !errors.Is(err, ErrBadTimeFormat) {
			t.Errorf("%q: expected ErrBadTimeFormat, got %v", entry, err)
		}
	}
}

func TestHour24(t *testing.T) {
	cases := map[models.TimeOfDay]int{
		{Hour: 12, Minute: 0, Meridiem: models.AM}: 0,
		{Hour: 12, Minute: 0, Meridiem: models.PM}: 12,
		{Hour: 1, Minute: 0, Meridiem: models.PM}:  13,
		{Hour: 11, Minute: 0, Meridiem: models.AM}: 11,
	}
	for tod, want := range cases {
		if got := tod.Hour24(); got != want {
			t.Errorf("%s: expected %d, got %d", tod, want, got)
		}
	}
}

func TestParseCompact(t *testing.T) {
	text := "09:30;EUR/USD;CALL;5\n\n21:05 AUD/JPY-OTC put 1\n25:00;EUR/USD;CALL;5\n10:00;EUR/USD;HOLD;5\n10:00;EUR/USD;SELL;x"
	intents, errs := ParseCompact(text)

	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %+v", intents)
	}
	if intents[0].EntryTimeOfDay != (models.TimeOfDay{Hour: 9, Minute: 30, Meridiem: models.AM}) || intents[0].DurationSeconds != 300 {
		t.Errorf("unexpected first intent %+v", intents[0])
	}
	if intents[1].Asset != "AUD/JPY-OTC" || intents[1].Direction != models.DirectionPut || intents[1].EntryTimeOfDay.Hour24() != 21 {
		t.Errorf("unexpected second intent %+v", intents[1])
	}
	if intents[0].Source != "manual" {
		t.Errorf("compact intents are manual, got %q", intents[0].Source)
	}

	if len(errs) != 3 {
		t.Fatalf("expected 3 line errors, got %v", errs)
	}
	if errs[0].Line != 4 || !errors.Is(errs[0].Err, ErrBadTimeFormat) {
		t.Errorf("unexpected first error %v", errs[0])
	}
	if !errors.Is(errs[1].Err, ErrUnknownDirection) || !errors.Is(errs[2].Err, ErrMissingField) {
		t.Errorf("unexpected errors %v", errs)
	}
}
