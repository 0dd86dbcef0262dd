package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"signal_bot/internal/clock"
	"signal_bot/internal/martingale"
	"signal_bot/internal/models"
	"signal_bot/internal/notify"
	"signal_bot/internal/scheduler"
)

func TestInboxDropOldestKeepsFIFO(t *testing.T) {
	in := NewInbox(2, PolicyDropOldest)
	ctx := context.Background()
	for _, m := range []string{"a", "b", "c"} {
		if !in.Push(ctx, m) {
			t.Fatalf("push %s refused", m)
		}
	}
	if in.Len() != 2 {
		t.Fatalf("expected 2 queued, got %d", in.Len())
	}
	if got := <-in.C(); got != "b" {
		t.Fatalf("oldest must be dropped, got %q first", got)
	}
	if got := <-in.C(); got != "c" {
		t.Fatalf("expected c, got %q", got)
	}
}

func TestInboxBlockWaitsForSpace(t *testing.T) {
	in := NewInbox(1, PolicyBlock)
	in.Push(context.Background(), "a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if in.Push(ctx, "b") {
		t.Fatalf("full blocking inbox must not accept")
	}

	done := make(chan bool)
	go func() { done <- in.Push(context.Background(), "c") }()
	if got := <-in.C(); got != "a" {
		t.Fatalf("expected a, got %q", got)
	}
	if !<-done {
		t.Fatalf("blocked push must complete once space frees")
	}
	if got := <-in.C(); got != "c" {
		t.Fatalf("expected c, got %q", got)
	}
}

type nopPlacer struct{}

func (nopPlacer) PlaceTrade(context.Context, string, models.Direction, decimal.Decimal, time.Duration) (martingale.Result, error) {
	return martingale.Result{Outcome: models.OutcomeWin}, nil
}

func newPipeline(t *testing.T) (*Pipeline, *scheduler.Scheduler) {
	t.Helper()
	zone := noonZone(t)
	engine := martingale.NewEngine(martingale.Config{
		BaseStake:  decimal.NewFromInt(10),
		Multiplier: decimal.NewFromInt(2),
		MaxGales:   2,
		Grace:      time.Second,
	}, nopPlacer{}, nil, nil, nil, zone)

	var sched *scheduler.Scheduler
	sched = scheduler.New(clock.NewResolver(zone, time.Minute), clock.Real(),
		func(ctx context.Context, ex models.ScheduledExecution) { Fire(engine, sched)(ctx, ex) })
	return NewPipeline(NewInbox(8, PolicyDropOldest), sched, engine, notify.NewStdout(), zone), sched
}

// noonZone: зона, где сейчас около полудня. now+10m в ней не переваливает за полночь,
// иначе вход "уже прошёл" и срабатывает сразу.
func noonZone(t *testing.T) *clock.Zone {
	t.Helper()
	offset := 12 - time.Now().UTC().Hour()
	name := "Etc/GMT"
	switch {
	case offset > 0:
		name = fmt.Sprintf("Etc/GMT-%d", offset) // знак в Etc/ обратный
	case offset < 0:
		name = fmt.Sprintf("Etc/GMT+%d", -offset)
	}
	zone, err := clock.LoadZone(name)
	if err != nil {
		t.Fatal(err)
	}
	return zone
}

// nextMinute: время входа, которое гарантированно ещё впереди.
func nextMinute(zone *clock.Zone) (string, models.TimeOfDay) {
	at := zone.Now().Add(10 * time.Minute)
	tod := models.TimeOfDayFrom24(at.Hour(), at.Minute())
	return tod.String(), tod
}

func TestHandleSchedulesSignalsOnly(t *testing.T) {
	p, _ := newPipeline(t)
	entry, tod := nextMinute(p.Zone())

	p.handle(context.Background(), "good morning")
	p.handle(context.Background(), "NEW SIGNAL\nTrade: EUR/USD\nTimer: 5 minutes\nEntry: 99:99 PM\nDirection: BUY")
	if n := len(p.Pending()); n != 0 {
		t.Fatalf("parse failures must not schedule, got %d", n)
	}

	p.handle(context.Background(), "🔔 NEW SIGNAL!\nTrade: 🇦🇺 AUD/JPY 🇯🇵 (OTC)\nTimer: 5 minutes\nEntry: "+entry+"\nDirection: SELL")
	pending := p.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if pending[0].Intent.Asset != "AUD/JPY-OTC" || pending[0].Intent.EntryTimeOfDay != tod {
		t.Fatalf("unexpected pending %+v", pending[0])
	}
}

func TestDeliverRunConsumesInOrder(t *testing.T) {
	p, _ := newPipeline(t)
	entry, _ := nextMinute(p.Zone())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, asset := range []string{"EUR/USD", "GBP/USD", "USD/JPY"} {
		p.Deliver(ctx, "NEW SIGNAL\nTrade: "+asset+"\nTimer: 1 minute\nEntry: "+entry+"\nDirection: BUY")
	}
	go p.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(p.Pending()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("consumer did not schedule all signals")
		}
		time.Sleep(5 * time.Millisecond)
	}
	pending := p.Pending()
	for i, want := range []string{"EUR/USD", "GBP/USD", "USD/JPY"} {
		if pending[i].Intent.Asset != want {
			t.Fatalf("same instant must keep arrival order, got %+v", pending)
		}
	}
}

func TestCancelAll(t *testing.T) {
	p, _ := newPipeline(t)
	_, tod := nextMinute(p.Zone())
	p.Submit([]models.TradeIntent{
		{Asset: "EUR/USD", Direction: models.DirectionCall, EntryTimeOfDay: tod, DurationSeconds: 60},
		{Asset: "GBP/USD", Direction: models.DirectionPut, EntryTimeOfDay: tod, DurationSeconds: 60},
	})
	if n := p.CancelAll(); n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}
	if len(p.Pending()) != 0 {
		t.Fatalf("pending must be empty")
	}
}

func TestPendingFileRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	pf := NewPendingFile(path, clock.UTC())
	now := time.Now().UTC().Truncate(time.Second)

	in := func(asset string) models.TradeIntent {
		return models.TradeIntent{Asset: asset, Direction: models.DirectionCall,
			EntryTimeOfDay: models.TimeOfDayFrom24(now.Hour(), now.Minute()), DurationSeconds: 300, Source: "channel"}
	}
	err := pf.SavePending([]models.ScheduledExecution{
		{ID: 1, Intent: in("STALE"), At: now.Add(-10 * time.Minute)},
		{ID: 2, Intent: in("LATE"), At: now.Add(-30 * time.Second)},
		{ID: 3, Intent: in("FUTURE"), At: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	stored, err := pf.Load()
	if err != nil || len(stored) != 3 {
		t.Fatalf("load: %v %d", err, len(stored))
	}
	if stored[2].Intent != in("FUTURE") || !stored[2].At.Equal(now.Add(time.Hour)) {
		t.Fatalf("round trip changed entry: %+v", stored[2])
	}

	p, _ := newPipeline(t)
	restored, dropped := p.Restore(stored, now, 2*time.Minute)
	if restored != 2 || dropped != 1 {
		t.Fatalf("expected 2 restored 1 dropped, got %d %d", restored, dropped)
	}
	pending := p.Pending()
	if pending[0].Intent.Asset != "LATE" || !pending[0].At.Equal(now) {
		t.Fatalf("late entry must run now, got %+v", pending[0])
	}
	if pending[1].Intent.Asset != "FUTURE" || !pending[1].At.Equal(now.Add(time.Hour)) {
		t.Fatalf("future entry keeps its instant, got %+v", pending[1])
	}
}

func TestPendingFileMissing(t *testing.T) {
	stored, err := NewPendingFile(filepath.Join(t.TempDir(), "none.json"), nil).Load()
	if err != nil || len(stored) != 0 {
		t.Fatalf("expected nothing, got %v %v", stored, err)
	}
}
