// Package runner связывает конвейер: входящие сообщения -> парсер -> планировщик -> мартингейл.
package runner

import (
	"context"
	"errors"
	"sort"
	"time"

	"signal_bot/internal/clock"
	"signal_bot/internal/martingale"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/notify"
	"signal_bot/internal/parser"
	"signal_bot/internal/scheduler"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

// Pipeline: один логический конвейер на процесс.
type Pipeline struct {
	inbox    *Inbox
	sched    *scheduler.Scheduler
	engine   *martingale.Engine
	notifier notify.Notifier
	zone     *clock.Zone
}

func NewPipeline(inbox *Inbox, sched *scheduler.Scheduler, engine *martingale.Engine, n notify.Notifier, zone *clock.Zone) *Pipeline {
	return &Pipeline{
		inbox:    inbox,
		sched:    sched,
		engine:   engine,
		notifier: n,
		zone:     zone,
	}
}

// Fire вызывается планировщиком. Сработавшее исполнение уходит в движок мартингейла.
func Fire(engine *martingale.Engine, rep martingale.Reporter) scheduler.FireFunc {
	return func(ctx context.Context, ex models.ScheduledExecution) {
		if err := engine.Execute(ctx, ex, rep); err != nil {
			logger.Info("[RUNNER] #%d not executed: %v", ex.ID, err)
		}
	}
}

// Deliver принимает сообщения слушателя канала. Вызывается один раз на сообщение, в порядке получения.
func (p *Pipeline) Deliver(ctx context.Context, raw string) bool {
	return p.inbox.Push(ctx, raw)
}

// Run читает очередь до отмены ctx.
func (p *Pipeline) Run(ctx context.Context) {
	logger.Info("[RUNNER] consumer started, inbox=%d policy=%s", p.inbox.Cap(), p.inbox.policy)
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-p.inbox.C():
			p.handle(ctx, raw)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, raw string) {
	span, ctx := tracing.StartSpan(ctx, "signal.handle", nil)
	intent, err := parser.Parse(raw)
	if errors.Is(err, parser.ErrNotASignal) {
		span.SetTag("signal", false)
		tracing.Finish(span, nil)
	} else {
		tracing.Finish(span, err)
	}
	switch {
	case errors.Is(err, parser.ErrNotASignal):
		metrics.SignalsReceived.WithLabelValues("not_signal").Inc()
		logger.Debug("[PARSE] skip: %v", err)
		return
	case err != nil:
		metrics.SignalsReceived.WithLabelValues("error").Inc()
		logger.Warn("[PARSE] dropped message: %v", err)
		return
	}
	metrics.SignalsReceived.WithLabelValues("ok").Inc()

	ex := p.sched.Schedule(intent)
	p.notifier.Sendf(ctx, "📥 Сигнал #%d: %s %s, вход %s (%s), экспирация %dм",
		ex.ID, intent.Asset, intent.Direction, p.zone.In(ex.At).Format("15:04:05"), p.zone.Name(), intent.DurationSeconds/60)
}

// Submit ставит уже разобранные интенты (компактный формат от оператора).
func (p *Pipeline) Submit(intents []models.TradeIntent) []models.ScheduledExecution {
	out := make([]models.ScheduledExecution, 0, len(intents))
	for _, in := range intents {
		out = append(out, p.sched.Schedule(in))
	}
	return out
}

// Restore возвращает в очередь исполнения, пережившие рестарт. Опоздавшие больше чем на tolerance
// выкидываются, остальные ставятся на max(at, now).
func (p *Pipeline) Restore(stored []Stored, now time.Time, tolerance time.Duration) (restored, dropped int) {
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].At.Before(stored[j].At) })
	for _, s := range stored {
		if now.Sub(s.At) > tolerance {
			dropped++
			logger.Warn("[RUNNER] drop stale pending %s (was due %s)", s.Intent, p.zone.FormatTimestamp(s.At))
			continue
		}
		at := s.At
		if at.Before(now) {
			at = now
		}
		p.sched.ScheduleAt(s.Intent, at)
		restored++
	}
	return restored, dropped
}

func (p *Pipeline) Pending() []models.ScheduledExecution { return p.sched.Pending() }

func (p *Pipeline) Cancel(id uint64) error { return p.sched.Cancel(id) }

// CancelAll отменяет всё ожидающее; возвращает число отменённых.
func (p *Pipeline) CancelAll() int {
	n := 0
	for _, ex := range p.sched.Pending() {
		if p.sched.Cancel(ex.ID) == nil {
			n++
		}
	}
	return n
}

func (p *Pipeline) Sessions() []models.MartingaleSession { return p.engine.Sessions() }

func (p *Pipeline) Zone() *clock.Zone { return p.zone }

func (p *Pipeline) InboxLen() int { return p.inbox.Len() }
