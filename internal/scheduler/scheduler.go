package scheduler

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"signal_bot/internal/clock"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

type Handle = uint64

// FireFunc вызывается ровно один раз на каждое неотменённое исполнение, в порядке моментов входа.
// Не должна блокироваться надолго: следующий сигнал ждёт, пока она вернётся.
type FireFunc func(ctx context.Context, ex models.ScheduledExecution)

// PendingSaver получает актуальный список ожидающих исполнений после каждого изменения.
type PendingSaver interface {
	SavePending(pending []models.ScheduledExecution) error
}

type Option func(*Scheduler)

// WithHeartbeat: fn зовётся на каждом витке цикла, но не реже чем every.
func WithHeartbeat(every time.Duration, fn func(time.Time)) Option {
	return func(s *Scheduler) {
		s.beatEvery = every
		s.beat = fn
	}
}

func WithPendingSaver(p PendingSaver) Option {
	return func(s *Scheduler) { s.saver = p }
}

// WithRetention: сколько держать завершённые исполнения для /pending и повторных cancel.
func WithRetention(d time.Duration) Option {
	return func(s *Scheduler) { s.retain = d }
}

type Scheduler struct {
	clk      clock.Clock
	resolver *clock.Resolver
	fire     FireFunc

	beatEvery time.Duration
	beat      func(time.Time)
	saver     PendingSaver
	retain    time.Duration

	mu   sync.Mutex
	seq  uint64
	q    queue
	byID map[Handle]*item
	wake chan struct{}
}

func New(resolver *clock.Resolver, clk clock.Clock, fire FireFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		clk:      clk,
		resolver: resolver,
		fire:     fire,
		retain:   time.Hour,
		byID:     make(map[Handle]*item),
		wake:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule резолвит время входа интента и ставит его в очередь.
func (s *Scheduler) Schedule(intent models.TradeIntent) models.ScheduledExecution {
	now := s.clk.Now()
	at, late, stale := s.resolver.Resolve(intent.EntryTimeOfDay, now)
	if stale {
		logger.Warn("[SCHED] %s is late by %s, executing immediately", intent, late.Round(time.Second))
	}
	return s.ScheduleAt(intent, at)
}

// ScheduleAt ставит интент на уже известный абсолютный момент.
func (s *Scheduler) ScheduleAt(intent models.TradeIntent, at time.Time) models.ScheduledExecution {
	s.mu.Lock()
	s.seq++
	it := &item{
		seq: s.seq,
		ex: models.ScheduledExecution{
			ID:        s.seq,
			Intent:    intent,
			At:        s.resolver.Zone().In(at),
			Status:    models.ExecPending,
			CreatedAt: s.clk.Now(),
		},
	}
	heap.Push(&s.q, it)
	s.byID[it.ex.ID] = it
	ex := it.ex
	s.mu.Unlock()

	metrics.ExecutionsScheduled.Inc()
	logger.Info("[SCHED] #%d %s at %s (in %s)", ex.ID, intent, ex.At.Format(clock.TimestampLayout),
		ex.At.Sub(s.clk.Now()).Round(time.Second))

	s.kick()
	s.persist()
	return ex
}

// Cancel переводит Pending в Abandoned. Повторная отмена ничего не делает, отмена после срабатывания возвращает ErrAlreadyFired.
func (s *Scheduler) Cancel(h Handle) error {
	s.mu.Lock()
	it, ok := s.byID[h]
	if !ok {
		s.mu.Unlock()
		return &CancelError{Handle: h, Reason: ErrUnknownExecution}
	}
	switch it.ex.Status {
	case models.ExecAbandoned:
		s.mu.Unlock()
		return nil
	case models.ExecArmed, models.ExecExecuted:
		st := it.ex.Status
		s.mu.Unlock()
		return &CancelError{Handle: h, Status: st, Reason: ErrAlreadyFired}
	}
	heap.Remove(&s.q, it.index)
	it.ex.Status = models.ExecAbandoned
	it.ex.Reason = models.ReasonCancelled
	s.mu.Unlock()

	logger.Info("[SCHED] #%d cancelled", h)
	s.kick()
	s.persist()
	return nil
}

// MarkExecuted: ставка по исполнению отработала (сессия закончилась).
func (s *Scheduler) MarkExecuted(h Handle) {
	s.setTerminal(h, models.ExecExecuted, "")
}

// MarkAbandoned: исполнение сработало по таймеру, но сделку ставить не стали (пауза, конфликт).
func (s *Scheduler) MarkAbandoned(h Handle, reason string) {
	s.setTerminal(h, models.ExecAbandoned, reason)
}

func (s *Scheduler) setTerminal(h Handle, st models.ExecStatus, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[h]
	if !ok || it.ex.Terminal() {
		return
	}
	if it.index >= 0 {
		heap.Remove(&s.q, it.index)
	}
	it.ex.Status = st
	it.ex.Reason = reason
}

func (s *Scheduler) Get(h Handle) (models.ScheduledExecution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[h]
	if !ok {
		return models.ScheduledExecution{}, false
	}
	return it.ex, true
}

// Pending: ожидающие исполнения в порядке срабатывания.
func (s *Scheduler) Pending() []models.ScheduledExecution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingLocked()
}

func (s *Scheduler) pendingLocked() []models.ScheduledExecution {
	out := make([]models.ScheduledExecution, 0, len(s.q))
	items := make([]*item, len(s.q))
	copy(items, s.q)
	sort.Slice(items, func(i, j int) bool { return queue(items).Less(i, j) })
	for _, it := range items {
		out = append(out, it.ex)
	}
	return out
}

// Run крутит основной цикл: ждёт ближайший момент, помечает Armed и отдаёт в fire.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info("[SCHED] loop started")
	defer logger.Info("[SCHED] loop stopped")

	for {
		due, next, hasNext := s.collectDue()
		for _, ex := range due {
			metrics.ExecutionsFired.Inc()
			s.fire(ctx, ex)
		}
		if len(due) > 0 {
			s.persist()
		}
		if s.beat != nil {
			s.beat(s.clk.Now())
		}

		var wait <-chan time.Time
		switch {
		case hasNext && (s.beatEvery <= 0 || next < s.beatEvery):
			wait = s.clk.After(next)
		case s.beatEvery > 0:
			wait = s.clk.After(s.beatEvery)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-wait:
		}
	}
}

func (s *Scheduler) collectDue() (due []models.ScheduledExecution, next time.Duration, hasNext bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	for s.q.Len() > 0 {
		head := s.q[0]
		if head.ex.At.After(now) {
			break
		}
		heap.Pop(&s.q)
		head.ex.Status = models.ExecArmed
		due = append(due, head.ex)
	}
	s.pruneLocked(now)

	if s.q.Len() > 0 {
		return due, s.q[0].ex.At.Sub(now), true
	}
	return due, 0, false
}

func (s *Scheduler) pruneLocked(now time.Time) {
	if s.retain <= 0 {
		return
	}
	for id, it := range s.byID {
		if it.ex.Terminal() && now.Sub(it.ex.At) > s.retain {
			delete(s.byID, id)
		}
	}
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) persist() {
	if s.saver == nil {
		return
	}
	if err := s.saver.SavePending(s.Pending()); err != nil {
		logger.Error("[SCHED] save pending: %v", err)
	}
}
