package martingale

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"

	"signal_bot/internal/clock"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

type Mode string

const (
	// ModeClassic: догоны сразу, в рамках одного сигнала.
	ModeClassic Mode = "classic"
	// ModeSmart: одна сделка на сигнал, уровень догона переносится на следующий сигнал по активу.
	ModeSmart Mode = "smart"
)

const FailLossCarried models.FailReason = "LossCarried"

type Config struct {
	BaseStake  decimal.Decimal
	Multiplier decimal.Decimal
	MaxGales   int
	Grace      time.Duration
	Mode       Mode
}

type Engine struct {
	cfg      Config
	placer   Placer
	notifier Notifier
	journal  Journal
	pause    PauseFlag
	zone     *clock.Zone

	mu     sync.Mutex
	active map[string]*models.MartingaleSession // asset -> сессия
	levels map[string]int                      // asset -> уровень (smart)

	wg sync.WaitGroup
}

func NewEngine(cfg Config, placer Placer, notifier Notifier, journal Journal, pause PauseFlag, zone *clock.Zone) *Engine {
	if zone == nil {
		zone = clock.UTC()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeClassic
	}
	return &Engine{
		cfg:      cfg,
		placer:   placer,
		notifier: notifier,
		journal:  journal,
		pause:    pause,
		zone:     zone,
		active:   make(map[string]*models.MartingaleSession),
		levels:   make(map[string]int),
	}
}

// Execute принимает сработавшее (Armed) исполнение. Возвращается сразу: сессия крутится в своей горутине.
// Ошибка: только если сделку ставить не стали (пауза или конфликт по активу).
func (e *Engine) Execute(ctx context.Context, ex models.ScheduledExecution, rep Reporter) error {
	intent := ex.Intent

	if e.pause != nil && e.pause.Paused() {
		rep.MarkAbandoned(ex.ID, models.ReasonSuppressedByPause)
		metrics.Sessions.WithLabelValues(string(models.StateFailed), string(models.FailSuppressedByPause)).Inc()
		logger.Info("[GALE] #%d %s suppressed by pause", ex.ID, intent)
		e.notify(ctx, "⏸ [%s] %s %s пропущен: бот на паузе", intent.Asset, intent.Direction, intent.EntryTimeOfDay)
		return ErrSuppressedByPause
	}

	sess, err := e.claim(ex)
	if err != nil {
		rep.MarkAbandoned(ex.ID, models.ReasonSessionActive)
		logger.Warn("[GALE] #%d %v", ex.ID, err)
		e.notify(ctx, "⚠️ [%s] сигнал отклонён: по активу уже идёт сессия", intent.Asset)
		return err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(sess.Asset)
		e.run(ctx, sess, intent)
		rep.MarkExecuted(ex.ID)
	}()
	return nil
}

// Wait ждёт завершения всех сессий в полёте.
func (e *Engine) Wait() { e.wg.Wait() }

// Sessions: снимок активных сессий.
func (e *Engine) Sessions() []models.MartingaleSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.MartingaleSession, 0, len(e.active))
	for _, s := range e.active {
		cp := *s
		cp.Outcomes = append([]models.Outcome(nil), s.Outcomes...)
		out = append(out, cp)
	}
	return out
}

// Level: текущий перенесённый уровень догона по активу (smart).
func (e *Engine) Level(asset string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.levels[assetKey(asset)]
}

func (e *Engine) claim(ex models.ScheduledExecution) (*models.MartingaleSession, error) {
	key := assetKey(ex.Intent.Asset)

	e.mu.Lock()
	defer e.mu.Unlock()

	if cur, ok := e.active[key]; ok {
		return nil, &ConflictError{Asset: ex.Intent.Asset, SessionID: cur.ID}
	}
	start := 0
	if e.cfg.Mode == ModeSmart {
		start = e.levels[key]
	}
	sess := &models.MartingaleSession{
		ID:           uuid.NewString(),
		ExecutionID:  ex.ID,
		Asset:        ex.Intent.Asset,
		Direction:    ex.Intent.Direction,
		BaseStake:    e.cfg.BaseStake,
		CurrentStake: StakeFor(e.cfg.BaseStake, e.cfg.Multiplier, start),
		GaleIndex:    start,
		State:        models.StateIdle,
		StartedAt:    e.zone.Now(),
	}
	e.active[key] = sess
	return sess, nil
}

func (e *Engine) release(asset string) {
	e.mu.Lock()
	delete(e.active, assetKey(asset))
	e.mu.Unlock()
}

// update применяет fn к сессии под мьютексом: снимки в Sessions() не видят полузаписанное состояние.
func (e *Engine) update(sess *models.MartingaleSession, fn func(s *models.MartingaleSession)) {
	e.mu.Lock()
	fn(sess)
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, sess *models.MartingaleSession, intent models.TradeIntent) {
	limit := e.cfg.MaxGales
	if e.cfg.Mode == ModeSmart {
		limit = sess.GaleIndex
	}
	first := true

	for {
		if !first && e.pause != nil && e.pause.Paused() {
			e.finish(ctx, sess, models.FailSuppressedByPause, nil)
			return
		}
		first = false

		stake := StakeFor(sess.BaseStake, e.cfg.Multiplier, sess.GaleIndex)
		e.update(sess, func(s *models.MartingaleSession) {
			s.CurrentStake = stake
			s.State = models.StatePlacing
		})
		logger.Info("[GALE] %s %s G%d stake=%s", sess.Asset, sess.Direction, sess.GaleIndex, stake)

		placedAt := e.zone.Now()
		res, err := e.place(ctx, sess, intent, stake)
		resolvedAt := e.zone.Now()
		metrics.PlacementLatency.Observe(resolvedAt.Sub(placedAt).Seconds())

		rec := models.TradeRecord{
			SessionID:   sess.ID,
			Asset:       sess.Asset,
			Direction:   sess.Direction,
			Stake:       stake,
			DurationSec: intent.DurationSeconds,
			GaleIndex:   sess.GaleIndex,
			Source:      intent.Source,
			PlacedAt:    placedAt,
			ResolvedAt:  resolvedAt,
			Profit:      decimal.Zero,
		}

		if err != nil {
			reason := models.FailPlacement
			rec.Result = models.ResultError
			switch {
			case errors.Is(err, ErrPlacementTimeout):
				reason = models.FailTimeout
				rec.Result = models.ResultTimeout
			case ctx.Err() != nil:
				reason = models.FailCancelled
			}
			rec.Error = err.Error()
			e.save(ctx, rec)
			metrics.Trades.WithLabelValues(rec.Result, strconv.Itoa(sess.GaleIndex)).Inc()
			e.finish(ctx, sess, reason, err)
			return
		}

		rec.Result = string(res.Outcome)
		rec.Profit = res.Profit
		if res.Outcome == models.OutcomeLoss && res.Profit.IsZero() {
			rec.Profit = stake.Neg()
		}
		e.save(ctx, rec)
		metrics.Trades.WithLabelValues(rec.Result, strconv.Itoa(sess.GaleIndex)).Inc()
		e.update(sess, func(s *models.MartingaleSession) {
			s.Outcomes = append(s.Outcomes, res.Outcome)
		})

		if res.Outcome == models.OutcomeWin {
			e.setLevel(sess.Asset, 0)
			e.finish(ctx, sess, models.FailNone, nil)
			return
		}

		if sess.GaleIndex+1 > limit {
			if e.cfg.Mode == ModeSmart && sess.GaleIndex < e.cfg.MaxGales {
				e.setLevel(sess.Asset, sess.GaleIndex+1)
				e.finish(ctx, sess, FailLossCarried, nil)
				return
			}
			e.setLevel(sess.Asset, 0)
			e.finish(ctx, sess, models.FailMaxGalesExceeded, nil)
			return
		}

		e.update(sess, func(s *models.MartingaleSession) { s.GaleIndex++ })
		e.notify(ctx, "🔁 [%s] LOSS, догон G%d: %s %s", sess.Asset, sess.GaleIndex, sess.Direction,
			StakeFor(sess.BaseStake, e.cfg.Multiplier, sess.GaleIndex))
	}
}

// place ставит сделку и ждёт исход не дольше duration+grace. Платформа, которая не уважает ctx,
// всё равно не заблокирует сессию: по таймеру вернётся ErrPlacementTimeout.
func (e *Engine) place(ctx context.Context, sess *models.MartingaleSession, intent models.TradeIntent, stake decimal.Decimal) (res Result, err error) {
	bound := intent.Duration() + e.cfg.Grace
	pctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	span, pctx := tracing.StartSpan(pctx, "martingale.place_trade", opentracing.Tags{
		"asset":     sess.Asset,
		"direction": string(sess.Direction),
		"gale":      sess.GaleIndex,
		"stake":     stake.String(),
	})
	defer func() { tracing.Finish(span, err) }()

	type placed struct {
		res Result
		err error
	}
	ch := make(chan placed, 1)

	e.update(sess, func(s *models.MartingaleSession) { s.State = models.StateAwaitingOutcome })
	go func() {
		r, err := e.placer.PlaceTrade(pctx, sess.Asset, sess.Direction, stake, intent.Duration())
		ch <- placed{res: r, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, fmt.Errorf("%w after %s: %v", ErrPlacementTimeout, bound, out.err)
		}
		return out.res, out.err
	case <-pctx.Done():
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w after %s", ErrPlacementTimeout, bound)
	}
}

func (e *Engine) finish(ctx context.Context, sess *models.MartingaleSession, reason models.FailReason, err error) {
	e.update(sess, func(s *models.MartingaleSession) {
		s.EndedAt = e.zone.Now()
		if reason == models.FailNone {
			s.State = models.StateWon
			return
		}
		s.State = models.StateFailed
		s.Fail = reason
		if err != nil {
			s.Err = err.Error()
		}
	})

	metrics.Sessions.WithLabelValues(string(sess.State), string(sess.Fail)).Inc()

	switch {
	case sess.State == models.StateWon && sess.GaleIndex == 0:
		logger.Info("[GALE] %s direct WIN", sess.Asset)
		e.notify(ctx, "✅ [%s] WIN с первого входа, ставка %s", sess.Asset, sess.CurrentStake)
	case sess.State == models.StateWon:
		logger.Info("[GALE] %s WIN after G%d", sess.Asset, sess.GaleIndex)
		e.notify(ctx, "🔥 [%s] WIN на догоне G%d, ставка %s", sess.Asset, sess.GaleIndex, sess.CurrentStake)
	case reason == FailLossCarried:
		logger.Info("[GALE] %s LOSS, level %d carried to next signal", sess.Asset, sess.GaleIndex+1)
		e.notify(ctx, "🧠 [%s] LOSS, следующий сигнал пойдёт с уровня G%d", sess.Asset, sess.GaleIndex+1)
	case reason == models.FailMaxGalesExceeded:
		logger.Warn("[GALE] %s lost all attempts (G0..G%d)", sess.Asset, sess.GaleIndex)
		e.notify(ctx, "💀 [%s] Failed(MaxGalesExceeded): проиграны все попытки G0..G%d, последняя ставка %s",
			sess.Asset, sess.GaleIndex, sess.CurrentStake)
	case reason == models.FailSuppressedByPause:
		// GaleIndex уже указывает на догон, который не ставили
		logger.Warn("[GALE] %s paused, G%d not placed", sess.Asset, sess.GaleIndex)
		e.notify(ctx, "⏸ [%s] Failed(%s): пауза, догон G%d не поставлен", sess.Asset, reason, sess.GaleIndex)
	default:
		logger.Error("[GALE] %s session failed at G%d: %s %v", sess.Asset, sess.GaleIndex, reason, err)
		msg := fmt.Sprintf("❗️ [%s] Failed(%s) на G%d", sess.Asset, reason, sess.GaleIndex)
		if err != nil {
			msg += ": " + err.Error()
		}
		e.notify(ctx, "%s", msg)
	}
}

func (e *Engine) setLevel(asset string, level int) {
	if e.cfg.Mode != ModeSmart {
		return
	}
	e.mu.Lock()
	e.levels[assetKey(asset)] = level
	e.mu.Unlock()
}

func (e *Engine) save(ctx context.Context, rec models.TradeRecord) {
	if e.journal == nil {
		return
	}
	// журнал пишем даже если ctx уже отменён
	if err := e.journal.Save(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("[GALE] journal save %s: %v", rec.Asset, err)
	}
}

func (e *Engine) notify(ctx context.Context, format string, args ...any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Send(context.WithoutCancel(ctx), fmt.Sprintf(format, args...))
}

func assetKey(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
