package runner

import (
	"context"
	"time"

	"go.uber.org/fx"

	"signal_bot/internal/clock"
	"signal_bot/internal/journal"
	"signal_bot/internal/martingale"
	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health/service"
	"signal_bot/internal/notify"
	"signal_bot/internal/scheduler"
	"signal_bot/pkg/logger"
)

const heartbeatEvery = 15 * time.Second

func NewEngine(cfg *config.Config, placer martingale.Placer, n notify.Notifier, store journal.Store, state *service.State, zone *clock.Zone) *martingale.Engine {
	return martingale.NewEngine(martingale.Config{
		BaseStake:  cfg.StakeDecimal(),
		Multiplier: cfg.MultiplierDecimal(),
		MaxGales:   cfg.MaxGales,
		Grace:      cfg.OutcomeGrace,
		Mode:       martingale.Mode(cfg.MartingaleMode),
	}, placer, n, store, state, zone)
}

// NewScheduler: цикл между планировщиком и движком разорван колбэком Fire.
func NewScheduler(cfg *config.Config, engine *martingale.Engine, state *service.State, zone *clock.Zone, pf *PendingFile) *scheduler.Scheduler {
	var sched *scheduler.Scheduler
	fire := func(ctx context.Context, ex models.ScheduledExecution) {
		Fire(engine, sched)(ctx, ex)
	}
	sched = scheduler.New(
		clock.NewResolver(zone, cfg.LateTolerance),
		clock.Real(),
		fire,
		scheduler.WithHeartbeat(heartbeatEvery, state.Beat),
		scheduler.WithPendingSaver(pf),
	)
	return sched
}

func NewInboxFromConfig(cfg *config.Config) *Inbox {
	return NewInbox(cfg.InboxSize, cfg.InboxPolicy)
}

func NewPendingFileFromConfig(cfg *config.Config, zone *clock.Zone) *PendingFile {
	return NewPendingFile(cfg.Service.PendingFile, zone)
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewInboxFromConfig,
			NewPendingFileFromConfig,
			NewEngine,
			NewScheduler,
			NewPipeline,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			cfg *config.Config,
			p *Pipeline,
			sched *scheduler.Scheduler,
			engine *martingale.Engine,
			pf *PendingFile,
			state *service.State,
			n notify.Notifier,
		) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					stored, err := pf.Load()
					if err != nil {
						logger.Error("[RUNNER] load pending: %v", err)
					}
					if len(stored) > 0 {
						restored, dropped := p.Restore(stored, time.Now(), cfg.LateTolerance)
						logger.Info("[RUNNER] pending restored=%d dropped=%d", restored, dropped)
						n.Sendf(ctx, "♻️ После рестарта: восстановлено %d, просрочено %d", restored, dropped)
					}

					go func() { _ = sched.Run(ctx) }()
					go p.Run(ctx)
					state.SetReady(true)
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					state.SetReady(false)
					cancel()
					done := make(chan struct{})
					go func() {
						engine.Wait()
						close(done)
					}()
					select {
					case <-done:
					case <-stopCtx.Done():
						logger.Warn("[RUNNER] stop: sessions still in flight")
					}
					return nil
				},
			})
		}),
	)
}
