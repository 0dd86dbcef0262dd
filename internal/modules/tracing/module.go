package tracing

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/tracing"
)

// Module поднимает Jaeger, если задан JAEGER_HOST; иначе спаны уходят в noop.
func Module() fx.Option {
	return fx.Module("tracing",
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Jaeger.Host == "" {
				logger.Info("[TRACE] JAEGER_HOST not set, tracing disabled")
				return nil
			}
			_, closeFn, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			logger.Info("[TRACE] jaeger agent %s:%d", cfg.Jaeger.Host, cfg.Jaeger.Port)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeFn()
					return nil
				},
			})
			return nil
		}),
	)
}
