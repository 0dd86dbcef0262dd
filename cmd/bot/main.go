package main

import (
	"context"
	"log"
	_ "time/tzdata"

	"go.uber.org/fx"

	"signal_bot/internal/journal"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health"
	"signal_bot/internal/modules/postgres"
	telegram "signal_bot/internal/modules/telegram_bot"
	"signal_bot/internal/modules/tracing"
	"signal_bot/internal/platform"
	"signal_bot/internal/runner"
	"signal_bot/pkg/logger"
	pkgtracing "signal_bot/pkg/tracing"
)

const serviceName = "signal_bot"

func main() {
	sigs := health.CatchSignals()

	logger.SetServiceName(serviceName)
	pkgtracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		fx.Supply(sigs),
		config.Module(),
		fx.Invoke(func(cfg *config.Config) error {
			return logger.Init(cfg.LogLevel)
		}),
		tracing.Module(),
		postgres.Module(),
		journal.Module(),
		health.Module(),
		platform.Module(),
		runner.Module(),
		telegram.Module(),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}

	// до SIGINT/SIGTERM; SIGUSR1/SIGUSR2 пойманы выше и разбираются в health
	app.Run()
	logger.Sync()
}
