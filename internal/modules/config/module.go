package config

import (
	"go.uber.org/fx"

	"signal_bot/internal/clock"
)

// NewZone отдаёт зону процесса. На невалидном имени пишет предупреждение и берёт UTC, старт не прерывается.
func NewZone(cfg *Config) *clock.Zone {
	return clock.LoadZoneOrUTC(cfg.Timezone)
}

func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			NewZone,
		),
	)
}
