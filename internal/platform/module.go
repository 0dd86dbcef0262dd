package platform

import (
	"context"

	"go.uber.org/fx"

	"signal_bot/internal/martingale"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health/service"
	"signal_bot/pkg/logger"
)

func NewFromConfig(cfg *config.Config, state *service.State) *Client {
	ssid, err := LoadSession(cfg.Platform.SessionFile, cfg.Platform.SSID)
	if err != nil && cfg.Platform.WSURL != "" {
		logger.Warn("[WS] %v", err)
	}
	return NewClient(Options{
		URL:         cfg.Platform.WSURL,
		SSID:        ssid,
		OnConnState: state.SetPlatformConnected,
	})
}

func Module() fx.Option {
	return fx.Module("platform",
		fx.Provide(
			NewFromConfig,
			func(c *Client) martingale.Placer { return c },
		),
		fx.Invoke(func(lc fx.Lifecycle, c *Client) {
			ctx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					go c.Start(ctx)
					return nil
				},
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
