package telegram

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/fx"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/telegram_bot/service"
	"signal_bot/internal/notify"
	"signal_bot/internal/platform"
	"signal_bot/internal/runner"
)

// NewBotAPI возвращает nil без токена. Тогда бот работает без Telegram, уведомления идут в лог.
func NewBotAPI(cfg *config.Config) (*tgbot.BotAPI, error) {
	if cfg.Telegram.Token == "" {
		return nil, nil
	}
	bot, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: new bot api")
	}
	return bot, nil
}

func NewNotifierBot(bot *tgbot.BotAPI, cfg *config.Config) *notify.Telegram {
	return notify.NewTelegram(bot, cfg.Telegram.AdminID)
}

func Module() fx.Option {
	return fx.Module("telegram",
		// 1. Клиент Bot API и уведомления оператору
		fx.Provide(
			NewBotAPI,
			NewNotifierBot,
			notify.Pick,
		),

		// 2. Адаптеры к сервису
		fx.Provide(
			func(p *runner.Pipeline) service.Pipeline { return p },
			func(c *platform.Client) service.Platform { return c },
		),

		// 3. Слушатель каналов и команды оператора
		fx.Provide(
			service.NewTelegram,
		),

		// Запуск основного цикла через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				ctx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						t.Start(ctx)
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
