package service

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"signal_bot/internal/clock"
	"signal_bot/internal/journal"
	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	health "signal_bot/internal/modules/health/service"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
)

// Pipeline: то, что бот умеет делать с конвейером сигналов.
type Pipeline interface {
	Deliver(ctx context.Context, raw string) bool
	Submit(intents []models.TradeIntent) []models.ScheduledExecution
	Pending() []models.ScheduledExecution
	Cancel(id uint64) error
	CancelAll() int
	Sessions() []models.MartingaleSession
	InboxLen() int
}

type Platform interface {
	Connected() bool
	Balance() decimal.Decimal
}

const confirmTimeout = 30 * time.Second

// Telegram: слушатель каналов сигналов и командный интерфейс оператора.
type Telegram struct {
	bot      *tgbot.BotAPI
	cfg      *config.Config
	state    *health.State
	pipeline Pipeline
	platform Platform
	journal  journal.Store
	notifier *notify.Telegram
	zone     *clock.Zone
	await    *awaitStore
}

func NewTelegram(
	bot *tgbot.BotAPI,
	cfg *config.Config,
	state *health.State,
	pipeline Pipeline,
	platform Platform,
	store journal.Store,
	notifier *notify.Telegram,
	zone *clock.Zone,
) *Telegram {
	return &Telegram{
		bot:      bot,
		cfg:      cfg,
		state:    state,
		pipeline: pipeline,
		platform: platform,
		journal:  store,
		notifier: notifier,
		zone:     zone,
		await:    newAwaitStore(),
	}
}

func (t *Telegram) Send(_ context.Context, chatID int64, msg string) {
	if t.bot == nil {
		logger.Info("[TG] -> %d: %s", chatID, msg)
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(chatID, msg)); err != nil {
		logger.Warn("[TG] send %d: %v", chatID, err)
	}
}

func (t *Telegram) SendF(ctx context.Context, chatID int64, format string, args ...any) {
	t.Send(ctx, chatID, fmt.Sprintf(format, args...))
}

func (t *Telegram) SendMessage(_ context.Context, message tgbot.MessageConfig) {
	if t.bot == nil {
		return
	}
	if _, err := t.bot.Send(message); err != nil {
		logger.Warn("[TG] send: %v", err)
	}
}

// Start запускает long-polling в своей горутине (messages, channel_post, callback_query).
func (t *Telegram) Start(ctx context.Context) {
	if t.bot == nil {
		logger.Warn("[TG] TELEGRAM_BOT_TOKEN not set, channel listener disabled")
		return
	}
	if len(t.cfg.Telegram.ChannelIDs) == 0 {
		logger.Warn("[TG] SIGNAL_CHANNEL_IDS is empty, no channel will be monitored")
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "channel_post", "callback_query"}
	updates := t.bot.GetUpdatesChan(u)

	logger.Info("[TG] listening as @%s", t.bot.Self.UserName)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
}
