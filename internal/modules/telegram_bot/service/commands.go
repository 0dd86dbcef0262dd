package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"signal_bot/internal/clock"
	"signal_bot/internal/parser"
	"signal_bot/internal/scheduler"
	"signal_bot/pkg/logger"
)

const (
	defaultHistoryDays = 1
	defaultStatsDays   = 7
	historyLimit       = 20
	statsBest          = 3
)

// command выполняет команду оператора и возвращает текст ответа.
// Пустой ответ: команда ответит сама.
func (t *Telegram) command(ctx context.Context, chatID int64, cmd, args string) string {
	args = strings.TrimSpace(args)

	switch cmd {
	case "help":
		return helpText
	case "status":
		return t.statusText()
	case "timezone":
		return t.timezoneText(args)
	case "channels":
		if t.state.ToggleChannels() {
			return "📡 Приём сигналов из каналов: ✅"
		}
		return "📡 Приём сигналов из каналов: ❌"
	case "pause":
		if t.state.SetPaused(true) {
			return "⏸ Уже на паузе"
		}
		logger.Info("[TG] paused by operator")
		return "⏸ Пауза: новые входы не исполняются"
	case "resume":
		if !t.state.SetPaused(false) {
			return "▶️ Пауза и так снята"
		}
		logger.Info("[TG] resumed by operator")
		return "▶️ Исполнение возобновлено"
	case "signals":
		if args == "" {
			t.setAwait(chatID, awaitSignals)
			return "Пришлите список сигналов, по одному в строке:\n12:30;EURUSD;PUT;5"
		}
		return t.submitSignals(args)
	case "pending":
		return formatPending(t.pipeline.Pending(), t.zone)
	case "cancel":
		return t.cancel(ctx, chatID, args)
	case "sessions":
		return formatSessions(t.pipeline.Sessions(), t.zone)
	case "history":
		return t.history(ctx, args)
	case "stats":
		return t.stats(ctx, args)
	default:
		return "Неизвестная команда. /help"
	}
}

func (t *Telegram) statusText() string {
	return formatStatus(statusView{
		Connected:  t.platform.Connected(),
		Balance:    t.platform.Balance(),
		Uptime:     t.state.Uptime(),
		Zone:       t.zone,
		Paused:     t.state.Paused(),
		Channels:   t.state.ChannelsEnabled(),
		Mode:       t.cfg.MartingaleMode,
		BaseStake:  t.cfg.StakeDecimal(),
		Multiplier: t.cfg.MultiplierDecimal(),
		MaxGales:   t.cfg.MaxGales,
		Pending:    len(t.pipeline.Pending()),
		Sessions:   countActive(t.pipeline.Sessions()),
		InboxLen:   t.pipeline.InboxLen(),
		InboxCap:   t.cfg.InboxSize,
	})
}

// timezoneText показывает текущую зону; с аргументом: проверяет имя и
// подсказывает строку для .env. Сама зона меняется только рестартом.
func (t *Telegram) timezoneText(name string) string {
	if name == "" {
		now := t.zone.Now()
		return fmt.Sprintf("🕒 Таймзона: %s\nСейчас: %s", t.zone.Name(), now.Format("15:04:05 -07:00"))
	}
	z, err := clock.LoadZone(name)
	if err != nil {
		return fmt.Sprintf("❌ Неизвестная таймзона %q", name)
	}
	return fmt.Sprintf("🕒 %s сейчас %s\nЧтобы применить, пропишите в .env и перезапустите:\nTIMEZONE=%s",
		z.Name(), z.Now().Format("15:04 -07:00"), z.Name())
}

func (t *Telegram) submitSignals(text string) string {
	intents, lineErrs := parser.ParseCompact(text)
	scheduled := t.pipeline.Submit(intents)
	return formatSubmitted(scheduled, lineErrs, t.zone)
}

func (t *Telegram) cancel(ctx context.Context, chatID int64, arg string) string {
	if arg == "" {
		return "Использование: /cancel <id> или /cancel all"
	}
	if strings.EqualFold(arg, "all") {
		n := len(t.pipeline.Pending())
		if n == 0 {
			return "Нечего отменять"
		}
		// подтверждение приходит через этот же цикл апдейтов
		go t.cancelAll(ctx, chatID, n)
		return ""
	}

	id, err := strconv.ParseUint(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return fmt.Sprintf("❌ Некорректный id %q", arg)
	}
	if err := t.pipeline.Cancel(id); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlreadyFired):
			return fmt.Sprintf("⚠️ #%d уже исполнен или отменён", id)
		case errors.Is(err, scheduler.ErrUnknownExecution):
			return fmt.Sprintf("❌ #%d не найден", id)
		default:
			return fmt.Sprintf("❌ #%d: %v", id, err)
		}
	}
	return fmt.Sprintf("🗑 #%d отменён", id)
}

func (t *Telegram) cancelAll(ctx context.Context, chatID int64, n int) {
	if !t.notifier.Confirm(ctx, fmt.Sprintf("Отменить все ожидающие входы (%d)?", n), confirmTimeout) {
		t.Send(ctx, chatID, "Отмена не подтверждена")
		return
	}
	t.SendF(ctx, chatID, "🗑 Отменено: %d", t.pipeline.CancelAll())
}

func (t *Telegram) history(ctx context.Context, arg string) string {
	days, err := parseDays(arg, defaultHistoryDays)
	if err != nil {
		return err.Error()
	}
	records, err := t.journal.List(ctx, t.zone.Now().AddDate(0, 0, -days))
	if err != nil {
		logger.Error("[TG] journal list: %v", err)
		return "❌ Журнал недоступен"
	}
	return formatHistory(records, days, historyLimit, t.zone)
}

func (t *Telegram) stats(ctx context.Context, arg string) string {
	days, err := parseDays(arg, defaultStatsDays)
	if err != nil {
		return err.Error()
	}
	records, err := t.journal.List(ctx, t.zone.Now().AddDate(0, 0, -days))
	if err != nil {
		logger.Error("[TG] journal list: %v", err)
		return "❌ Журнал недоступен"
	}
	return formatStats(records, days, statsBest)
}

func parseDays(arg string, def int) (int, error) {
	if arg == "" {
		return def, nil
	}
	d, err := strconv.Atoi(arg)
	if err != nil || d <= 0 || d > 365 {
		return 0, errors.Errorf("❌ Число дней от 1 до 365, получено %q", arg)
	}
	return d, nil
}
