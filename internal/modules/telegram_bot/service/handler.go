package service

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/pkg/logger"
)

// Кнопки главной клавиатуры
const (
	btnStatus  = "📊 Статус"
	btnPending = "📋 Ожидающие"
	btnPause   = "⏸ Пауза"
	btnResume  = "▶️ Продолжить"
	btnStats   = "📈 Статистика"
	btnHelp    = "❓ Помощь"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// 1) Посты каналов сигналов
	if post := update.ChannelPost; post != nil {
		t.handleChannelPost(ctx, post)
		return
	}

	// 2) Inline-кнопки подтверждений
	if cb := update.CallbackQuery; cb != nil {
		t.notifier.HandleCallback(cb)
		return
	}

	// 3) Команды и текст оператора
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if !t.isAdmin(msg) {
		logger.Debug("[TG] ignore message from chat %d", msg.Chat.ID)
		return
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		if msg.Command() == "start" {
			t.handleStart(ctx, chatID)
			return
		}
		if reply := t.command(ctx, chatID, msg.Command(), msg.CommandArguments()); reply != "" {
			t.Send(ctx, chatID, reply)
		}
		return
	}

	t.handleTextMessage(ctx, chatID, strings.TrimSpace(msg.Text))
}

func (t *Telegram) handleChannelPost(ctx context.Context, post *tgbotapi.Message) {
	if post.Chat == nil || !t.cfg.IsSignalChannel(post.Chat.ID) {
		return
	}
	if !t.state.ChannelsEnabled() {
		logger.Debug("[TG] channels disabled, skip post %d", post.MessageID)
		return
	}
	text := post.Text
	if text == "" {
		text = post.Caption
	}
	if text == "" {
		return
	}
	if !t.pipeline.Deliver(ctx, text) {
		logger.Warn("[TG] inbox refused post %d", post.MessageID)
	}
}

func (t *Telegram) isAdmin(msg *tgbotapi.Message) bool {
	admin := t.cfg.Telegram.AdminID
	if admin == 0 {
		return false
	}
	if msg.From != nil && msg.From.ID == admin {
		return true
	}
	return msg.Chat.ID == admin
}

func (t *Telegram) handleStart(ctx context.Context, chatID int64) {
	replyKb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStatus),
			tgbotapi.NewKeyboardButton(btnPending),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnPause),
			tgbotapi.NewKeyboardButton(btnResume),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStats),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
	)

	msg := tgbotapi.NewMessage(chatID, "Привет! Я исполняю сигналы из каналов по расписанию.\n\n"+helpText)
	msg.ReplyMarkup = replyKb
	t.SendMessage(ctx, msg)
}

func (t *Telegram) handleTextMessage(ctx context.Context, chatID int64, text string) {
	// ждём список сигналов после /signals без аргументов
	if key := t.popAwait(chatID); key == awaitSignals {
		t.Send(ctx, chatID, t.command(ctx, chatID, "signals", text))
		return
	}

	switch text {
	case btnStatus:
		t.Send(ctx, chatID, t.command(ctx, chatID, "status", ""))
	case btnPending:
		t.Send(ctx, chatID, t.command(ctx, chatID, "pending", ""))
	case btnPause:
		t.Send(ctx, chatID, t.command(ctx, chatID, "pause", ""))
	case btnResume:
		t.Send(ctx, chatID, t.command(ctx, chatID, "resume", ""))
	case btnStats:
		t.Send(ctx, chatID, t.command(ctx, chatID, "stats", ""))
	case btnHelp:
		t.Send(ctx, chatID, helpText)
	}
}
