package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/pkg/logger"
)

type Notifier interface {
	Send(ctx context.Context, msg string)
	Sendf(ctx context.Context, format string, args ...any)
	Confirm(ctx context.Context, prompt string, timeout time.Duration) bool
}

// Telegram: пассивный нотифайер в админ-чат + подтверждения inline-кнопками.
// Nil-safe: без бота или chatID всё молча пропускается, Confirm отвечает true.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu       sync.Mutex
	pendings map[string]*pending
}

type pending struct {
	ch     chan bool
	msgID  int
	prompt string
}

func NewTelegram(bot *tgbot.BotAPI, chatID int64) *Telegram {
	return &Telegram{
		bot:      bot,
		chatID:   chatID,
		pendings: make(map[string]*pending),
	}
}

// NewTelegramFromToken: для процессов без fx (супервизор).
func NewTelegramFromToken(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return NewTelegram(nil, chatID), nil
	}
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return NewTelegram(b, chatID), nil
}

func (t *Telegram) enabled() bool {
	return t != nil && t.bot != nil && t.chatID != 0
}

func (t *Telegram) Send(_ context.Context, msg string) {
	if !t.enabled() {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Warn("[TG] send: %v", err)
	}
}

func (t *Telegram) Sendf(ctx context.Context, format string, args ...any) {
	t.Send(ctx, fmt.Sprintf(format, args...))
}

// HandleCallback вызывается из цикла апдейтов для callback_query.
// Возвращает true, если callback относился к Confirm.
func (t *Telegram) HandleCallback(cb *tgbot.CallbackQuery) bool {
	if !t.enabled() || cb == nil {
		return false
	}

	// ожидаем CONF::token / REJ::token
	verb, token, ok := strings.Cut(cb.Data, "::")
	if !ok || token == "" {
		return false
	}

	t.mu.Lock()
	p, ok := t.pendings[token]
	if ok {
		delete(t.pendings, token)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}

	// ответ Telegram для остановки спиннера
	_, _ = t.bot.Request(tgbot.NewCallback(cb.ID, ""))

	accepted := verb == "CONF"
	p.ch <- accepted

	status, emoji := "Отклонено", "❌"
	if accepted {
		status, emoji = "Подтверждено", "✅"
	}
	t.finalize(p, fmt.Sprintf("%s\n\n%s %s", p.prompt, emoji, status))
	return true
}

// Confirm: сообщение с кнопками и ожиданием callback.
func (t *Telegram) Confirm(ctx context.Context, prompt string, timeout time.Duration) bool {
	if !t.enabled() {
		return true
	}

	token := fmt.Sprintf("%d", time.Now().UnixNano())
	p := &pending{
		ch:     make(chan bool, 1),
		prompt: prompt,
	}

	btnYes := tgbot.NewInlineKeyboardButtonData("✅ Да", "CONF::"+token)
	btnNo := tgbot.NewInlineKeyboardButtonData("❌ Нет", "REJ::"+token)
	msg := tgbot.NewMessage(t.chatID, prompt)
	msg.ReplyMarkup = tgbot.NewInlineKeyboardMarkup(tgbot.NewInlineKeyboardRow(btnYes, btnNo))

	sent, err := t.bot.Send(msg)
	if err != nil {
		logger.Warn("[TG] confirm: %v", err)
		return false
	}
	p.msgID = sent.MessageID

	t.mu.Lock()
	t.pendings[token] = p
	t.mu.Unlock()

	tmr := time.NewTimer(timeout)
	defer tmr.Stop()

	select {
	case ok := <-p.ch:
		return ok
	case <-tmr.C:
		t.drop(token)
		t.finalize(p, fmt.Sprintf("%s\n\n⏳ Таймаут", prompt))
		return false
	case <-ctx.Done():
		t.drop(token)
		t.finalize(p, fmt.Sprintf("%s\n\n⛔️ Отменено", prompt))
		return false
	}
}

func (t *Telegram) drop(token string) {
	t.mu.Lock()
	delete(t.pendings, token)
	t.mu.Unlock()
}

func (t *Telegram) finalize(p *pending, text string) {
	rm := tgbot.InlineKeyboardMarkup{InlineKeyboard: [][]tgbot.InlineKeyboardButton{}}
	_, _ = t.bot.Request(tgbot.NewEditMessageReplyMarkup(t.chatID, p.msgID, rm))
	_, _ = t.bot.Request(tgbot.NewEditMessageText(t.chatID, p.msgID, text))
}

// Stdout: заглушка, всё логирует и всегда подтверждает.
type Stdout struct{}

func NewStdout() *Stdout { return &Stdout{} }

func (s *Stdout) Send(_ context.Context, msg string) { logger.Info("[NOTIFY] %s", msg) }

func (s *Stdout) Sendf(_ context.Context, format string, args ...any) {
	logger.Info("[NOTIFY] "+format, args...)
}

func (s *Stdout) Confirm(_ context.Context, prompt string, _ time.Duration) bool {
	logger.Info("[NOTIFY] CONFIRM (auto-yes): %s", prompt)
	return true
}

// Pick: Telegram, если есть бот и админ-чат, иначе Stdout.
func Pick(t *Telegram) Notifier {
	if t.enabled() {
		return t
	}
	return NewStdout()
}
