package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"signal_bot/internal/clock"
	"signal_bot/internal/models"
	"signal_bot/internal/parser"
)

const helpText = `Команды:
/status — состояние бота
/pending — ожидающие входы
/cancel <id|all> — отменить вход
/sessions — сессии мартингейла
/signals — добавить сигналы списком (12:30;EURUSD;PUT;5)
/pause, /resume — пауза исполнения
/channels — вкл/выкл приём из каналов
/timezone [зона] — текущая таймзона / проверить другую
/history [дни] — журнал сделок
/stats [дни] — статистика`

type statusView struct {
	Connected  bool
	Balance    decimal.Decimal
	Uptime     time.Duration
	Zone       *clock.Zone
	Paused     bool
	Channels   bool
	Mode       string
	BaseStake  decimal.Decimal
	Multiplier decimal.Decimal
	MaxGales   int
	Pending    int
	Sessions   int
	InboxLen   int
	InboxCap   int
}

func formatStatus(v statusView) string {
	platform := "🔴 нет связи"
	if v.Connected {
		platform = "🟢 подключена"
	}
	return fmt.Sprintf(
		"📊 Статус\n"+
			"Платформа: %s\n"+
			"Баланс: %s\n"+
			"Аптайм: %s\n"+
			"Таймзона: %s (%s)\n"+
			"Пауза: %s\n"+
			"Каналы: %s\n"+
			"Мартингейл: %s, ставка %s, x%s, до G%d\n"+
			"Ожидают: %d, активных сессий: %d\n"+
			"Очередь: %d/%d",
		platform,
		v.Balance.StringFixed(2),
		v.Uptime.Round(time.Second),
		v.Zone.Name(), v.Zone.Now().Format("15:04:05 -07:00"),
		onOff(v.Paused),
		onOff(v.Channels),
		v.Mode, v.BaseStake.String(), v.Multiplier.String(), v.MaxGales,
		v.Pending, v.Sessions,
		v.InboxLen, v.InboxCap,
	)
}

func formatPending(list []models.ScheduledExecution, zone *clock.Zone) string {
	if len(list) == 0 {
		return "📋 Ожидающих входов нет"
	}
	var b strings.Builder
	b.WriteString("📋 Ожидающие входы:\n")
	for _, ex := range list {
		fmt.Fprintf(&b, "#%d %s %s в %s, %s\n",
			ex.ID, ex.Intent.Asset, ex.Intent.Direction,
			zone.In(ex.At).Format("15:04"), durationMin(ex.Intent.DurationSeconds))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSubmitted(scheduled []models.ScheduledExecution, lineErrs []parser.LineError, zone *clock.Zone) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Запланировано: %d", len(scheduled))
	for _, ex := range scheduled {
		fmt.Fprintf(&b, "\n#%d %s %s в %s", ex.ID, ex.Intent.Asset, ex.Intent.Direction, zone.In(ex.At).Format("15:04"))
	}
	if len(lineErrs) > 0 {
		fmt.Fprintf(&b, "\n❌ Ошибки: %d", len(lineErrs))
		for _, le := range lineErrs {
			b.WriteString("\n" + le.Error())
		}
	}
	return b.String()
}

func formatSessions(list []models.MartingaleSession, zone *clock.Zone) string {
	if len(list) == 0 {
		return "Сессий пока не было"
	}
	var b strings.Builder
	b.WriteString("🎲 Сессии:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "%s %s G%d ставка %s — %s",
			s.Asset, s.Direction, s.GaleIndex, s.CurrentStake.String(), sessionState(s))
		if len(s.Outcomes) > 0 {
			fmt.Fprintf(&b, " [%s]", joinOutcomes(s.Outcomes))
		}
		fmt.Fprintf(&b, " (%s)\n", zone.In(s.StartedAt).Format("15:04:05"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(records []models.TradeRecord, days, limit int, zone *clock.Zone) string {
	if len(records) == 0 {
		return fmt.Sprintf("📜 За %s сделок нет", daysLabel(days))
	}
	// записи отсортированы по времени, показываем хвост
	shown := records
	if len(shown) > limit {
		shown = shown[len(shown)-limit:]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📜 Сделки за %s (%d из %d):\n", daysLabel(days), len(shown), len(records))
	for _, r := range shown {
		fmt.Fprintf(&b, "%s %s %s G%d %s → %s %s\n",
			zone.In(r.PlacedAt).Format("01-02 15:04"),
			r.Asset, r.Direction, r.GaleIndex, r.Stake.String(),
			r.Result, signed(r.Profit))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatStats(records []models.TradeRecord, days, best int) string {
	st := models.Summarize(records, best)
	if st.Trades == 0 {
		return fmt.Sprintf("📈 За %s сделок нет", daysLabel(days))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📈 Статистика за %s\n", daysLabel(days))
	fmt.Fprintf(&b, "Сделок: %d (W %d / L %d)\n", st.Trades, st.Wins, st.Losses)
	fmt.Fprintf(&b, "Винрейт: %s%%\n", f2(st.WinRate))
	fmt.Fprintf(&b, "P/L: %s, средний %s", signed(st.Profit), signed(st.AvgPL))
	if len(st.Best) > 0 {
		b.WriteString("\nЛучшие активы:")
		for _, a := range st.Best {
			fmt.Fprintf(&b, "\n%s: %d сделок, %s%%, %s", a.Asset, a.Trades, f2(a.WinRate), signed(a.Profit))
		}
	}
	return b.String()
}

func sessionState(s models.MartingaleSession) string {
	switch s.State {
	case models.StateWon:
		return "✅ WIN"
	case models.StateFailed:
		return "❌ " + string(s.Fail)
	default:
		return "⏳ " + string(s.State)
	}
}

func countActive(list []models.MartingaleSession) int {
	n := 0
	for _, s := range list {
		if !s.Done() {
			n++
		}
	}
	return n
}

func joinOutcomes(out []models.Outcome) string {
	parts := make([]string, len(out))
	for i, o := range out {
		parts[i] = string(o)
	}
	return strings.Join(parts, " ")
}

func durationMin(sec int) string {
	if sec%60 == 0 {
		return fmt.Sprintf("%d мин", sec/60)
	}
	return fmt.Sprintf("%d сек", sec)
}

func daysLabel(days int) string {
	if days == 1 {
		return "сутки"
	}
	return fmt.Sprintf("%d дн.", days)
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func onOff(b bool) string {
	if b {
		return "✅"
	}
	return "❌"
}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }
