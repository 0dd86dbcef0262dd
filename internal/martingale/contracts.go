package martingale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"signal_bot/internal/models"
)

var (
	ErrSessionActive     = errors.New("session active")
	ErrSuppressedByPause = errors.New("suppressed by pause")
	ErrPlacementTimeout  = errors.New("placement timeout")
)

// ConflictError: по активу уже идёт сессия, второй сигнал отклонён.
type ConflictError struct {
	Asset     string
	SessionID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s already has active session %s", e.Asset, e.SessionID)
}

func (e *ConflictError) Unwrap() error { return ErrSessionActive }

// Result: чем закончилась одна сделка на платформе.
type Result struct {
	Outcome models.Outcome
	Profit  decimal.Decimal
}

// Placer: платформа. Может блокироваться до экспирации; ctx ограничен duration+grace.
type Placer interface {
	PlaceTrade(ctx context.Context, asset string, dir models.Direction, stake decimal.Decimal, duration time.Duration) (Result, error)
}

type Notifier interface {
	Send(ctx context.Context, msg string)
}

type Journal interface {
	Save(ctx context.Context, rec models.TradeRecord) error
}

// PauseFlag читается на каждом решении о постановке сделки.
type PauseFlag interface {
	Paused() bool
}

// Reporter: обратная связь в планировщик, владелец статуса исполнения.
type Reporter interface {
	MarkExecuted(id uint64)
	MarkAbandoned(id uint64, reason string)
}
