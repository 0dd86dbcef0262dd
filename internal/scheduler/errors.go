package scheduler

import (
	"errors"
	"fmt"

	"signal_bot/internal/models"
)

var (
	ErrAlreadyFired     = errors.New("already fired")
	ErrUnknownExecution = errors.New("unknown execution")
)

// CancelError: отмена опоздала или хэндл неизвестен. Состояние при этом не меняется.
type CancelError struct {
	Handle Handle
	Status models.ExecStatus
	Reason error
}

func (e *CancelError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("cancel #%d: %v", e.Handle, e.Reason)
	}
	return fmt.Sprintf("cancel #%d: %v (status %s)", e.Handle, e.Reason, e.Status)
}

func (e *CancelError) Unwrap() error { return e.Reason }
