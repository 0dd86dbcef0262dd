package models

import "time"

type ExecStatus string

const (
	ExecPending   ExecStatus = "PENDING"
	ExecArmed     ExecStatus = "ARMED"
	ExecExecuted  ExecStatus = "EXECUTED"
	ExecAbandoned ExecStatus = "ABANDONED"
)

// Причины отказа от исполнения.
const (
	ReasonCancelled         = "Cancelled"
	ReasonSuppressedByPause = "SuppressedByPause"
	ReasonSessionActive     = "SessionActive"
	ReasonShutdown          = "Shutdown"
)

// ScheduledExecution: снимок запланированного исполнения. Владелец: планировщик.
type ScheduledExecution struct {
	ID        uint64
	Intent    TradeIntent
	At        time.Time // абсолютный момент входа, в настроенной зоне
	Status    ExecStatus
	Reason    string
	CreatedAt time.Time
}

func (e ScheduledExecution) Terminal() bool {
	return e.Status == ExecExecuted || e.Status == ExecAbandoned
}
