package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// GaleState: состояние автомата мартингейла.
type GaleState string

const (
	StateIdle            GaleState = "Idle"
	StatePlacing         GaleState = "Placing"
	StateAwaitingOutcome GaleState = "AwaitingOutcome"
	StateWon             GaleState = "WinTerminal"
	StateFailed          GaleState = "Failed"
)

// FailReason: почему сессия закончилась без выигрыша.
type FailReason string

const (
	FailNone              FailReason = ""
	FailTimeout           FailReason = "Timeout"
	FailMaxGalesExceeded  FailReason = "MaxGalesExceeded"
	FailPlacement         FailReason = "Placement"
	FailSuppressedByPause FailReason = "SuppressedByPause"
	FailCancelled         FailReason = "Cancelled"
)

// MartingaleSession: одна цепочка догонов по одному сигналу.
type MartingaleSession struct {
	ID           string
	ExecutionID  uint64
	Asset        string
	Direction    Direction
	BaseStake    decimal.Decimal
	CurrentStake decimal.Decimal
	GaleIndex    int
	Outcomes     []Outcome
	State        GaleState
	Fail         FailReason
	Err          string
	StartedAt    time.Time
	EndedAt      time.Time
}

func (s MartingaleSession) Done() bool {
	return s.State == StateWon || s.State == StateFailed
}
