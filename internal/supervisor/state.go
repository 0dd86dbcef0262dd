// Package supervisor держит процесс бота живым: перезапуск после падения, backoff,
// эскалация и пауза через сигналы без убийства процесса.
package supervisor

import (
	"time"

	"signal_bot/internal/metrics"
)

type State string

const (
	StateStopped    State = "Stopped"
	StateRunning    State = "Running"
	StateRestarting State = "Restarting"
	StateBackoff    State = "Backoff"
	StateEscalated  State = "Escalated"
)

var allStates = []State{StateStopped, StateRunning, StateRestarting, StateBackoff, StateEscalated}

// Status: снимок для /status и CLI.
type Status struct {
	State       State     `json:"state"`
	Paused      bool      `json:"paused"`
	PID         int       `json:"pid"`
	Restarts    int       `json:"restarts"`
	Consecutive int       `json:"consecutive"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	LastExit    string    `json:"last_exit,omitempty"`
	NextStart   time.Time `json:"next_start,omitempty"`
}

func publishState(st State) {
	for _, s := range allStates {
		v := 0.0
		if s == st {
			v = 1
		}
		metrics.SupervisorState.WithLabelValues(string(s)).Set(v)
	}
}

// Backoff: initial * 2^(n-1), не больше ceiling. n считается с 1 и равен номеру подряд идущего падения.
func Backoff(initial, ceiling time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := initial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}
