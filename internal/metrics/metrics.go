package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	SignalsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "parser",
			Name:      "messages_total",
			Help:      "Messages seen by the signal parser, by result",
		},
		[]string{"result"},
	)

	InboxDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "inbox",
			Name:      "dropped_total",
			Help:      "Messages dropped by the inbox overflow policy",
		},
	)

	ExecutionsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "scheduler",
			Name:      "scheduled_total",
			Help:      "Executions put on the schedule",
		},
	)

	ExecutionsFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "scheduler",
			Name:      "fired_total",
			Help:      "Executions armed by the scheduler timer",
		},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "martingale",
			Name:      "trades_total",
			Help:      "Placed trades by result and gale index",
		},
		[]string{"result", "gale"},
	)

	Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "martingale",
			Name:      "sessions_total",
			Help:      "Finished martingale sessions by terminal state",
		},
		[]string{"state", "reason"},
	)

	PlacementLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signal_bot",
			Subsystem: "martingale",
			Name:      "placement_seconds",
			Help:      "Time from placing a trade to its outcome",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
	)

	PlatformReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "platform",
			Name:      "reconnects_total",
			Help:      "Websocket reconnect attempts to the trading platform",
		},
	)

	// супервизор: отдельный процесс, свой реестр
	superOnce sync.Once

	SupervisorRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signal_bot",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Child process restarts",
		},
	)

	SupervisorState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "signal_bot",
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "1 for the current supervisor state",
		},
		[]string{"state"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SignalsReceived,
			InboxDropped,
			ExecutionsScheduled,
			ExecutionsFired,
			Trades,
			Sessions,
			PlacementLatency,
			PlatformReconnects,
		)
	})
}

func RegisterSupervisor() {
	superOnce.Do(func() {
		prometheus.MustRegister(SupervisorRestarts, SupervisorState)
	})
}
