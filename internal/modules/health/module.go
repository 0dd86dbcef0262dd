package health

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"signal_bot/internal/metrics"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health/service"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
)

type Config struct {
	Addr             string // например ":8080"
	HeartbeatTimeout time.Duration
}

func NewConfig(cfg *config.Config) Config {
	return Config{Addr: cfg.Service.HealthAddr, HeartbeatTimeout: cfg.Service.HeartbeatTimeout}
}

// NewState: флаги из конфига применяются один раз на старте.
// Пауза берётся из файла или PAUSED=true; PAUSED=false файл не снимает.
func NewState(cfg *config.Config) *service.State {
	s := service.NewState()
	if cfg.Service.PauseFile != "" {
		s.KeepPauseIn(cfg.Service.PauseFile)
	}
	if cfg.Paused {
		s.SetPaused(true)
	}
	s.SetChannelsEnabled(cfg.Telegram.ChannelsEnabled)
	return s
}

func NewMux(state *service.State, cfg Config) *http.ServeMux {
	metrics.Register()
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// liveness: процесс жив и конвейер бьётся
		if !state.Alive(time.Now(), cfg.HeartbeatTimeout) {
			http.Error(w, "heartbeat stale", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"ready":             state.Ready(),
			"platformConnected": state.PlatformConnected(),
			"paused":            state.Paused(),
			"channelsEnabled":   state.ChannelsEnabled(),
			"uptimeSec":         int64(state.Uptime().Seconds()),
			"lastHeartbeatUnix": func() int64 {
				t := state.LastBeat()
				if t.IsZero() {
					return 0
				}
				return t.Unix()
			}(),
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func RunHTTP(lc fx.Lifecycle, cfg Config, mux *http.ServeMux) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Addr)
			if err != nil {
				return err
			}
			logger.Info("[HEALTH] listening on %s", ln.Addr())
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// ApplySignal: SIGUSR1 ставит паузу, SIGUSR2 снимает. Так супервизор управляет ботом без kill.
func ApplySignal(ctx context.Context, state *service.State, n notify.Notifier, sig os.Signal) {
	switch sig {
	case syscall.SIGUSR1:
		if !state.SetPaused(true) {
			logger.Warn("[HEALTH] paused by %s", sig)
			n.Send(ctx, "⏸ Пауза (сигнал супервизора)")
		}
	case syscall.SIGUSR2:
		if state.SetPaused(false) {
			logger.Warn("[HEALTH] resumed by %s", sig)
			n.Send(ctx, "▶️ Пауза снята (сигнал супервизора)")
		}
	}
}

// Signals: SIGUSR1/SIGUSR2, пойманные до сборки fx-графа.
type Signals chan os.Signal

// CatchSignals подписывается на SIGUSR1/SIGUSR2 сразу. Вызывать первой строкой main:
// без подписки SIGUSR1 убивает процесс, а конструкторы (Telegram, Postgres) ходят в сеть.
func CatchSignals() Signals {
	sigs := make(Signals, 4)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	return sigs
}

// RunSignals разбирает накопленные и новые сигналы после старта.
func RunSignals(lc fx.Lifecycle, sigs Signals, state *service.State, n notify.Notifier) {
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				for {
					select {
					case <-done:
						return
					case sig := <-sigs:
						ApplySignal(context.Background(), state, n, sig)
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			signal.Stop(sigs)
			close(done)
			return nil
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			NewState,
			NewConfig,
			NewMux,
		),
		fx.Invoke(RunHTTP, RunSignals),
	)
}
