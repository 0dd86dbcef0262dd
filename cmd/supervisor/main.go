package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"signal_bot/internal/metrics"
	"signal_bot/internal/notify"
	"signal_bot/internal/supervisor"
	"signal_bot/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	logger.SetServiceName("signal_bot_supervisor")

	rootCmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Watchdog for the signal bot process",
	}
	rootCmd.PersistentFlags().String("control", "", "control server address (host:port)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(controlCmd("pause", "Pause trade execution in the bot", (*supervisor.Client).Pause))
	rootCmd.AddCommand(controlCmd("resume", "Resume trade execution", (*supervisor.Client).Resume))
	rootCmd.AddCommand(controlCmd("status", "Show supervisor and child state", (*supervisor.Client).Status))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [-- bot args]",
		Short: "Start the bot and keep it alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				s.Args = args
			}
			return run(s)
		},
	}

	f := cmd.Flags()
	f.String("cmd", "", "bot binary")
	f.String("dir", "", "working directory of the bot")
	f.String("probe-url", "", "liveness URL of the bot")
	f.Duration("probe-every", 0, "liveness probe interval")
	f.Duration("backoff", 0, "initial restart backoff")
	f.Duration("max-backoff", 0, "restart backoff ceiling")
	f.Int("escalate-after", 0, "consecutive crashes before escalation")
	f.String("log-level", "", "debug|info|warn|error")
	return cmd
}

func run(s settings) error {
	if err := logger.Init(s.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()
	metrics.RegisterSupervisor()

	tg, err := notify.NewTelegramFromToken(s.TelegramToken, s.TelegramAdminID)
	if err != nil {
		logger.Warn("[SUP] telegram alerts disabled: %v", err)
	}
	alerts := notify.Pick(tg)

	var prober supervisor.Prober
	if s.ProbeURL != "" {
		prober = supervisor.NewHTTPProber(s.ProbeURL, 5*time.Second)
	}

	sup := supervisor.New(s.Supervisor, &supervisor.ExecLauncher{
		Path:   s.Cmd,
		Args:   s.Args,
		Dir:    s.Dir,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, prober, alerts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// SIGUSR1/SIGUSR2 самому супервизору пробрасываются ребёнку
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigs)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				var err error
				if sig == syscall.SIGUSR1 {
					err = sup.Pause()
				} else {
					err = sup.Resume()
				}
				if err != nil {
					logger.Error("[SUP] %v: %v", sig, err)
				}
			}
		}
	}()

	go func() {
		if err := supervisor.ServeControl(ctx, s.Control, supervisor.NewControlMux(sup)); err != nil {
			logger.Error("[SUP] control server: %v", err)
		}
	}()

	logger.Info("[SUP] supervising %s %v", s.Cmd, s.Args)
	alerts.Sendf(ctx, "🛡 Супервизор запущен: %s", s.Cmd)
	return sup.Run(ctx)
}

func controlCmd(use, short string, call func(*supervisor.Client, context.Context) (supervisor.Status, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			st, err := call(supervisor.NewClient(v.GetString("control")), ctx)
			if err != nil {
				return err
			}
			printStatus(st)
			return nil
		},
	}
}

func printStatus(st supervisor.Status) {
	fmt.Printf("state:       %s\n", st.State)
	fmt.Printf("paused:      %v\n", st.Paused)
	fmt.Printf("pid:         %d\n", st.PID)
	fmt.Printf("restarts:    %d (in a row: %d)\n", st.Restarts, st.Consecutive)
	if !st.StartedAt.IsZero() {
		fmt.Printf("started at:  %s\n", st.StartedAt.Format(time.RFC3339))
	}
	if st.LastExit != "" {
		fmt.Printf("last exit:   %s\n", st.LastExit)
	}
	if st.State == supervisor.StateBackoff || st.State == supervisor.StateEscalated {
		fmt.Printf("next start:  %s\n", st.NextStart.Format(time.RFC3339))
	}
}
