package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"signal_bot/internal/supervisor"
)

const envPrefix = "SUPERVISOR"

type settings struct {
	Cmd      string
	Args     []string
	Dir      string
	ProbeURL string
	Control  string
	LogLevel string

	TelegramToken   string
	TelegramAdminID int64

	Supervisor supervisor.Config
}

// newViper: флаги > SUPERVISOR_* из окружения > configs/supervisor.yaml > дефолты.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("cmd", "./bot")
	v.SetDefault("probe-url", "http://127.0.0.1:8080/livez")
	v.SetDefault("probe-every", 10*time.Second)
	v.SetDefault("probe-grace", time.Minute)
	v.SetDefault("probe-failures", 3)
	v.SetDefault("backoff", 2*time.Second)
	v.SetDefault("max-backoff", time.Minute)
	v.SetDefault("escalate-after", 5)
	v.SetDefault("escalated-backoff", 10*time.Minute)
	v.SetDefault("stable-after", 5*time.Minute)
	v.SetDefault("stop-timeout", 20*time.Second)
	v.SetDefault("control", "127.0.0.1:8090")
	v.SetDefault("artifacts", []string{"data/session.json", "data/pending.json"})
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// токен и чат берём у бота, если своих нет
	_ = v.BindEnv("telegram-token", envPrefix+"_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("telegram-admin-id", envPrefix+"_TELEGRAM_ADMIN_ID", "TELEGRAM_ADMIN_ID")

	v.SetConfigName("supervisor")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read supervisor config")
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, errors.Wrap(err, "bind flags")
		}
	}
	return v, nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		Cmd:             v.GetString("cmd"),
		Args:            v.GetStringSlice("args"),
		Dir:             v.GetString("dir"),
		ProbeURL:        v.GetString("probe-url"),
		Control:         v.GetString("control"),
		LogLevel:        v.GetString("log-level"),
		TelegramToken:   v.GetString("telegram-token"),
		TelegramAdminID: v.GetInt64("telegram-admin-id"),
		Supervisor: supervisor.Config{
			Backoff:          v.GetDuration("backoff"),
			MaxBackoff:       v.GetDuration("max-backoff"),
			EscalateAfter:    v.GetInt("escalate-after"),
			EscalatedBackoff: v.GetDuration("escalated-backoff"),
			StableAfter:      v.GetDuration("stable-after"),
			ProbeEvery:       v.GetDuration("probe-every"),
			ProbeGrace:       v.GetDuration("probe-grace"),
			ProbeFailures:    v.GetInt("probe-failures"),
			StopTimeout:      v.GetDuration("stop-timeout"),
			Artifacts:        v.GetStringSlice("artifacts"),
		},
	}
	if s.Cmd == "" {
		return settings{}, errors.New("cmd is empty")
	}
	if s.Supervisor.Backoff <= 0 || s.Supervisor.MaxBackoff < s.Supervisor.Backoff {
		return settings{}, errors.Errorf("bad backoff window %s..%s", s.Supervisor.Backoff, s.Supervisor.MaxBackoff)
	}
	return s, nil
}
