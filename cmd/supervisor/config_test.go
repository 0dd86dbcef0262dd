package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestSettingsDefaultsAndEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SUPERVISOR_BACKOFF", "3s")
	t.Setenv("SUPERVISOR_ESCALATE_AFTER", "7")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("TELEGRAM_ADMIN_ID", "42")

	v, err := newViper(nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := loadSettings(v)
	if err != nil {
		t.Fatal(err)
	}

	if s.Supervisor.Backoff != 3*time.Second || s.Supervisor.EscalateAfter != 7 {
		t.Errorf("env not applied: %+v", s.Supervisor)
	}
	if s.Supervisor.MaxBackoff != time.Minute || s.Cmd != "./bot" || s.Control != "127.0.0.1:8090" {
		t.Errorf("defaults: %+v", s)
	}
	if s.TelegramToken != "bot-token" || s.TelegramAdminID != 42 {
		t.Errorf("bot telegram fallback: %q %d", s.TelegramToken, s.TelegramAdminID)
	}
	if len(s.Supervisor.Artifacts) != 2 {
		t.Errorf("artifacts = %v", s.Supervisor.Artifacts)
	}
}

func TestSettingsFileAndFlags(t *testing.T) {
	dir := chdirTemp(t)
	if err := os.MkdirAll(filepath.Join(dir, "configs"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "cmd: /opt/bot/bot\nprobe-every: 30s\nartifacts: [a.json]\n"
	if err := os.WriteFile(filepath.Join(dir, "configs", "supervisor.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("cmd", "", "")
	if err := flags.Parse([]string{"--cmd", "/usr/local/bin/bot"}); err != nil {
		t.Fatal(err)
	}

	v, err := newViper(flags)
	if err != nil {
		t.Fatal(err)
	}
	s, err := loadSettings(v)
	if err != nil {
		t.Fatal(err)
	}
	if s.Cmd != "/usr/local/bin/bot" {
		t.Errorf("flag must win over file, cmd = %q", s.Cmd)
	}
	if s.Supervisor.ProbeEvery != 30*time.Second {
		t.Errorf("probe-every = %s", s.Supervisor.ProbeEvery)
	}
	if len(s.Supervisor.Artifacts) != 1 || s.Supervisor.Artifacts[0] != "a.json" {
		t.Errorf("artifacts = %v", s.Supervisor.Artifacts)
	}
}

func TestSettingsRejectBadBackoff(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SUPERVISOR_BACKOFF", "2m")
	t.Setenv("SUPERVISOR_MAX_BACKOFF", "1m")

	v, err := newViper(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loadSettings(v); err == nil {
		t.Fatal("backoff above ceiling must be rejected")
	}
}
