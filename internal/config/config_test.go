package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  console: true
mailer:
  enabled: true
  from_email: reminders@example.com
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default level = %q", cfg.Logging.Level)
	}
	if cfg.Engine.Timezone != "UTC" {
		t.Fatalf("default timezone = %q", cfg.Engine.Timezone)
	}
	if cfg.Engine.FailurePolicy != FailureRetain {
		t.Fatalf("default failure policy = %q", cfg.Engine.FailurePolicy)
	}
	if got := cfg.TickIntervalDuration(); got != 30*time.Second {
		t.Fatalf("default tick = %v", got)
	}
	if cfg.Mailer.RatePerMinute != 30 {
		t.Fatalf("default rate = %d", cfg.Mailer.RatePerMinute)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
  "engine": {"timezone": "Asia/Jakarta", "tick_interval": "1m", "failure_policy": "deactivate"},
  "storage": {"path": "./x.db", "busy_timeout": "5s"}
}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Timezone != "Asia/Jakarta" {
		t.Fatalf("timezone = %q", cfg.Engine.Timezone)
	}
	if got := cfg.TickIntervalDuration(); got != time.Minute {
		t.Fatalf("tick = %v", got)
	}
	if got := cfg.BusyTimeoutDuration(); got != 5*time.Second {
		t.Fatalf("busy timeout = %v", got)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
engine:
  timzone: UTC
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"bad timezone", "engine:\n  timezone: Mars/Olympus\n"},
		{"bad tick", "engine:\n  tick_interval: soon\n"},
		{"bad policy", "engine:\n  failure_policy: shrug\n"},
		{"mailer without from", "mailer:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.body)
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}
