package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full daemon configuration.
//
// Files may be JSON or YAML; YAML is coerced to JSON and decoded strictly,
// so unknown keys are rejected in both formats.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Engine  EngineConfig  `json:"engine"`
	Mailer  MailerConfig  `json:"mailer"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig locates the sqlite database holding schedules and the
// vehicle/user read models.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout"` // e.g. "5s"; empty means driver default
}

// EngineConfig controls the reminder scheduling engine.
type EngineConfig struct {
	// Timezone is the default IANA zone for schedules that don't carry
	// their own (e.g. "UTC", "Asia/Jakarta"). Defaults to UTC.
	Timezone string `json:"timezone"`

	// TickInterval is the sweep granularity of the timer registry.
	// Reminders have minute resolution, so anything <= 1m is fine.
	TickInterval string `json:"tick_interval"`

	// FailurePolicy decides what happens to a schedule whose dispatch
	// failed (mail error, missing entities):
	//   - "retain": schedule stays active and is re-registered on the
	//     next reload (default; a restart retries it).
	//   - "deactivate": schedule is set inactive, status stays pending,
	//     and it never fires again.
	FailurePolicy string `json:"failure_policy"`
}

type MailerConfig struct {
	Enabled       bool   `json:"enabled"`
	FromEmail     string `json:"from_email"`
	FromName      string `json:"from_name"`
	RatePerMinute int    `json:"rate_per_minute"`
}

const (
	FailureRetain     = "retain"
	FailureDeactivate = "deactivate"
)

// Normalize fills defaults in place. Call after a successful decode.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./data/pitstop.db"
	}
	if strings.TrimSpace(c.Engine.Timezone) == "" {
		c.Engine.Timezone = "UTC"
	}
	if strings.TrimSpace(c.Engine.TickInterval) == "" {
		c.Engine.TickInterval = "30s"
	}
	if strings.TrimSpace(c.Engine.FailurePolicy) == "" {
		c.Engine.FailurePolicy = FailureRetain
	}
	if c.Mailer.RatePerMinute <= 0 {
		c.Mailer.RatePerMinute = 30
	}
}

// Validate rejects configs that would misbehave at runtime.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone: %w", err)
	}
	if _, err := ParseDurationField("engine.tick_interval", c.Engine.TickInterval); err != nil {
		return err
	}
	switch c.Engine.FailurePolicy {
	case FailureRetain, FailureDeactivate:
	default:
		return fmt.Errorf("engine.failure_policy: unknown policy %q", c.Engine.FailurePolicy)
	}
	if c.Storage.BusyTimeout != "" {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Mailer.Enabled && strings.TrimSpace(c.Mailer.FromEmail) == "" {
		return fmt.Errorf("mailer.from_email is required when mailer is enabled")
	}
	return nil
}

// TickIntervalDuration returns the parsed sweep interval (30s fallback).
func (c *Config) TickIntervalDuration() time.Duration {
	d, err := ParseDurationOrDefault("engine.tick_interval", c.Engine.TickInterval, 30*time.Second)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// BusyTimeoutDuration returns the parsed sqlite busy timeout (0 = default).
func (c *Config) BusyTimeoutDuration() time.Duration {
	d, _ := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	return d
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
