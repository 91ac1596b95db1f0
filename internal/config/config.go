// Package config loads the daemon configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bastionhq/bastion/internal/domain"
)

// Duration wraps time.Duration so config values read as "3s" or "25m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// SentinelConfig controls the loopback intercept listener.
type SentinelConfig struct {
	Enabled  bool `yaml:"enabled"`
	HTTPPort int  `yaml:"http_port"`
	TLSPort  int  `yaml:"tls_port"`
}

// PomodoroConfig holds the default interval lengths, in minutes.
type PomodoroConfig struct {
	WorkMinutes             int `yaml:"work_minutes"`
	ShortBreakMinutes       int `yaml:"short_break_minutes"`
	LongBreakMinutes        int `yaml:"long_break_minutes"`
	IntervalsUntilLongBreak int `yaml:"intervals_until_long_break"`
}

// Config is the daemon configuration.
type Config struct {
	DataDir        string         `yaml:"data_dir"`
	LogFile        string         `yaml:"log_file"`
	ControlAddr    string         `yaml:"control_addr"`
	HostsPath      string         `yaml:"hosts_path"`
	TickInterval   Duration       `yaml:"tick_interval"`
	EnforceTimeout Duration       `yaml:"enforce_timeout"`
	DedupCooldown  Duration       `yaml:"dedup_cooldown"`
	Sentinel       SentinelConfig `yaml:"sentinel"`
	Pomodoro       PomodoroConfig `yaml:"pomodoro"`
}

// Default returns the built-in configuration. DataDir resolves under the
// user home directory; an unresolvable home falls back to the cwd.
func Default() Config {
	dataDir := ".bastion"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".bastion")
	}
	return Config{
		DataDir:        dataDir,
		ControlAddr:    "127.0.0.1:7177",
		TickInterval:   Duration(3 * time.Second),
		EnforceTimeout: Duration(2 * time.Second),
		DedupCooldown:  Duration(30 * time.Second),
		Sentinel: SentinelConfig{
			Enabled:  true,
			HTTPPort: 8080,
			TLSPort:  8443,
		},
		Pomodoro: PomodoroConfig{
			WorkMinutes:             25,
			ShortBreakMinutes:       5,
			LongBreakMinutes:        15,
			IntervalsUntilLongBreak: 4,
		},
	}
}

// Load reads the config file at path and overlays it on the defaults.
// A missing file is not an error; the defaults apply as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.TickInterval.Std() <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.EnforceTimeout.Std() <= 0 {
		return fmt.Errorf("enforce_timeout must be positive")
	}
	if c.ControlAddr == "" {
		return fmt.Errorf("control_addr must not be empty")
	}
	return nil
}

// PhaseConfig converts the configured pomodoro defaults into the domain
// shape, falling back to the built-in defaults when invalid.
func (c Config) PhaseConfig() domain.PhaseConfig {
	pc := domain.PhaseConfig{
		Work:                    time.Duration(c.Pomodoro.WorkMinutes) * time.Minute,
		ShortBreak:              time.Duration(c.Pomodoro.ShortBreakMinutes) * time.Minute,
		LongBreak:               time.Duration(c.Pomodoro.LongBreakMinutes) * time.Minute,
		IntervalsUntilLongBreak: c.Pomodoro.IntervalsUntilLongBreak,
	}
	if pc.Validate() != nil {
		return domain.DefaultPhaseConfig()
	}
	return pc
}
