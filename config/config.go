// Package config handles opstart configuration.
//
// Configuration is loaded with overlay semantics:
//
//  1. Start with built-in defaults (embedded via go:embed from default.toml)
//  2. Overlay with config file values (if file exists)
//  3. CLI flags and environment variables override at runtime (handled by CLI layer)
//
// If the config file exists but is invalid, Load returns an error rather
// than silently falling back to defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/frobware/go-opstart"
	"github.com/frobware/go-opstart/interpreter"
)

//go:embed default.toml
var defaultConfigTOML string

// DefaultConfigPath is the default path to the opstart config file.
const DefaultConfigPath = "/etc/opstart/opstart.toml"

// Settings backends.
const (
	BackendFlatfile = "flatfile"
	BackendSQLite   = "sqlite"
)

// Config is the top-level opstart configuration.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Settings SettingsConfig `toml:"settings"`
	Daemon   DaemonConfig   `toml:"daemon"`
	Poll     PollConfig     `toml:"poll"`
	CPU      CPUConfig      `toml:"cpu"`
}

// LoggingConfig controls logging behaviour.
type LoggingConfig struct {
	// Level is the log spec (e.g., "info" or "info,manager=debug").
	Level string `toml:"level"`
	// Format is the output format: "text" or "json".
	Format string `toml:"format"`
	// Components provides an alternative way to specify per-component levels.
	Components map[string]string `toml:"components"`
}

// ToSpec converts the LoggingConfig to a log spec string.
// If Level is set, it takes precedence. Otherwise, Components are used.
func (c *LoggingConfig) ToSpec() string {
	if c.Level != "" {
		return c.Level
	}
	if len(c.Components) == 0 {
		return ""
	}

	parts := make([]string, 0, len(c.Components)+1)
	parts = append(parts, "info")
	for component, level := range c.Components {
		parts = append(parts, component+"="+level)
	}
	return strings.Join(parts, ",")
}

// SettingsConfig selects where counter settings persist.
type SettingsConfig struct {
	Dir     string `toml:"dir"`
	Backend string `toml:"backend"`
}

// DaemonConfig names the daemon control programs and the files the
// daemon publishes its state in.
type DaemonConfig struct {
	interpreter.Commands
	LockFile       string `toml:"lock_file"`
	InterruptsFile string `toml:"interrupts_file"`
}

// PollConfig controls the status poller.
type PollConfig struct {
	Interval string `toml:"interval"`
}

// CPUConfig overrides hardware detection.
type CPUConfig struct {
	Type     string `toml:"type"`
	SpeedMHz uint64 `toml:"speed_mhz"`
}

// DefaultConfig returns the default configuration from the embedded
// default.toml.
func DefaultConfig() Config {
	var cfg Config
	if _, err := toml.Decode(defaultConfigTOML, &cfg); err != nil {
		return Config{
			Logging:  LoggingConfig{Level: "warn", Format: "text"},
			Settings: SettingsConfig{Backend: BackendFlatfile},
			Daemon:   DaemonConfig{Commands: interpreter.DefaultCommands()},
			Poll:     PollConfig{Interval: "5s"},
		}
	}
	return cfg
}

// Load reads configuration from path with overlay semantics.
//
// Behaviour:
//   - File missing: returns default configuration (no error)
//   - File exists and valid: overlays file values onto defaults
//   - File exists but invalid: returns error (fail fast)
func Load(fsys afero.Fs, path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := DefaultConfig()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Settings.Backend {
	case BackendFlatfile, BackendSQLite:
	default:
		return fmt.Errorf("settings.backend: unknown backend %q", c.Settings.Backend)
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, _, err := c.CPUOverride(); err != nil {
		return err
	}
	if c.Daemon.Start == "" || c.Daemon.Stop == "" || c.Daemon.Dump == "" {
		return fmt.Errorf("daemon: start, stop and dump commands are required")
	}
	return nil
}

// PollInterval returns the parsed poll interval.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil {
		return 0, fmt.Errorf("poll.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll.interval: must be positive, got %s", d)
	}
	return d, nil
}

// CPUOverride returns the configured CPU type, if any.
func (c *Config) CPUOverride() (opstart.CPUType, bool, error) {
	if c.CPU.Type == "" {
		return 0, false, nil
	}
	t, err := opstart.ParseCPUType(c.CPU.Type)
	if err != nil {
		return 0, false, fmt.Errorf("cpu.type: %w", err)
	}
	return t, true, nil
}

// SettingsDirs returns the settings paths, defaulting to ~/.oprofile.
func (c *Config) SettingsDirs() (Dirs, error) {
	if c.Settings.Dir == "" {
		return DefaultDirs()
	}
	return NewDirs(c.Settings.Dir)
}
