// Package config loads the YAML configuration for the cmd/elm327session
// demo binary: session timeouts, the device to connect to, logging, and the
// optional debug live-monitor.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration for the demo binary.
type Config struct {
	DeviceID string        `yaml:"device_id"`
	LogLevel string        `yaml:"log_level"`
	Session  SessionConfig `yaml:"session"`
	Monitor  MonitorConfig `yaml:"monitor"`
}

// SessionConfig mirrors session.Options (§6.4), in milliseconds for a
// human-friendly YAML representation.
type SessionConfig struct {
	DefaultCommandTimeoutMS int `yaml:"default_command_timeout_ms"`
	StreamingInactivityMS   int `yaml:"streaming_inactivity_ms"`
	WatchdogTickMS          int `yaml:"watchdog_tick_ms"`
}

// MonitorConfig controls the optional websocket live-monitor.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr,omitempty"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "elm327session")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Session: SessionConfig{
			DefaultCommandTimeoutMS: 4000,
			StreamingInactivityMS:   4000,
			WatchdogTickMS:          1000,
		},
		Monitor: MonitorConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8327",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	if c.Session.DefaultCommandTimeoutMS <= 0 {
		return fmt.Errorf("session.default_command_timeout_ms must be > 0")
	}
	if c.Session.StreamingInactivityMS <= 0 {
		return fmt.Errorf("session.streaming_inactivity_ms must be > 0")
	}
	if c.Session.WatchdogTickMS <= 0 {
		return fmt.Errorf("session.watchdog_tick_ms must be > 0")
	}

	if c.Monitor.Enabled && c.Monitor.Addr == "" {
		return fmt.Errorf("monitor.addr must be set when monitor.enabled is true")
	}

	return nil
}

// Timeouts converts the millisecond fields to time.Duration for wiring into
// session.Options.
func (c SessionConfig) Timeouts() (cmdTimeout, streamingInactivity, watchdogTick time.Duration) {
	return time.Duration(c.DefaultCommandTimeoutMS) * time.Millisecond,
		time.Duration(c.StreamingInactivityMS) * time.Millisecond,
		time.Duration(c.WatchdogTickMS) * time.Millisecond
}

// WriteDefault creates the default config file with documented defaults. It
// creates the parent directory if needed. Returns the path written to. If
// the file already exists, it returns ("", nil) without overwriting.
func WriteDefault(deviceID string) (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config dir %s: %w", dir, err)
	}

	cfg := Default()
	cfg.DeviceID = deviceID
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}

	header := "# elm327session configuration\n# device_id is the transport-specific peripheral identifier\n" +
		"# (MAC address on Linux, CoreBluetooth UUID on macOS).\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return path, nil
}

// ParseLogLevel converts a log level string to a slog.Level.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default: // "info"
		return slog.LevelInfo
	}
}
