// Package config provides configuration loading and management for the
// relay kernel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete relay configuration.
type Config struct {
	Lock    LockConfig    `yaml:"lock"`
	Poll    PollConfig    `yaml:"poll"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LockConfig configures the advisory cross-process lock.
type LockConfig struct {
	// TimeoutMs is how long a caller waits to acquire the lock before
	// giving up with lock.ErrBusy.
	TimeoutMs int `yaml:"timeoutMs"`
	// StaleAfterS is how long a lock can go unrefreshed before another
	// process may reclaim it.
	StaleAfterS int `yaml:"staleAfterS"`
	// RefreshEveryS is how often the holder touches the lock.
	RefreshEveryS int `yaml:"refreshEveryS"`
}

// PollConfig configures the read_state watch fallback.
type PollConfig struct {
	// IntervalMs is the poll cadence used alongside fsnotify so a
	// missed or unsupported filesystem event can't wedge a pulse.
	IntervalMs int `yaml:"intervalMs"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// Timeout is TimeoutMs as a time.Duration.
func (l LockConfig) Timeout() time.Duration { return time.Duration(l.TimeoutMs) * time.Millisecond }

// StaleAfter is StaleAfterS as a time.Duration.
func (l LockConfig) StaleAfter() time.Duration { return time.Duration(l.StaleAfterS) * time.Second }

// RefreshEvery is RefreshEveryS as a time.Duration.
func (l LockConfig) RefreshEvery() time.Duration { return time.Duration(l.RefreshEveryS) * time.Second }

// Interval is IntervalMs as a time.Duration.
func (p PollConfig) Interval() time.Duration { return time.Duration(p.IntervalMs) * time.Millisecond }

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Lock: LockConfig{
			TimeoutMs:     10_000,
			StaleAfterS:   30,
			RefreshEveryS: 5,
		},
		Poll: PollConfig{
			IntervalMs: 1_000,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9090",
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Lock.TimeoutMs <= 0 {
		return fmt.Errorf("lock.timeoutMs must be positive")
	}
	if c.Lock.StaleAfterS <= 0 {
		return fmt.Errorf("lock.staleAfterS must be positive")
	}
	if c.Lock.RefreshEveryS <= 0 {
		return fmt.Errorf("lock.refreshEveryS must be positive")
	}
	if c.Lock.RefreshEveryS*2 > c.Lock.StaleAfterS {
		return fmt.Errorf("lock.refreshEveryS must leave headroom under lock.staleAfterS")
	}
	if c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll.intervalMs must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listenAddr is required when metrics.enabled")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, layered onto
// DefaultConfig() so a partial file only overrides what it names.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence
// for non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Lock.TimeoutMs != 0 {
		c.Lock.TimeoutMs = other.Lock.TimeoutMs
	}
	if other.Lock.StaleAfterS != 0 {
		c.Lock.StaleAfterS = other.Lock.StaleAfterS
	}
	if other.Lock.RefreshEveryS != 0 {
		c.Lock.RefreshEveryS = other.Lock.RefreshEveryS
	}

	if other.Poll.IntervalMs != 0 {
		c.Poll.IntervalMs = other.Poll.IntervalMs
	}

	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.ListenAddr != "" {
		c.Metrics.ListenAddr = other.Metrics.ListenAddr
	}
}
