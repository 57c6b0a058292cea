// Package config describes how a store is opened: which backend holds
// the points and where. Configuration comes from code or from a YAML
// file; zero values fall back to the defaults below.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Defaults
const (
	DefaultBackend     = BackendBadger
	DefaultPath        = "./eventdb-data"
	DefaultMaxMemoryMB = 48
	DefaultSynchronous = "NORMAL"
	DefaultBusyTimeout = 5000
)

// Config selects and tunes the storage backend.
type Config struct {
	// Backend is one of badger, sqlite, memory.
	Backend string `yaml:"backend"`

	// Path is the data directory (badger) or database file (sqlite).
	// Ignored by the memory backend.
	Path string `yaml:"path"`

	Badger    BadgerConfig    `yaml:"badger"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Retention RetentionConfig `yaml:"retention"`
}

// Duration is a time.Duration that reads from YAML strings like "30m"
// or "24h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// RetentionConfig bounds stored history by age.
type RetentionConfig struct {
	// MaxAge is the retention horizon; points older than it are swept
	// away. Zero keeps everything forever.
	MaxAge Duration `yaml:"max_age"`

	// SweepInterval between retention passes (0 = 5 minutes).
	SweepInterval Duration `yaml:"sweep_interval"`
}

// BadgerConfig tunes the badger backend.
type BadgerConfig struct {
	// InMemory disables the on-disk value log (testing only; data is
	// lost on close).
	InMemory bool `yaml:"in_memory"`

	// MaxMemoryMB bounds badger's memory usage (0 = 48 MB default).
	MaxMemoryMB int64 `yaml:"max_memory_mb"`
}

// SQLiteConfig tunes the sqlite backend.
type SQLiteConfig struct {
	// Synchronous pragma: OFF, NORMAL, or FULL.
	Synchronous string `yaml:"synchronous"`

	// BusyTimeout in milliseconds for lock acquisition.
	BusyTimeout int `yaml:"busy_timeout_ms"`
}

// Default returns the production defaults: a badger store under
// DefaultPath.
func Default() Config {
	return Config{
		Backend: DefaultBackend,
		Path:    DefaultPath,
		Badger: BadgerConfig{
			MaxMemoryMB: DefaultMaxMemoryMB,
		},
		SQLite: SQLiteConfig{
			Synchronous: DefaultSynchronous,
			BusyTimeout: DefaultBusyTimeout,
		},
	}
}

// Memory returns a configuration for an ephemeral in-memory store.
func Memory() Config {
	cfg := Default()
	cfg.Backend = BackendMemory
	cfg.Path = ""
	return cfg
}

// Load reads a YAML config file, filling unset fields from Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend selection and fills derivable defaults.
func (c *Config) Validate() error {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	switch c.Backend {
	case BackendBadger, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}
	if c.Path == "" && c.Backend == BackendBadger && !c.Badger.InMemory {
		c.Path = DefaultPath
	}
	if c.Retention.MaxAge < 0 {
		return fmt.Errorf("retention max_age must not be negative")
	}
	return nil
}
