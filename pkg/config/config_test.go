package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend != BackendBadger {
		t.Errorf("default backend = %q, want badger", cfg.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestValidateUnknownBackend(t *testing.T) {
	cfg := Config{Backend: "etcd"}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected error for unknown backend")
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Backend != DefaultBackend || cfg.Path != DefaultPath {
		t.Errorf("defaults not filled: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventdb.yaml")
	body := `
backend: sqlite
path: /tmp/metrics.sqlite
sqlite:
  synchronous: FULL
  busy_timeout_ms: 100
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendSQLite || cfg.Path != "/tmp/metrics.sqlite" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.SQLite.Synchronous != "FULL" || cfg.SQLite.BusyTimeout != 100 {
		t.Errorf("sqlite section not parsed: %+v", cfg.SQLite)
	}
	// Untouched sections keep their defaults
	if cfg.Badger.MaxMemoryMB != DefaultMaxMemoryMB {
		t.Errorf("badger defaults lost: %+v", cfg.Badger)
	}
}

func TestLoadRetentionDurations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventdb.yaml")
	body := `
backend: memory
retention:
  max_age: 72h
  sweep_interval: 30m
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := time.Duration(cfg.Retention.MaxAge); got != 72*time.Hour {
		t.Errorf("max_age = %v, want 72h", got)
	}
	if got := time.Duration(cfg.Retention.SweepInterval); got != 30*time.Minute {
		t.Errorf("sweep_interval = %v, want 30m", got)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventdb.yaml")
	body := "retention:\n  max_age: soon\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected error for unparseable duration")
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventdb.yaml")
	if err := os.WriteFile(path, []byte("backend: redis\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected error for unknown backend in file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
