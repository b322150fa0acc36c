package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Scan.AIThreshold != 0.95 {
		t.Errorf("ai threshold = %v, want 0.95", cfg.Scan.AIThreshold)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Errorf("scheduler interval = %v, want 15m", cfg.Scheduler.Interval)
	}
	if cfg.Scan.Workers != 1 {
		t.Errorf("workers = %d, want 1", cfg.Scan.Workers)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  driver: memory
scan:
  workers: 4
  incremental_whitelist: true
  root_paths: ["/sbin/su"]
registry:
  source: adb
  serial: emulator-5554
scheduler:
  interval: 5m
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Storage.Driver)
	}
	if cfg.Scan.Workers != 4 || !cfg.Scan.IncrementalWhitelist {
		t.Errorf("scan config = %+v", cfg.Scan)
	}
	if len(cfg.Scan.RootPaths) != 1 || cfg.Scan.RootPaths[0] != "/sbin/su" {
		t.Errorf("root paths = %v", cfg.Scan.RootPaths)
	}
	if cfg.Registry.Source != "adb" || cfg.Registry.Serial != "emulator-5554" {
		t.Errorf("registry = %+v", cfg.Registry)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Errorf("interval = %v", cfg.Scheduler.Interval)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: mongo\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: 5432, DBName: "d", SSLMode: "disable", Schema: "public"}
	want := "postgres://u:p@h:5432/d?sslmode=disable&search_path=public"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
