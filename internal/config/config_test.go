package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, errLoad := Load("")
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen_addr = %q", cfg.ListenAddr)
	}
	if !cfg.Scheduler.Enabled {
		t.Fatal("scheduler should default to enabled")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
listen_addr: ":9090"
database_dsn: "postgres://localhost/loyalty"
scheduler:
  enabled: false
  dry_run: true
`)
	if errWrite := os.WriteFile(path, content, 0600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Scheduler.Enabled {
		t.Fatal("scheduler should be disabled")
	}
	if !cfg.Scheduler.DryRun {
		t.Fatal("dry_run should be set")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("DATABASE_DSN", "file:test.db")

	cfg, errLoad := Load("")
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("listen_addr = %q, want env override", cfg.ListenAddr)
	}
	if cfg.DatabaseDSN != "file:test.db" {
		t.Fatalf("database_dsn = %q", cfg.DatabaseDSN)
	}
}
