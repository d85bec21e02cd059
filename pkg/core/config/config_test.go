package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kernel.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"KERNEL_ADDR", "DATABASE_URL", "SCENARIO_WORKERS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9090"
  read_timeout: 5s
database:
  max_conns: 8
scenario:
  workers: 3
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9090" || cfg.Scenario.Workers != 3 || cfg.Log.Level != "debug" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Database.MaxConns != 8 {
		t.Errorf("expected max_conns 8, got %d", cfg.Database.MaxConns)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected 5s read timeout, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 15*time.Second {
		t.Errorf("unset keys should keep defaults, got %s", cfg.Server.WriteTimeout)
	}

	t.Setenv("KERNEL_ADDR", ":7070")
	t.Setenv("SCENARIO_WORKERS", "12")
	t.Setenv("DATABASE_URL", "postgres://localhost/kernel")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7070" || cfg.Scenario.Workers != 12 || cfg.Database.URL != "postgres://localhost/kernel" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "server: [not, a, map")); err == nil {
		t.Error("expected error for malformed yaml")
	}
	if _, err := Load(writeConfig(t, "log:\n  level: chatty\n")); err == nil {
		t.Error("expected error for unknown log level")
	}
	if _, err := Load(writeConfig(t, "database:\n  max_conns: -1\n")); err == nil {
		t.Error("expected error for negative max_conns")
	}

	t.Setenv("SCENARIO_WORKERS", "many")
	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric SCENARIO_WORKERS")
	}
}

func TestRepositoryConfigLoads(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "..", DefaultPath))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Log.Level != "info" {
		t.Errorf("unexpected repository config: %+v", cfg)
	}
}
