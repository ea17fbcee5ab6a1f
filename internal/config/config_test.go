package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(NewViper(filepath.Join(t.TempDir(), "missing.yaml")))
	if err == nil {
		// An explicit path that does not exist is an error, not a fallback.
		t.Fatalf("Expected error for missing explicit config file, got %+v", cfg)
	}

	cfg, err = Load(NewViper(""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API != "http://localhost:8000" {
		t.Errorf("Expected default api, got %s", cfg.API)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", cfg.Timeout)
	}
	if !cfg.Live.Reconnect || cfg.Live.MaxBackoff != 30*time.Second {
		t.Errorf("Unexpected live defaults %+v", cfg.Live)
	}
	if filepath.Base(cfg.SessionDB) != "session.db" {
		t.Errorf("Unexpected session db %s", cfg.SessionDB)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected warn, got %s", cfg.Log.Level)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api: https://reprocess.example.com/
timeout: 3s
session_db: ~/state/session.db
log:
  level: debug
live:
  reconnect: false
  max_backoff: 5s
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("REPROCESS_LOG_LEVEL", "error")
	t.Setenv("REPROCESS_METRICS_ADDR", ":9090")

	cfg, err := Load(NewViper(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API != "https://reprocess.example.com" {
		t.Errorf("Expected trimmed api from file, got %s", cfg.API)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("Expected 3s, got %v", cfg.Timeout)
	}
	if cfg.SessionDB != filepath.Join(home, "state", "session.db") {
		t.Errorf("Expected expanded session db, got %s", cfg.SessionDB)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Expected env to override file, got %s", cfg.Log.Level)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Expected metrics addr from env, got %s", cfg.Metrics.Addr)
	}
	if cfg.Live.Reconnect || cfg.Live.MaxBackoff != 5*time.Second {
		t.Errorf("Unexpected live config %+v", cfg.Live)
	}
}

func TestLoad_OverrideWins(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("REPROCESS_API", "http://env:1")

	v := NewViper("")
	v.Set("api", "http://flag:2")
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API != "http://flag:2" {
		t.Errorf("Expected explicit value to win, got %s", cfg.API)
	}
}
