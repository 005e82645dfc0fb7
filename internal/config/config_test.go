package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Reconnect.BaseDelay != time.Second {
		t.Errorf("BaseDelay = %v, want 1s", cfg.Reconnect.BaseDelay)
	}
	if cfg.Reconnect.CapDelay != 30*time.Second {
		t.Errorf("CapDelay = %v, want 30s", cfg.Reconnect.CapDelay)
	}
	if cfg.Throttle.ServerListWindow != 2*time.Second {
		t.Errorf("ServerListWindow = %v, want 2s", cfg.Throttle.ServerListWindow)
	}
	if cfg.Server.WSPath != "/ws/batch" {
		t.Errorf("WSPath = %q, want /ws/batch", cfg.Server.WSPath)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  url: https://panel.example.com
reconnect:
  base_delay: 500ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.URL != "https://panel.example.com" {
		t.Errorf("URL = %q, want override", cfg.Server.URL)
	}
	if cfg.Reconnect.BaseDelay != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.Reconnect.BaseDelay)
	}
	// Untouched fields keep their defaults.
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want default 5", cfg.Reconnect.MaxAttempts)
	}
	if cfg.Server.TokenEnv != "NODENEXUS_TOKEN" {
		t.Errorf("TokenEnv = %q, want default", cfg.Server.TokenEnv)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load on missing file returned nil error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("Load on invalid yaml returned nil error")
	}
}
