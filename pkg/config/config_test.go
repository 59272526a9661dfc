package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.TokenEnv != "TOWERBOT_TOKEN" {
		t.Fatalf("token env = %q", cfg.Bot.TokenEnv)
	}
	if cfg.Monitor.InitialBackoff.Duration != 5*time.Second {
		t.Fatalf("initial backoff = %v", cfg.Monitor.InitialBackoff.Duration)
	}
	if cfg.Monitor.MaxReconnectAttempts != 10 {
		t.Fatalf("max reconnect attempts = %d", cfg.Monitor.MaxReconnectAttempts)
	}
	if cfg.Premium.FailOpen {
		t.Fatal("premium must default to fail-closed")
	}
}

func TestLoadMergesPartialFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[premium]
fail_open = true
cache_ttl = "10s"

[monitor]
refresh_interval = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Premium.FailOpen {
		t.Fatal("fail_open not applied")
	}
	if cfg.Premium.CacheTTL.Duration != 10*time.Second {
		t.Fatalf("cache ttl = %v", cfg.Premium.CacheTTL.Duration)
	}
	if cfg.Monitor.RefreshInterval.Duration != 5*time.Second {
		t.Fatalf("refresh interval = %v", cfg.Monitor.RefreshInterval.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Monitor.StaleAfter.Duration != 5*time.Minute {
		t.Fatalf("stale after = %v", cfg.Monitor.StaleAfter.Duration)
	}
}

func TestLoadEnvOverridesDatabasePath(t *testing.T) {
	t.Setenv("TOWERBOT_DB_PATH", "/tmp/override.db")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Fatalf("db path = %q", cfg.Database.Path)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[sftp]\ndial_timeout = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
