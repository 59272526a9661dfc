package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the bot-wide configuration loaded from config.toml.
// Environment variables override a few fields at load time, matching how the
// token and database path are usually injected in deployments.
type Config struct {
	Bot      BotConfig
	Database DatabaseConfig
	Premium  PremiumConfig
	Monitor  MonitorConfig
	SFTP     SFTPConfig
	Control  ControlConfig
}

type BotConfig struct {
	// TokenEnv names the environment variable holding the bot token.
	TokenEnv string `toml:"token_env"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type PremiumConfig struct {
	// FailOpen controls evaluator behavior on storage errors: when true,
	// access is granted on lookup failure instead of denied.
	FailOpen bool `toml:"fail_open"`

	// CacheTTL bounds how long a subscription read stays cached.
	CacheTTL duration `toml:"cache_ttl"`
}

type MonitorConfig struct {
	// RefreshInterval is the sleep between poll cycles.
	RefreshInterval duration `toml:"refresh_interval"`

	// StaleAfter is how long the monitor tolerates a missing log file
	// before forcing a reconnect.
	StaleAfter duration `toml:"stale_after"`

	// InitialBackoff and MaxBackoff bound the reconnect backoff.
	InitialBackoff duration `toml:"initial_backoff"`
	MaxBackoff     duration `toml:"max_backoff"`

	// MaxReconnectAttempts is the consecutive-failure budget before the
	// monitor stops with an error.
	MaxReconnectAttempts int `toml:"max_reconnect_attempts"`
}

type SFTPConfig struct {
	// DialTimeout bounds the SSH handshake.
	DialTimeout duration `toml:"dial_timeout"`
}

type ControlConfig struct {
	// Addr is the listen address for the local ops HTTP server.
	// Empty disables it.
	Addr string `toml:"addr"`
}

// duration lets TOML carry values like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the configuration used when config.toml is absent.
// The monitor constants mirror the long-standing production values:
// 5s initial backoff doubling to a 60s cap, 10 attempts, 5 minute staleness.
func Defaults() Config {
	return Config{
		Bot:      BotConfig{TokenEnv: "TOWERBOT_TOKEN"},
		Database: DatabaseConfig{Path: "data/towerbot.db"},
		Premium: PremiumConfig{
			FailOpen: false,
			CacheTTL: duration{30 * time.Second},
		},
		Monitor: MonitorConfig{
			RefreshInterval:      duration{30 * time.Second},
			StaleAfter:           duration{5 * time.Minute},
			InitialBackoff:       duration{5 * time.Second},
			MaxBackoff:           duration{60 * time.Second},
			MaxReconnectAttempts: 10,
		},
		SFTP: SFTPConfig{DialTimeout: duration{10 * time.Second}},
	}
}

// Load reads the TOML file at path, falling back to Defaults when the file
// does not exist. Partial files are merged over the defaults. The
// TOWERBOT_DB_PATH environment variable overrides Database.Path.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if v := os.Getenv("TOWERBOT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if cfg.Monitor.MaxReconnectAttempts <= 0 {
		cfg.Monitor.MaxReconnectAttempts = Defaults().Monitor.MaxReconnectAttempts
	}
	return cfg, nil
}
