package config

import "time"

// Config holds runtime settings for the keeper CLI.
//
// Fields:
//   - DatabasePath: SQLite file holding account metadata records.
//   - KeychainPath: bbolt file holding the encrypted secret store.
//   - KeychainOpenTimeout: how long to wait for the keychain file lock.
//   - LogBackend: "slog" or "zap".
//   - LogLevel: debug, info, warn or error.
type Config struct {
	DatabasePath        string
	KeychainPath        string
	KeychainOpenTimeout time.Duration
	LogBackend          string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "accounts.db"
	c.KeychainPath = "keychain.db"
	c.KeychainOpenTimeout = time.Second
	c.LogBackend = "slog"
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
