package config

import (
	"encoding/json"
	"os"

	"github.com/amethyst/keeper/internal/flagx"
	"github.com/amethyst/keeper/internal/timex"
)

// JsonConfig is the JSON form of Config. Pointer fields tell "absent" apart
// from "empty", so a partial file only overrides what it names.
type JsonConfig struct {
	DatabasePath        *string         `json:"database_path"`
	KeychainPath        *string         `json:"keychain_path"`
	KeychainOpenTimeout *timex.Duration `json:"keychain_open_timeout"`
	LogBackend          *string         `json:"log_backend"`
	LogLevel            *string         `json:"log_level"`
}

// parseJson overlays cfg with values from the JSON file named by -c or
// -config. Without either flag it does nothing. Read and decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.KeychainPath != nil {
		cfg.KeychainPath = *jc.KeychainPath
	}
	if jc.KeychainOpenTimeout != nil {
		cfg.KeychainOpenTimeout = jc.KeychainOpenTimeout.Duration
	}
	if jc.LogBackend != nil {
		cfg.LogBackend = *jc.LogBackend
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
}
