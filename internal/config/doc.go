// Package config loads runtime configuration for the keeper CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   path of the account metadata database
//	-k string   path of the keychain file
//	-l string   log level (debug, info, warn, error)
//
// # JSON schema
//
// Durations use timex.Duration, so they may be strings like "1s" or integer
// nanoseconds. Missing keys keep their previous value:
//
//	{
//	  "database_path": "accounts.db",
//	  "keychain_path": "keychain.db",
//	  "keychain_open_timeout": "1s",
//	  "log_backend": "zap",
//	  "log_level": "debug"
//	}
package config
