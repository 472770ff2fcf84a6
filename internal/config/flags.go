package config

import (
	"flag"
	"os"

	"github.com/amethyst/keeper/internal/flagx"
)

// Flags lists every configuration flag. Whatever remains after removing them
// from the command line (see flagx.StripArgs) is the command to run.
var Flags = []string{"-c", "-config", "-d", "-k", "-l"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-d string   account metadata database path
//	-k string   keychain file path
//	-l string   log level
//
// Only the flags above are taken from os.Args (see flagx.FilterArgs), so the
// remaining arguments stay available to the command dispatcher.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-k", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "account metadata database path")
	fs.StringVar(&cfg.KeychainPath, "k", cfg.KeychainPath, "keychain file path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
