package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/juju/clock"

	"github.com/amethyst/keeper/internal/account"
	"github.com/amethyst/keeper/internal/buildinfo"
	"github.com/amethyst/keeper/internal/cli"
	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/config"
	"github.com/amethyst/keeper/internal/filex"
	"github.com/amethyst/keeper/internal/flagx"
	"github.com/amethyst/keeper/internal/keychain"
	"github.com/amethyst/keeper/internal/logging"
	"github.com/amethyst/keeper/internal/password"
	"github.com/amethyst/keeper/internal/services"
	"github.com/amethyst/keeper/internal/store"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	args := flagx.StripArgs(os.Args[1:], config.Flags)

	if len(args) == 0 {
		buildinfo.PrintBuildData(os.Stdout)
	}

	if err := run(ctx, cfg, args); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	logger, err := logging.New(cfg.LogBackend, cfg.LogLevel, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if z, ok := logger.(*logging.ZapLogger); ok {
		defer z.Sync() //nolint:errcheck
	}

	dbPath, err := filex.EnsureParentDir(cfg.DatabasePath)
	if err != nil {
		return err
	}
	kcPath, err := filex.EnsureParentDir(cfg.KeychainPath)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	kc, err := keychain.OpenBolt(kcPath, cfg.KeychainOpenTimeout)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrSecretStore, err)
	}
	defer kc.Close()

	if err := unlock(kc); err != nil {
		return err
	}
	defer kc.Lock()

	svc := services.NewAccountService(st, account.KeychainsFor(kc), clock.WallClock, logger)
	app := cli.NewApp(svc, password.NewGenerator(), os.Stdin, os.Stdout)

	return app.Run(ctx, args)
}

func unlock(kc *keychain.BoltBackend) error {
	pass, err := cli.GetPassword("Keychain passphrase", os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer common.WipeByteArray(pass)

	if err := kc.Unlock(pass); err != nil {
		return fmt.Errorf("%w: %w", common.ErrSecretStore, err)
	}
	return nil
}
