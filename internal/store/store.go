// Package store opens the metadata database, migrates it to the current
// record version and hands out repositories, optionally scoped to a
// transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/amethyst/keeper/internal/dbx"
	"github.com/amethyst/keeper/internal/logging"
	"github.com/amethyst/keeper/internal/migrations"
	"github.com/amethyst/keeper/internal/repositories/accounts"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// busyTimeoutMS makes concurrent writers wait for the file lock instead of
// failing with SQLITE_BUSY.
const busyTimeoutMS = 5000

type Store struct {
	db  *sql.DB
	log logging.Logger
}

// DSN builds the driver DSN for a database file.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	return "file:" + path + "?" + q.Encode()
}

// migrate is a seam for tests.
var migrate = migrations.Up

// Open opens the database file at path and applies pending migrations. A
// migration failure closes the database and is returned wrapped with
// common.ErrMigration. A nil log discards output.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Nop()
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	if err := migrate(ctx, db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug(ctx, "metadata store ready", "path", path, "version", migrations.Latest())
	return New(db, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{db: db, log: log}
}

// Accounts returns an accounts.Repository bound to db, which may be the
// store's own handle or a transaction.
func (s *Store) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewSQLiteRepository(db)
}

// Repository returns an accounts.Repository outside any transaction.
func (s *Store) Repository() accounts.Repository {
	return s.Accounts(s.db)
}

// RunInTx runs fn with a repository bound to a single transaction. Nothing fn
// writes is kept unless fn returns nil and the commit succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.Accounts(tx))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
