// Package migrations brings the metadata database up to the current record
// version. The table layout comes from embedded SQL; every schema.Stage is
// registered as a Go migration that rewrites the rows of its source version.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/logging"
	"github.com/amethyst/keeper/internal/schema"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var Migrations embed.FS

// firstStageVersion is the goose version of schema.Stages[0]; the versions
// below it belong to SQL files.
const firstStageVersion = 2

// StageVersion returns the goose version that applies stage i.
func StageVersion(i int) int64 {
	return int64(firstStageVersion + i)
}

// Latest is the goose version of the current record schema.
func Latest() int64 {
	return StageVersion(len(schema.Stages) - 1)
}

// rewrite moves every row of stage.From to stage.To inside tx.
func rewrite(stage schema.Stage) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, record FROM accounts WHERE schema_version = ?`, string(stage.From))
		if err != nil {
			return fmt.Errorf("%s: failed to read %s records: %w", stage.Name, stage.From, err)
		}

		type row struct {
			id     string
			record []byte
		}
		var pending []row
		for rows.Next() {
			var r row
			if err := rows.Scan(&r.id, &r.record); err != nil {
				rows.Close()
				return fmt.Errorf("%s: failed to scan record: %w", stage.Name, err)
			}
			pending = append(pending, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("%s: failed to iterate records: %w", stage.Name, err)
		}
		rows.Close()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM accounts WHERE schema_version = ?`, string(stage.From)); err != nil {
			return fmt.Errorf("%s: failed to delete %s records: %w", stage.Name, stage.From, err)
		}

		for _, r := range pending {
			next, err := stage.Apply(r.record)
			if err != nil {
				return fmt.Errorf("%s: record %s: %w", stage.Name, r.id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO accounts (id, schema_version, record) VALUES (?, ?, ?)`,
				r.id, string(stage.To), next); err != nil {
				return fmt.Errorf("%s: failed to insert record %s: %w", stage.Name, r.id, err)
			}
		}
		return nil
	}
}

// NewProvider builds a goose provider over db with the embedded SQL and one Go
// migration per schema stage.
func NewProvider(db *sql.DB) (*goose.Provider, error) {
	stages := make([]*goose.Migration, 0, len(schema.Stages))
	for i, s := range schema.Stages {
		stages = append(stages, goose.NewGoMigration(StageVersion(i), &goose.GoFunc{RunTx: rewrite(s)}, nil))
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, Migrations,
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(stages...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return p, nil
}

// stageName maps a goose version back to the schema stage it runs.
func stageName(version int64) string {
	i := int(version - firstStageVersion)
	if i < 0 || i >= len(schema.Stages) {
		return ""
	}
	return schema.Stages[i].Name
}

func logResults(ctx context.Context, log logging.Logger, results []*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		args := []any{"version", r.Source.Version, "duration", r.Duration}
		if name := stageName(r.Source.Version); name != "" {
			args = append(args, "stage", name)
		} else {
			args = append(args, "source", r.Source.Path)
		}
		log.Info(ctx, "migration applied", args...)
	}
}

// Up applies every pending migration. Any failure is wrapped with
// common.ErrMigration; the failing stage leaves its source rows untouched.
func Up(ctx context.Context, db *sql.DB, log logging.Logger) error {
	return run(ctx, db, log, Latest(), func(p *goose.Provider) ([]*goose.MigrationResult, error) {
		return p.Up(ctx)
	})
}

// UpTo applies pending migrations up to and including version.
func UpTo(ctx context.Context, db *sql.DB, version int64, log logging.Logger) error {
	return run(ctx, db, log, version, func(p *goose.Provider) ([]*goose.MigrationResult, error) {
		return p.UpTo(ctx, version)
	})
}

func run(ctx context.Context, db *sql.DB, log logging.Logger, target any,
	apply func(*goose.Provider) ([]*goose.MigrationResult, error)) error {
	p, err := NewProvider(db)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrMigration, err)
	}
	results, err := apply(p)
	logResults(ctx, log, results)
	if err != nil {
		log.Error(ctx, "migration failed", "target", target, "error", err)
		return fmt.Errorf("%w: %w", common.ErrMigration, err)
	}
	return nil
}

// Version reports the goose version db is at.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	p, err := NewProvider(db)
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
