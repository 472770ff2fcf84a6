package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/dbx"
	"github.com/amethyst/keeper/internal/schema"
	"github.com/google/uuid"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec schema.Record) error {
	data, err := schema.Encode(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO accounts (id, schema_version, record) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, rec.ID.String(), string(schema.Current), data); err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, rec schema.Record) error {
	data, err := schema.Encode(rec)
	if err != nil {
		return err
	}

	query := `UPDATE accounts SET schema_version = ?, record = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, string(schema.Current), data, rec.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", rec.ID, common.ErrorNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*schema.Record, error) {
	query := `SELECT schema_version, record FROM accounts WHERE id = ?`

	var version string
	var data []byte
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select account: %w", err)
	}

	rec, err := schema.Decode(schema.Version(version), data)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	return &rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]schema.Record, error) {
	return r.Find(ctx, nil)
}

func (r *SQLiteRepository) Find(ctx context.Context, match Predicate) ([]schema.Record, error) {
	query := `SELECT id, schema_version, record FROM accounts ORDER BY rowid`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select accounts: %w", err)
	}
	defer rows.Close()

	var result []schema.Record
	for rows.Next() {
		var id, version string
		var data []byte
		if err := rows.Scan(&id, &version, &data); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		rec, err := schema.Decode(schema.Version(version), data)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		if match == nil || match(rec) {
			result = append(result, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate account rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, common.ErrorNotFound)
	}
	return nil
}
