// Package accounts persists account metadata records. Secrets never pass
// through here; a record only names the keys they live under.
package accounts

import (
	"context"

	"github.com/amethyst/keeper/internal/schema"
	"github.com/google/uuid"
)

// Predicate selects records in Find.
type Predicate func(schema.Record) bool

// Repository describes the metadata store operations on account records.
type Repository interface {
	// Insert stores a new record at the current schema version.
	Insert(ctx context.Context, rec schema.Record) error

	// Update replaces an existing record. Returns common.ErrorNotFound when
	// no record has rec.ID.
	Update(ctx context.Context, rec schema.Record) error

	// GetByID returns the record with the given id or common.ErrorNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*schema.Record, error)

	// GetAll returns every record, soft-deleted ones included, in insertion order.
	GetAll(ctx context.Context) ([]schema.Record, error)

	// Find returns the records for which match reports true.
	Find(ctx context.Context, match Predicate) ([]schema.Record, error)

	// Delete removes the record. Its secrets must have been purged first.
	Delete(ctx context.Context, id uuid.UUID) error
}
