// Package schema holds every persisted generation of the account record and
// the stages that move a record from one generation to the next.
//
// Records are never changed in place across a version boundary: a stage reads
// a record of version N and produces a new record of version N+1.
package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version identifies a record generation.
type Version string

const (
	V1 Version = "0.1.0"
	V2 Version = "0.2.0"
	V3 Version = "0.3.0"

	Current = V3
)

// Versions lists all generations, oldest first.
var Versions = []Version{V1, V2, V3}

// AccountV1 is the initial record.
type AccountV1 struct {
	ID        uuid.UUID  `json:"id"`
	Service   string     `json:"service"`
	Aliases   []string   `json:"aliases"`
	Username  string     `json:"username"`
	TOTP      bool       `json:"totp"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// AccountV2 adds the edit timestamp and presentation metadata.
type AccountV2 struct {
	ID        uuid.UUID  `json:"id"`
	Service   string     `json:"service"`
	Aliases   []string   `json:"aliases"`
	Username  string     `json:"username"`
	TOTP      bool       `json:"totp"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Image     []byte     `json:"image,omitempty"`
	Title     *string    `json:"title,omitempty"`
}

// AccountV3 adds the password strength score.
type AccountV3 struct {
	ID        uuid.UUID  `json:"id"`
	Service   string     `json:"service"`
	Aliases   []string   `json:"aliases"`
	Username  string     `json:"username"`
	TOTP      bool       `json:"totp"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Image     []byte     `json:"image,omitempty"`
	Title     *string    `json:"title,omitempty"`
	Strength  *float64   `json:"strength,omitempty"`
}

// Record is the current generation.
type Record = AccountV3

// MigrateV1ToV2 introduces EditedAt, Image and Title, all unset.
func MigrateV1ToV2(old AccountV1) AccountV2 {
	return AccountV2{
		ID:        old.ID,
		Service:   old.Service,
		Aliases:   old.Aliases,
		Username:  old.Username,
		TOTP:      old.TOTP,
		CreatedAt: old.CreatedAt,
		DeletedAt: old.DeletedAt,
	}
}

// MigrateV2ToV3 introduces Strength, unset.
func MigrateV2ToV3(old AccountV2) AccountV3 {
	return AccountV3{
		ID:        old.ID,
		Service:   old.Service,
		Aliases:   old.Aliases,
		Username:  old.Username,
		TOTP:      old.TOTP,
		CreatedAt: old.CreatedAt,
		EditedAt:  old.EditedAt,
		DeletedAt: old.DeletedAt,
		Image:     old.Image,
		Title:     old.Title,
	}
}

// Stage transforms an encoded record of version From into one of version To.
type Stage struct {
	Name  string
	From  Version
	To    Version
	Apply func(data []byte) ([]byte, error)
}

// NewStage lifts a pure record transform into a Stage over encoded records.
func NewStage[Old, New any](name string, from, to Version, fn func(Old) New) Stage {
	return Stage{
		Name: name,
		From: from,
		To:   to,
		Apply: func(data []byte) ([]byte, error) {
			var old Old
			if err := json.Unmarshal(data, &old); err != nil {
				return nil, fmt.Errorf("failed to decode %s record: %w", from, err)
			}
			out, err := json.Marshal(fn(old))
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s record: %w", to, err)
			}
			return out, nil
		},
	}
}

// Stages is the migration plan, applied strictly in order.
var Stages = []Stage{
	NewStage("MigrateV1ToV2", V1, V2, MigrateV1ToV2),
	NewStage("MigrateV2ToV3", V2, V3, MigrateV2ToV3),
}

// Encode serializes a current record.
func Encode(r Record) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// Decode parses a record stored under version v. Only the current version can
// be decoded; older rows must be migrated first.
func Decode(v Version, data []byte) (Record, error) {
	if v != Current {
		return Record{}, fmt.Errorf("record has version %s, want %s", v, Current)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}
