// Package common defines sentinel errors and small helpers shared by the
// keeper packages. Callers should use errors.Is to match the error values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Username validation errors. Both are detected before any store mutation.
	ErrReservedSuffix = errors.New(`usernames ending with "({#totp})" are reserved for internal use`)
	ErrUsernameInUse  = errors.New("the given username already has a saved password for this service")

	// Secret store errors.
	ErrSecretStore = errors.New("secret store operation failed")

	// ErrRollbackFailed is joined to the original cause when the compensating
	// writes of a failed rename did not complete. Secrets may exist under both
	// the old and the new username.
	ErrRollbackFailed = errors.New("rename rollback failed, secrets may be duplicated")

	// ErrStaleSecrets reports that a rename was committed but the entries under
	// the previous username could not be removed.
	ErrStaleSecrets = errors.New("rename committed, previous secret entries remain")

	// Schema migration errors.
	ErrMigration = errors.New("schema migration failed")
)
