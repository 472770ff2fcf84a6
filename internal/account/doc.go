// Package account implements the credential aggregate.
//
// An Account keeps its non-secret attributes in a schema.Record persisted by
// the metadata store, while the password, OTP seed and comment live in the
// secret store under keys derived from (service, username):
//
//	password  -> keychain.PasswordKey(username)
//	OTP seed  -> keychain.TOTPKey(username)
//	comment   -> comment attribute of the password item
//
// The two stores share no transaction. Create is two-phase: New stages the
// secrets and the caller persists the record afterwards, purging the staged
// secrets if that fails. SetUsername copies secrets to the new keys inside a
// metadata transaction and compensates on failure; the compensation is best
// effort and its failure is reported with common.ErrRollbackFailed.
//
// An Account is not safe for concurrent use. Callers serialize mutations per
// (service, username).
package account
