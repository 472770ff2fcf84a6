// Package keychain is the secret-store adapter for account secrets.
//
// A Keychain is scoped to one namespace, the account's service, and offers
// get, set, delete and comment lookups by key. The storage itself is a
// Backend: MemoryBackend for tests and dry runs, BoltBackend for an encrypted
// bbolt file on disk.
//
// # Policy
//
// Every item written through a Keychain is synchronizable and accessible only
// while the store is unlocked. The policy is fixed and not configurable per
// instance.
//
// # Keys
//
// The password lives under the username itself and the OTP seed under
// TOTPKey(username), the username followed by ReservedSuffix. The comment is
// an attribute of the password item, not a key of its own.
//
// # Atomicity
//
// Each call is atomic for its own key only. There is no multi-key
// transaction; callers that move secrets between keys must compensate on
// failure themselves.
package keychain
