package keychain

import (
	"context"
	"fmt"

	"github.com/amethyst/keeper/internal/common"
)

// ReservedSuffix is appended to a username to form its OTP seed key.
// Real usernames must never end with it.
const ReservedSuffix = "({#totp})"

// PasswordKey returns the key holding the password of username.
func PasswordKey(username string) string {
	return username
}

// TOTPKey returns the key holding the OTP seed of username.
func TOTPKey(username string) string {
	return username + ReservedSuffix
}

// Accessibility tells when an item may be read.
type Accessibility string

const (
	// AccessibleWhenUnlocked items are readable only while the store is unlocked.
	AccessibleWhenUnlocked Accessibility = "when_unlocked"
)

// Policy is the access configuration applied to every written item.
type Policy struct {
	Synchronizable bool
	Accessibility  Accessibility
}

var defaultPolicy = Policy{
	Synchronizable: true,
	Accessibility:  AccessibleWhenUnlocked,
}

// Item is a stored secret together with its attributes.
type Item struct {
	Value          string        `json:"value"`
	Comment        string        `json:"comment"`
	Synchronizable bool          `json:"synchronizable"`
	Accessibility  Accessibility `json:"accessibility"`
}

// Backend is the secure key-value store behind a Keychain.
// Get returns (nil, nil) for an absent key and Delete of an absent key is
// not an error.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (*Item, error)
	Set(ctx context.Context, namespace, key string, item Item) error
	Delete(ctx context.Context, namespace, key string) error
}

// Keychain is a Backend view scoped to one service namespace.
type Keychain struct {
	backend Backend
	service string
}

// New returns a Keychain for service.
func New(backend Backend, service string) *Keychain {
	return &Keychain{backend: backend, service: service}
}

// Service returns the namespace of k.
func (k *Keychain) Service() string {
	return k.service
}

// Policy returns the policy applied to items written by k.
func (k *Keychain) Policy() Policy {
	return defaultPolicy
}

// Get returns the secret stored under key. ok is false when there is none.
func (k *Keychain) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	item, err := k.backend.Get(ctx, k.service, key)
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w: %w", key, common.ErrSecretStore, err)
	}
	if item == nil {
		return "", false, nil
	}
	return item.Value, true, nil
}

// Comment returns the comment attribute of the item under key.
func (k *Keychain) Comment(ctx context.Context, key string) (comment string, ok bool, err error) {
	item, err := k.backend.Get(ctx, k.service, key)
	if err != nil {
		return "", false, fmt.Errorf("get comment %q: %w: %w", key, common.ErrSecretStore, err)
	}
	if item == nil {
		return "", false, nil
	}
	return item.Comment, true, nil
}

// Set stores value under key with comment as its attribute, replacing any
// previous item.
func (k *Keychain) Set(ctx context.Context, key, value, comment string) error {
	item := Item{
		Value:          value,
		Comment:        comment,
		Synchronizable: k.Policy().Synchronizable,
		Accessibility:  k.Policy().Accessibility,
	}
	if err := k.backend.Set(ctx, k.service, key, item); err != nil {
		return fmt.Errorf("set %q: %w: %w", key, common.ErrSecretStore, err)
	}
	return nil
}

// Delete removes the item under key. Removing an absent key succeeds.
func (k *Keychain) Delete(ctx context.Context, key string) error {
	if err := k.backend.Delete(ctx, k.service, key); err != nil {
		return fmt.Errorf("delete %q: %w: %w", key, common.ErrSecretStore, err)
	}
	return nil
}
