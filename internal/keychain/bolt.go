package keychain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/cryptox"
	"go.etcd.io/bbolt"
)

var (
	ErrLocked            = errors.New("keychain is locked")
	ErrWrongPassphrase   = errors.New("wrong keychain passphrase")
	ErrUnsupportedPolicy = errors.New("unsupported item accessibility")
)

var (
	itemsBucket = []byte("items")
	metaBucket  = []byte("meta")
	saltKey     = []byte("salt")
	verifierKey = []byte("verifier")
)

// BoltBackend stores items in a bbolt file, one nested bucket per namespace.
// Item JSON is sealed with a key derived from the unlock passphrase, so the
// backend starts locked and refuses every operation until Unlock succeeds.
type BoltBackend struct {
	db *bbolt.DB

	mu  sync.RWMutex
	key []byte
}

// OpenBolt opens or creates the keychain file at path. timeout bounds the
// wait for the file lock held by another process.
func OpenBolt(path string, timeout time.Duration) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open keychain %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(itemsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init keychain buckets: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

// Unlock derives the item key from passphrase. The first unlock of a new file
// stores a random salt and a verifier; later unlocks must match it.
func (b *BoltBackend) Unlock(passphrase []byte) error {
	var key []byte
	err := b.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		salt := meta.Get(saltKey)
		verifier := meta.Get(verifierKey)

		if salt == nil {
			salt = cryptox.NewSalt()
			key = cryptox.DeriveKey(passphrase, salt)
			if err := meta.Put(saltKey, salt); err != nil {
				return err
			}
			return meta.Put(verifierKey, cryptox.MakeVerifier(key))
		}

		key = cryptox.DeriveKey(passphrase, salt)
		if !cryptox.Verify(key, verifier) {
			common.WipeByteArray(key)
			key = nil
			return ErrWrongPassphrase
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	common.WipeByteArray(b.key)
	b.key = key
	b.mu.Unlock()
	return nil
}

// Lock wipes the item key. Operations fail with ErrLocked until the next Unlock.
func (b *BoltBackend) Lock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	common.WipeByteArray(b.key)
	b.key = nil
}

// Locked reports whether the backend is locked.
func (b *BoltBackend) Locked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.key == nil
}

// Close locks the backend and closes the file.
func (b *BoltBackend) Close() error {
	b.Lock()
	return b.db.Close()
}

func additionalData(namespace, key string) []byte {
	return []byte(namespace + "\x00" + key)
}

func (b *BoltBackend) Get(_ context.Context, namespace, key string) (*Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.key == nil {
		return nil, ErrLocked
	}

	var item *Item
	err := b.db.View(func(tx *bbolt.Tx) error {
		ns := tx.Bucket(itemsBucket).Bucket([]byte(namespace))
		if ns == nil {
			return nil
		}
		sealed := ns.Get([]byte(key))
		if sealed == nil {
			return nil
		}
		var it Item
		if err := cryptox.OpenJSON(b.key, sealed, additionalData(namespace, key), &it); err != nil {
			return err
		}
		item = &it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (b *BoltBackend) Set(_ context.Context, namespace, key string, item Item) error {
	if item.Accessibility != AccessibleWhenUnlocked {
		return fmt.Errorf("%w: %q", ErrUnsupportedPolicy, item.Accessibility)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.key == nil {
		return ErrLocked
	}

	sealed, err := cryptox.SealJSON(b.key, item, additionalData(namespace, key))
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		ns, err := tx.Bucket(itemsBucket).CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return ns.Put([]byte(key), sealed)
	})
}

func (b *BoltBackend) Delete(_ context.Context, namespace, key string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.key == nil {
		return ErrLocked
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		ns := tx.Bucket(itemsBucket).Bucket([]byte(namespace))
		if ns == nil {
			return nil
		}
		return ns.Delete([]byte(key))
	})
}
