// Package services orchestrates account operations across the metadata store
// and the secret store: loading siblings for validation, persisting records,
// per-account locking and logging.
package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/amethyst/keeper/internal/account"
	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/logging"
	"github.com/amethyst/keeper/internal/repositories/accounts"
	"github.com/amethyst/keeper/internal/totp"
	"github.com/google/uuid"
	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
)

// Store is the metadata store as seen by the service. *store.Store
// implements it.
type Store interface {
	account.TxRunner
	Repository() accounts.Repository
}

type AccountService interface {
	Create(ctx context.Context, p account.Params) (*account.Account, error)
	List(ctx context.Context, includeDeleted bool) ([]*account.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	Rename(ctx context.Context, id uuid.UUID, username string) error
	SetPassword(ctx context.Context, id uuid.UUID, password string) error
	SetComment(ctx context.Context, id uuid.UUID, comment string) error
	SetTOTPSecret(ctx context.Context, id uuid.UUID, seed string) error
	RemoveTOTPSecret(ctx context.Context, id uuid.UUID) error
	SetTitle(ctx context.Context, id uuid.UUID, title string) error
	SetImage(ctx context.Context, id uuid.UUID, image []byte) error
	SetStrength(ctx context.Context, id uuid.UUID, strength *float64) error
	SetAliases(ctx context.Context, id uuid.UUID, aliases []string) error
	Delete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
	Purge(ctx context.Context, id uuid.UUID) error
	Code(ctx context.Context, id uuid.UUID) (code string, remaining time.Duration, ok bool, err error)
}

type accountService struct {
	store     Store
	keychains account.Keychains
	clk       clock.Clock
	log       logging.Logger
	locks     *kmutex.Kmutex
}

// NewAccountService builds the service. A nil log discards output.
func NewAccountService(store Store, keychains account.Keychains, clk clock.Clock, log logging.Logger) AccountService {
	if log == nil {
		log = logging.Nop()
	}
	return &accountService{
		store:     store,
		keychains: keychains,
		clk:       clk,
		log:       log,
		locks:     kmutex.New(),
	}
}

func lockKey(service, username string) string {
	return service + "\x00" + username
}

// lockAccount loads the account and holds the lock of its current
// (service, username) until unlock is called. The record is reloaded under
// the lock so a rename that won the race is observed.
func (s *accountService) lockAccount(ctx context.Context, id uuid.UUID) (a *account.Account, unlock func(), err error) {
	repo := s.store.Repository()
	for {
		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		key := lockKey(rec.Service, rec.Username)
		s.locks.Lock(key)

		cur, err := repo.GetByID(ctx, id)
		if err != nil {
			s.locks.Unlock(key)
			return nil, nil, err
		}
		if cur.Username == rec.Username {
			return account.Load(*cur, s.keychains, s.clk), func() { s.locks.Unlock(key) }, nil
		}
		s.locks.Unlock(key)
	}
}

// lockPair holds the locks of the account's current key and of the key it
// is renamed to. Locks are taken in key order so concurrent renames never
// deadlock. a is nil when the account already has username.
func (s *accountService) lockPair(ctx context.Context, id uuid.UUID, username string) (a *account.Account, unlock func(), err error) {
	repo := s.store.Repository()
	for {
		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if rec.Username == username {
			return nil, nil, nil
		}

		keys := []string{lockKey(rec.Service, rec.Username), lockKey(rec.Service, username)}
		slices.Sort(keys)
		for _, k := range keys {
			s.locks.Lock(k)
		}
		release := func() {
			for i := len(keys) - 1; i >= 0; i-- {
				s.locks.Unlock(keys[i])
			}
		}

		cur, err := repo.GetByID(ctx, id)
		if err != nil {
			release()
			return nil, nil, err
		}
		if cur.Username == rec.Username {
			return account.Load(*cur, s.keychains, s.clk), release, nil
		}
		release()
	}
}

func (s *accountService) Create(ctx context.Context, p account.Params) (*account.Account, error) {
	key := lockKey(p.Service, p.Username)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	repo := s.store.Repository()
	all, err := repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	a, err := account.New(ctx, s.keychains, s.clk, p, all)
	if err != nil {
		return nil, err
	}

	if err := repo.Insert(ctx, a.Record()); err != nil {
		if perr := a.PurgeSecrets(ctx); perr != nil {
			s.log.Error(ctx, "failed to purge staged secrets", "id", a.ID(), "service", a.Service(), "error", perr)
			return nil, errors.Join(err, perr)
		}
		return nil, err
	}

	s.log.Info(ctx, "account created", "id", a.ID(), "service", a.Service(), "totp", a.TOTP())
	return a, nil
}

func (s *accountService) List(ctx context.Context, includeDeleted bool) ([]*account.Account, error) {
	recs, err := s.store.Repository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	result := make([]*account.Account, 0, len(recs))
	for _, r := range recs {
		if r.DeletedAt != nil && !includeDeleted {
			continue
		}
		result = append(result, account.Load(r, s.keychains, s.clk))
	}
	slices.SortFunc(result, func(a, b *account.Account) int {
		return cmp.Or(
			cmp.Compare(a.Service(), b.Service()),
			cmp.Compare(a.Username(), b.Username()),
		)
	})
	return result, nil
}

func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	rec, err := s.store.Repository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return account.Load(*rec, s.keychains, s.clk), nil
}

func (s *accountService) Rename(ctx context.Context, id uuid.UUID, username string) error {
	a, unlock, err := s.lockPair(ctx, id, username)
	if err != nil || a == nil {
		return err
	}
	defer unlock()

	all, err := s.store.Repository().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	from := a.Username()
	err = a.SetUsername(ctx, username, all, s.store)
	switch {
	case errors.Is(err, common.ErrRollbackFailed):
		s.log.Error(ctx, "rename rollback failed, secrets may be duplicated", "id", id, "service", a.Service(), "error", err)
	case errors.Is(err, common.ErrStaleSecrets):
		s.log.Warn(ctx, "rename committed, previous secrets remain", "id", id, "service", a.Service(), "error", err)
	case err != nil:
		s.log.Warn(ctx, "rename failed", "id", id, "service", a.Service(), "error", err)
	default:
		s.log.Info(ctx, "account renamed", "id", id, "service", a.Service(), "from", from, "to", username)
	}
	return err
}

// mutation changes a loaded account. undo, when not nil, reverts the
// secret store side if persisting the record fails.
type mutation func(ctx context.Context, a *account.Account) (undo func(ctx context.Context) error, err error)

func (s *accountService) update(ctx context.Context, id uuid.UUID, op string, fn mutation) error {
	a, unlock, err := s.lockAccount(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	undo, err := fn(ctx, a)
	if err != nil {
		return err
	}

	if err := s.store.Repository().Update(ctx, a.Record()); err != nil {
		if undo != nil {
			if uerr := undo(ctx); uerr != nil {
				s.log.Error(ctx, "failed to revert secret store", "id", id, "op", op, "error", uerr)
				return errors.Join(err, uerr)
			}
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	s.log.Debug(ctx, "account updated", "id", id, "op", op)
	return nil
}

func noUndo(fn func(a *account.Account)) mutation {
	return func(_ context.Context, a *account.Account) (func(context.Context) error, error) {
		fn(a)
		return nil, nil
	}
}

// restorePassword returns an undo putting back the password entry a holds
// now, comment included.
func restorePassword(ctx context.Context, a *account.Account) (func(context.Context) error, error) {
	prev, had, err := a.Password(ctx)
	if err != nil {
		return nil, err
	}
	comment, _, err := a.Comment(ctx)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if !had {
			return a.RemovePassword(ctx)
		}
		if err := a.SetPassword(ctx, prev); err != nil {
			return err
		}
		return a.SetComment(ctx, comment)
	}, nil
}

func (s *accountService) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	return s.update(ctx, id, "password", func(ctx context.Context, a *account.Account) (func(context.Context) error, error) {
		undo, err := restorePassword(ctx, a)
		if err != nil {
			return nil, err
		}
		return undo, a.SetPassword(ctx, password)
	})
}

func (s *accountService) SetComment(ctx context.Context, id uuid.UUID, comment string) error {
	return s.update(ctx, id, "comment", func(ctx context.Context, a *account.Account) (func(context.Context) error, error) {
		undo, err := restorePassword(ctx, a)
		if err != nil {
			return nil, err
		}
		return undo, a.SetComment(ctx, comment)
	})
}

// restoreSeed returns an undo putting back the seed a holds now.
func restoreSeed(ctx context.Context, a *account.Account) (func(context.Context) error, error) {
	prev, had, err := a.TOTPSecret(ctx)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if had {
			return a.SetTOTPSecret(ctx, prev)
		}
		return a.RemoveTOTPSecret(ctx)
	}, nil
}

func (s *accountService) SetTOTPSecret(ctx context.Context, id uuid.UUID, seed string) error {
	return s.update(ctx, id, "totp", func(ctx context.Context, a *account.Account) (func(context.Context) error, error) {
		undo, err := restoreSeed(ctx, a)
		if err != nil {
			return nil, err
		}
		return undo, a.SetTOTPSecret(ctx, seed)
	})
}

func (s *accountService) RemoveTOTPSecret(ctx context.Context, id uuid.UUID) error {
	return s.update(ctx, id, "totp-remove", func(ctx context.Context, a *account.Account) (func(context.Context) error, error) {
		undo, err := restoreSeed(ctx, a)
		if err != nil {
			return nil, err
		}
		return undo, a.RemoveTOTPSecret(ctx)
	})
}

func (s *accountService) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	return s.update(ctx, id, "title", noUndo(func(a *account.Account) { a.SetTitle(title) }))
}

func (s *accountService) SetImage(ctx context.Context, id uuid.UUID, image []byte) error {
	return s.update(ctx, id, "image", noUndo(func(a *account.Account) { a.SetImage(image) }))
}

func (s *accountService) SetStrength(ctx context.Context, id uuid.UUID, strength *float64) error {
	return s.update(ctx, id, "strength", noUndo(func(a *account.Account) { a.SetStrength(strength) }))
}

func (s *accountService) SetAliases(ctx context.Context, id uuid.UUID, aliases []string) error {
	return s.update(ctx, id, "aliases", noUndo(func(a *account.Account) { a.SetAliases(aliases) }))
}

func (s *accountService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.update(ctx, id, "delete", noUndo((*account.Account).Delete)); err != nil {
		return err
	}
	s.log.Info(ctx, "account moved to trash", "id", id)
	return nil
}

func (s *accountService) Restore(ctx context.Context, id uuid.UUID) error {
	if err := s.update(ctx, id, "restore", noUndo((*account.Account).Restore)); err != nil {
		return err
	}
	s.log.Info(ctx, "account restored", "id", id)
	return nil
}

// Purge removes the secrets and then the record. If the record cannot be
// removed the secrets are already gone and Purge may be repeated.
func (s *accountService) Purge(ctx context.Context, id uuid.UUID) error {
	a, unlock, err := s.lockAccount(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	if err := a.PurgeSecrets(ctx); err != nil {
		s.log.Error(ctx, "failed to purge secrets", "id", id, "service", a.Service(), "error", err)
		return err
	}
	if err := s.store.Repository().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to remove account record: %w", err)
	}

	s.log.Info(ctx, "account purged", "id", id, "service", a.Service())
	return nil
}

func (s *accountService) Code(ctx context.Context, id uuid.UUID) (string, time.Duration, bool, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return "", 0, false, err
	}
	now := s.clk.Now()
	code, ok, err := a.CurrentTOTPCode(ctx, now)
	if err != nil || !ok {
		return "", 0, false, err
	}
	return code, totp.Remaining(now), true, nil
}
