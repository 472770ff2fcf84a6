package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/keychain"
	"github.com/amethyst/keeper/internal/repositories/accounts"
	"github.com/amethyst/keeper/internal/schema"
)

// entry is a secret read from the store; ok reports presence.
type entry struct {
	value string
	ok    bool
}

// snapshot holds everything stored for one username.
type snapshot struct {
	password entry
	seed     entry
	comment  string
}

func (a *Account) read(ctx context.Context, username string) (snapshot, error) {
	var s snapshot
	var err error

	pwKey := keychain.PasswordKey(username)
	if s.password.value, s.password.ok, err = a.secrets.Get(ctx, pwKey); err != nil {
		return s, err
	}
	if s.comment, _, err = a.secrets.Comment(ctx, pwKey); err != nil {
		return s, err
	}
	if s.seed.value, s.seed.ok, err = a.secrets.Get(ctx, keychain.TOTPKey(username)); err != nil {
		return s, err
	}
	return s, nil
}

// write stores s under username. Entries absent from s are removed so the
// keys of username end up holding exactly s.
func (a *Account) write(ctx context.Context, username string, s snapshot) error {
	put := func(key string, e entry) error {
		if !e.ok {
			return a.secrets.Delete(ctx, key)
		}
		return a.secrets.Set(ctx, key, e.value, s.comment)
	}
	if err := put(keychain.PasswordKey(username), s.password); err != nil {
		return err
	}
	return put(keychain.TOTPKey(username), s.seed)
}

func (a *Account) remove(ctx context.Context, username string) error {
	return errors.Join(
		a.secrets.Delete(ctx, keychain.PasswordKey(username)),
		a.secrets.Delete(ctx, keychain.TOTPKey(username)),
	)
}

// SetUsername renames the account within its service and moves its secrets
// to the keys of the new name.
//
// The new name is validated against all (excluding this account) before
// anything is written. Secrets are then copied under the new keys and the
// record is saved inside one tx scope. On commit the old keys are deleted;
// if that fails the rename stands and the error wraps common.ErrStaleSecrets.
//
// If the scope fails the in-memory record is restored, the new keys are
// removed and the old entries rewritten. All of these steps are idempotent.
// When they fail too the returned error also wraps common.ErrRollbackFailed.
func (a *Account) SetUsername(ctx context.Context, username string, all []schema.Record, tx TxRunner) error {
	if username == a.rec.Username {
		return nil
	}
	if err := CheckUsername(username, a.rec.Service, all, a.rec.ID); err != nil {
		return err
	}

	old := a.rec.Username
	s, err := a.read(ctx, old)
	if err != nil {
		return err
	}

	prevEdited := a.rec.EditedAt
	err = tx.RunInTx(ctx, func(ctx context.Context, repo accounts.Repository) error {
		if err := a.write(ctx, username, s); err != nil {
			return err
		}
		a.rec.Username = username
		a.rec.EditedAt = a.now()
		return repo.Update(ctx, a.rec)
	})
	if err != nil {
		a.rec.Username = old
		a.rec.EditedAt = prevEdited
		if cerr := a.compensate(ctx, old, username, s); cerr != nil {
			return errors.Join(err, fmt.Errorf("%w: %w", common.ErrRollbackFailed, cerr))
		}
		return err
	}

	if err := a.remove(ctx, old); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStaleSecrets, err)
	}
	return nil
}

func (a *Account) compensate(ctx context.Context, old, attempted string, s snapshot) error {
	return errors.Join(
		a.remove(ctx, attempted),
		a.write(ctx, old, s),
	)
}
