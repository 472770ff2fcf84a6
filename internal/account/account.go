package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/keychain"
	"github.com/amethyst/keeper/internal/repositories/accounts"
	"github.com/amethyst/keeper/internal/schema"
	"github.com/amethyst/keeper/internal/totp"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Secrets is the secret store view of one service namespace.
// *keychain.Keychain implements it.
type Secrets interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Comment(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value, comment string) error
	Delete(ctx context.Context, key string) error
}

// Keychains returns the Secrets of a service.
type Keychains func(service string) Secrets

// KeychainsFor scopes backend per service.
func KeychainsFor(backend keychain.Backend) Keychains {
	return func(service string) Secrets {
		return keychain.New(backend, service)
	}
}

// TxRunner runs fn inside a metadata store transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error
}

// Params are the inputs of New. A non-empty TOTPSecret enables TOTP.
type Params struct {
	Service    string
	Username   string
	Aliases    []string
	Comment    string
	Password   string
	TOTPSecret string
	Strength   *float64
}

type Account struct {
	rec     schema.Record
	secrets Secrets
	clk     clock.Clock
}

// CheckUsername fails with common.ErrReservedSuffix when username ends with
// keychain.ReservedSuffix, and with common.ErrUsernameInUse when a record
// other than excludedID, soft-deleted or not, has the same service and
// username. Pass uuid.Nil to compare against every record.
func CheckUsername(username, service string, all []schema.Record, excludedID uuid.UUID) error {
	if strings.HasSuffix(username, keychain.ReservedSuffix) {
		return common.ErrReservedSuffix
	}
	for _, r := range all {
		if excludedID != uuid.Nil && r.ID == excludedID {
			continue
		}
		if r.Service == service && r.Username == username {
			return common.ErrUsernameInUse
		}
	}
	return nil
}

// New validates p against all and stages its secrets. The returned Account
// is not persisted; the caller inserts Record() and calls PurgeSecrets if
// that fails.
func New(ctx context.Context, kcs Keychains, clk clock.Clock, p Params, all []schema.Record) (*Account, error) {
	if err := CheckUsername(p.Username, p.Service, all, uuid.Nil); err != nil {
		return nil, err
	}

	aliases := p.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	a := &Account{
		rec: schema.Record{
			ID:        uuid.New(),
			Service:   p.Service,
			Aliases:   aliases,
			Username:  p.Username,
			TOTP:      p.TOTPSecret != "",
			CreatedAt: clk.Now().UTC(),
			Strength:  p.Strength,
		},
		secrets: kcs(p.Service),
		clk:     clk,
	}

	if err := a.stage(ctx, p); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) stage(ctx context.Context, p Params) error {
	pwKey := keychain.PasswordKey(p.Username)
	otpKey := keychain.TOTPKey(p.Username)

	// a seed left behind under this key would contradict TOTP == false
	if p.TOTPSecret == "" {
		if err := a.secrets.Delete(ctx, otpKey); err != nil {
			return err
		}
	}
	if err := a.secrets.Set(ctx, pwKey, p.Password, p.Comment); err != nil {
		return err
	}
	if p.TOTPSecret != "" {
		if err := a.secrets.Set(ctx, otpKey, p.TOTPSecret, p.Comment); err != nil {
			if derr := a.secrets.Delete(ctx, pwKey); derr != nil {
				return errors.Join(err, derr)
			}
			return err
		}
	}
	return nil
}

// Load binds a persisted record to the secret store.
func Load(rec schema.Record, kcs Keychains, clk clock.Clock) *Account {
	return &Account{rec: rec, secrets: kcs(rec.Service), clk: clk}
}

func (a *Account) now() *time.Time {
	t := a.clk.Now().UTC()
	return &t
}

// Record returns a copy of the metadata record.
func (a *Account) Record() schema.Record {
	r := a.rec
	if a.rec.Aliases != nil {
		r.Aliases = append([]string{}, a.rec.Aliases...)
	}
	if a.rec.Image != nil {
		r.Image = append([]byte{}, a.rec.Image...)
	}
	return r
}

func (a *Account) ID() uuid.UUID { return a.rec.ID }
func (a *Account) Service() string { return a.rec.Service }
func (a *Account) Username() string { return a.rec.Username }
func (a *Account) Aliases() []string { return append([]string(nil), a.rec.Aliases...) }
func (a *Account) TOTP() bool { return a.rec.TOTP }
func (a *Account) CreatedAt() time.Time { return a.rec.CreatedAt }
func (a *Account) EditedAt() *time.Time { return a.rec.EditedAt }
func (a *Account) DeletedAt() *time.Time { return a.rec.DeletedAt }
func (a *Account) Image() []byte { return a.rec.Image }
func (a *Account) Title() *string { return a.rec.Title }
func (a *Account) Strength() *float64 { return a.rec.Strength }
func (a *Account) IsDeleted() bool { return a.rec.DeletedAt != nil }

// Password returns the stored password. ok is false when there is none.
func (a *Account) Password(ctx context.Context) (string, bool, error) {
	return a.secrets.Get(ctx, keychain.PasswordKey(a.rec.Username))
}

// TOTPSecret returns the stored OTP seed. ok is false when there is none.
func (a *Account) TOTPSecret(ctx context.Context) (string, bool, error) {
	return a.secrets.Get(ctx, keychain.TOTPKey(a.rec.Username))
}

// Comment returns the comment attribute of the password item.
func (a *Account) Comment(ctx context.Context) (string, bool, error) {
	return a.secrets.Comment(ctx, keychain.PasswordKey(a.rec.Username))
}

// CurrentTOTPCode derives the code for now. ok is false when no seed is
// stored or the seed is not valid base32.
func (a *Account) CurrentTOTPCode(ctx context.Context, now time.Time) (string, bool, error) {
	seed, ok, err := a.TOTPSecret(ctx)
	if err != nil || !ok {
		return "", false, err
	}
	code, ok := totp.GenerateCode(seed, now)
	return code, ok, nil
}

// SetPassword replaces the password, keeping the comment.
func (a *Account) SetPassword(ctx context.Context, password string) error {
	key := keychain.PasswordKey(a.rec.Username)
	comment, _, err := a.secrets.Comment(ctx, key)
	if err != nil {
		return err
	}
	if err := a.secrets.Set(ctx, key, password, comment); err != nil {
		return err
	}
	a.rec.EditedAt = a.now()
	return nil
}

// SetComment replaces the comment attribute. Without a stored password an
// empty one is written to carry the comment.
func (a *Account) SetComment(ctx context.Context, comment string) error {
	key := keychain.PasswordKey(a.rec.Username)
	password, _, err := a.secrets.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := a.secrets.Set(ctx, key, password, comment); err != nil {
		return err
	}
	a.rec.EditedAt = a.now()
	return nil
}

// RemovePassword deletes the password entry together with its comment.
func (a *Account) RemovePassword(ctx context.Context) error {
	if err := a.secrets.Delete(ctx, keychain.PasswordKey(a.rec.Username)); err != nil {
		return err
	}
	a.rec.EditedAt = a.now()
	return nil
}

// SetTOTPSecret stores seed and turns TOTP on. The flag only changes when
// the write succeeds.
func (a *Account) SetTOTPSecret(ctx context.Context, seed string) error {
	if seed == "" {
		return a.RemoveTOTPSecret(ctx)
	}
	comment, _, err := a.secrets.Comment(ctx, keychain.PasswordKey(a.rec.Username))
	if err != nil {
		return err
	}
	if err := a.secrets.Set(ctx, keychain.TOTPKey(a.rec.Username), seed, comment); err != nil {
		return err
	}
	a.rec.TOTP = true
	a.rec.EditedAt = a.now()
	return nil
}

// RemoveTOTPSecret deletes the seed and turns TOTP off.
func (a *Account) RemoveTOTPSecret(ctx context.Context) error {
	if err := a.secrets.Delete(ctx, keychain.TOTPKey(a.rec.Username)); err != nil {
		return err
	}
	a.rec.TOTP = false
	a.rec.EditedAt = a.now()
	return nil
}

func (a *Account) SetTitle(title string) {
	a.rec.Title = &title
	a.rec.EditedAt = a.now()
}

func (a *Account) SetImage(image []byte) {
	a.rec.Image = image
	a.rec.EditedAt = a.now()
}

// SetStrength records a caller computed score. EditedAt is unchanged.
func (a *Account) SetStrength(s *float64) {
	a.rec.Strength = s
}

// SetAliases replaces the alternate domains. EditedAt is unchanged.
func (a *Account) SetAliases(aliases []string) {
	if aliases == nil {
		aliases = []string{}
	}
	a.rec.Aliases = aliases
}

// Delete marks the account soft-deleted. Secrets are kept and deleting an
// already deleted account keeps the original timestamp.
func (a *Account) Delete() {
	if a.rec.DeletedAt == nil {
		a.rec.DeletedAt = a.now()
	}
}

// Restore clears the soft-delete mark.
func (a *Account) Restore() {
	a.rec.DeletedAt = nil
}

// PurgeSecrets irrevocably removes the password and OTP seed. It must run
// before the metadata record is removed and may be repeated.
func (a *Account) PurgeSecrets(ctx context.Context) error {
	var errs []error
	if err := a.secrets.Delete(ctx, keychain.PasswordKey(a.rec.Username)); err != nil {
		errs = append(errs, err)
	}
	if err := a.secrets.Delete(ctx, keychain.TOTPKey(a.rec.Username)); err != nil {
		errs = append(errs, err)
	} else {
		a.rec.TOTP = false
	}
	if len(errs) > 0 {
		return fmt.Errorf("purge %s: %w", a.rec.ID, errors.Join(errs...))
	}
	return nil
}
