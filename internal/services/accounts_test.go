package services

import (
	"bytes"
	"context"
	"encoding/base32"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amethyst/keeper/internal/account"
	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/keychain"
	"github.com/amethyst/keeper/internal/logging"
	"github.com/amethyst/keeper/internal/repositories/accounts"
	"github.com/amethyst/keeper/internal/schema"
	"github.com/amethyst/keeper/internal/store"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected failure")

// faultyStore wraps a real store and fails chosen repository writes.
type faultyStore struct {
	*store.Store
	insertErr error
	updateErr error
}

type faultyRepo struct {
	accounts.Repository
	s *faultyStore
}

func (r faultyRepo) Insert(ctx context.Context, rec schema.Record) error {
	if r.s.insertErr != nil {
		return r.s.insertErr
	}
	return r.Repository.Insert(ctx, rec)
}

func (r faultyRepo) Update(ctx context.Context, rec schema.Record) error {
	if r.s.updateErr != nil {
		return r.s.updateErr
	}
	return r.Repository.Update(ctx, rec)
}

func (s *faultyStore) Repository() accounts.Repository {
	return faultyRepo{Repository: s.Store.Repository(), s: s}
}

type env struct {
	svc     AccountService
	store   *faultyStore
	backend *keychain.MemoryBackend
	clk     *testclock.Clock
	logs    *bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "accounts.db"), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := &env{
		store:   &faultyStore{Store: st},
		backend: keychain.NewMemoryBackend(),
		clk:     testclock.NewClock(time.Unix(59, 0).UTC()),
		logs:    &bytes.Buffer{},
	}
	log := logging.NewTextSlogLogger(e.logs, slog.LevelDebug)
	e.svc = NewAccountService(e.store, account.KeychainsFor(e.backend), e.clk, log)
	return e
}

func (e *env) secret(t *testing.T, service, key string) (string, bool) {
	t.Helper()
	v, ok, err := keychain.New(e.backend, service).Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestNewAccountService_NilLogger(t *testing.T) {
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "accounts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc := NewAccountService(st, account.KeychainsFor(keychain.NewMemoryBackend()), testclock.NewClock(time.Unix(59, 0)), nil)
	a, err := svc.Create(context.Background(), account.Params{Service: "s", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NoError(t, svc.Purge(context.Background(), a.ID()))
}

func TestCreateGetList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	b, err := e.svc.Create(ctx, account.Params{Service: "google.com", Username: "b", Password: "pb"})
	require.NoError(t, err)
	a, err := e.svc.Create(ctx, account.Params{Service: "google.com", Username: "a", Password: "pa"})
	require.NoError(t, err)
	c, err := e.svc.Create(ctx, account.Params{Service: "example.com", Username: "a", Password: "pc"})
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	pw, ok, err := got.Password(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pa", pw)

	list, err := e.svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, c.ID(), list[0].ID())
	assert.Equal(t, a.ID(), list[1].ID())
	assert.Equal(t, b.ID(), list[2].ID())

	require.NoError(t, e.svc.Delete(ctx, b.ID()))
	list, err = e.svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = e.svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	assert.Contains(t, e.logs.String(), "account created")
}

func TestCreate_Collision(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, account.Params{Service: "google.com", Username: "a@x.com", Password: "1"})
	require.NoError(t, err)
	_, err = e.svc.Create(ctx, account.Params{Service: "google.com", Username: "a@x.com", Password: "2"})
	require.ErrorIs(t, err, common.ErrUsernameInUse)

	pw, _ := e.secret(t, "google.com", "a@x.com")
	assert.Equal(t, "1", pw)
}

func TestCreate_PersistFailurePurgesStagedSecrets(t *testing.T) {
	e := newEnv(t)
	e.store.insertErr = errInjected

	_, err := e.svc.Create(context.Background(), account.Params{
		Service: "google.com", Username: "a", Password: "p", TOTPSecret: "JBSWY3DPEHPK3PXP",
	})
	require.ErrorIs(t, err, errInjected)
	_, ok := e.secret(t, "google.com", keychain.PasswordKey("a"))
	assert.False(t, ok)
	_, ok = e.secret(t, "google.com", keychain.TOTPKey("a"))
	assert.False(t, ok)

	list, err := e.svc.List(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRename(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "google.com", Username: "old", Password: "p", TOTPSecret: "JBSWY3DPEHPK3PXP"})
	require.NoError(t, err)

	require.NoError(t, e.svc.Rename(ctx, a.ID(), "new"))

	got, err := e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "new", got.Username())
	require.NotNil(t, got.EditedAt())

	pw, ok := e.secret(t, "google.com", "new")
	assert.True(t, ok)
	assert.Equal(t, "p", pw)
	_, ok = e.secret(t, "google.com", "old")
	assert.False(t, ok)
	_, ok = e.secret(t, "google.com", keychain.TOTPKey("old"))
	assert.False(t, ok)

	assert.Contains(t, e.logs.String(), "account renamed")

	require.NoError(t, e.svc.Rename(ctx, a.ID(), "new"))
}

func TestRename_Taken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "google.com", Username: "a", Password: "pa"})
	require.NoError(t, err)
	_, err = e.svc.Create(ctx, account.Params{Service: "google.com", Username: "b", Password: "pb"})
	require.NoError(t, err)

	require.ErrorIs(t, e.svc.Rename(ctx, a.ID(), "b"), common.ErrUsernameInUse)
	pw, _ := e.secret(t, "google.com", "b")
	assert.Equal(t, "pb", pw)
}

func TestRename_ConcurrentIntoSameName(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "a", Password: "pa"})
	require.NoError(t, err)
	b, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "b", Password: "pb"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, acc := range []*account.Account{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.svc.Rename(ctx, acc.ID(), "c")
		}()
	}
	wg.Wait()

	var ok, inUse int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrUsernameInUse):
			inUse++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, inUse)
}

func TestCreate_ConcurrentSameKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "p"})
		}()
	}
	wg.Wait()

	var created int
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, common.ErrUsernameInUse)
	}
	assert.Equal(t, 1, created)
}

func TestSetTOTPSecret_PersistFailureRestoresSeed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "p"})
	require.NoError(t, err)

	e.store.updateErr = errInjected
	require.ErrorIs(t, e.svc.SetTOTPSecret(ctx, a.ID(), "JBSWY3DPEHPK3PXP"), errInjected)
	_, ok := e.secret(t, "s", keychain.TOTPKey("u"))
	assert.False(t, ok)

	e.store.updateErr = nil
	require.NoError(t, e.svc.SetTOTPSecret(ctx, a.ID(), "JBSWY3DPEHPK3PXP"))

	e.store.updateErr = errInjected
	require.ErrorIs(t, e.svc.RemoveTOTPSecret(ctx, a.ID()), errInjected)
	seed, ok := e.secret(t, "s", keychain.TOTPKey("u"))
	assert.True(t, ok)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", seed)

	got, err := e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, got.TOTP())
}

func (e *env) comment(t *testing.T, service, key string) string {
	t.Helper()
	c, _, err := keychain.New(e.backend, service).Comment(context.Background(), key)
	require.NoError(t, err)
	return c
}

func TestSetPassword_PersistFailureRestoresPassword(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "old", Comment: "note"})
	require.NoError(t, err)

	e.store.updateErr = errInjected
	require.ErrorIs(t, e.svc.SetPassword(ctx, a.ID(), "new"), errInjected)

	pw, ok := e.secret(t, "s", keychain.PasswordKey("u"))
	assert.True(t, ok)
	assert.Equal(t, "old", pw)
	assert.Equal(t, "note", e.comment(t, "s", keychain.PasswordKey("u")))

	got, err := e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.Nil(t, got.EditedAt())
}

func TestSetComment_PersistFailureRestoresComment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "pw", Comment: "before"})
	require.NoError(t, err)

	e.store.updateErr = errInjected
	require.ErrorIs(t, e.svc.SetComment(ctx, a.ID(), "after"), errInjected)

	assert.Equal(t, "before", e.comment(t, "s", keychain.PasswordKey("u")))
	pw, ok := e.secret(t, "s", keychain.PasswordKey("u"))
	assert.True(t, ok)
	assert.Equal(t, "pw", pw)
}

func TestUpdates_Persist(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "p"})
	require.NoError(t, err)

	strength := 0.9
	require.NoError(t, e.svc.SetPassword(ctx, a.ID(), "p2"))
	require.NoError(t, e.svc.SetComment(ctx, a.ID(), "c"))
	require.NoError(t, e.svc.SetTitle(ctx, a.ID(), "Title"))
	require.NoError(t, e.svc.SetImage(ctx, a.ID(), []byte{1}))
	require.NoError(t, e.svc.SetStrength(ctx, a.ID(), &strength))
	require.NoError(t, e.svc.SetAliases(ctx, a.ID(), []string{"alt.s"}))

	got, err := e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	pw, _, err := got.Password(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p2", pw)
	c, _, err := got.Comment(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", c)
	require.NotNil(t, got.Title())
	assert.Equal(t, "Title", *got.Title())
	assert.Equal(t, []byte{1}, got.Image())
	assert.Equal(t, &strength, got.Strength())
	assert.Equal(t, []string{"alt.s"}, got.Aliases())
	assert.NotNil(t, got.EditedAt())
}

func TestDeleteRestorePurge(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "p", TOTPSecret: "JBSWY3DPEHPK3PXP"})
	require.NoError(t, err)

	require.NoError(t, e.svc.Delete(ctx, a.ID()))
	got, err := e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, got.IsDeleted())

	require.NoError(t, e.svc.Restore(ctx, a.ID()))
	got, err = e.svc.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.False(t, got.IsDeleted())
	_, ok := e.secret(t, "s", "u")
	assert.True(t, ok)

	require.NoError(t, e.svc.Purge(ctx, a.ID()))
	_, err = e.svc.Get(ctx, a.ID())
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, ok = e.secret(t, "s", keychain.PasswordKey("u"))
	assert.False(t, ok)
	_, ok = e.secret(t, "s", keychain.TOTPKey("u"))
	assert.False(t, ok)

	require.ErrorIs(t, e.svc.Purge(ctx, a.ID()), common.ErrorNotFound)
}

func TestCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seed := base32.StdEncoding.EncodeToString([]byte("12345678901234567890"))

	a, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "u", Password: "p", TOTPSecret: seed})
	require.NoError(t, err)

	code, remaining, ok, err := e.svc.Code(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "287082", code)
	assert.Equal(t, time.Second, remaining)

	b, err := e.svc.Create(ctx, account.Params{Service: "s", Username: "v", Password: "p"})
	require.NoError(t, err)
	_, _, ok, err = e.svc.Code(ctx, b.ID())
	require.NoError(t, err)
	assert.False(t, ok)
}
