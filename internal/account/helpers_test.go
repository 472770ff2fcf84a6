package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amethyst/keeper/internal/common"
	"github.com/amethyst/keeper/internal/keychain"
	"github.com/amethyst/keeper/internal/repositories/accounts"
	"github.com/amethyst/keeper/internal/schema"
	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

// faultBackend is a MemoryBackend that fails chosen operations on chosen keys.
type faultBackend struct {
	*keychain.MemoryBackend

	mu     sync.Mutex
	get    map[string]error
	set    map[string]error
	delete map[string]error
}

func newFaultBackend() *faultBackend {
	return &faultBackend{
		MemoryBackend: keychain.NewMemoryBackend(),
		get:           map[string]error{},
		set:           map[string]error{},
		delete:        map[string]error{},
	}
}

func (f *faultBackend) failGet(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get[key] = err
}

func (f *faultBackend) failSet(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[key] = err
}

func (f *faultBackend) failDelete(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delete[key] = err
}

// has reports whether key is stored under service, bypassing injected faults.
func (f *faultBackend) has(t *testing.T, service, key string) bool {
	t.Helper()
	item, err := f.MemoryBackend.Get(context.Background(), service, key)
	require.NoError(t, err)
	return item != nil
}

func (f *faultBackend) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.get)
	clear(f.set)
	clear(f.delete)
}

func (f *faultBackend) Get(ctx context.Context, ns, key string) (*keychain.Item, error) {
	f.mu.Lock()
	err := f.get[key]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.MemoryBackend.Get(ctx, ns, key)
}

func (f *faultBackend) Set(ctx context.Context, ns, key string, item keychain.Item) error {
	f.mu.Lock()
	err := f.set[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryBackend.Set(ctx, ns, key, item)
}

func (f *faultBackend) Delete(ctx context.Context, ns, key string) error {
	f.mu.Lock()
	err := f.delete[key]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryBackend.Delete(ctx, ns, key)
}

// memRepo is an accounts.Repository over a map.
type memRepo struct {
	records   map[uuid.UUID]schema.Record
	updateErr error
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[uuid.UUID]schema.Record{}}
}

func (m *memRepo) Insert(_ context.Context, rec schema.Record) error {
	m.records[rec.ID] = rec
	return nil
}

func (m *memRepo) Update(_ context.Context, rec schema.Record) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[rec.ID]; !ok {
		return common.ErrorNotFound
	}
	m.records[rec.ID] = rec
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*schema.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rec, nil
}

func (m *memRepo) GetAll(ctx context.Context) ([]schema.Record, error) {
	return m.Find(ctx, nil)
}

func (m *memRepo) Find(_ context.Context, match accounts.Predicate) ([]schema.Record, error) {
	var out []schema.Record
	for _, r := range m.records {
		if match == nil || match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.records, id)
	return nil
}

// memTx applies fn's writes to repo only when fn succeeds.
type memTx struct {
	repo *memRepo
}

func (t memTx) RunInTx(ctx context.Context, fn func(ctx context.Context, repo accounts.Repository) error) error {
	scratch := newMemRepo()
	scratch.updateErr = t.repo.updateErr
	for id, r := range t.repo.records {
		scratch.records[id] = r
	}
	if err := fn(ctx, scratch); err != nil {
		return err
	}
	t.repo.records = scratch.records
	return nil
}

type fixture struct {
	backend *faultBackend
	clk     *testclock.Clock
	repo    *memRepo
	kcs     Keychains
}

func newFixture() *fixture {
	b := newFaultBackend()
	return &fixture{
		backend: b,
		clk:     testclock.NewClock(epoch),
		repo:    newMemRepo(),
		kcs:     KeychainsFor(b),
	}
}

func (f *fixture) records() []schema.Record {
	out, _ := f.repo.GetAll(context.Background())
	return out
}

// create builds and persists an account.
func (f *fixture) create(t *testing.T, p Params) *Account {
	t.Helper()
	a, err := New(context.Background(), f.kcs, f.clk, p, f.records())
	require.NoError(t, err)
	require.NoError(t, f.repo.Insert(context.Background(), a.Record()))
	return a
}

// stored reads key of service straight from the backend.
func (f *fixture) stored(t *testing.T, service, key string) (string, bool) {
	t.Helper()
	v, ok, err := keychain.New(f.backend.MemoryBackend, service).Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

var errInjected = errors.New("injected failure")
