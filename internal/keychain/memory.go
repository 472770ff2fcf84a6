package keychain

import (
	"context"
	"sync"
)

type slot struct {
	namespace string
	key       string
}

// MemoryBackend keeps items in a map. It is safe for concurrent use.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[slot]Item
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[slot]Item)}
}

func (m *MemoryBackend) Get(_ context.Context, namespace, key string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[slot{namespace, key}]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *MemoryBackend) Set(_ context.Context, namespace, key string, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[slot{namespace, key}] = item
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, slot{namespace, key})
	return nil
}
