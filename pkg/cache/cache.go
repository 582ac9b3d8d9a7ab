// Package cache defines where serialized scorers are kept between runs.
package cache

import (
	"context"
	"sync"
)

// Getter looks up a serialized scorer by resource id.
type Getter interface {
	// Get returns the blob stored for id and whether it was found.
	Get(ctx context.Context, id string) ([]byte, bool, error)
}

// Store is a Getter that can also keep new blobs.
type Store interface {
	Getter

	// Put stores blob under id, replacing any previous value.
	Put(ctx context.Context, id string, blob []byte) error
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string][]byte)}
}

// Get returns a copy of the blob stored for id.
func (m *Memory) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.items[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

// Put stores a copy of blob under id.
func (m *Memory) Put(ctx context.Context, id string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[id] = append([]byte(nil), blob...)
	return nil
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
