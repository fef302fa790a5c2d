package store

import (
	"context"
	"sync"
)

// Memory is the guarded in-memory implementation of Store[V].
//
// It is safe for concurrent use: graph definitions are written once and
// read by every run, and a run record inserted by one goroutine must be
// visible to inspection from another as soon as Put returns.
//
// Type parameter V is the stored value type.
type Memory[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewMemory creates an empty in-memory store.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{items: make(map[string]V)}
}

// Put stores v under id, overwriting any previous value.
func (m *Memory[V]) Put(_ context.Context, id string, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[id] = v
	return nil
}

// Get returns the value stored under id, or ErrNotFound.
func (m *Memory[V]) Get(_ context.Context, id string) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.items[id]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Len returns the number of stored values.
func (m *Memory[V]) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items), nil
}
