// Package store persists application state in a string key-value store.
package store

import (
	"errors"
	"sync"
)

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("store: not found")

// KV is a durable string-keyed, string-valued store. Get reports a missing
// key with ok == false rather than an error.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryKV is a KV held in process memory.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
