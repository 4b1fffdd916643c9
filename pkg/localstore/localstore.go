// Package localstore is a small durable key/value store with a byte quota,
// used for the per-user session cache.
package localstore

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrQuotaExceeded is returned when a write would push the store past
	// its quota. The previous value of the key is left untouched.
	ErrQuotaExceeded = errors.New("localstore: quota exceeded")
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("localstore: key not found")
)

// KV is the store contract.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// cost is how much of the quota an entry uses.
func cost(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// Memory is an in-process KV with the same quota semantics as SQLite.
type Memory struct {
	mu    sync.Mutex
	quota int64
	used  int64
	data  map[string][]byte
}

// NewMemory creates a Memory store. quota <= 0 means unlimited.
func NewMemory(quota int64) *Memory {
	return &Memory{quota: quota, data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used
	if old, ok := m.data[key]; ok {
		used -= cost(key, old)
	}
	if m.quota > 0 && used+cost(key, value) > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = append([]byte(nil), value...)
	m.used = used + cost(key, value)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.used -= cost(key, old)
		delete(m.data, key)
	}
	return nil
}

// Used returns the bytes currently counted against the quota.
func (m *Memory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
