package database

import (
	"sync"
	"time"
)

type entry struct {
	data    string
	expires time.Time
}

type memory struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

// NewMemory returns a process-local Database, used when no redis address is configured.
func NewMemory() Database {
	return &memory{data: make(map[string]entry), now: time.Now}
}

func (m *memory) Get(key string) (string, error) {
	m.mu.RLock()
	e, ok := m.data[key]
	m.mu.RUnlock()

	if !ok || (!e.expires.IsZero() && !m.now().Before(e.expires)) {
		return "", ErrNotFound
	}

	return e.data, nil
}

func (m *memory) Set(key string, data string, expiration time.Duration) error {
	e := entry{data: data}

	if expiration > 0 {
		e.expires = m.now().Add(expiration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = e
	m.sweep()

	return nil
}

func (m *memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *memory) Close() error {
	return nil
}

// sweep drops expired keys, caller holds the write lock.
func (m *memory) sweep() {
	now := m.now()

	for k, e := range m.data {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.data, k)
		}
	}
}
