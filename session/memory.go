package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	deadline time.Time // zero means no expiry
}

// MemoryCache is an in-process Cache. Expired entries are evicted lazily on
// access.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryCache) {
		m.now = now
	}
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var (
	_ Cache         = (*MemoryCache)(nil)
	_ HealthChecker = (*MemoryCache)(nil)
)

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.deadline.IsZero() && !m.now().Before(e.deadline) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.deadline = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryCache) Close() error { return nil }

// Health reports the memory backend. Redis is not in use.
func (m *MemoryCache) Health(context.Context) Health {
	return Health{
		Enabled: false,
		Status:  StatusDisabled,
		Backend: "memory",
		Message: "Redis is disabled in configuration",
	}
}

// fallbackCache is the memory cache used after Redis failed to connect.
// It keeps reporting the connection error.
type fallbackCache struct {
	*MemoryCache
	err error
}

func (f *fallbackCache) Health(context.Context) Health {
	return Health{
		Enabled: true,
		Status:  StatusError,
		Backend: "memory",
		Message: f.err.Error(),
	}
}
