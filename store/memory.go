package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

// MemoryStore provides thread-safe in-memory task storage.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
	now   func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		tasks: make(map[string]*a2a.Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ TaskStore = (*MemoryStore)(nil)

// Create stores a copy of task.
func (m *MemoryStore) Create(_ context.Context, task *a2a.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("store: task id is required")
	}
	c := task.Clone()
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, c.ID)
	}
	m.tasks[c.ID] = c
	return nil
}

// Get returns a copy of the stored task.
func (m *MemoryStore) Get(_ context.Context, id string) (*a2a.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Update replaces the stored task with a copy of task.
func (m *MemoryStore) Update(_ context.Context, task *a2a.Task) (*a2a.Task, error) {
	c := task.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[c.ID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, c.ID)
	}
	c.UpdatedAt = m.now()
	m.tasks[c.ID] = c
	return c.Clone(), nil
}

// Mutate applies fn to a copy of the stored task and stores the result.
// The id cannot be changed.
func (m *MemoryStore) Mutate(_ context.Context, id string, fn MutateFunc) (*a2a.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	c := t.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.ID = id
	c.UpdatedAt = m.now()
	m.tasks[id] = c
	return c.Clone(), nil
}

// Delete removes a task.
func (m *MemoryStore) Delete(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	delete(m.tasks, id)
	return ok
}

// List returns copies of matching tasks sorted by createdAt descending, with
// the id as tiebreak. Negative limit and offset are treated as zero.
func (m *MemoryStore) List(_ context.Context, filter Filter, limit, offset int) []*a2a.Task {
	limit, offset = max(limit, 0), max(offset, 0)

	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := make([]*a2a.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if filter.Match(t) {
			matched = append(matched, t)
		}
	}
	slices.SortFunc(matched, func(a, b *a2a.Task) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if offset >= len(matched) {
		return []*a2a.Task{}
	}
	end := len(matched)
	if limit < end-offset {
		end = offset + limit
	}
	page := matched[offset:end]
	result := make([]*a2a.Task, len(page))
	for i, t := range page {
		result[i] = t.Clone()
	}
	return result
}

// Count returns the number of matching tasks.
func (m *MemoryStore) Count(_ context.Context, filter Filter) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.tasks {
		if filter.Match(t) {
			n++
		}
	}
	return n
}

// Len returns the number of stored tasks.
func (m *MemoryStore) Len(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tasks)
}

// Clear removes all tasks.
func (m *MemoryStore) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]*a2a.Task)
}
