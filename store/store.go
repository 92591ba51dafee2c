// Package store holds tasks in memory for the lifetime of the process.
//
// A [TaskStore] exclusively owns its tasks. Every read returns a deep copy and
// every write stores one, so callers never alias stored state. Read-modify-write
// sequences go through [TaskStore.Mutate], which runs under the store lock.
package store

import (
	"context"
	"errors"

	"github.com/neocode24/dify-a2a-gateway/a2a"
)

var (
	// ErrTaskExists indicates a task with the same id is already stored.
	ErrTaskExists = errors.New("store: task already exists")

	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = errors.New("store: task not found")
)

// Filter narrows List and Count. Zero fields match everything.
type Filter struct {
	ContextID string
	Status    a2a.TaskStatus
}

// Match reports whether the task satisfies the filter.
func (f Filter) Match(t *a2a.Task) bool {
	if f.ContextID != "" && t.ContextID != f.ContextID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	return true
}

// MutateFunc modifies a task in place. Returning an error aborts the write.
// It runs under the store lock and must not block.
type MutateFunc func(t *a2a.Task) error

// TaskStore defines the interface for task storage backends.
// Implementations must be thread-safe.
type TaskStore interface {
	// Create stores a new task. Returns ErrTaskExists on a duplicate id.
	Create(ctx context.Context, task *a2a.Task) error

	// Get retrieves a task by id. A miss is not an error.
	Get(ctx context.Context, id string) (*a2a.Task, bool)

	// Update replaces a stored task and refreshes its updatedAt.
	Update(ctx context.Context, task *a2a.Task) (*a2a.Task, error)

	// Mutate atomically applies fn to the stored task.
	Mutate(ctx context.Context, id string, fn MutateFunc) (*a2a.Task, error)

	// Delete removes a task and reports whether it existed.
	Delete(ctx context.Context, id string) bool

	// List returns matching tasks, newest first, after offset and limit.
	List(ctx context.Context, filter Filter, limit, offset int) []*a2a.Task

	// Count returns the number of matching tasks.
	Count(ctx context.Context, filter Filter) int

	// Len returns the number of stored tasks.
	Len(ctx context.Context) int

	// Clear removes all tasks.
	Clear(ctx context.Context)
}
