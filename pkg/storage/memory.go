package storage

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// MemoryRepository is an in-process task store with the same version
// semantics as FileRepository.
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

var _ task.Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]*task.Task)}
}

// Create implements task.Repository.
func (r *MemoryRepository) Create(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.ID == "" {
		return task.Invalid("", "id", "id cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return task.Invalid(t.ID, "id", "a task with this id already exists")
	}
	if t.Version == 0 {
		t.Version = 1
	}
	r.tasks[t.ID] = t.Clone()
	return nil
}

// Get implements task.Repository.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, task.NotFound(id)
	}
	return t.Clone(), nil
}

// Update implements task.Repository.
func (r *MemoryRepository) Update(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tasks[t.ID]
	if !ok {
		return task.NotFound(t.ID)
	}
	if stored.Version != t.Version {
		return &task.ConflictError{TaskID: t.ID, Expected: t.Version, Actual: stored.Version}
	}
	t.Version++
	r.tasks[t.ID] = t.Clone()
	return nil
}

// Delete implements task.Repository.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return task.NotFound(id)
	}
	delete(r.tasks, id)
	return nil
}

// List implements task.Repository.
func (r *MemoryRepository) List(ctx context.Context, opts task.ListOptions) ([]*task.Task, error) {
	r.mu.RLock()
	all := make([]*task.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		all = append(all, t.Clone())
	}
	r.mu.RUnlock()
	return opts.Apply(all), nil
}
