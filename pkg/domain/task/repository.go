package task

import "context"

// Repository is the Task Store port.
type Repository interface {
	// Create persists a new task. It fails with ErrValidation if the id is taken.
	Create(ctx context.Context, t *Task) error
	// Get returns a copy of the task or a NotFound error.
	Get(ctx context.Context, id string) (*Task, error)
	// Update replaces the stored task. The task's Version must match the
	// stored version; on success both are incremented.
	Update(ctx context.Context, t *Task) error
	// Delete removes the task permanently.
	Delete(ctx context.Context, id string) error
	// List returns copies of the matching tasks.
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
}

// All returns every stored task, archived included.
func All(ctx context.Context, repo Repository) ([]*Task, error) {
	return repo.List(ctx, ListOptions{Filter: Filter{IncludeArchived: true}})
}
