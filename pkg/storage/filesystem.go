package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

const (
	// TasksDir holds one JSON file per task under the storage root.
	TasksDir = "tasks"
	// EventsFile is the JSON Lines audit log under the storage root.
	EventsFile = "events.jsonl"
	// MaxTaskFileSize is the largest task file that will be loaded.
	MaxTaskFileSize = 1 << 20
	// CorruptedPrefix marks files set aside after a failed parse.
	CorruptedPrefix = "corrupted-"
)

// FileRepository stores tasks as <root>/tasks/<id>.json.
type FileRepository struct {
	mu          sync.Mutex
	root        string
	retryConfig retry.Config
	logger      *slog.Logger
}

var _ task.Repository = (*FileRepository)(nil)

// FileOption configures a FileRepository.
type FileOption func(*FileRepository)

// WithLogger sets the logger used for skipped files.
func WithLogger(l *slog.Logger) FileOption {
	return func(r *FileRepository) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewFileRepository creates a repository rooted at root. Directories are
// created on first write.
func NewFileRepository(root string, opts ...FileOption) *FileRepository {
	r := &FileRepository{
		root: root,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the storage root directory.
func (r *FileRepository) Root() string {
	return r.root
}

func (r *FileRepository) tasksDir() string {
	return filepath.Join(r.root, TasksDir)
}

// ResolvePath maps a task id to its file and rejects ids that would escape
// the tasks directory.
func (r *FileRepository) ResolvePath(id string) (string, error) {
	if id == "" {
		return "", task.Invalid("", "id", "id cannot be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") || strings.HasPrefix(id, CorruptedPrefix) {
		return "", task.Invalid(id, "id", "invalid task id")
	}
	baseDir := filepath.Clean(r.tasksDir())
	cleanPath := filepath.Clean(filepath.Join(baseDir, id+".json"))
	if filepath.Dir(cleanPath) != baseDir {
		return "", task.Invalid(id, "id", "invalid task id")
	}
	return cleanPath, nil
}

// Create implements task.Repository.
func (r *FileRepository) Create(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.ResolvePath(t.ID)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return task.Invalid(t.ID, "id", "a task with this id already exists")
	}
	if t.Version == 0 {
		t.Version = 1
	}
	return r.write(path, t)
}

// Get implements task.Repository.
func (r *FileRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	path, err := r.ResolvePath(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, task.NotFound(id)
	}
	return r.read(ctx, path)
}

// Update implements task.Repository. The stored version must equal
// t.Version; on success both move to t.Version+1.
func (r *FileRepository) Update(ctx context.Context, t *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.ResolvePath(t.ID)
	if err != nil {
		return err
	}
	// #nosec G304 -- Path is resolved and validated via ResolvePath
	existing, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return task.NotFound(t.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read task %s: %w", t.ID, err)
	}
	var disk task.Task
	if jsonErr := json.Unmarshal(existing, &disk); jsonErr == nil && disk.Version != t.Version {
		return &task.ConflictError{TaskID: t.ID, Expected: t.Version, Actual: disk.Version}
	}

	t.Version++
	if err := r.write(path, t); err != nil {
		t.Version--
		return err
	}
	return nil
}

// Delete implements task.Repository.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.ResolvePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return task.NotFound(id)
		}
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// List implements task.Repository. Unreadable, oversized and corrupted files
// are skipped with a warning.
func (r *FileRepository) List(ctx context.Context, opts task.ListOptions) ([]*task.Task, error) {
	entries, err := os.ReadDir(r.tasksDir())
	if errors.Is(err, os.ErrNotExist) {
		return []*task.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}

	tasks := make([]*task.Task, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasPrefix(name, CorruptedPrefix) {
			r.logger.Debug("skipping corrupted task file", "file", name)
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > MaxTaskFileSize {
			r.logger.Warn("skipping oversized task file", "file", name, "size", info.Size())
			continue
		}
		t, err := r.read(ctx, filepath.Join(r.tasksDir(), name))
		if err != nil {
			r.logger.Warn("skipping unreadable task file", "file", name, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return opts.Apply(tasks), nil
}

func (r *FileRepository) read(ctx context.Context, path string) (*task.Task, error) {
	retryer := retry.New[*task.Task](r.retryConfig)
	return retryer.Do(ctx, func(ctx context.Context) (*task.Task, error) {
		// #nosec G304 -- Path is resolved and validated via ResolvePath or ReadDir
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read task file: %w", err)
		}
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task %s: %w", filepath.Base(path), err)
		}
		if t.ID == "" {
			t.ID = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		if len(t.StateHistory) == 0 {
			t.StateHistory = []task.StateChange{{To: t.Status, ChangedBy: "system", ChangedAt: t.CreatedAt, Reason: "imported"}}
		}
		return &t, nil
	})
}

// write replaces path atomically through a temp file in the same directory.
func (r *FileRepository) write(path string, t *task.Task) (err error) {
	dir := filepath.Dir(path)
	// G301: Use 0700 for directories
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create tasks directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", t.ID, err)
	}
	if len(data) > MaxTaskFileSize {
		return task.Invalid(t.ID, "size", "task exceeds 1 MiB when serialized")
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write task %s: %w", t.ID, err)
	}
	if err = tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to chmod task %s: %w", t.ID, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close task %s: %w", t.ID, err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace task %s: %w", t.ID, err)
	}
	return nil
}
