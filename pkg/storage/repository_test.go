package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
	"github.com/felixgeelhaar/critical-claude/pkg/storage"
)

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTask(t *testing.T, id string, p task.Priority, offset time.Duration) *task.Task {
	t.Helper()
	tk, err := task.New(id, task.NewInput{Title: "task " + id, Priority: p}, "tester", created.Add(offset))
	if err != nil {
		t.Fatalf("task.New: %v", err)
	}
	return tk
}

func repositories(t *testing.T) map[string]task.Repository {
	return map[string]task.Repository{
		"file":   storage.NewFileRepository(t.TempDir()),
		"memory": storage.NewMemoryRepository(),
	}
}

func TestRepository_CRUD(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tk := newTask(t, "t1", task.PriorityHigh, 0)
			tk.Labels = []string{"backend"}
			if err := repo.Create(ctx, tk); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if tk.Version != 1 {
				t.Errorf("version after create = %d", tk.Version)
			}
			if err := repo.Create(ctx, newTask(t, "t1", task.PriorityLow, 0)); !errors.Is(err, task.ErrValidation) {
				t.Errorf("duplicate create err = %v", err)
			}

			got, err := repo.Get(ctx, "t1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Title != tk.Title || got.Priority != task.PriorityHigh || got.Status != task.StatusTodo || len(got.StateHistory) != 1 {
				t.Errorf("round trip = %+v", got)
			}
			if !task.SameLabels(got.Labels, tk.Labels) || !got.CreatedAt.Equal(tk.CreatedAt) {
				t.Errorf("round trip lost fields: %+v", got)
			}

			got.Title = "renamed"
			if err := repo.Update(ctx, got); err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.Version != 2 {
				t.Errorf("version after update = %d", got.Version)
			}

			if err := repo.Delete(ctx, "t1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := repo.Get(ctx, "t1"); !errors.Is(err, task.ErrNotFound) {
				t.Errorf("Get after delete err = %v", err)
			}
			if err := repo.Delete(ctx, "t1"); !errors.Is(err, task.ErrNotFound) {
				t.Errorf("second delete err = %v", err)
			}
			if err := repo.Update(ctx, got); !errors.Is(err, task.ErrNotFound) {
				t.Errorf("update missing err = %v", err)
			}
		})
	}
}

func TestRepository_OptimisticConcurrency(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Create(ctx, newTask(t, "t1", task.PriorityMedium, 0)); err != nil {
				t.Fatal(err)
			}
			first, _ := repo.Get(ctx, "t1")
			second, _ := repo.Get(ctx, "t1")

			first.Title = "first writer"
			if err := repo.Update(ctx, first); err != nil {
				t.Fatalf("first update: %v", err)
			}
			second.Title = "second writer"
			err := repo.Update(ctx, second)
			var conflict *task.ConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if conflict.Expected != 1 || conflict.Actual != 2 {
				t.Errorf("conflict = %+v", conflict)
			}
			got, _ := repo.Get(ctx, "t1")
			if got.Title != "first writer" {
				t.Errorf("losing write was persisted: %q", got.Title)
			}
		})
	}
}

func TestRepository_ListOrdersAndFilters(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = repo.Create(ctx, newTask(t, "low", task.PriorityLow, 0))
			_ = repo.Create(ctx, newTask(t, "crit", task.PriorityCritical, time.Minute))
			_ = repo.Create(ctx, newTask(t, "high", task.PriorityHigh, 2*time.Minute))

			got, err := repo.List(ctx, task.ListOptions{})
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, tk := range got {
				ids = append(ids, tk.ID)
			}
			if strings.Join(ids, ",") != "crit,high,low" {
				t.Errorf("order = %v", ids)
			}

			got, _ = repo.List(ctx, task.ListOptions{Filter: task.Filter{Priorities: []task.Priority{task.PriorityLow}}})
			if len(got) != 1 || got[0].ID != "low" {
				t.Errorf("filtered = %v", got)
			}
		})
	}
}

func TestFileRepository_Layout(t *testing.T) {
	root := t.TempDir()
	repo := storage.NewFileRepository(root)
	ctx := context.Background()
	if err := repo.Create(ctx, newTask(t, "abc", task.PriorityMedium, 0)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, storage.TasksDir, "abc.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("task file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %v", perm)
	}
	dirInfo, _ := os.Stat(filepath.Join(root, storage.TasksDir))
	if perm := dirInfo.Mode().Perm(); perm != 0700 {
		t.Errorf("dir mode = %v", perm)
	}

	entries, _ := os.ReadDir(filepath.Join(root, storage.TasksDir))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileRepository_SkipsBadFiles(t *testing.T) {
	root := t.TempDir()
	repo := storage.NewFileRepository(root)
	ctx := context.Background()
	if err := repo.Create(ctx, newTask(t, "good", task.PriorityMedium, 0)); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(root, storage.TasksDir)
	_ = os.WriteFile(filepath.Join(dir, "corrupted-old.json"), []byte(`{"id":"old","title":"x"}`), 0600)
	_ = os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{not json`), 0600)
	_ = os.WriteFile(filepath.Join(dir, "huge.json"), make([]byte, storage.MaxTaskFileSize+1), 0600)
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0600)

	got, err := repo.List(ctx, task.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "good" {
		t.Errorf("list = %v", got)
	}
}

func TestFileRepository_ResolvePath(t *testing.T) {
	repo := storage.NewFileRepository(t.TempDir())
	for _, id := range []string{"", "../escape", "a/b", ".hidden", "corrupted-x"} {
		if _, err := repo.ResolvePath(id); !errors.Is(err, task.ErrValidation) {
			t.Errorf("ResolvePath(%q) err = %v", id, err)
		}
	}
	if _, err := repo.ResolvePath("3f2a9c"); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
}

func TestFileRepository_EmptyRoot(t *testing.T) {
	repo := storage.NewFileRepository(filepath.Join(t.TempDir(), "missing"))
	got, err := repo.List(context.Background(), task.ListOptions{})
	if err != nil || len(got) != 0 {
		t.Errorf("list = %v, err = %v", got, err)
	}
}
