package wiring

import (
	"log/slog"
	"path/filepath"

	"github.com/felixgeelhaar/critical-claude/pkg/storage"
)

// Workspace bundles the on-disk stores under one storage directory.
type Workspace struct {
	Dir    string
	Repo   *storage.FileRepository
	Events *storage.FileEventStore
}

// NewWorkspace opens the task repository and event log under dir. Nothing is
// created until the first write.
func NewWorkspace(dir string, logger *slog.Logger) *Workspace {
	return &Workspace{
		Dir:    dir,
		Repo:   storage.NewFileRepository(dir, storage.WithLogger(logger)),
		Events: storage.NewFileEventStore(filepath.Join(dir, storage.EventsFile)),
	}
}
