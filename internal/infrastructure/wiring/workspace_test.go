package wiring

import (
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/critical-claude/pkg/storage"
)

func TestNewWorkspace(t *testing.T) {
	dir := t.TempDir()
	ws := NewWorkspace(dir, nil)
	if ws.Repo == nil || ws.Events == nil {
		t.Fatal("expected repository and event store")
	}
	if ws.Repo.Root() != dir {
		t.Errorf("Root() = %q, want %q", ws.Repo.Root(), dir)
	}
	if want := filepath.Join(dir, storage.EventsFile); ws.Events.Path() != want {
		t.Errorf("events path = %q, want %q", ws.Events.Path(), want)
	}
}
