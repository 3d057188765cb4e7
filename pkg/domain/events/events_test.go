package events_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
)

func TestNew_DefaultsActor(t *testing.T) {
	e := events.New(events.TaskCreated, "t1", "", time.Now(), nil)
	if e.Actor != "system" {
		t.Errorf("actor = %q", e.Actor)
	}
	if e.ID != "" {
		t.Errorf("id should be assigned by the store, got %q", e.ID)
	}
}

func TestCalculateHash(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := events.New(events.TaskStateChanged, "t1", "alice", ts, map[string]any{"from": "todo", "to": "done"})
	a.ID = "e1"
	b := events.New(events.TaskStateChanged, "t1", "alice", ts, map[string]any{"to": "done", "from": "todo"})
	b.ID = "e1"

	if a.CalculateHash() != b.CalculateHash() {
		t.Fatal("hash must not depend on metadata insertion order")
	}
	b.PrevHash = "abc"
	if a.CalculateHash() == b.CalculateHash() {
		t.Fatal("hash must cover the previous hash")
	}
	if got := a.String("to"); got != "done" {
		t.Errorf("String(to) = %q", got)
	}
	if got := a.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
}
