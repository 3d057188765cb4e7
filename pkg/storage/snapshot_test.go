package storage_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
	"github.com/felixgeelhaar/critical-claude/pkg/storage"
)

func TestSnapshot_YAMLAndJSON(t *testing.T) {
	a := newTask(t, "a", task.PriorityHigh, 0)
	a.StoryPoints = 5
	a.AddDependency("b", task.DependencyBlockedBy, created)
	b := newTask(t, "b", task.PriorityLow, 0)

	for _, format := range []storage.Format{storage.FormatJSON, storage.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := storage.EncodeSnapshot(&buf, []*task.Task{a, b}, format); err != nil {
				t.Fatal(err)
			}
			got, err := storage.DecodeSnapshot(&buf, format)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].ID != "a" || got[0].StoryPoints != 5 || len(got[0].BlockedBy()) != 1 {
				t.Errorf("decoded = %+v", got)
			}
			if got[0].Status != task.StatusTodo || !got[0].CreatedAt.Equal(a.CreatedAt) {
				t.Errorf("decoded status/time = %s %v", got[0].Status, got[0].CreatedAt)
			}
		})
	}
}

func TestDecodeSnapshot_BareListAndErrors(t *testing.T) {
	got, err := storage.DecodeSnapshot(strings.NewReader(`[{"id":"x","title":"x","status":"todo","priority":"low"}]`), storage.FormatJSON)
	if err != nil || len(got) != 1 {
		t.Errorf("bare list = %v, %v", got, err)
	}
	if _, err := storage.DecodeSnapshot(strings.NewReader(`{`), storage.FormatJSON); !errors.Is(err, task.ErrValidation) {
		t.Errorf("err = %v", err)
	}
	if _, err := storage.ParseFormat("xml"); err == nil {
		t.Error("expected error")
	}
}
