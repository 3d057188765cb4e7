// Package todosync mirrors the task store into a coding assistant's native
// todo directory and pulls status changes made there back in.
//
// Layout: <todoDir>/<session>/<task-id>.json, one ExternalTask per file.
package todosync

import (
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// External todo statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Source marks files written by this tool so stale ones can be removed
// without touching the assistant's own entries.
const Source = "critical-claude"

// ExternalTask is the assistant's per-task JSON document.
type ExternalTask struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	ActiveForm  string         `json:"activeForm,omitempty"`
	Status      string         `json:"status"`
	Owner       string         `json:"owner,omitempty"`
	Blocks      []string       `json:"blocks"`
	BlockedBy   []string       `json:"blockedBy,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Managed reports whether the file was written by this tool.
func (e *ExternalTask) Managed() bool {
	src, _ := e.Metadata["source"].(string)
	return src == Source
}

// ExternalStatus maps a task status to the external vocabulary. Archived
// statuses report false; they are not mirrored.
func ExternalStatus(s task.Status) (string, bool) {
	switch s {
	case task.StatusTodo, task.StatusBlocked, task.StatusDimmed:
		return StatusPending, true
	case task.StatusFocused, task.StatusInProgress:
		return StatusInProgress, true
	case task.StatusDone:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// ToExternal converts t. blocks lists the ids of tasks that depend on t.
func ToExternal(t *task.Task, blocks []string) ExternalTask {
	status, _ := ExternalStatus(t.Status)
	if blocks == nil {
		blocks = []string{}
	}
	meta := map[string]any{
		"source":   Source,
		"status":   string(t.Status),
		"priority": string(t.Priority),
	}
	if t.StoryPoints > 0 {
		meta["storyPoints"] = t.StoryPoints
	}
	if t.ParentID != "" {
		meta["parentId"] = t.ParentID
	}
	return ExternalTask{
		ID:          t.ID,
		Subject:     t.Title,
		Description: t.Description,
		ActiveForm:  "Working on " + t.Title,
		Status:      status,
		Owner:       t.Assignee,
		Blocks:      blocks,
		BlockedBy:   t.BlockedBy(),
		Metadata:    meta,
	}
}

// pullTarget returns the status an external change asks for, or false when
// the change needs no transition.
func pullTarget(current task.Status, external string) (task.Status, bool) {
	switch external {
	case StatusCompleted:
		if current.IsComplete() {
			return "", false
		}
		return task.StatusDone, true
	case StatusInProgress:
		switch current {
		case task.StatusTodo, task.StatusBlocked, task.StatusDimmed:
			return task.StatusInProgress, true
		}
	}
	return "", false
}
