// Package events defines the task change notifications the orchestrator
// emits and the dispatcher observers subscribe through.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Event types emitted after successful mutations.
const (
	TaskCreated           = "task.created"
	TaskUpdated           = "task.updated"
	TaskStateChanged      = "task.state_changed"
	TaskDeleted           = "task.deleted"
	TaskDependencyAdded   = "task.dependency_added"
	TaskDependencyRemoved = "task.dependency_removed"
	TasksImported         = "tasks.imported"
)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Event is a single task change notification. Events are appended to the
// audit log with a hash chain linking each entry to its predecessor.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	TaskID    string         `json:"task_id,omitempty"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	Hash      string         `json:"hash,omitempty"`
}

// New creates an event stamped with now. The id is assigned by the store.
func New(eventType, taskID, actor string, now time.Time, metadata map[string]any) *Event {
	if actor == "" {
		actor = "system"
	}
	return &Event{
		Type:      eventType,
		TaskID:    taskID,
		Actor:     actor,
		Timestamp: now,
		Metadata:  metadata,
	}
}

// CalculateHash generates a deterministic SHA256 hash of the event.
func (e *Event) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.ID))
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.Type))
	h.Write([]byte(e.TaskID))
	h.Write([]byte(e.Actor))
	h.Write([]byte(canonicalJSON(e.Metadata)))
	return hex.EncodeToString(h.Sum(nil))
}

// String returns a metadata value as a string, or "".
func (e *Event) String(key string) string {
	if v, ok := e.Metadata[key].(string); ok {
		return v
	}
	return ""
}

func canonicalJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(m[k])
		out = append(out, keyJSON...)
		out = append(out, ':')
		out = append(out, valJSON...)
	}
	return string(append(out, '}'))
}
