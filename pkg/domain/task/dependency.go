package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// DependencyType classifies an edge between two tasks.
type DependencyType string

const (
	// DependencyBlockedBy means the owning task waits for the referenced task.
	DependencyBlockedBy DependencyType = "blocked_by"
	// DependencyBlocks means the owning task holds up the referenced task.
	// It is accepted on input and normalized to blocked_by on the other side.
	DependencyBlocks DependencyType = "blocks"
	// DependencyRelated is informational and never constrains transitions.
	DependencyRelated DependencyType = "related"
)

// IsValid returns true if the type is known.
func (d DependencyType) IsValid() bool {
	switch d {
	case DependencyBlockedBy, DependencyBlocks, DependencyRelated:
		return true
	default:
		return false
	}
}

func (d DependencyType) String() string {
	return string(d)
}

// ParseDependencyType parses a dependency type, accepting "blocked-by".
func ParseDependencyType(s string) (DependencyType, error) {
	if s == "blocked-by" {
		return DependencyBlockedBy, nil
	}
	d := DependencyType(s)
	if !d.IsValid() {
		return "", fmt.Errorf("%w: invalid dependency type %q", ErrValidation, s)
	}
	return d, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DependencyType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseDependencyType(str)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Dependency is an edge owned by the task whose Dependencies list holds it.
type Dependency struct {
	TaskID    string         `json:"taskId" yaml:"taskId"`
	Type      DependencyType `json:"type" yaml:"type"`
	CreatedAt time.Time      `json:"createdAt" yaml:"createdAt"`
}

// Edge is a dependency with both endpoints spelled out.
type Edge struct {
	From      string
	To        string
	Type      DependencyType
	CreatedAt time.Time
}

// Canonical rewrites a blocks edge into the equivalent blocked_by edge
// owned by the other task.
func (e Edge) Canonical() Edge {
	if e.Type == DependencyBlocks {
		return Edge{From: e.To, To: e.From, Type: DependencyBlockedBy, CreatedAt: e.CreatedAt}
	}
	return e
}
