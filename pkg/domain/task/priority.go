package task

import (
	"encoding/json"
	"fmt"
)

// Priority orders tasks for listing and tie-breaks.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityOrder defines the ordering of priorities (higher order = higher priority)
var priorityOrder = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// AllPriorities returns all priorities from highest to lowest.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// IsValid returns true if the priority is known.
func (p Priority) IsValid() bool {
	_, ok := priorityOrder[p]
	return ok
}

func (p Priority) String() string {
	return string(p)
}

// Order returns the numeric order of the priority (higher = more important).
func (p Priority) Order() int {
	return priorityOrder[p]
}

// Compare returns -1 if p < other, 0 if equal, 1 if p > other.
func (p Priority) Compare(other Priority) int {
	a, b := p.Order(), other.Order()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// IsHigherThan returns true if this priority is higher than the other.
func (p Priority) IsHigherThan(other Priority) bool {
	return p.Compare(other) > 0
}

// DefaultPriority returns the priority assigned when none is given.
func DefaultPriority() Priority {
	return PriorityMedium
}

// ParsePriority parses a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return p, nil
}

// MarshalJSON implements json.Marshaler.
func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	// Accept empty string as medium for backward compatibility
	if str == "" {
		*p = PriorityMedium
		return nil
	}
	parsed, err := ParsePriority(str)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
