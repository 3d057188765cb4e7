package task

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo            Status = "todo"
	StatusFocused         Status = "focused"
	StatusInProgress      Status = "in-progress"
	StatusBlocked         Status = "blocked"
	StatusDimmed          Status = "dimmed"
	StatusDone            Status = "done"
	StatusArchivedDone    Status = "archived_done"
	StatusArchivedBlocked Status = "archived_blocked"
	StatusArchivedDimmed  Status = "archived_dimmed"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusTodo,
		StatusFocused,
		StatusInProgress,
		StatusBlocked,
		StatusDimmed,
		StatusDone,
		StatusArchivedDone,
		StatusArchivedBlocked,
		StatusArchivedDimmed,
	}
}

// IsValid returns true if the status is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusFocused, StatusInProgress, StatusBlocked, StatusDimmed,
		StatusDone, StatusArchivedDone, StatusArchivedBlocked, StatusArchivedDimmed:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the transition table permits moving from s
// to target. It is total over every (Status, Status) pair; business rules are
// checked separately by the transition validator.
func (s Status) CanTransitionTo(target Status) bool {
	if !s.IsValid() || !target.IsValid() || s == target {
		return false
	}
	switch s {
	case StatusTodo, StatusFocused, StatusInProgress:
		switch target {
		case StatusFocused, StatusInProgress, StatusBlocked, StatusDimmed, StatusDone:
			return true
		}
		return false
	case StatusBlocked:
		switch target {
		case StatusFocused, StatusInProgress, StatusDimmed, StatusArchivedBlocked:
			return true
		}
		return false
	case StatusDimmed:
		switch target {
		case StatusFocused, StatusInProgress, StatusBlocked, StatusArchivedDimmed:
			return true
		}
		return false
	case StatusDone:
		return target == StatusArchivedDone
	default:
		// archived states are terminal
		return false
	}
}

// ValidTransitions returns the statuses reachable from s in one step.
func (s Status) ValidTransitions() []Status {
	var targets []Status
	for _, t := range AllStatuses() {
		if s.CanTransitionTo(t) {
			targets = append(targets, t)
		}
	}
	return targets
}

// IsArchived returns true for the three archived variants.
func (s Status) IsArchived() bool {
	return s == StatusArchivedDone || s == StatusArchivedBlocked || s == StatusArchivedDimmed
}

// IsTerminal returns true if no transition leaves the status.
func (s Status) IsTerminal() bool {
	return s.IsArchived()
}

// IsComplete returns true if the work the task describes is finished.
func (s Status) IsComplete() bool {
	return s == StatusDone || s == StatusArchivedDone
}

// IsActive returns true while someone is working on the task.
func (s Status) IsActive() bool {
	return s == StatusFocused || s == StatusInProgress
}

// ArchiveTarget returns the archived status matching s, if s can be archived.
func (s Status) ArchiveTarget() (Status, bool) {
	switch s {
	case StatusDone:
		return StatusArchivedDone, true
	case StatusBlocked:
		return StatusArchivedBlocked, true
	case StatusDimmed:
		return StatusArchivedDimmed, true
	default:
		return "", false
	}
}

// DisplayName returns a human-readable name for the status.
func (s Status) DisplayName() string {
	switch s {
	case StatusTodo:
		return "To Do"
	case StatusFocused:
		return "Focused"
	case StatusInProgress:
		return "In Progress"
	case StatusBlocked:
		return "Blocked"
	case StatusDimmed:
		return "Dimmed"
	case StatusDone:
		return "Done"
	case StatusArchivedDone:
		return "Archived (Done)"
	case StatusArchivedBlocked:
		return "Archived (Blocked)"
	case StatusArchivedDimmed:
		return "Archived (Dimmed)"
	default:
		return string(s)
	}
}

// ParseStatus parses a string into a Status. "in_progress" is accepted as an
// alias of "in-progress" for files written by older versions.
func ParseStatus(s string) (Status, error) {
	if s == "in_progress" {
		return StatusInProgress, nil
	}
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: invalid task status %q", ErrValidation, s)
	}
	return status, nil
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == "" {
		*s = StatusTodo
		return nil
	}
	status, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = status
	return nil
}
