package task

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the task store, validator, analyzer or
// orchestrator matches exactly one of these with errors.Is.
var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the referenced task does not exist.
	ErrNotFound = errors.New("task not found")

	// ErrFocusConflict indicates the assignee already has a focused task.
	ErrFocusConflict = errors.New("focus conflict")

	// ErrEstimationMissing indicates a task must be estimated before it is focused.
	ErrEstimationMissing = errors.New("estimation missing")

	// ErrAcceptanceCriteriaUnmet indicates unverified acceptance criteria.
	ErrAcceptanceCriteriaUnmet = errors.New("acceptance criteria unmet")

	// ErrDependencyNotSatisfied indicates a blocking dependency is not done.
	ErrDependencyNotSatisfied = errors.New("dependency not satisfied")

	// ErrCircularDependency indicates an edge would close a cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrInvalidTransition indicates the transition table forbids the move.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrConflict indicates a write lost an optimistic concurrency race.
	ErrConflict = errors.New("concurrent modification")
)

// RuleError names the task and the rule that rejected an operation.
type RuleError struct {
	Kind   error
	TaskID string
	Rule   string
	Detail string
}

func (e *RuleError) Error() string {
	msg := e.Kind.Error()
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s: task %s", msg, e.TaskID)
	}
	if e.Rule != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Rule)
	}
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	return msg
}

// Unwrap allows errors.Is to match the kind.
func (e *RuleError) Unwrap() error {
	return e.Kind
}

// NewRuleError builds a RuleError.
func NewRuleError(kind error, taskID, rule, detail string) *RuleError {
	return &RuleError{Kind: kind, TaskID: taskID, Rule: rule, Detail: detail}
}

// NotFound returns a not-found error for id.
func NotFound(id string) error {
	return &RuleError{Kind: ErrNotFound, TaskID: id, Rule: "exists"}
}

// Invalid returns a validation error for the named field.
func Invalid(taskID, field, detail string) error {
	return &RuleError{Kind: ErrValidation, TaskID: taskID, Rule: field, Detail: detail}
}

// ConflictError is returned when the stored version differs from the one the
// caller read.
type ConflictError struct {
	TaskID   string
	Expected int
	Actual   int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s was modified concurrently (expected version %d, found %d); reload and retry",
		e.TaskID, e.Expected, e.Actual)
}

// Is allows errors.Is to work with ConflictError.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsBusinessError reports whether err is one of the caller-correctable kinds.
func IsBusinessError(err error) bool {
	for _, kind := range []error{
		ErrValidation, ErrNotFound, ErrFocusConflict, ErrEstimationMissing,
		ErrAcceptanceCriteriaUnmet, ErrDependencyNotSatisfied,
		ErrCircularDependency, ErrInvalidTransition, ErrConflict,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
