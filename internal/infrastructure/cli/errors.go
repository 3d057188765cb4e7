package cli

import (
	"errors"
	"fmt"
	"io"

	domainai "github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitBusiness = 1
	ExitInternal = 2
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: ExitBusiness,
	}
}

// MapError converts domain errors into CLIErrors with actionable hints.
// Anything unrecognized becomes an internal error with exit code 2.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	switch {
	case errors.Is(err, task.ErrConflict):
		return NewCLIError("task was modified concurrently", "Re-run the command to apply it to the latest version", err)
	case errors.Is(err, task.ErrNotFound):
		return NewCLIError("task not found", "Run 'critical-claude task list --all' to see task ids", err)
	case errors.Is(err, task.ErrFocusConflict):
		return NewCLIError("another task is already focused", "Move the focused task out of focus first", err)
	case errors.Is(err, task.ErrEstimationMissing):
		return NewCLIError("task has no story points", "Run 'critical-claude ai estimate <id> --apply' or 'task edit <id> --points N'", err)
	case errors.Is(err, task.ErrAcceptanceCriteriaUnmet):
		return NewCLIError("acceptance criteria are not verified", "Verify them with 'task edit <id> --verify-criterion N'", err)
	case errors.Is(err, task.ErrDependencyNotSatisfied):
		return NewCLIError("dependencies are not done", "Run 'critical-claude deps analyze' to see what blocks it", err)
	case errors.Is(err, task.ErrCircularDependency):
		return NewCLIError("dependency would create a cycle", "Run 'critical-claude deps analyze' to inspect the graph", err)
	case errors.Is(err, task.ErrInvalidTransition):
		return NewCLIError("transition not allowed", "Run 'critical-claude task view <id>' to see valid next states", err)
	case errors.Is(err, task.ErrValidation):
		return NewCLIError("invalid input", "", err)
	case errors.Is(err, domainai.ErrProvider):
		return NewCLIError("AI provider failed", "Check 'ai.provider' with 'critical-claude config show'", err)
	}
	return &CLIError{Message: "internal error", Err: err, ExitCode: ExitInternal}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.ExitCode
	}
	return ExitInternal
}

// PrintError writes err and its hint. Internal errors hide their cause
// unless verbose is set.
func PrintError(w io.Writer, err error, verbose bool) {
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if cliErr.ExitCode == ExitInternal && !verbose {
		fmt.Fprintf(w, "Error: %s (re-run with --verbose for details)\n", cliErr.Message)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", cliErr.Error())
	if cliErr.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
	}
}
