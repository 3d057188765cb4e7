package transition

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// Events understood by the task machine. Each target status has exactly one
// event; archive resolves to the archived variant of the current state.
const (
	EventFocus    = "focus"
	EventStart    = "start"
	EventBlock    = "block"
	EventDim      = "dim"
	EventComplete = "complete"
	EventArchive  = "archive"
)

const rulesGuard = "businessRules"

// State ids for statekit. They must equal the task.Status values.
const (
	stateTodo            = "todo"
	stateFocused         = "focused"
	stateInProgress      = "in-progress"
	stateBlocked         = "blocked"
	stateDimmed          = "dimmed"
	stateDone            = "done"
	stateArchivedDone    = "archived_done"
	stateArchivedBlocked = "archived_blocked"
	stateArchivedDimmed  = "archived_dimmed"
)

func init() {
	stateMap := map[string]task.Status{
		stateTodo:            task.StatusTodo,
		stateFocused:         task.StatusFocused,
		stateInProgress:      task.StatusInProgress,
		stateBlocked:         task.StatusBlocked,
		stateDimmed:          task.StatusDimmed,
		stateDone:            task.StatusDone,
		stateArchivedDone:    task.StatusArchivedDone,
		stateArchivedBlocked: task.StatusArchivedBlocked,
		stateArchivedDimmed:  task.StatusArchivedDimmed,
	}
	for id, status := range stateMap {
		if id != string(status) {
			panic(fmt.Sprintf("machine state %q does not match task status %q", id, status))
		}
	}
}

// EventFor returns the event that moves a task from one status to another.
func EventFor(from, to task.Status) (string, bool) {
	if !from.CanTransitionTo(to) {
		return "", false
	}
	switch to {
	case task.StatusFocused:
		return EventFocus, true
	case task.StatusInProgress:
		return EventStart, true
	case task.StatusBlocked:
		return EventBlock, true
	case task.StatusDimmed:
		return EventDim, true
	case task.StatusDone:
		return EventComplete, true
	case task.StatusArchivedDone, task.StatusArchivedBlocked, task.StatusArchivedDimmed:
		return EventArchive, true
	default:
		return "", false
	}
}

type machineContext struct {
	TaskID string
	Check  func(event string) bool
}

// machine wraps a statekit interpreter positioned at a task's current status.
type machine struct {
	interpreter *statekit.Interpreter[machineContext]
}

func newMachine(initial task.Status, taskID string, check func(event string) bool) (*machine, error) {
	if check == nil {
		check = func(string) bool { return true }
	}

	builder := statekit.NewMachine[machineContext]("task-lifecycle").
		WithInitial(statekit.StateID(initial)).
		WithContext(machineContext{TaskID: taskID, Check: check}).
		WithGuard(rulesGuard, func(ctx machineContext, e statekit.Event) bool {
			return ctx.Check(string(e.Type))
		})

	builder.State(stateTodo).
		On(EventFocus).Target(stateFocused).Guard(rulesGuard).
		On(EventStart).Target(stateInProgress).Guard(rulesGuard).
		On(EventBlock).Target(stateBlocked).Guard(rulesGuard).
		On(EventDim).Target(stateDimmed).Guard(rulesGuard).
		On(EventComplete).Target(stateDone).Guard(rulesGuard).
		Done()

	builder.State(stateFocused).
		On(EventStart).Target(stateInProgress).Guard(rulesGuard).
		On(EventBlock).Target(stateBlocked).Guard(rulesGuard).
		On(EventDim).Target(stateDimmed).Guard(rulesGuard).
		On(EventComplete).Target(stateDone).Guard(rulesGuard).
		Done()

	builder.State(stateInProgress).
		On(EventFocus).Target(stateFocused).Guard(rulesGuard).
		On(EventBlock).Target(stateBlocked).Guard(rulesGuard).
		On(EventDim).Target(stateDimmed).Guard(rulesGuard).
		On(EventComplete).Target(stateDone).Guard(rulesGuard).
		Done()

	builder.State(stateBlocked).
		On(EventFocus).Target(stateFocused).Guard(rulesGuard).
		On(EventStart).Target(stateInProgress).Guard(rulesGuard).
		On(EventDim).Target(stateDimmed).Guard(rulesGuard).
		On(EventArchive).Target(stateArchivedBlocked).Guard(rulesGuard).
		Done()

	builder.State(stateDimmed).
		On(EventFocus).Target(stateFocused).Guard(rulesGuard).
		On(EventStart).Target(stateInProgress).Guard(rulesGuard).
		On(EventBlock).Target(stateBlocked).Guard(rulesGuard).
		On(EventArchive).Target(stateArchivedDimmed).Guard(rulesGuard).
		Done()

	builder.State(stateDone).
		On(EventArchive).Target(stateArchivedDone).Guard(rulesGuard).
		Done()

	// Archived states are terminal.
	builder.State(stateArchivedDone).Done()
	builder.State(stateArchivedBlocked).Done()
	builder.State(stateArchivedDimmed).Done()

	m, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build task state machine: %w", err)
	}
	interpreter := statekit.NewInterpreter(m)
	interpreter.Start()
	return &machine{interpreter: interpreter}, nil
}

// send fires event and reports whether the state changed.
func (m *machine) send(event string) bool {
	before := m.current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	return m.current() != before
}

func (m *machine) current() task.Status {
	return task.Status(m.interpreter.State().Value)
}
