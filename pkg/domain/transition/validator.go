// Package transition decides whether a task may move to a new status.
//
// The decision is pure: it depends only on the task, the target status, the
// actor context and a snapshot of peer tasks supplied by the caller. Nothing
// is persisted here.
package transition

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// DefaultMinBlockReason is the minimum length of a block reason.
const DefaultMinBlockReason = 10

// Action is a side effect the caller must apply together with the transition.
type Action string

const (
	ActionSetCompletedAt Action = "set_completed_at"
	ActionSetArchivedAt  Action = "set_archived_at"
	ActionRecordBlocker  Action = "record_blocker"
	ActionClearBlocker   Action = "clear_blocker"
)

// Rules are the configurable parts of the business rules.
type Rules struct {
	MinBlockReason int
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() Rules {
	return Rules{MinBlockReason: DefaultMinBlockReason}
}

// Context describes who requests the change and the world around the task.
type Context struct {
	Actor              string
	Reason             string
	ExpectedResolution *time.Time
	// Peers is a snapshot of the other tasks in the store. It is used for the
	// single-focus and dependency rules.
	Peers []*task.Task
}

// Decision is the validator's verdict.
type Decision struct {
	Valid           bool
	From            task.Status
	Target          task.Status
	Reason          string
	RequiredActions []Action
	// Err is set when Valid is false and matches one of the task error kinds.
	Err error
}

// Validator checks transitions against the transition table and the
// business rules.
type Validator struct {
	rules Rules
}

// NewValidator creates a validator. A non-positive MinBlockReason still
// requires a non-empty reason.
func NewValidator(rules Rules) *Validator {
	return &Validator{rules: rules}
}

// Validate decides whether t may move to target.
func (v *Validator) Validate(t *task.Task, target task.Status, c Context) Decision {
	if t == nil {
		return deny("", target, task.Invalid("", "task", "task is required"))
	}
	if !target.IsValid() {
		return deny(t.Status, target, task.Invalid(t.ID, "status", "unknown status "+string(target)))
	}
	if t.Status == target {
		return deny(t.Status, target, task.NewRuleError(task.ErrInvalidTransition, t.ID, "transition-table",
			"task is already "+string(target)))
	}

	event, ok := EventFor(t.Status, target)
	if !ok {
		return deny(t.Status, target, tableError(t, target))
	}

	var violation error
	m, err := newMachine(t.Status, t.ID, func(string) bool {
		violation = v.checkRules(t, target, c)
		return violation == nil
	})
	if err != nil {
		return deny(t.Status, target, err)
	}

	if !m.send(event) {
		if violation != nil {
			return deny(t.Status, target, violation)
		}
		return deny(t.Status, target, tableError(t, target))
	}
	if m.current() != target {
		return deny(t.Status, target, tableError(t, target))
	}

	return Decision{
		Valid:           true,
		From:            t.Status,
		Target:          target,
		RequiredActions: requiredActions(t.Status, target),
	}
}

func (v *Validator) checkRules(t *task.Task, target task.Status, c Context) error {
	switch target {
	case task.StatusFocused:
		if err := checkDependencies(t, c.Peers); err != nil {
			return err
		}
		if err := CheckSingleFocus(t, c.Peers); err != nil {
			return err
		}
		if t.StoryPoints <= 0 {
			return task.NewRuleError(task.ErrEstimationMissing, t.ID, "estimate-before-focus",
				"set story points before focusing the task")
		}
	case task.StatusInProgress:
		return checkDependencies(t, c.Peers)
	case task.StatusBlocked:
		return v.checkBlockReason(t, c)
	case task.StatusDone:
		if open := t.UnverifiedCriteria(); len(open) > 0 {
			return task.NewRuleError(task.ErrAcceptanceCriteriaUnmet, t.ID, "acceptance-criteria",
				fmt.Sprintf("%d unverified: %s", len(open), strings.Join(open, "; ")))
		}
	}
	return nil
}

func (v *Validator) checkBlockReason(t *task.Task, c Context) error {
	minLen := v.rules.MinBlockReason
	if minLen < 1 {
		minLen = 1
	}
	reason := strings.TrimSpace(c.Reason)
	if utf8.RuneCountInString(reason) < minLen {
		return task.NewRuleError(task.ErrValidation, t.ID, "block-reason",
			fmt.Sprintf("a reason of at least %d characters is required to block a task", minLen))
	}
	return nil
}

// checkDependencies requires every blocked_by dependency to be done or
// archived_done. A peer's legacy blocks edge pointing at t counts as well.
func checkDependencies(t *task.Task, peers []*task.Task) error {
	byID := make(map[string]*task.Task, len(peers))
	for _, p := range peers {
		byID[p.ID] = p
	}

	blockers := t.BlockedBy()
	for _, p := range peers {
		if p.ID != t.ID && p.HasDependency(t.ID, task.DependencyBlocks) {
			blockers = append(blockers, p.ID)
		}
	}

	var pending []string
	for _, id := range blockers {
		dep, ok := byID[id]
		switch {
		case !ok:
			pending = append(pending, id+" (missing)")
		case !dep.Status.IsComplete():
			pending = append(pending, fmt.Sprintf("%s (%s)", id, dep.Status))
		}
	}
	if len(pending) > 0 {
		return task.NewRuleError(task.ErrDependencyNotSatisfied, t.ID, "blocked-by",
			"waiting on "+strings.Join(pending, ", "))
	}
	return nil
}

// CheckSingleFocus allows one focused task per assignee. Unassigned tasks
// share a single bucket. t is checked as if it were focused.
func CheckSingleFocus(t *task.Task, peers []*task.Task) error {
	for _, p := range peers {
		if p.ID == t.ID || p.Status != task.StatusFocused {
			continue
		}
		if strings.EqualFold(p.Assignee, t.Assignee) {
			return task.NewRuleError(task.ErrFocusConflict, t.ID, "single-focus",
				fmt.Sprintf("%s is already focused on %s", focusOwner(t.Assignee), p.ID))
		}
	}
	return nil
}

// CheckFocusBatch rejects incoming tasks that would leave an assignee with
// more than one focused task once added to existing. Conflicts among
// existing tasks alone are not reported.
func CheckFocusBatch(existing, incoming []*task.Task) error {
	type group struct {
		ids      []string
		incoming bool
	}
	groups := make(map[string]*group)
	var order []string
	add := func(t *task.Task, isNew bool) {
		if t.Status != task.StatusFocused {
			return
		}
		key := strings.ToLower(strings.TrimSpace(t.Assignee))
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.ids = append(g.ids, t.ID)
		g.incoming = g.incoming || isNew
	}
	for _, t := range existing {
		add(t, false)
	}
	for _, t := range incoming {
		add(t, true)
	}

	for _, key := range order {
		g := groups[key]
		if len(g.ids) < 2 || !g.incoming {
			continue
		}
		return task.NewRuleError(task.ErrFocusConflict, g.ids[len(g.ids)-1], "single-focus",
			fmt.Sprintf("%s would have %d focused tasks: %s", focusOwner(key), len(g.ids), strings.Join(g.ids, ", ")))
	}
	return nil
}

func focusOwner(assignee string) string {
	if assignee == "" {
		return "unassigned"
	}
	return assignee
}

func requiredActions(from, to task.Status) []Action {
	var actions []Action
	if from == task.StatusBlocked {
		actions = append(actions, ActionClearBlocker)
	}
	switch {
	case to == task.StatusBlocked:
		actions = append(actions, ActionRecordBlocker)
	case to == task.StatusDone:
		actions = append(actions, ActionSetCompletedAt)
	case to.IsArchived():
		actions = append(actions, ActionSetArchivedAt)
	}
	return actions
}

// Apply performs a valid decision on t: it appends the history entry, moves
// the status and carries out the required actions.
func Apply(t *task.Task, d Decision, c Context, now time.Time) error {
	if !d.Valid {
		return d.Err
	}
	if t.Status != d.From {
		return task.NewRuleError(task.ErrConflict, t.ID, "stale-decision",
			fmt.Sprintf("decision was made for %s but task is %s", d.From, t.Status))
	}
	t.Transition(d.Target, c.Actor, strings.TrimSpace(c.Reason), now)
	for _, a := range d.RequiredActions {
		switch a {
		case ActionClearBlocker:
			t.Blocker = nil
		case ActionRecordBlocker:
			t.Blocker = &task.Blocker{
				Reason:             strings.TrimSpace(c.Reason),
				ExpectedResolution: c.ExpectedResolution,
				BlockedAt:          now,
			}
		case ActionSetCompletedAt:
			ts := now
			t.CompletedAt = &ts
		case ActionSetArchivedAt:
			ts := now
			t.ArchivedAt = &ts
		}
	}
	return nil
}

func deny(from, target task.Status, err error) Decision {
	return Decision{Valid: false, From: from, Target: target, Reason: err.Error(), Err: err}
}

func tableError(t *task.Task, target task.Status) error {
	detail := fmt.Sprintf("%s -> %s is not permitted", t.Status, target)
	if allowed := t.Status.ValidTransitions(); len(allowed) > 0 {
		names := make([]string, len(allowed))
		for i, s := range allowed {
			names[i] = string(s)
		}
		detail += " (allowed: " + strings.Join(names, ", ") + ")"
	} else {
		detail += " (" + string(t.Status) + " is terminal)"
	}
	return task.NewRuleError(task.ErrInvalidTransition, t.ID, "transition-table", detail)
}
