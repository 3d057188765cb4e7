package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/analytics"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/graph"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/transition"
	"github.com/google/uuid"
)

// TaskService is the single entry point for task operations. It composes the
// task store, the transition validator, the dependency analyzer and the
// estimation service, and notifies observers after every committed change.
type TaskService struct {
	repo       task.Repository
	validator  *transition.Validator
	analyzer   *graph.Analyzer
	estimator  *EstimationService
	dispatcher *events.Dispatcher
	eventStore events.Store
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a TaskService.
type Option func(*TaskService)

// WithDispatcher sets the observer dispatcher.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(s *TaskService) { s.dispatcher = d }
}

// WithEventStore records every emitted event in the audit log.
func WithEventStore(store events.Store) Option {
	return func(s *TaskService) { s.eventStore = store }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *TaskService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

// WithIDGenerator replaces the uuid task id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *TaskService) { s.newID = gen }
}

// NewTaskService wires the orchestrator. The estimator may be nil, in which
// case estimation and expansion always use the heuristic fallback.
func NewTaskService(repo task.Repository, validator *transition.Validator, analyzer *graph.Analyzer, estimator *EstimationService, opts ...Option) *TaskService {
	s := &TaskService{
		repo:      repo,
		validator: validator,
		analyzer:  analyzer,
		estimator: estimator,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = transition.NewValidator(transition.DefaultRules())
	}
	if s.analyzer == nil {
		s.analyzer = graph.NewAnalyzer()
	}
	return s
}

// CreateInput is the input of CreateTask.
type CreateInput struct {
	task.NewInput
	Actor string
	// BlockedBy lists existing tasks the new task waits on.
	BlockedBy []string
}

// CreateTask stores a new todo task.
func (s *TaskService) CreateTask(ctx context.Context, in CreateInput) (*task.Task, error) {
	now := s.now()
	t, err := task.New(s.newID(), in.NewInput, in.Actor, now)
	if err != nil {
		return nil, err
	}
	if t.ParentID != "" {
		if _, err := s.repo.Get(ctx, t.ParentID); err != nil {
			return nil, err
		}
	}
	for _, dep := range in.BlockedBy {
		dep = strings.TrimSpace(dep)
		if dep == "" {
			continue
		}
		if _, err := s.repo.Get(ctx, dep); err != nil {
			return nil, err
		}
		t.AddDependency(dep, task.DependencyBlockedBy, now)
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.emit(ctx, events.TaskCreated, t.ID, in.Actor, map[string]any{
		"title":    t.Title,
		"priority": string(t.Priority),
	})
	return t, nil
}

// GetTask returns a task by id.
func (s *TaskService) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return s.repo.Get(ctx, id)
}

// ListTasks returns the tasks matching opts.
func (s *TaskService) ListTasks(ctx context.Context, opts task.ListOptions) ([]*task.Task, error) {
	return s.repo.List(ctx, opts)
}

// Children returns the subtasks created from a parent.
func (s *TaskService) Children(ctx context.Context, parentID string) ([]*task.Task, error) {
	return s.repo.List(ctx, task.ListOptions{Filter: task.Filter{ParentID: parentID, IncludeArchived: true}})
}

// UpdateTask applies a partial edit. Status is not editable here. Moving a
// focused task to another assignee is subject to the single-focus rule.
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch task.Patch, actor string) (*task.Task, error) {
	if patch.IsEmpty() {
		return nil, task.Invalid(id, "patch", "nothing to update")
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prevAssignee := t.Assignee
	if err := patch.Apply(t, s.now()); err != nil {
		return nil, err
	}
	if t.Status == task.StatusFocused && !strings.EqualFold(prevAssignee, t.Assignee) {
		peers, err := task.All(ctx, s.repo)
		if err != nil {
			return nil, fmt.Errorf("load peers: %w", err)
		}
		if err := transition.CheckSingleFocus(t, peers); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskUpdated, t.ID, actor, map[string]any{"fields": patchFields(patch)})
	return t, nil
}

// ChangeRequest carries the actor context of a state change.
type ChangeRequest struct {
	Actor              string
	Reason             string
	ExpectedResolution *time.Time
}

// ChangeState moves a task to target after the validator approves. A rejected
// change returns the validator's error and leaves the task untouched.
func (s *TaskService) ChangeState(ctx context.Context, id string, target task.Status, req ChangeRequest) (*task.Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Peers are re-read so focus and dependency rules see current state.
	peers, err := task.All(ctx, s.repo)
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}

	c := transition.Context{
		Actor:              req.Actor,
		Reason:             req.Reason,
		ExpectedResolution: req.ExpectedResolution,
		Peers:              peers,
	}
	d := s.validator.Validate(t, target, c)
	if !d.Valid {
		return nil, d.Err
	}
	from := t.Status
	if err := transition.Apply(t, d, c, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskStateChanged, t.ID, req.Actor, map[string]any{
		"from":   string(from),
		"to":     string(target),
		"reason": strings.TrimSpace(req.Reason),
	})
	return t, nil
}

// ArchiveTask moves a done, blocked or dimmed task to its archived state.
// Archiving an already archived task is a no-op.
func (s *TaskService) ArchiveTask(ctx context.Context, id string, req ChangeRequest) (*task.Task, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.IsArchived() {
		return t, nil
	}
	target, ok := t.Status.ArchiveTarget()
	if !ok {
		return nil, task.NewRuleError(task.ErrInvalidTransition, id, "archive",
			fmt.Sprintf("only done, blocked or dimmed tasks can be archived, task is %s", t.Status))
	}
	return s.ChangeState(ctx, id, target, req)
}

// DeleteTask removes a task and strips references to it from other tasks.
// Subtasks of the deleted task lose their parent link.
func (s *TaskService) DeleteTask(ctx context.Context, id, actor string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	all, err := task.All(ctx, s.repo)
	if err != nil {
		return err
	}

	var stripped []string
	now := s.now()
	for _, other := range all {
		if other.ID == id {
			continue
		}
		changed := other.RemoveDependency(id, "")
		if other.ParentID == id {
			other.ParentID = ""
			changed = true
		}
		if !changed {
			continue
		}
		other.Touch(now)
		if err := s.repo.Update(ctx, other); err != nil {
			return fmt.Errorf("strip reference from %s: %w", other.ID, err)
		}
		stripped = append(stripped, other.ID)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.emit(ctx, events.TaskDeleted, id, actor, map[string]any{"stripped_from": stripped})
	return nil
}

// AddDependency records an edge after the analyzer's cycle check. A blocks
// edge is stored as the equivalent blocked_by edge on the other task.
// Adding an existing edge is a no-op.
func (s *TaskService) AddDependency(ctx context.Context, fromID, toID string, typ task.DependencyType, actor string) (*task.Task, error) {
	if !typ.IsValid() {
		return nil, task.Invalid(fromID, "type", "unknown dependency type "+string(typ))
	}
	edge := task.Edge{From: fromID, To: toID, Type: typ}.Canonical()

	owner, err := s.repo.Get(ctx, edge.From)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.Get(ctx, edge.To); err != nil {
		return nil, err
	}
	all, err := task.All(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	if err := s.analyzer.CheckEdge(all, edge); err != nil {
		return nil, err
	}

	now := s.now()
	if !owner.AddDependency(edge.To, edge.Type, now) {
		return owner, nil
	}
	owner.Touch(now)
	if err := s.repo.Update(ctx, owner); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TaskDependencyAdded, owner.ID, actor, map[string]any{
		"depends_on": edge.To,
		"type":       string(edge.Type),
	})
	return owner, nil
}

// RemoveDependency deletes an edge in either of its spellings.
func (s *TaskService) RemoveDependency(ctx context.Context, fromID, toID string, typ task.DependencyType, actor string) (*task.Task, error) {
	if !typ.IsValid() {
		return nil, task.Invalid(fromID, "type", "unknown dependency type "+string(typ))
	}
	edge := task.Edge{From: fromID, To: toID, Type: typ}.Canonical()

	owner, err := s.repo.Get(ctx, edge.From)
	if err != nil {
		return nil, err
	}
	now := s.now()
	removed := false
	if owner.RemoveDependency(edge.To, edge.Type) {
		owner.Touch(now)
		if err := s.repo.Update(ctx, owner); err != nil {
			return nil, err
		}
		removed = true
	}
	// A legacy blocks edge stored on the dependency side.
	if edge.Type == task.DependencyBlockedBy {
		other, err := s.repo.Get(ctx, edge.To)
		if err == nil && other.RemoveDependency(edge.From, task.DependencyBlocks) {
			other.Touch(now)
			if err := s.repo.Update(ctx, other); err != nil {
				return nil, err
			}
			removed = true
		}
	}
	if !removed {
		return nil, task.NewRuleError(task.ErrNotFound, edge.From, "dependency",
			fmt.Sprintf("no %s edge to %s", edge.Type, edge.To))
	}

	s.emit(ctx, events.TaskDependencyRemoved, owner.ID, actor, map[string]any{
		"depends_on": edge.To,
		"type":       string(edge.Type),
	})
	return owner, nil
}

// EstimateTask sizes a task. Provider failures fall back to the heuristic
// estimate. With apply set the estimate is written to the task.
func (s *TaskService) EstimateTask(ctx context.Context, id string, apply bool, actor string) (*task.Task, *Estimate, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	est := s.estimate(ctx, t)
	if !apply {
		return t, est, nil
	}

	now := s.now()
	t.StoryPoints = est.StoryPoints
	t.EstimatedHours = est.EstimatedHours
	t.AIEstimation = est.Metadata(now)
	t.Touch(now)
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, nil, err
	}
	s.emit(ctx, events.TaskUpdated, t.ID, actor, map[string]any{
		"fields":          []string{"storyPoints", "estimatedHours"},
		"estimate_source": est.Source,
	})
	return t, est, nil
}

func (s *TaskService) estimate(ctx context.Context, t *task.Task) *Estimate {
	if s.estimator != nil {
		est, err := s.estimator.Estimate(ctx, t)
		if err == nil {
			return est
		}
		s.logger.Warn("ai estimate failed, using heuristic", "task_id", t.ID, "reason", err.Error())
	}
	return HeuristicEstimate(t.Title, t.Description)
}

// ExpandResult describes the subtasks created by ExpandTask or GenerateTasks.
type ExpandResult struct {
	Parent       *task.Task   `json:"parent,omitempty"`
	Created      []*task.Task `json:"created"`
	DroppedEdges []string     `json:"droppedEdges,omitempty"`
	Breakdown    *Breakdown   `json:"breakdown"`
	Fallback     bool         `json:"fallback"`
}

// ExpandTask breaks a task into subtasks. When the provider fails a single
// heuristic subtask is created instead. Suggested dependency edges that
// would close a cycle are dropped with a warning.
func (s *TaskService) ExpandTask(ctx context.Context, id string, c ExpandConstraints, actor string) (*ExpandResult, error) {
	parent, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent.Status.IsArchived() {
		return nil, task.NewRuleError(task.ErrValidation, id, "expand", "archived tasks cannot be expanded")
	}

	res := &ExpandResult{Parent: parent}
	if s.estimator != nil {
		res.Breakdown, err = s.estimator.Expand(ctx, parent, c)
		if err != nil {
			s.logger.Warn("ai expansion failed, using heuristic subtask", "task_id", id, "reason", err.Error())
		}
	}
	if res.Breakdown == nil {
		res.Breakdown = HeuristicBreakdown(parent)
		res.Fallback = true
	}

	if err := s.createSuggestions(ctx, res, parent, actor); err != nil {
		return nil, err
	}
	return res, nil
}

// GenerateTasks creates tasks for a free-text feature description. Provider
// failures are returned; there is no parent to fall back on.
func (s *TaskService) GenerateTasks(ctx context.Context, text string, c ExpandConstraints, actor string) (*ExpandResult, error) {
	if s.estimator == nil {
		return nil, task.Invalid("", "ai.provider", "AI provider is disabled")
	}
	b, err := s.estimator.GenerateFromText(ctx, text, c)
	if err != nil {
		return nil, err
	}
	res := &ExpandResult{Breakdown: b}
	if err := s.createSuggestions(ctx, res, nil, actor); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *TaskService) createSuggestions(ctx context.Context, res *ExpandResult, parent *task.Task, actor string) error {
	now := s.now()
	// Suggestion index to created task id; rejected suggestions map to "".
	ids := make([]string, len(res.Breakdown.Subtasks))
	for i, sug := range res.Breakdown.Subtasks {
		in := CreateInput{Actor: actor, NewInput: task.NewInput{
			Title:              sug.Title,
			Description:        sug.Description,
			Priority:           sug.Priority,
			StoryPoints:        sug.StoryPoints,
			EstimatedHours:     sug.EstimatedHours,
			Labels:             sug.Labels,
			AcceptanceCriteria: sug.AcceptanceCriteria,
			AIMetadata: &task.AIMetadata{
				Confidence:     0.5,
				StoryPoints:    sug.StoryPoints,
				EstimatedHours: sug.EstimatedHours,
				RiskFactors:    res.Breakdown.RiskFactors,
				Source:         res.Breakdown.Source,
				GeneratedAt:    now,
			},
		}}
		if parent != nil {
			in.ParentID = parent.ID
			if in.Assignee == "" {
				in.Assignee = parent.Assignee
			}
			if res.Breakdown.Source == SourceHeuristic {
				in.AIMetadata.Confidence = 0.3
			}
		}
		child, err := s.CreateTask(ctx, in)
		if err != nil {
			if errors.Is(err, task.ErrValidation) {
				s.logger.Warn("dropping invalid suggestion", "title", sug.Title, "reason", err.Error())
				continue
			}
			return err
		}
		ids[i] = child.ID
		res.Created = append(res.Created, child)
	}

	for i, sug := range res.Breakdown.Subtasks {
		for _, j := range sug.DependsOn {
			if ids[i] == "" || j >= len(ids) || ids[j] == "" {
				continue
			}
			_, err := s.AddDependency(ctx, ids[i], ids[j], task.DependencyBlockedBy, actor)
			switch {
			case err == nil:
			case errors.Is(err, task.ErrCircularDependency):
				edge := fmt.Sprintf("%s blocked_by %s", ids[i], ids[j])
				s.logger.Warn("dropping dependency edge that would close a cycle", "task_id", ids[i], "reason", edge)
				res.DroppedEdges = append(res.DroppedEdges, edge)
			default:
				return err
			}
		}
	}

	// Refresh so callers see the dependencies added after creation.
	for k, c := range res.Created {
		if fresh, err := s.repo.Get(ctx, c.ID); err == nil {
			res.Created[k] = fresh
		}
	}
	return nil
}

// AnalyzeDependencies runs the dependency analyzer over the full task set.
func (s *TaskService) AnalyzeDependencies(ctx context.Context) (graph.Report, error) {
	all, err := task.All(ctx, s.repo)
	if err != nil {
		return graph.Report{}, err
	}
	return s.analyzer.Analyze(all), nil
}

// CriticalPath returns the longest weighted dependency chain.
func (s *TaskService) CriticalPath(ctx context.Context) (graph.CriticalPath, error) {
	all, err := task.All(ctx, s.repo)
	if err != nil {
		return graph.CriticalPath{}, err
	}
	return s.analyzer.CriticalPath(all)
}

// Stats summarizes the backlog.
type Stats struct {
	Total             int                   `json:"total"`
	Active            int                   `json:"active"`
	Archived          int                   `json:"archived"`
	ByStatus          map[task.Status]int   `json:"byStatus"`
	ByPriority        map[task.Priority]int `json:"byPriority"`
	TotalPoints       int                   `json:"totalPoints"`
	DonePoints        int                   `json:"donePoints"`
	Unestimated       int                   `json:"unestimated"`
	CompletionRate    float64               `json:"completionRate"`
	FocusedByAssignee map[string]string     `json:"focusedByAssignee"`
	Velocity          analytics.Forecast    `json:"velocity"`
}

// Stats computes backlog statistics over every stored task.
func (s *TaskService) Stats(ctx context.Context) (*Stats, error) {
	all, err := task.All(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	st := &Stats{
		ByStatus:          make(map[task.Status]int),
		ByPriority:        make(map[task.Priority]int),
		FocusedByAssignee: make(map[string]string),
	}
	complete, remaining := 0, 0
	var completions []analytics.Completion
	for _, t := range all {
		st.Total++
		st.ByStatus[t.Status]++
		st.ByPriority[t.Priority]++
		st.TotalPoints += t.StoryPoints
		if t.Status.IsArchived() {
			st.Archived++
		} else {
			st.Active++
		}
		if t.Status.IsComplete() {
			complete++
			st.DonePoints += t.StoryPoints
			if t.CompletedAt != nil {
				completions = append(completions, analytics.Completion{At: *t.CompletedAt, Points: t.StoryPoints})
			}
		} else if !t.Status.IsArchived() {
			remaining++
		}
		if t.StoryPoints == 0 && t.EstimatedHours == 0 && !t.Status.IsArchived() && !t.Status.IsComplete() {
			st.Unestimated++
		}
		if t.Status == task.StatusFocused {
			owner := t.Assignee
			if owner == "" {
				owner = "unassigned"
			}
			st.FocusedByAssignee[owner] = t.ID
		}
	}
	if st.Total > 0 {
		st.CompletionRate = float64(complete) / float64(st.Total)
	}
	st.Velocity = analytics.NewForecast(remaining, completions, s.now())
	return st, nil
}

// Snapshot returns every stored task, archived included.
func (s *TaskService) Snapshot(ctx context.Context) ([]*task.Task, error) {
	all, err := task.All(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	return task.ListOptions{Filter: task.Filter{IncludeArchived: true}}.Apply(all), nil
}

// ImportResult lists what Import did.
type ImportResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped,omitempty"`
}

// Import stores externally supplied tasks. Ids that already exist are
// skipped. The whole batch is rejected before any write if a task is invalid
// the combined dependency graph would contain a cycle, or an assignee would
// end up with more than one focused task.
func (s *TaskService) Import(ctx context.Context, tasks []*task.Task, actor string) (*ImportResult, error) {
	existing, err := task.All(ctx, s.repo)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.ID] = true
	}

	res := &ImportResult{}
	now := s.now()
	var fresh []*task.Task
	seen := make(map[string]bool)
	for _, in := range tasks {
		t := in.Clone()
		if t.ID == "" {
			t.ID = s.newID()
		}
		if known[t.ID] || seen[t.ID] {
			res.Skipped = append(res.Skipped, t.ID)
			continue
		}
		seen[t.ID] = true
		if t.Status == "" {
			t.Status = task.StatusTodo
		}
		if t.Priority == "" {
			t.Priority = task.DefaultPriority()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		if len(t.StateHistory) == 0 {
			t.StateHistory = []task.StateChange{{To: t.Status, ChangedBy: "import", ChangedAt: t.CreatedAt, Reason: "imported"}}
		}
		t.Version = 0
		if err := t.Validate(); err != nil {
			return nil, err
		}
		fresh = append(fresh, t)
	}

	if err := transition.CheckFocusBatch(existing, fresh); err != nil {
		return nil, err
	}
	if cycle := s.analyzer.DetectCycles(append(existing, fresh...)); cycle != nil {
		return nil, task.NewRuleError(task.ErrCircularDependency, cycle[0], "acyclic",
			"import would create cycle "+strings.Join(cycle, " -> "))
	}
	for _, t := range fresh {
		if err := s.repo.Create(ctx, t); err != nil {
			return res, fmt.Errorf("import %s: %w", t.ID, err)
		}
		res.Created = append(res.Created, t.ID)
	}

	s.emit(ctx, events.TasksImported, "", actor, map[string]any{
		"created": len(res.Created),
		"skipped": len(res.Skipped),
	})
	return res, nil
}

// History returns a task's state history and its audit events.
func (s *TaskService) History(ctx context.Context, id string) ([]task.StateChange, []*events.Event, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.eventStore == nil {
		return t.StateHistory, nil, nil
	}
	evs, err := s.eventStore.LoadByTask(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}
	return t.StateHistory, evs, nil
}

// emit records and dispatches an event for a committed change. Failures are
// logged; the change itself has already been persisted.
func (s *TaskService) emit(ctx context.Context, eventType, taskID, actor string, metadata map[string]any) {
	e := events.New(eventType, taskID, actor, s.now(), metadata)
	if s.eventStore != nil {
		if err := s.eventStore.Append(ctx, e); err != nil {
			s.logger.Warn("failed to append event", "type", eventType, "task_id", taskID, "error", err)
		}
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Dispatch(ctx, e)
	}
}

func patchFields(p task.Patch) []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.Priority != nil, "priority")
	add(p.StoryPoints != nil, "storyPoints")
	add(p.EstimatedHours != nil, "estimatedHours")
	add(p.ActualHours != nil, "actualHours")
	add(p.Assignee != nil, "assignee")
	add(p.Draft != nil, "draft")
	add(p.Labels != nil || len(p.AddLabels) > 0 || len(p.RemoveLabels) > 0, "labels")
	add(len(p.AddCriteria) > 0 || len(p.VerifyCriteria) > 0, "acceptanceCriteria")
	return fields
}
