package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/critical-claude/pkg/application"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/graph"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

type CreateTaskArgs struct {
	Title              string   `json:"title" jsonschema:"description=Task title (at most 500 characters)"`
	Description        string   `json:"description,omitempty" jsonschema:"description=Longer description"`
	Priority           string   `json:"priority,omitempty" jsonschema:"description=critical, high, medium or low (default medium)"`
	StoryPoints        FlexInt  `json:"story_points,omitempty" jsonschema:"description=Story points from 1, 2, 3, 5, 8, 13, 21"`
	Labels             []string `json:"labels,omitempty" jsonschema:"description=Up to 10 labels"`
	Assignee           string   `json:"assignee,omitempty" jsonschema:"description=Person or agent owning the task"`
	ParentID           string   `json:"parent_id,omitempty" jsonschema:"description=Parent task id"`
	BlockedBy          []string `json:"blocked_by,omitempty" jsonschema:"description=Ids of tasks this task waits on"`
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty" jsonschema:"description=Criteria that must be verified before done"`
	Actor              string   `json:"actor,omitempty" jsonschema:"description=Who creates the task (defaults to ai-agent)"`
}

type TaskIDArgs struct {
	TaskID string `json:"task_id" jsonschema:"description=The task id"`
}

type ListTasksArgs struct {
	Status          string   `json:"status,omitempty" jsonschema:"description=Comma-separated statuses to include"`
	Priority        string   `json:"priority,omitempty" jsonschema:"description=Comma-separated priorities to include"`
	Assignee        string   `json:"assignee,omitempty" jsonschema:"description=Only tasks owned by this assignee"`
	Label           string   `json:"label,omitempty" jsonschema:"description=Only tasks carrying this label"`
	Search          string   `json:"search,omitempty" jsonschema:"description=Case-insensitive text in title, description, labels or assignee"`
	IncludeArchived FlexBool `json:"include_archived,omitempty" jsonschema:"description=Include archived tasks"`
	Sort            string   `json:"sort,omitempty" jsonschema:"description=priority, createdAt, updatedAt, title, status or storyPoints"`
	Limit           FlexInt  `json:"limit,omitempty" jsonschema:"description=Maximum number of tasks returned"`
}

type UpdateTaskArgs struct {
	TaskID         string   `json:"task_id" jsonschema:"description=The task id"`
	Title          *string  `json:"title,omitempty" jsonschema:"description=New title"`
	Description    *string  `json:"description,omitempty" jsonschema:"description=New description"`
	Priority       string   `json:"priority,omitempty" jsonschema:"description=New priority"`
	StoryPoints    *FlexInt `json:"story_points,omitempty" jsonschema:"description=New story points"`
	Assignee       *string  `json:"assignee,omitempty" jsonschema:"description=New assignee"`
	AddLabels      []string `json:"add_labels,omitempty" jsonschema:"description=Labels to add"`
	RemoveLabels   []string `json:"remove_labels,omitempty" jsonschema:"description=Labels to remove"`
	AddCriteria    []string `json:"add_criteria,omitempty" jsonschema:"description=Acceptance criteria to add"`
	VerifyCriteria []int    `json:"verify_criteria,omitempty" jsonschema:"description=1-based positions of criteria to mark verified"`
	Actor          string   `json:"actor,omitempty" jsonschema:"description=Who edits the task"`
}

type ChangeStateArgs struct {
	TaskID string `json:"task_id" jsonschema:"description=The task id"`
	Status string `json:"status" jsonschema:"description=Target state: todo, focused, in-progress, blocked, dimmed or done"`
	Reason string `json:"reason,omitempty" jsonschema:"description=Why; required (10+ characters) when blocking"`
	Actor  string `json:"actor,omitempty" jsonschema:"description=Who changes the state"`
}

type DeleteTaskArgs struct {
	TaskID string `json:"task_id" jsonschema:"description=The task id"`
	Actor  string `json:"actor,omitempty" jsonschema:"description=Who deletes the task"`
}

type DependencyArgs struct {
	From  string `json:"from" jsonschema:"description=The task that has the dependency"`
	To    string `json:"to" jsonschema:"description=The task it depends on or relates to"`
	Type  string `json:"type,omitempty" jsonschema:"description=blocked_by (default), blocks or related"`
	Actor string `json:"actor,omitempty" jsonschema:"description=Who changes the dependency"`
}

type EstimateTaskArgs struct {
	TaskID string   `json:"task_id" jsonschema:"description=The task id"`
	Apply  FlexBool `json:"apply,omitempty" jsonschema:"description=Store the estimate on the task"`
	Actor  string   `json:"actor,omitempty" jsonschema:"description=Who requests the estimate"`
}

type ExpandTaskArgs struct {
	TaskID   string  `json:"task_id" jsonschema:"description=The task to break down"`
	MaxTasks FlexInt `json:"max_tasks,omitempty" jsonschema:"description=Maximum subtasks (default 8, at most 20)"`
	Context  string  `json:"context,omitempty" jsonschema:"description=Extra context such as the tech stack"`
	Actor    string  `json:"actor,omitempty" jsonschema:"description=Who requests the breakdown"`
}

type GenerateTasksArgs struct {
	Text     string  `json:"text" jsonschema:"description=Feature description to turn into tasks"`
	MaxTasks FlexInt `json:"max_tasks,omitempty" jsonschema:"description=Maximum tasks (default 8, at most 20)"`
	Context  string  `json:"context,omitempty" jsonschema:"description=Extra context such as the tech stack"`
	Actor    string  `json:"actor,omitempty" jsonschema:"description=Who requests the tasks"`
}

type SyncArgs struct {
	Direction string `json:"direction,omitempty" jsonschema:"description=push (default) or pull"`
}

func (s *Server) handleCreateTask(ctx context.Context, args CreateTaskArgs) (any, error) {
	in := task.NewInput{
		Title:              args.Title,
		Description:        args.Description,
		StoryPoints:        int(args.StoryPoints),
		Labels:             args.Labels,
		Assignee:           args.Assignee,
		ParentID:           args.ParentID,
		AcceptanceCriteria: args.AcceptanceCriteria,
	}
	if args.Priority != "" {
		p, err := task.ParsePriority(args.Priority)
		if err != nil {
			return nil, toolErr("create task", err)
		}
		in.Priority = p
	}
	t, err := s.taskSvc.CreateTask(ctx, application.CreateInput{
		NewInput:  in,
		Actor:     actorOr(args.Actor),
		BlockedBy: args.BlockedBy,
	})
	if err != nil {
		return nil, toolErr("create task", err)
	}
	return t, nil
}

func (s *Server) handleGetTask(ctx context.Context, args TaskIDArgs) (any, error) {
	t, err := s.taskSvc.GetTask(ctx, args.TaskID)
	if err != nil {
		return nil, toolErr("get task", err)
	}
	return t, nil
}

func (s *Server) handleListTasks(ctx context.Context, args ListTasksArgs) (any, error) {
	opts := task.ListOptions{
		Filter: task.Filter{
			Assignee:        args.Assignee,
			Search:          args.Search,
			IncludeArchived: bool(args.IncludeArchived),
		},
		Limit: int(args.Limit),
	}
	for _, raw := range splitList(args.Status) {
		st, err := task.ParseStatus(raw)
		if err != nil {
			return nil, toolErr("list tasks", err)
		}
		opts.Filter.Statuses = append(opts.Filter.Statuses, st)
	}
	for _, raw := range splitList(args.Priority) {
		p, err := task.ParsePriority(raw)
		if err != nil {
			return nil, toolErr("list tasks", err)
		}
		opts.Filter.Priorities = append(opts.Filter.Priorities, p)
	}
	if args.Label != "" {
		opts.Filter.Labels = []string{args.Label}
	}
	if args.Sort != "" {
		f, err := task.ParseSortField(args.Sort)
		if err != nil {
			return nil, toolErr("list tasks", err)
		}
		opts.SortBy = f
	}
	tasks, err := s.taskSvc.ListTasks(ctx, opts)
	if err != nil {
		return nil, toolErr("list tasks", err)
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

func (s *Server) handleUpdateTask(ctx context.Context, args UpdateTaskArgs) (any, error) {
	patch := task.Patch{
		Title:          args.Title,
		Description:    args.Description,
		Assignee:       args.Assignee,
		AddLabels:      args.AddLabels,
		RemoveLabels:   args.RemoveLabels,
		AddCriteria:    args.AddCriteria,
		VerifyCriteria: args.VerifyCriteria,
	}
	if args.Priority != "" {
		p, err := task.ParsePriority(args.Priority)
		if err != nil {
			return nil, toolErr("update task", err)
		}
		patch.Priority = &p
	}
	if args.StoryPoints != nil {
		n := int(*args.StoryPoints)
		patch.StoryPoints = &n
	}
	t, err := s.taskSvc.UpdateTask(ctx, args.TaskID, patch, actorOr(args.Actor))
	if err != nil {
		return nil, toolErr("update task", err)
	}
	return t, nil
}

func (s *Server) handleChangeState(ctx context.Context, args ChangeStateArgs) (string, error) {
	target, err := task.ParseStatus(args.Status)
	if err != nil {
		return "", toolErr("change state", err)
	}
	t, err := s.taskSvc.ChangeState(ctx, args.TaskID, target, application.ChangeRequest{
		Actor:  actorOr(args.Actor),
		Reason: args.Reason,
	})
	if err != nil {
		return "", toolErr("change state", err)
	}
	return fmt.Sprintf("Task %s is now %s", t.ID, t.Status), nil
}

func (s *Server) handleArchiveTask(ctx context.Context, args DeleteTaskArgs) (string, error) {
	t, err := s.taskSvc.ArchiveTask(ctx, args.TaskID, application.ChangeRequest{Actor: actorOr(args.Actor)})
	if err != nil {
		return "", toolErr("archive task", err)
	}
	return fmt.Sprintf("Task %s is now %s", t.ID, t.Status), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, args DeleteTaskArgs) (string, error) {
	if err := s.taskSvc.DeleteTask(ctx, args.TaskID, actorOr(args.Actor)); err != nil {
		return "", toolErr("delete task", err)
	}
	return fmt.Sprintf("Task %s deleted", args.TaskID), nil
}

func dependencyType(raw string) (task.DependencyType, error) {
	if strings.TrimSpace(raw) == "" {
		return task.DependencyBlockedBy, nil
	}
	return task.ParseDependencyType(raw)
}

func (s *Server) handleAddDependency(ctx context.Context, args DependencyArgs) (any, error) {
	typ, err := dependencyType(args.Type)
	if err != nil {
		return nil, toolErr("add dependency", err)
	}
	t, err := s.taskSvc.AddDependency(ctx, args.From, args.To, typ, actorOr(args.Actor))
	if err != nil {
		return nil, toolErr("add dependency", err)
	}
	return t, nil
}

func (s *Server) handleRemoveDependency(ctx context.Context, args DependencyArgs) (any, error) {
	typ, err := dependencyType(args.Type)
	if err != nil {
		return nil, toolErr("remove dependency", err)
	}
	t, err := s.taskSvc.RemoveDependency(ctx, args.From, args.To, typ, actorOr(args.Actor))
	if err != nil {
		return nil, toolErr("remove dependency", err)
	}
	return t, nil
}

type estimateResponse struct {
	Task     *task.Task            `json:"task"`
	Estimate *application.Estimate `json:"estimate"`
	Applied  bool                  `json:"applied"`
}

func (s *Server) handleEstimateTask(ctx context.Context, args EstimateTaskArgs) (any, error) {
	t, est, err := s.taskSvc.EstimateTask(ctx, args.TaskID, bool(args.Apply), actorOr(args.Actor))
	if err != nil {
		return nil, toolErr("estimate task", err)
	}
	return estimateResponse{Task: t, Estimate: est, Applied: bool(args.Apply)}, nil
}

func (s *Server) handleExpandTask(ctx context.Context, args ExpandTaskArgs) (any, error) {
	res, err := s.taskSvc.ExpandTask(ctx, args.TaskID, application.ExpandConstraints{
		MaxTasks: int(args.MaxTasks),
		Context:  args.Context,
	}, actorOr(args.Actor))
	if err != nil {
		return nil, toolErr("expand task", err)
	}
	return res, nil
}

func (s *Server) handleGenerateTasks(ctx context.Context, args GenerateTasksArgs) (any, error) {
	res, err := s.taskSvc.GenerateTasks(ctx, args.Text, application.ExpandConstraints{
		MaxTasks: int(args.MaxTasks),
		Context:  args.Context,
	}, actorOr(args.Actor))
	if err != nil {
		return nil, toolErr("generate tasks", err)
	}
	return res, nil
}

func (s *Server) handleAnalyzeDependencies(ctx context.Context, _ struct{}) (any, error) {
	report, err := s.taskSvc.AnalyzeDependencies(ctx)
	if err != nil {
		return graph.Report{}, toolErr("analyze dependencies", err)
	}
	return report, nil
}

func (s *Server) handleStats(ctx context.Context, _ struct{}) (any, error) {
	stats, err := s.taskSvc.Stats(ctx)
	if err != nil {
		return nil, toolErr("stats", err)
	}
	return stats, nil
}

func (s *Server) handleSync(ctx context.Context, args SyncArgs) (any, error) {
	if s.syncer == nil {
		return nil, fmt.Errorf("todo sync is not configured")
	}
	switch strings.ToLower(strings.TrimSpace(args.Direction)) {
	case "", "push":
		res, err := s.syncer.Push(ctx)
		if err != nil {
			return nil, toolErr("sync push", err)
		}
		return res, nil
	case "pull":
		res, err := s.syncer.Pull(ctx)
		if err != nil {
			return nil, toolErr("sync pull", err)
		}
		return res, nil
	default:
		return nil, fmt.Errorf("unknown sync direction %q (want push or pull)", args.Direction)
	}
}
