// Package mcp exposes the task orchestrator as MCP tools so a coding
// assistant can read and drive the backlog directly.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/todosync"
	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/critical-claude/pkg/application"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// DefaultActor is recorded when a tool call names no actor.
const DefaultActor = "ai-agent"

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// Server wraps an mcp-go server bound to the task services.
type Server struct {
	mcpServer *mcp.Server
	taskSvc   *application.TaskService
	syncer    *todosync.Syncer
}

// NewServer registers every tool and resource against services.
func NewServer(services *wiring.AppServices) (*Server, error) {
	if services == nil || services.Task == nil {
		return nil, fmt.Errorf("services initialization returned nil")
	}
	info := mcp.ServerInfo{
		Name:    "critical-claude",
		Version: Version,
	}
	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Critical Claude MCP Server"),
			mcp.WithDescription("Task tracking with a validated state machine, dependency analysis and AI estimation."),
			mcp.WithWebsiteURL("https://github.com/felixgeelhaar/critical-claude"),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use cc_list_tasks to read the backlog, cc_change_state to move tasks, and cc_analyze_dependencies before picking the next task."),
		),
		taskSvc: services.Task,
		syncer:  services.Sync,
	}
	s.registerTools()
	s.registerSchemaResource()
	s.registerTasksResource()
	return s, nil
}

// toolErr turns a service error into a message an agent can act on.
// Internal failures are not detailed.
func toolErr(op string, err error) error {
	var rule *task.RuleError
	switch {
	case errors.As(err, &rule):
		return fmt.Errorf("%s rejected: %s", op, rule.Error())
	case task.IsBusinessError(err):
		return fmt.Errorf("%s failed: %v", op, err)
	default:
		return fmt.Errorf("%s failed due to an internal error", op)
	}
}

func actorOr(a string) string {
	if a = strings.TrimSpace(a); a != "" {
		return a
	}
	return DefaultActor
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("cc_create_task").
		Description("Create a task in the todo state").
		Handler(s.handleCreateTask)

	s.mcpServer.Tool("cc_get_task").
		Description("Retrieve one task with its dependencies, acceptance criteria and state history").
		Handler(s.handleGetTask)

	s.mcpServer.Tool("cc_list_tasks").
		Description("List tasks, optionally filtered by status, priority, assignee or label").
		Handler(s.handleListTasks)

	s.mcpServer.Tool("cc_update_task").
		Description("Edit task fields; status changes go through cc_change_state").
		Handler(s.handleUpdateTask)

	s.mcpServer.Tool("cc_change_state").
		Description("Move a task to a new state (todo, focused, in-progress, blocked, dimmed, done). Business rules are enforced").
		Handler(s.handleChangeState)

	s.mcpServer.Tool("cc_archive_task").
		Description("Archive a done, blocked or dimmed task").
		Handler(s.handleArchiveTask)

	s.mcpServer.Tool("cc_delete_task").
		Description("Delete a task and strip references to it").
		Handler(s.handleDeleteTask)

	s.mcpServer.Tool("cc_add_dependency").
		Description("Add a dependency edge (blocked_by, blocks or related); edges that would create a cycle are rejected").
		Handler(s.handleAddDependency)

	s.mcpServer.Tool("cc_remove_dependency").
		Description("Remove a dependency edge").
		Handler(s.handleRemoveDependency)

	s.mcpServer.Tool("cc_estimate_task").
		Description("Estimate story points and hours for a task, optionally applying the result").
		Handler(s.handleEstimateTask)

	s.mcpServer.Tool("cc_expand_task").
		Description("Break a task into estimated subtasks").
		Handler(s.handleExpandTask)

	s.mcpServer.Tool("cc_generate_tasks").
		Description("Generate estimated tasks from a free-text feature description").
		Handler(s.handleGenerateTasks)

	s.mcpServer.Tool("cc_analyze_dependencies").
		Description("Report cycles, the critical path, bottlenecks, conflicts and ready tasks").
		Handler(s.handleAnalyzeDependencies)

	s.mcpServer.Tool("cc_stats").
		Description("Backlog statistics: counts by status and priority, story points, completion rate and velocity forecast").
		Handler(s.handleStats)

	s.mcpServer.Tool("cc_sync").
		Description("Push tasks to, or pull status changes from, the assistant's todo list").
		Handler(s.handleSync)
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

// FlexBool accepts both boolean and string ("true"/"false") JSON values.
// MCP clients sometimes send string values for boolean fields.
type FlexBool bool

func (fb *FlexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*fb = FlexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*fb = FlexBool(s == "true" || s == "1" || s == "yes")
		return nil
	}
	return fmt.Errorf("expected boolean or string, got %s", string(data))
}

// FlexInt accepts both integer and string JSON values.
type FlexInt int

func (fi *FlexInt) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*fi = FlexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		var n int
		if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
			*fi = FlexInt(n)
			return nil
		}
	}
	return fmt.Errorf("expected integer or string, got %s", string(data))
}

// splitList splits a comma-separated argument.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
