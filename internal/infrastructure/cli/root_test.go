package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/todosync"
	"github.com/felixgeelhaar/critical-claude/pkg/application"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/graph"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

func TestRootHelp(t *testing.T) {
	dir := testEnv(t)
	out := mustRun(t, dir, "--help")
	for _, sub := range []string{"task", "ai", "deps", "stats", "sync", "hook", "webhook", "config", "mcp"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing %q", sub)
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	dir := testEnv(t)
	created := createTask(t, dir, "Ship login page", "--points", "3", "--priority", "high", "--assignee", "alice")
	if created.Status != task.StatusTodo || created.Priority != task.PriorityHigh {
		t.Fatalf("unexpected task: %+v", created)
	}

	mustRun(t, dir, "task", "focus", created.ID)
	mustRun(t, dir, "task", "state", created.ID, "in_progress")
	mustRun(t, dir, "task", "done", created.ID)
	if got := viewTask(t, dir, created.ID); got.Status != task.StatusDone || got.CompletedAt == nil {
		t.Fatalf("after done: status %s completedAt %v", got.Status, got.CompletedAt)
	}

	mustRun(t, dir, "task", "archive", created.ID)
	if got := viewTask(t, dir, created.ID); got.Status != task.StatusArchivedDone {
		t.Fatalf("after archive: %s", got.Status)
	}

	if out := mustRun(t, dir, "task", "list"); !strings.Contains(out, "No tasks found.") {
		t.Errorf("archived task listed by default:\n%s", out)
	}
	if out := mustRun(t, dir, "task", "list", "--all"); !strings.Contains(out, "Ship login page") {
		t.Errorf("list --all missing archived task:\n%s", out)
	}

	history := mustRun(t, dir, "task", "history", created.ID)
	for _, want := range []string{"focused", "in-progress", "done", "archived_done", "by tester"} {
		if !strings.Contains(history, want) {
			t.Errorf("history missing %q:\n%s", want, history)
		}
	}
}

func TestTaskRuleViolations(t *testing.T) {
	dir := testEnv(t)
	unestimated := createTask(t, dir, "Write docs")

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"focus without points", []string{"task", "focus", unestimated.ID}, task.ErrEstimationMissing},
		{"block without reason", []string{"task", "block", unestimated.ID}, task.ErrValidation},
		{"unknown task", []string{"task", "view", "missing"}, task.ErrNotFound},
		{"bad status", []string{"task", "state", unestimated.ID, "paused"}, task.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, dir, "", tt.args...)
			if !errors.Is(res.err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", res.err, tt.wantErr)
			}
			if code := ExitCode(res.err); code != ExitBusiness {
				t.Fatalf("exit code = %d, want %d", code, ExitBusiness)
			}
		})
	}

	mustRun(t, dir, "task", "block", unestimated.ID, "--reason", "waiting on API review", "--until", "2030-01-02")
	got := viewTask(t, dir, unestimated.ID)
	if got.Status != task.StatusBlocked || got.Blocker == nil {
		t.Fatalf("block not applied: %+v", got)
	}
}

func TestTaskEdit(t *testing.T) {
	dir := testEnv(t)
	created := createTask(t, dir, "Refactor parser", "--criterion", "tests pass")
	if res := runCLI(t, dir, "", "task", "done", created.ID); !errors.Is(res.err, task.ErrAcceptanceCriteriaUnmet) {
		t.Fatalf("done with open criterion: %v", res.err)
	}

	mustRun(t, dir, "task", "edit", created.ID, "--title", "Refactor the parser", "--points", "5", "--verify-criterion", "1")
	got := viewTask(t, dir, created.ID)
	if got.Title != "Refactor the parser" || got.StoryPoints != 5 {
		t.Fatalf("edit not applied: %+v", got)
	}
	if len(got.AcceptanceCriteria) != 1 || !got.AcceptanceCriteria[0].Verified {
		t.Fatalf("criterion not verified: %+v", got.AcceptanceCriteria)
	}
	if got.Version <= created.Version {
		t.Fatalf("version not bumped: %d -> %d", created.Version, got.Version)
	}
}

func TestDependencies(t *testing.T) {
	dir := testEnv(t)
	api := createTask(t, dir, "Build API", "--points", "5")
	ui := createTask(t, dir, "Build UI", "--points", "3")

	mustRun(t, dir, "deps", "add", ui.ID, api.ID)
	res := runCLI(t, dir, "", "task", "start", ui.ID)
	if !errors.Is(res.err, task.ErrDependencyNotSatisfied) {
		t.Fatalf("start with open dependency: %v", res.err)
	}

	res = runCLI(t, dir, "", "deps", "add", api.ID, ui.ID)
	if !errors.Is(res.err, task.ErrCircularDependency) {
		t.Fatalf("cycle not rejected: %v", res.err)
	}

	report := decodeJSON[graph.Report](t, mustRun(t, dir, "deps", "analyze", "--json"))
	if report.TaskCount != 2 || report.EdgeCount != 1 {
		t.Fatalf("report counts: %+v", report)
	}
	if len(report.CriticalPath.TaskIDs) != 2 || report.CriticalPath.Weight != 8 {
		t.Fatalf("critical path: %+v", report.CriticalPath)
	}
	if out := mustRun(t, dir, "deps", "analyze"); !strings.Contains(out, "Critical path") {
		t.Errorf("text report missing critical path:\n%s", out)
	}

	mustRun(t, dir, "deps", "remove", ui.ID, api.ID)
	mustRun(t, dir, "task", "start", ui.ID)
}

func TestEstimateFallsBackToHeuristic(t *testing.T) {
	dir := testEnv(t)
	created := createTask(t, dir, "Add OAuth login", "--description", "Support Google and GitHub sign-in")

	out := mustRun(t, dir, "ai", "estimate", created.ID, "--apply", "--json")
	resp := decodeJSON[struct {
		Task     *task.Task            `json:"task"`
		Estimate *application.Estimate `json:"estimate"`
	}](t, out)
	if !task.IsAllowedPoints(resp.Estimate.StoryPoints) {
		t.Fatalf("estimate not on the scale: %d", resp.Estimate.StoryPoints)
	}
	if got := viewTask(t, dir, created.ID); got.StoryPoints != resp.Estimate.StoryPoints {
		t.Fatalf("estimate not applied: %d", got.StoryPoints)
	}
}

func TestStats(t *testing.T) {
	dir := testEnv(t)
	done := createTask(t, dir, "One", "--points", "2")
	createTask(t, dir, "Two", "--points", "3")
	createTask(t, dir, "Three")
	mustRun(t, dir, "task", "done", done.ID)

	stats := decodeJSON[application.Stats](t, mustRun(t, dir, "stats", "--json"))
	if stats.Total != 3 || stats.TotalPoints != 5 || stats.DonePoints != 2 || stats.Unestimated != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Velocity.Remaining != 2 || stats.Velocity.Trend.Windows[0].Count != 1 {
		t.Fatalf("velocity: %+v", stats.Velocity)
	}
	if out := mustRun(t, dir, "stats"); !strings.Contains(out, "3 total") || !strings.Contains(out, "Velocity:") {
		t.Errorf("text stats:\n%s", out)
	}
}

func TestExportImport(t *testing.T) {
	src := testEnv(t)
	createTask(t, src, "Exported task", "--points", "8", "--labels", "backend,api")
	file := filepath.Join(t.TempDir(), "tasks.yaml")
	mustRun(t, src, "task", "export", "--format", "yaml", "-o", file)

	dst := t.TempDir()
	out := mustRun(t, dst, "task", "import", file)
	if !strings.Contains(out, "Imported 1 tasks, skipped 0.") {
		t.Fatalf("import output: %s", out)
	}
	out = mustRun(t, dst, "task", "import", file)
	if !strings.Contains(out, "Imported 0 tasks, skipped 1.") {
		t.Fatalf("re-import output: %s", out)
	}

	tasks := decodeJSON[[]*task.Task](t, mustRun(t, dst, "task", "list", "--json"))
	if len(tasks) != 1 || tasks[0].Title != "Exported task" || len(tasks[0].Labels) != 2 {
		t.Fatalf("imported tasks: %+v", tasks)
	}
}

func TestSyncPushPull(t *testing.T) {
	dir := testEnv(t)
	created := createTask(t, dir, "Synced task", "--points", "3")

	out := mustRun(t, dir, "sync", "push")
	if !strings.Contains(out, "Pushed 1 tasks to session session-1") {
		t.Fatalf("push output: %s", out)
	}
	path := filepath.Join(dir, "todos", "session-1", created.ID+".json")
	ext := decodeJSON[todosync.ExternalTask](t, readFile(t, path))
	if ext.Status != todosync.StatusPending {
		t.Fatalf("pushed status: %s", ext.Status)
	}

	ext.Status = todosync.StatusCompleted
	writeJSONFile(t, path, ext)
	out = mustRun(t, dir, "sync", "pull")
	if !strings.Contains(out, "1 applied, 0 skipped") {
		t.Fatalf("pull output: %s", out)
	}
	if got := viewTask(t, dir, created.ID); got.Status != task.StatusDone {
		t.Fatalf("pull not applied: %s", got.Status)
	}
}

func TestHooks(t *testing.T) {
	dir := testEnv(t)
	created := createTask(t, dir, "Hooked task")

	res := runCLI(t, dir, `{"sessionId":"abc-123","hook_event_name":"SessionStart"}`, "hook", "session-start")
	if res.err != nil {
		t.Fatalf("session-start: %v", res.err)
	}
	if strings.TrimSpace(res.stdout) != "{}" {
		t.Fatalf("hook stdout = %q", res.stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, "todos", "abc-123", created.ID+".json")); err != nil {
		t.Fatalf("session not hydrated: %v", err)
	}

	// Malformed input never fails the hook.
	res = runCLI(t, dir, "{not json", "hook", "post-tool-use")
	if res.err != nil || strings.TrimSpace(res.stdout) != "{}" {
		t.Fatalf("post-tool-use: err=%v stdout=%q", res.err, res.stdout)
	}
	if !strings.Contains(res.stderr, "critical-claude hook:") {
		t.Fatalf("expected hook error on stderr, got %q", res.stderr)
	}
}

func TestConfigCommands(t *testing.T) {
	dir := testEnv(t)

	out := mustRun(t, dir, "config", "init")
	if !strings.Contains(out, filepath.Join(dir, "config.yaml")) {
		t.Fatalf("init output: %s", out)
	}
	res := runCLI(t, dir, "", "config", "init")
	if res.err == nil || !strings.Contains(res.err.Error(), "already exists") {
		t.Fatalf("second init: %v", res.err)
	}
	mustRun(t, dir, "config", "init", "--force")

	out = mustRun(t, dir, "config", "show")
	for _, want := range []string{"provider: none", "min_block_reason: 10", "session_id: session-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}
}

func TestWebhookCommands(t *testing.T) {
	dir := testEnv(t)
	if out := mustRun(t, dir, "webhook", "list"); !strings.Contains(out, "No webhooks configured.") {
		t.Fatalf("list output: %s", out)
	}
	if res := runCLI(t, dir, "", "webhook", "test"); res.err == nil {
		t.Fatal("test without webhooks should fail")
	}

	config := "notify:\n  webhooks:\n    - name: down\n      url: http://127.0.0.1:1/hook\n      max_retries: 1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(config), 0o600); err != nil {
		t.Fatal(err)
	}
	if out := mustRun(t, dir, "webhook", "test"); !strings.Contains(out, "Delivered to 0 of 1 webhooks.") {
		t.Fatalf("test output: %s", out)
	}
	out := mustRun(t, dir, "webhook", "dead-letters", "--clear")
	if !strings.Contains(out, "webhook.test") || !strings.Contains(out, "Cleared") {
		t.Fatalf("dead-letters output: %s", out)
	}
	if out := mustRun(t, dir, "webhook", "dead-letters"); !strings.Contains(out, "No dead letters.") {
		t.Fatalf("dead letters not cleared: %s", out)
	}
}

func TestMCPUnsupportedTransport(t *testing.T) {
	dir := testEnv(t)
	res := runCLI(t, dir, "", "mcp", "--transport", "ws")
	if res.err == nil || !strings.Contains(res.err.Error(), "unsupported transport") {
		t.Fatalf("err = %v", res.err)
	}
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
