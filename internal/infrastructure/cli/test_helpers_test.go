package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// testEnv points the CLI at a throwaway storage directory with the AI
// provider disabled and a fixed todo session.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CRITICAL_CLAUDE_AI_PROVIDER", "none")
	t.Setenv("CRITICAL_CLAUDE_LOG_LEVEL", "error")
	t.Setenv("CRITICAL_CLAUDE_SYNC_ENABLED", "false")
	t.Setenv("CRITICAL_CLAUDE_SYNC_TODO_DIR", filepath.Join(dir, "todos"))
	t.Setenv("CRITICAL_CLAUDE_SYNC_SESSION_ID", "session-1")
	t.Setenv("USER", "tester")
	return dir
}

type result struct {
	stdout string
	stderr string
	err    error
}

func runCLI(t *testing.T, dir, stdin string, args ...string) result {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--dir", dir}, args...))
	err := root.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	res := runCLI(t, dir, "", args...)
	if res.err != nil {
		t.Fatalf("%v: %v\nstderr: %s", args, res.err, res.stderr)
	}
	return res.stdout
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func createTask(t *testing.T, dir, title string, flags ...string) *task.Task {
	t.Helper()
	args := append([]string{"task", "create", title, "--json"}, flags...)
	return decodeJSON[*task.Task](t, mustRun(t, dir, args...))
}

func viewTask(t *testing.T, dir, id string) *task.Task {
	t.Helper()
	return decodeJSON[*task.Task](t, mustRun(t, dir, "task", "view", id, "--json"))
}
