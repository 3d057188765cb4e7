package todosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/critical-claude/pkg/application"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// Actor is recorded on state changes pulled from the external list.
const Actor = "todo-sync"

// TaskSource is the slice of the orchestrator the syncer needs.
type TaskSource interface {
	Snapshot(ctx context.Context) ([]*task.Task, error)
	ChangeState(ctx context.Context, id string, target task.Status, req application.ChangeRequest) (*task.Task, error)
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSession pins the session directory instead of detecting it.
func WithSession(id string) Option {
	return func(s *Syncer) { s.session = strings.TrimSpace(id) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.logger = l
		}
	}
}

// Syncer pushes task snapshots to, and pulls status changes from, one
// session directory under todoDir.
type Syncer struct {
	todoDir string
	source  TaskSource
	logger  *slog.Logger

	// mu guards session and serializes pushes. It is never held while
	// calling into source, whose change events may trigger a push.
	mu      sync.Mutex
	session string
}

// NewSyncer creates a Syncer for todoDir.
func NewSyncer(todoDir string, source TaskSource, opts ...Option) *Syncer {
	s := &Syncer{
		todoDir: todoDir,
		source:  source,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TodoDir returns the root todo directory.
func (s *Syncer) TodoDir() string { return s.todoDir }

// SetSession switches to the given session; empty ids are ignored.
func (s *Syncer) SetSession(id string) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return
	}
	s.mu.Lock()
	s.session = id
	s.mu.Unlock()
}

// Session returns the active session id, resolving it on first use: the most
// recently modified session directory, or a fresh uuid when there is none.
func (s *Syncer) Session() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked()
}

func (s *Syncer) sessionLocked() (string, error) {
	if s.session != "" {
		return s.session, nil
	}
	latest, err := LatestSession(s.todoDir)
	if err != nil {
		return "", err
	}
	if latest == "" {
		latest = uuid.NewString()
	}
	s.session = latest
	return latest, nil
}

// SessionDir returns the directory of the active session.
func (s *Syncer) SessionDir() (string, error) {
	id, err := s.Session()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.todoDir, id), nil
}

// LatestSession returns the most recently modified session directory name
// under todoDir, or "" when there is none.
func LatestSession(todoDir string) (string, error) {
	entries, err := os.ReadDir(todoDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read todo dir: %w", err)
	}
	type session struct {
		name string
		mod  int64
	}
	var sessions []session
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		sessions = append(sessions, session{e.Name(), info.ModTime().UnixNano()})
	}
	if len(sessions) == 0 {
		return "", nil
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].mod > sessions[j].mod })
	return sessions[0].name, nil
}

// PushResult summarizes one push.
type PushResult struct {
	Session string
	Written int
	Removed int
}

// Push writes every non-archived task into the session directory and removes
// files this tool wrote earlier for tasks that are gone or archived.
func (s *Syncer) Push(ctx context.Context) (*PushResult, error) {
	tasks, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.sessionLocked()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(s.todoDir, session)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	blocks := make(map[string][]string)
	for _, t := range tasks {
		for _, dep := range t.BlockedBy() {
			blocks[dep] = append(blocks[dep], t.ID)
		}
	}

	res := &PushResult{Session: session}
	keep := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if _, ok := ExternalStatus(t.Status); !ok {
			continue
		}
		ext := ToExternal(t, blocks[t.ID])
		if err := writeJSON(dir, t.ID, ext); err != nil {
			return res, err
		}
		keep[t.ID+".json"] = true
		res.Written++
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("read session dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || keep[name] || filepath.Ext(name) != ".json" {
			continue
		}
		ext, err := readExternal(filepath.Join(dir, name))
		if err != nil || !ext.Managed() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove stale todo file", "path", name, "error", err)
			continue
		}
		res.Removed++
	}

	s.logger.Debug("pushed tasks to todo list", "session", session, "written", res.Written, "removed", res.Removed)
	return res, nil
}

// Skip records an external change that could not be applied.
type Skip struct {
	TaskID string
	Target task.Status
	Reason string
}

// PullResult summarizes one pull.
type PullResult struct {
	Session string
	Applied []string
	Skipped []Skip
}

// Pull reads the session directory and applies external completions and
// starts as ordinary state changes. Ids unknown to the store are ignored;
// business-rule rejections are reported in Skipped.
func (s *Syncer) Pull(ctx context.Context) (*PullResult, error) {
	dir, err := s.SessionDir()
	if err != nil {
		return nil, err
	}
	res := &PullResult{Session: filepath.Base(dir)}

	external, err := readSession(dir, s.logger)
	if err != nil {
		return nil, err
	}
	if len(external) == 0 {
		return res, nil
	}

	tasks, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, ext := range external {
		t, ok := byID[ext.ID]
		if !ok {
			continue
		}
		target, ok := pullTarget(t.Status, ext.Status)
		if !ok {
			continue
		}
		_, err := s.source.ChangeState(ctx, t.ID, target, application.ChangeRequest{
			Actor:  Actor,
			Reason: "updated in external todo list",
		})
		if err != nil {
			if !task.IsBusinessError(err) {
				return res, fmt.Errorf("apply %s for %s: %w", target, t.ID, err)
			}
			s.logger.Warn("todo sync skipped change", "task_id", t.ID, "target", string(target), "reason", err.Error())
			res.Skipped = append(res.Skipped, Skip{TaskID: t.ID, Target: target, Reason: err.Error()})
			continue
		}
		res.Applied = append(res.Applied, t.ID)
	}
	return res, nil
}

// Handler returns a dispatcher handler that pushes after every task event.
// Push failures are logged, not returned, so a broken todo directory never
// fails the mutation that triggered it.
func (s *Syncer) Handler() events.HandlerFunc {
	return func(ctx context.Context, e *events.Event) error {
		if _, err := s.Push(ctx); err != nil {
			s.logger.Warn("todo sync push failed", "event", e.Type, "task_id", e.TaskID, "error", err)
		}
		return nil
	}
}

func readSession(dir string, logger *slog.Logger) ([]ExternalTask, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session dir: %w", err)
	}
	var out []ExternalTask
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		ext, err := readExternal(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("skipping unreadable todo file", "path", name, "error", err)
			continue
		}
		if ext.ID == "" {
			ext.ID = strings.TrimSuffix(name, ".json")
		}
		out = append(out, *ext)
	}
	return out, nil
}

func readExternal(path string) (*ExternalTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ext ExternalTask
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &ext, nil
}

// writeJSON writes v to dir/<id>.json through a hidden temp file and rename.
func writeJSON(dir, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", id, err)
	}
	path := filepath.Join(dir, id+".json")
	tmp := filepath.Join(dir, "."+id+".json.tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", id, err)
	}
	return nil
}
