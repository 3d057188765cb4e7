package wiring

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/config"
	"github.com/felixgeelhaar/critical-claude/pkg/application"
	domainai "github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

type stubProvider struct{ text string }

func (stubProvider) ID() string { return "stub:provider" }
func (p stubProvider) Complete(_ context.Context, _ domainai.CompletionRequest) (*domainai.CompletionResponse, error) {
	return &domainai.CompletionResponse{Text: p.text, Model: "stub"}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default(filepath.Join(root, "store"))
	cfg.Sync.TodoDir = filepath.Join(root, "todos")
	return cfg
}

func TestBuildAppServicesDisabledProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Provider = "none"

	services, err := BuildAppServices(cfg, nil)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	if services.Task == nil || services.Sync == nil || services.Workspace == nil {
		t.Fatalf("expected non-nil services, got %+v", services)
	}
	if services.Estimation != nil {
		t.Error("estimation service should be nil when AI is disabled")
	}
	if services.Notifier != nil {
		t.Error("notifier should be nil without webhooks")
	}
	if services.Provider.ID() != "none" {
		t.Errorf("provider id = %s", services.Provider.ID())
	}
}

func TestBuildAppServicesDefaultProvider(t *testing.T) {
	services, err := BuildAppServices(testConfig(t), nil)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	if services.Estimation == nil {
		t.Fatal("expected an estimation service for the CLI provider")
	}
	if got := services.Estimation.Timeout(); got != 90*time.Second {
		t.Errorf("estimation timeout = %v, want 90s", got)
	}
}

func TestBuildAppServicesInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.Provider = "unknown"
	if _, err := BuildAppServices(cfg, nil); err == nil {
		t.Fatal("expected error for an unknown provider")
	}
	if _, err := BuildAppServices(nil, nil); err == nil {
		t.Fatal("expected error for a nil config")
	}
}

func TestBuildAppServicesResolverError(t *testing.T) {
	_, err := BuildAppServicesWithProvider(testConfig(t), nil, func(config.AIConfig) (domainai.Provider, error) {
		return nil, errors.New("no credentials")
	})
	if err == nil || !strings.Contains(err.Error(), "no credentials") {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestBuildAppServicesPersistsAndSyncs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Enabled = true
	cfg.Sync.SessionID = "wired"

	services, err := BuildAppServicesWithProvider(cfg, nil, func(config.AIConfig) (domainai.Provider, error) {
		return stubProvider{text: `{"storyPoints": 3}`}, nil
	})
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}

	ctx := context.Background()
	tk, err := services.Task.CreateTask(ctx, application.CreateInput{
		NewInput: task.NewInput{Title: "Wire everything"},
		Actor:    "tester",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.Storage.Dir, "tasks", tk.ID+".json")); err != nil {
		t.Errorf("task file not written: %v", err)
	}
	evs, err := services.Workspace.Events.LoadAll(ctx)
	if err != nil || len(evs) != 1 {
		t.Errorf("expected one stored event, got %d (%v)", len(evs), err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Sync.TodoDir, "wired", tk.ID+".json")); err != nil {
		t.Errorf("todo file not pushed: %v", err)
	}

	_, est, err := services.Task.EstimateTask(ctx, tk.ID, true, "tester")
	if err != nil {
		t.Fatalf("EstimateTask: %v", err)
	}
	if est.StoryPoints != 3 || est.Source != application.SourceAI {
		t.Errorf("estimate = %+v", est)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "task_id", "T1")
	if !strings.Contains(buf.String(), `"task_id":"T1"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	logger, err = NewLogger("warn", "text", &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("quiet")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}

	if _, err := NewLogger("loud", "text", &buf); err == nil {
		t.Error("expected error for an invalid level")
	}
	if _, err := NewLogger("info", "xml", &buf); err == nil {
		t.Error("expected error for an invalid format")
	}
}

func TestBuildAppServicesWebhooks(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.AI.Provider = "none"
	cfg.Notify.Webhooks = []config.WebhookConfig{
		{Name: "created", URL: server.URL + "/created", Events: []string{events.TaskCreated}},
		{Name: "off", URL: server.URL + "/off", Disabled: true},
	}

	services, err := BuildAppServices(cfg, nil)
	if err != nil {
		t.Fatalf("build services failed: %v", err)
	}
	if services.Notifier == nil || len(services.Notifier.Endpoints()) != 1 {
		t.Fatalf("expected one enabled endpoint")
	}
	if services.DeadLetters.Path() != filepath.Join(cfg.Storage.Dir, "webhook_deadletters.jsonl") {
		t.Errorf("dead letter path = %s", services.DeadLetters.Path())
	}

	if _, err := services.Task.CreateTask(context.Background(), application.CreateInput{
		NewInput: task.NewInput{Title: "Notify me"},
		Actor:    "tester",
	}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if len(got) != 1 || got[0] != "/created" {
		t.Fatalf("deliveries = %v", got)
	}
}
