package wiring

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/config"
	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/todosync"
	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/webhook"
	"github.com/felixgeelhaar/critical-claude/pkg/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/application"
	domainai "github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/events"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/graph"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/transition"
)

// AppServices exposes the application layer wired to a workspace.
type AppServices struct {
	Config     *config.Config
	Logger     *slog.Logger
	Workspace  *Workspace
	Dispatcher *events.Dispatcher
	Provider   domainai.Provider
	// Estimation is nil when the AI provider is disabled.
	Estimation *application.EstimationService
	Task       *application.TaskService
	Sync       *todosync.Syncer
	// Notifier is nil when no webhook is enabled.
	Notifier    *webhook.Notifier
	DeadLetters *webhook.DeadLetterStore
}

// BuildAppServices constructs every service from cfg.
func BuildAppServices(cfg *config.Config, logger *slog.Logger) (*AppServices, error) {
	return BuildAppServicesWithProvider(cfg, logger, func(c config.AIConfig) (domainai.Provider, error) {
		return ai.NewProvider(ai.ProviderConfig{
			Name:       c.Provider,
			Model:      c.Model,
			CLIPath:    c.CLIPath,
			Timeout:    c.Timeout(),
			MaxRetries: c.MaxRetries,
		})
	})
}

// BuildAppServicesWithProvider allows callers to supply a custom provider resolver.
func BuildAppServicesWithProvider(cfg *config.Config, logger *slog.Logger, resolve func(config.AIConfig) (domainai.Provider, error)) (*AppServices, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := resolve(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("AI provider: %w", err)
	}

	ws := NewWorkspace(cfg.Storage.Dir, logger)
	dispatcher := events.NewDispatcher(logger)

	var estimator *application.EstimationService
	if provider.ID() != ai.ProviderNone {
		estimator = application.NewEstimationService(provider,
			application.WithEstimationTimeout(estimationTimeout(cfg.AI)),
			application.WithEstimationLogger(logger))
	}

	validator := transition.NewValidator(transition.Rules{MinBlockReason: cfg.Rules.MinBlockReason})
	analyzer := graph.NewAnalyzer(graph.WithBottleneckThreshold(cfg.Rules.BottleneckThreshold))

	taskSvc := application.NewTaskService(ws.Repo, validator, analyzer, estimator,
		application.WithDispatcher(dispatcher),
		application.WithEventStore(ws.Events),
		application.WithLogger(logger))

	syncer := todosync.NewSyncer(cfg.Sync.TodoDir, taskSvc,
		todosync.WithSession(cfg.Sync.SessionID),
		todosync.WithLogger(logger))
	if cfg.Sync.Enabled {
		dispatcher.Subscribe("todosync", syncer.Handler())
	}

	deadLetters := webhook.NewDeadLetterStore(filepath.Join(cfg.Storage.Dir, webhook.DeadLetterFile))
	var notifier *webhook.Notifier
	if endpoints := webhookEndpoints(cfg.Notify); len(endpoints) > 0 {
		notifier = webhook.NewNotifier(endpoints, deadLetters, webhook.WithLogger(logger))
		dispatcher.Subscribe("webhook", notifier.Handler())
	}

	return &AppServices{
		Config:      cfg,
		Logger:      logger,
		Workspace:   ws,
		Dispatcher:  dispatcher,
		Provider:    provider,
		Estimation:  estimator,
		Task:        taskSvc,
		Sync:        syncer,
		Notifier:    notifier,
		DeadLetters: deadLetters,
	}, nil
}

func webhookEndpoints(c config.NotifyConfig) []webhook.Endpoint {
	var out []webhook.Endpoint
	for _, w := range c.Webhooks {
		if w.Disabled {
			continue
		}
		out = append(out, webhook.Endpoint{
			Name:       w.Name,
			URL:        w.URL,
			Secret:     w.Secret,
			Events:     w.Events,
			MaxRetries: w.MaxRetries,
		})
	}
	return out
}

// estimationTimeout covers every attempt the resilient provider may make.
func estimationTimeout(c config.AIConfig) time.Duration {
	d := c.Timeout()
	if d <= 0 {
		return application.DefaultEstimationTimeout
	}
	return d * time.Duration(c.MaxRetries+1)
}
