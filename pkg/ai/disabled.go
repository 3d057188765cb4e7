package ai

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
)

// DisabledProvider always fails, which makes every caller use its
// heuristic fallback.
type DisabledProvider struct{}

func (DisabledProvider) ID() string { return "none" }

// Complete implements ai.Provider.
func (DisabledProvider) Complete(context.Context, ai.CompletionRequest) (*ai.CompletionResponse, error) {
	return nil, ai.NewProviderError("none", "complete", errors.New("AI provider is disabled"))
}
