// Package ai defines the port to external language model providers.
package ai

import (
	"context"
	"errors"
	"fmt"
)

// ErrProvider is the single error kind for every provider failure: transport
// errors, timeouts, empty answers, malformed JSON and schema violations.
var ErrProvider = errors.New("ai provider error")

// CompletionRequest represents a prompt to the AI.
type CompletionRequest struct {
	Prompt      string
	System      string
	Temperature float32
	MaxTokens   int
	// Schema is the JSON schema the answer must satisfy. Providers may pass
	// it along as an instruction; the caller validates the answer either way.
	Schema string
}

// CompletionResponse represents the AI's answer.
type CompletionResponse struct {
	Text  string
	Usage TokenUsage
	Model string
}

// TokenUsage tracks costs.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is the interface for all AI backends.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderError wraps a failure with the provider that produced it.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Provider, e.Op)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is makes every ProviderError match ErrProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// NewProviderError builds a ProviderError.
func NewProviderError(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}
