package ai

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
)

// ResilienceConfig controls retries and the overall deadline of a call.
type ResilienceConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// DefaultResilienceConfig returns 2 attempts, 1s backoff and a 30s deadline.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxRetries: 2,
		RetryDelay: time.Second,
		Timeout:    30 * time.Second,
	}
}

// ResilientProvider wraps a provider with retry and an overall timeout.
type ResilientProvider struct {
	inner ai.Provider
	cfg   ResilienceConfig
}

// NewResilientProvider wraps inner with the default configuration.
func NewResilientProvider(inner ai.Provider) *ResilientProvider {
	return NewResilientProviderWithConfig(inner, DefaultResilienceConfig())
}

// NewResilientProviderWithConfig wraps inner. Zero fields take defaults.
func NewResilientProviderWithConfig(inner ai.Provider, cfg ResilienceConfig) *ResilientProvider {
	def := DefaultResilienceConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &ResilientProvider{inner: inner, cfg: cfg}
}

func (p *ResilientProvider) ID() string {
	return p.inner.ID()
}

// Config returns the effective configuration.
func (p *ResilientProvider) Config() ResilienceConfig {
	return p.cfg
}

// Complete implements ai.Provider. Any failure, including the deadline,
// is reported as an ai.ErrProvider.
func (p *ResilientProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	r := retry.New[*ai.CompletionResponse](retry.Config{
		MaxAttempts:   p.cfg.MaxRetries,
		InitialDelay:  p.cfg.RetryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	t := timeout.New[*ai.CompletionResponse](timeout.Config{
		DefaultTimeout: p.cfg.Timeout,
	})

	res, err := t.Execute(ctx, p.cfg.Timeout, func(ctx context.Context) (*ai.CompletionResponse, error) {
		return r.Do(ctx, func(ctx context.Context) (*ai.CompletionResponse, error) {
			return p.inner.Complete(ctx, req)
		})
	})
	if err != nil {
		if errors.Is(err, ai.ErrProvider) {
			return nil, err
		}
		return nil, ai.NewProviderError(p.inner.ID(), "complete", err)
	}
	return res, nil
}
