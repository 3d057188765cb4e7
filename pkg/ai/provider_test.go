package ai_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	infraAI "github.com/felixgeelhaar/critical-claude/pkg/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
)

type scriptedProvider struct {
	calls  atomic.Int32
	fail   int
	block  bool
	answer string
}

func (s *scriptedProvider) ID() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	n := int(s.calls.Add(1))
	if s.block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, errors.New("not cancelled")
		}
	}
	if n <= s.fail {
		return nil, errors.New("transient")
	}
	return &ai.CompletionResponse{Text: s.answer}, nil
}

func TestResilientProvider_RetriesTransientFailures(t *testing.T) {
	inner := &scriptedProvider{fail: 1, answer: "ok"}
	p := infraAI.NewResilientProviderWithConfig(inner, infraAI.ResilienceConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	})
	resp, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok" || inner.calls.Load() != 2 {
		t.Errorf("resp = %+v, calls = %d", resp, inner.calls.Load())
	}
	if p.ID() != "scripted" {
		t.Errorf("ID = %q", p.ID())
	}
}

func TestResilientProvider_TimeoutIsProviderError(t *testing.T) {
	inner := &scriptedProvider{block: true}
	p := infraAI.NewResilientProviderWithConfig(inner, infraAI.ResilienceConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Timeout:    50 * time.Millisecond,
	})
	start := time.Now()
	_, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"})
	if !errors.Is(err, ai.ErrProvider) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestResilientProvider_DefaultsApplied(t *testing.T) {
	p := infraAI.NewResilientProviderWithConfig(&scriptedProvider{}, infraAI.ResilienceConfig{})
	if p.Config() != infraAI.DefaultResilienceConfig() {
		t.Errorf("config = %+v", p.Config())
	}
	if infraAI.DefaultResilienceConfig().Timeout != 30*time.Second {
		t.Error("default timeout should be 30s")
	}
}

func TestClaudeCLIProvider(t *testing.T) {
	var gotName string
	var gotArgs []string
	p := infraAI.NewClaudeCLIProvider("", "sonnet")
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("  {\"storyPoints\": 3}\n"), nil
	}

	resp, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "estimate", System: "be terse"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != `{"storyPoints": 3}` {
		t.Errorf("text = %q", resp.Text)
	}
	if gotName != "claude" || gotArgs[0] != "-p" || !strings.HasPrefix(gotArgs[1], "be terse") {
		t.Errorf("invocation = %s %v", gotName, gotArgs)
	}
	if gotArgs[len(gotArgs)-1] != "sonnet" {
		t.Errorf("model flag missing: %v", gotArgs)
	}

	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	if _, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"}); !errors.Is(err, ai.ErrProvider) {
		t.Errorf("err = %v", err)
	}
	p.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("   "), nil
	}
	if _, err := p.Complete(context.Background(), ai.CompletionRequest{Prompt: "x"}); !errors.Is(err, ai.ErrProvider) {
		t.Errorf("empty output err = %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name   string
		wantID string
		err    bool
	}{
		{"claude-cli", "claude-cli", false},
		{"", "claude-cli", false},
		{"anthropic", "anthropic:" + infraAI.DefaultAnthropicModel, false},
		{"none", "none", false},
		{"gpt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := infraAI.NewProvider(infraAI.ProviderConfig{Name: tt.name})
			if tt.err {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.ID() != tt.wantID {
				t.Errorf("ID = %q, want %q", p.ID(), tt.wantID)
			}
		})
	}

	p, _ := infraAI.NewProvider(infraAI.ProviderConfig{Name: "none"})
	if _, err := p.Complete(context.Background(), ai.CompletionRequest{}); !errors.Is(err, ai.ErrProvider) {
		t.Errorf("disabled provider err = %v", err)
	}
}
