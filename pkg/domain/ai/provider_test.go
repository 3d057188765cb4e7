package ai

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	id       string
	response *CompletionResponse
	err      error
}

func (m *stubProvider) ID() string { return m.id }
func (m *stubProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func TestProvider_InterfaceContract(t *testing.T) {
	var _ Provider = &stubProvider{}
}

func TestProviderError_MatchesKind(t *testing.T) {
	err := NewProviderError("anthropic", "complete", context.DeadlineExceeded)
	if !errors.Is(err, ErrProvider) {
		t.Error("should match ErrProvider")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("should unwrap to the cause")
	}
	if err.Error() != "anthropic: complete failed: context deadline exceeded" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestProvider_Complete_Error(t *testing.T) {
	p := &stubProvider{id: "stub", err: NewProviderError("stub", "complete", nil)}
	_, err := p.Complete(context.Background(), CompletionRequest{Prompt: "estimate"})
	if !errors.Is(err, ErrProvider) {
		t.Errorf("err = %v", err)
	}
}
