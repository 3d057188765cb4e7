package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ClaudeCLIProvider shells out to the claude command line tool in print mode.
type ClaudeCLIProvider struct {
	Path  string
	Model string
	Run   CommandRunner
}

// NewClaudeCLIProvider creates a provider running path (default "claude").
func NewClaudeCLIProvider(path, model string) *ClaudeCLIProvider {
	if path == "" {
		path = "claude"
	}
	return &ClaudeCLIProvider{Path: path, Model: model, Run: execRunner}
}

func (p *ClaudeCLIProvider) ID() string {
	if p.Model == "" {
		return "claude-cli"
	}
	return "claude-cli:" + p.Model
}

// Complete implements ai.Provider.
func (p *ClaudeCLIProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	prompt := PromptWithSchema(req)
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	args := []string{"-p", prompt, "--output-format", "text"}
	if p.Model != "" {
		args = append(args, "--model", p.Model)
	}

	run := p.Run
	if run == nil {
		run = execRunner
	}
	out, err := run(ctx, p.Path, args...)
	if err != nil {
		return nil, ai.NewProviderError(p.ID(), "exec", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return nil, ai.NewProviderError(p.ID(), "complete", errors.New("empty response"))
	}
	return &ai.CompletionResponse{Text: text, Model: p.ID()}, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binary comes from configuration
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
