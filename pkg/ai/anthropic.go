package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

const anthropicBaseURL = "https://api.anthropic.com"

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	Model   string
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewAnthropicProvider creates a provider for model using apiKey.
func NewAnthropicProvider(model string, apiKey string) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{
		Model:   model,
		APIKey:  apiKey,
		BaseURL: anthropicBaseURL,
		Client:  http.DefaultClient,
	}
}

func (p *AnthropicProvider) ID() string {
	return "anthropic:" + p.Model
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete implements ai.Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	if p.APIKey == "" {
		return nil, ai.NewProviderError(p.ID(), "complete", errors.New("API key not provided (set ANTHROPIC_API_KEY)"))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := anthropicRequest{
		Model:     p.Model,
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: PromptWithSchema(req)}},
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ai.NewProviderError(p.ID(), "encode request", err)
	}

	baseURL := strings.TrimSuffix(p.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, ai.NewProviderError(p.ID(), "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, ai.NewProviderError(p.ID(), "request", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on read body

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ai.NewProviderError(p.ID(), "request",
			fmt.Errorf("API returned status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ai.NewProviderError(p.ID(), "decode response", err)
	}
	if out.Error != nil {
		return nil, ai.NewProviderError(p.ID(), "request", errors.New(out.Error.Message))
	}

	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "" || c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, ai.NewProviderError(p.ID(), "complete", errors.New("empty response"))
	}

	return &ai.CompletionResponse{
		Text:  text.String(),
		Model: p.Model,
		Usage: ai.TokenUsage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
		},
	}, nil
}

// PromptWithSchema appends the schema instruction to the prompt.
func PromptWithSchema(req ai.CompletionRequest) string {
	if req.Schema == "" {
		return req.Prompt
	}
	return req.Prompt + "\n\nRespond with JSON only, matching this JSON schema:\n" + req.Schema
}
