package ai

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
)

// Provider names accepted by NewProvider.
const (
	ProviderClaudeCLI = "claude-cli"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Name       string
	Model      string
	APIKey     string
	CLIPath    string
	Timeout    time.Duration
	MaxRetries int
}

// NewProvider builds the named provider wrapped in a ResilientProvider.
// The disabled provider is returned unwrapped.
func NewProvider(cfg ProviderConfig) (ai.Provider, error) {
	var inner ai.Provider
	switch strings.ToLower(cfg.Name) {
	case ProviderClaudeCLI, "claude", "":
		inner = NewClaudeCLIProvider(cfg.CLIPath, cfg.Model)
	case ProviderAnthropic:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		inner = NewAnthropicProvider(cfg.Model, key)
	case ProviderNone, "disabled", "off":
		return DisabledProvider{}, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Name)
	}
	return NewResilientProviderWithConfig(inner, ResilienceConfig{
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.Timeout,
	}), nil
}
