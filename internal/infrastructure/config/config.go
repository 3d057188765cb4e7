// Package config loads the layered configuration: built-in defaults, then
// <dir>/config.yaml, then CRITICAL_CLAUDE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file inside the storage directory.
const FileName = "config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRITICAL_CLAUDE"

// DefaultDirName is the storage directory under the user's home.
const DefaultDirName = ".critical-claude"

// Config is the effective configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	AI      AIConfig      `yaml:"ai"`
	Rules   RulesConfig   `yaml:"rules"`
	Sync    SyncConfig    `yaml:"sync"`
	Notify  NotifyConfig  `yaml:"notify"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AIConfig stores provider defaults.
type AIConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRetries int    `yaml:"max_retries"`
	CLIPath    string `yaml:"cli_path"`
}

// Timeout returns the provider timeout as a duration.
func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RulesConfig tunes the business rules.
type RulesConfig struct {
	MinBlockReason      int `yaml:"min_block_reason"`
	BottleneckThreshold int `yaml:"bottleneck_threshold"`
}

// SyncConfig controls the external todo list sync.
type SyncConfig struct {
	Enabled   bool   `yaml:"enabled"`
	TodoDir   string `yaml:"todo_dir"`
	SessionID string `yaml:"session_id"`
}

// NotifyConfig lists outgoing webhooks for task events.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" mapstructure:"webhooks"`
}

// WebhookConfig is one endpoint. An empty Events list receives every event.
type WebhookConfig struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	URL        string   `yaml:"url" mapstructure:"url"`
	Secret     string   `yaml:"secret,omitempty" mapstructure:"secret"`
	Events     []string `yaml:"events,omitempty" mapstructure:"events"`
	MaxRetries int      `yaml:"max_retries,omitempty" mapstructure:"max_retries"`
	Disabled   bool     `yaml:"disabled,omitempty" mapstructure:"disabled"`
}

// DefaultDir returns ~/.critical-claude, or a relative directory when the
// home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDirName
	}
	return filepath.Join(home, DefaultDirName)
}

func defaultTodoDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".claude", "tasks")
	}
	return filepath.Join(home, ".claude", "tasks")
}

// Default returns the built-in configuration for a storage directory.
func Default(dir string) *Config {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Config{
		Storage: StorageConfig{Dir: dir},
		Log:     LogConfig{Level: "info", Format: "text"},
		AI: AIConfig{
			Provider:   "claude-cli",
			TimeoutSec: 30,
			MaxRetries: 2,
			CLIPath:    "claude",
		},
		Rules: RulesConfig{MinBlockReason: 10, BottleneckThreshold: 3},
		Sync:  SyncConfig{TodoDir: defaultTodoDir()},
	}
}

// Load reads <dir>/config.yaml over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	def := Default(dir)

	v := viper.New()
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(def.Storage.Dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage.dir", def.Storage.Dir)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("ai.provider", def.AI.Provider)
	v.SetDefault("ai.model", def.AI.Model)
	v.SetDefault("ai.timeout_sec", def.AI.TimeoutSec)
	v.SetDefault("ai.max_retries", def.AI.MaxRetries)
	v.SetDefault("ai.cli_path", def.AI.CLIPath)
	v.SetDefault("rules.min_block_reason", def.Rules.MinBlockReason)
	v.SetDefault("rules.bottleneck_threshold", def.Rules.BottleneckThreshold)
	v.SetDefault("sync.enabled", def.Sync.Enabled)
	v.SetDefault("sync.todo_dir", def.Sync.TodoDir)
	v.SetDefault("sync.session_id", def.Sync.SessionID)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", FileName, err)
		}
	}

	cfg := &Config{
		Storage: StorageConfig{Dir: expandHome(v.GetString("storage.dir"))},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		AI: AIConfig{
			Provider:   strings.ToLower(v.GetString("ai.provider")),
			Model:      v.GetString("ai.model"),
			TimeoutSec: v.GetInt("ai.timeout_sec"),
			MaxRetries: v.GetInt("ai.max_retries"),
			CLIPath:    v.GetString("ai.cli_path"),
		},
		Rules: RulesConfig{
			MinBlockReason:      v.GetInt("rules.min_block_reason"),
			BottleneckThreshold: v.GetInt("rules.bottleneck_threshold"),
		},
		Sync: SyncConfig{
			Enabled:   v.GetBool("sync.enabled"),
			TodoDir:   expandHome(v.GetString("sync.todo_dir")),
			SessionID: v.GetString("sync.session_id"),
		},
	}
	if err := v.UnmarshalKey("notify.webhooks", &cfg.Notify.Webhooks); err != nil {
		return nil, fmt.Errorf("reading notify.webhooks: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot use.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q (want text or json)", c.Log.Format)
	}
	switch c.AI.Provider {
	case "claude-cli", "claude", "anthropic", "none", "disabled", "off":
	default:
		return fmt.Errorf("invalid ai.provider %q (want claude-cli, anthropic or none)", c.AI.Provider)
	}
	if c.AI.TimeoutSec <= 0 {
		return fmt.Errorf("ai.timeout_sec must be positive")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries must not be negative")
	}
	if c.Rules.BottleneckThreshold < 1 {
		return fmt.Errorf("rules.bottleneck_threshold must be at least 1")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	seen := make(map[string]bool, len(c.Notify.Webhooks))
	for i, w := range c.Notify.Webhooks {
		if w.Name == "" {
			return fmt.Errorf("notify.webhooks[%d].name is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("duplicate webhook name %q", w.Name)
		}
		seen[w.Name] = true
		if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
			return fmt.Errorf("webhook %q: url must start with http:// or https://", w.Name)
		}
		if w.MaxRetries < 0 {
			return fmt.Errorf("webhook %q: max_retries must not be negative", w.Name)
		}
	}
	return nil
}

// Save writes cfg as YAML with owner-only permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Path returns the config file location for a storage directory.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
