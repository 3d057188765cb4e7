package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/config"
	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/wiring"
)

// app holds the root flags and lazily built services.
type app struct {
	dir      string
	verbose  bool
	services *wiring.AppServices
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.dir)
	if err != nil {
		return nil, NewCLIError("invalid configuration", "Run 'critical-claude config show' to inspect it", err)
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (a *app) load(cmd *cobra.Command) (*wiring.AppServices, error) {
	if a.services != nil {
		return a.services, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := wiring.NewLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, NewCLIError("invalid log configuration", "", err)
	}
	services, err := wiring.BuildAppServices(cfg, logger)
	if err != nil {
		return nil, NewCLIError("failed to build services", "Check 'ai.provider' with 'critical-claude config show'", err)
	}
	a.services = services
	return services, nil
}

// actor identifies the human running the command.
func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown-human"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func (a *app) logger() *slog.Logger {
	if a.services != nil {
		return a.services.Logger
	}
	return slog.Default()
}
