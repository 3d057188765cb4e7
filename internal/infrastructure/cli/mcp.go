package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	inframcp "github.com/felixgeelhaar/critical-claude/internal/infrastructure/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var (
		transport string
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			inframcp.Version = Version
			inframcp.BuildCommit = Commit
			inframcp.BuildDate = Date
			server, err := inframcp.NewServer(services)
			if err != nil {
				return MapError(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch strings.ToLower(transport) {
			case "stdio", "":
				err = server.ServeStdio(ctx)
			case "http":
				services.Logger.Info("mcp http server listening", "addr", addr)
				err = server.ServeHTTP(ctx, addr)
			default:
				return NewCLIError(fmt.Sprintf("unsupported transport: %s", transport), "Use stdio or http", nil)
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return MapError(err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to use (stdio, http)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address for the http transport")
	return cmd
}
