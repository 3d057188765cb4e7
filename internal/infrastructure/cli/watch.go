package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/todosync"
	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/watch"
)

func newSyncWatchCmd(a *app, syncer func(*cobra.Command) (*todosync.Syncer, error)) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Pull status changes whenever the todo list changes on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := syncer(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(s.TodoDir(), 0o700); err != nil {
				return NewCLIError("cannot create todo directory", "", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			w, err := watch.NewFSWatcher(func(e watch.ChangeEvent) {
				res, err := s.Pull(ctx)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "pull failed: %v\n", err)
					return
				}
				if len(res.Applied) > 0 || len(res.Skipped) > 0 {
					fmt.Fprintf(out, "\nTodo list change detected at %s (%d events)\n", time.Now().Format("15:04:05"), e.Count)
					printPull(out, res)
				}
			},
				watch.WithDebounce(debounce),
				watch.WithFilter(watch.TodoFilter()),
				watch.WithLogger(a.logger()),
			)
			if err != nil {
				return MapError(err)
			}
			if err := w.WatchRecursive(s.TodoDir()); err != nil {
				return MapError(err)
			}
			res, err := s.Pull(ctx)
			if err != nil {
				return MapError(err)
			}
			printPull(out, res)
			fmt.Fprintf(out, "Watching %s for todo list changes... (Ctrl+C to stop)\n", s.TodoDir())
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				return MapError(err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before pulling")
	return cmd
}
