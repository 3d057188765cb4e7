package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/internal/infrastructure/todosync"
)

func newSyncCmd(a *app) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the coding assistant's todo list",
	}
	cmd.PersistentFlags().StringVar(&session, "session", "", "Todo session id (default: configured or most recent)")

	syncer := func(c *cobra.Command) (*todosync.Syncer, error) {
		services, err := a.load(c)
		if err != nil {
			return nil, err
		}
		if session != "" {
			services.Sync.SetSession(session)
		}
		return services.Sync, nil
	}

	push := &cobra.Command{
		Use:   "push",
		Short: "Write every non-archived task to the todo list",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := syncer(cmd)
			if err != nil {
				return err
			}
			res, err := s.Push(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d tasks to session %s (%d stale removed).\n", res.Written, res.Session, res.Removed)
			return nil
		},
	}
	pull := &cobra.Command{
		Use:   "pull",
		Short: "Apply status changes made in the todo list",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := syncer(cmd)
			if err != nil {
				return err
			}
			res, err := s.Pull(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			printPull(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.AddCommand(push, pull, newSyncWatchCmd(a, syncer))
	return cmd
}

func printPull(w io.Writer, res *todosync.PullResult) {
	fmt.Fprintf(w, "Pulled from session %s: %d applied, %d skipped.\n", res.Session, len(res.Applied), len(res.Skipped))
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "  skipped %s -> %s: %s\n", s.TaskID, s.Target, s.Reason)
	}
}

func newHookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Entry points for coding assistant hooks (read hook JSON on stdin)",
	}
	cmd.AddCommand(
		hookCommand(a, "session-start", "Hydrate the todo list when a session starts",
			func(cmd *cobra.Command, s *todosync.Syncer, in *todosync.HookInput) error {
				_, err := s.HandleSessionStart(cmd.Context(), in)
				return err
			}),
		hookCommand(a, "post-tool-use", "Pull todo list edits, then push the result",
			func(cmd *cobra.Command, s *todosync.Syncer, in *todosync.HookInput) error {
				_, err := s.HandlePostToolUse(cmd.Context(), in)
				return err
			}),
	)
	return cmd
}

// hookCommand never fails the hook: errors go to stderr and stdout always
// receives an empty JSON object.
func hookCommand(a *app, use, short string, run func(*cobra.Command, *todosync.Syncer, *todosync.HookInput) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer fmt.Fprintln(cmd.OutOrStdout(), "{}")
			in, err := todosync.ReadHookInput(cmd.InOrStdin())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "critical-claude hook: %v\n", err)
				in = &todosync.HookInput{}
			}
			services, err := a.load(cmd)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "critical-claude hook: %v\n", err)
				return nil
			}
			if err := run(cmd, services.Sync, in); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "critical-claude hook: %v\n", err)
			}
			return nil
		},
	}
}
