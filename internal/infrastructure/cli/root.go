package cli

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCmd builds the full command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:     "critical-claude",
		Version: Version,
		Short:   "Task tracking with a validated state machine and AI estimation",
		Long: `Critical Claude tracks development tasks through a validated state machine.
It answers:
1. What should I work on next? (dependencies, critical path, focus)
2. How big is it? (story points, AI-assisted estimation)
3. Does my coding assistant agree? (todo list sync)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.dir, "dir", "", "Storage directory (default ~/.critical-claude)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging and detailed errors")

	root.AddCommand(
		newTaskCmd(a),
		newAICmd(a),
		newDepsCmd(a),
		newStatsCmd(a),
		newSyncCmd(a),
		newHookCmd(a),
		newWebhookCmd(a),
		newConfigCmd(a),
		newMCPCmd(a),
	)
	return root
}

// Execute runs the command tree with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
