package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/pkg/application"
)

func newAICmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "AI-assisted estimation and task breakdown",
	}
	cmd.AddCommand(newAIEstimateCmd(a), newAIExpandCmd(a), newAIGenerateCmd(a))
	return cmd
}

func newAIEstimateCmd(a *app) *cobra.Command {
	var apply, jsonOut bool
	cmd := &cobra.Command{
		Use:   "estimate <id>",
		Short: "Estimate story points and hours (heuristic when the provider fails)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			t, est, err := services.Task.EstimateTask(cmd.Context(), args[0], apply, actor())
			if err != nil {
				return MapError(err)
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, map[string]any{"task": t, "estimate": est, "applied": apply})
			}
			fmt.Fprintf(w, "Estimate for %s (%s):\n", t.Title, est.Source)
			fmt.Fprintf(w, "  Story points: %d\n", est.StoryPoints)
			fmt.Fprintf(w, "  Hours:        %.1f\n", est.EstimatedHours)
			fmt.Fprintf(w, "  Complexity:   %s\n", est.Complexity)
			fmt.Fprintf(w, "  Confidence:   %.0f%%\n", est.Confidence*100)
			if len(est.Factors) > 0 {
				fmt.Fprintf(w, "  Factors:      %s\n", strings.Join(est.Factors, ", "))
			}
			if apply {
				fmt.Fprintln(w, "Applied to task.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Store the estimate on the task")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func breakdownFlags(cmd *cobra.Command, c *application.ExpandConstraints, jsonOut *bool) {
	cmd.Flags().IntVar(&c.MaxTasks, "max", application.DefaultMaxSubtasks, "Maximum tasks to create")
	cmd.Flags().StringVar(&c.Context, "context", "", "Extra context such as the tech stack")
	cmd.Flags().BoolVar(jsonOut, "json", false, "Output JSON")
}

func printExpandResult(w io.Writer, res *application.ExpandResult) {
	if res.Fallback {
		fmt.Fprintln(w, "AI provider unavailable; created a heuristic subtask instead.")
	}
	fmt.Fprintf(w, "Created %d tasks:\n", len(res.Created))
	for _, t := range res.Created {
		fmt.Fprintf(w, "  %s  %2d pts  %s\n", t.ID, t.StoryPoints, t.Title)
	}
	if b := res.Breakdown; b != nil {
		if b.EstimatedTimeline != "" {
			fmt.Fprintf(w, "Timeline: %s\n", b.EstimatedTimeline)
		}
		if len(b.RiskFactors) > 0 {
			fmt.Fprintf(w, "Risks: %s\n", strings.Join(b.RiskFactors, "; "))
		}
		if b.Dropped > 0 {
			fmt.Fprintf(w, "Dropped %d unusable suggestions.\n", b.Dropped)
		}
	}
	for _, e := range res.DroppedEdges {
		fmt.Fprintf(w, "Dropped dependency %s (would create a cycle)\n", e)
	}
}

func newAIExpandCmd(a *app) *cobra.Command {
	var (
		c       application.ExpandConstraints
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "expand <id>",
		Short: "Break a task into estimated subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			res, err := services.Task.ExpandTask(cmd.Context(), args[0], c, actor())
			if err != nil {
				return MapError(err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printExpandResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	breakdownFlags(cmd, &c, &jsonOut)
	return cmd
}

func newAIGenerateCmd(a *app) *cobra.Command {
	var (
		c       application.ExpandConstraints
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "generate <description...>",
		Short: "Generate estimated tasks from a feature description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			res, err := services.Task.GenerateTasks(cmd.Context(), strings.Join(args, " "), c, actor())
			if err != nil {
				return MapError(err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			printExpandResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	breakdownFlags(cmd, &c, &jsonOut)
	return cmd
}
