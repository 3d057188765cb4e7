package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/analytics"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

func newStatsCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Backlog statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			s, err := services.Task.Stats(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, s)
			}
			fmt.Fprintf(w, "Tasks: %d total, %d active, %d archived\n", s.Total, s.Active, s.Archived)
			fmt.Fprintf(w, "Completion: %.1f%% of tasks\n", s.CompletionRate*100)
			fmt.Fprintf(w, "Points: %d done of %d, %d tasks unestimated\n", s.DonePoints, s.TotalPoints, s.Unestimated)
			fmt.Fprintln(w, "\nBy status:")
			for _, st := range task.AllStatuses() {
				if n := s.ByStatus[st]; n > 0 {
					fmt.Fprintf(w, "  %-16s %d\n", st.DisplayName(), n)
				}
			}
			fmt.Fprintln(w, "\nBy priority:")
			for _, p := range task.AllPriorities() {
				if n := s.ByPriority[p]; n > 0 {
					fmt.Fprintf(w, "  %-16s %d\n", p, n)
				}
			}
			if len(s.FocusedByAssignee) > 0 {
				fmt.Fprintln(w, "\nFocused:")
				names := make([]string, 0, len(s.FocusedByAssignee))
				for name := range s.FocusedByAssignee {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					label := name
					if label == "" {
						label = "(unassigned)"
					}
					fmt.Fprintf(w, "  %-16s %s\n", label, s.FocusedByAssignee[name])
				}
			}
			printVelocity(w, s.Velocity)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func printVelocity(w io.Writer, f analytics.Forecast) {
	fmt.Fprintln(w, "\nVelocity:")
	for _, win := range f.Trend.Windows {
		fmt.Fprintf(w, "  last %2d days   %d tasks, %d points (%.2f/day)\n", win.Days, win.Count, win.Points, win.Velocity)
	}
	fmt.Fprintf(w, "  trend          %s\n", f.Trend.Direction)
	if f.CompletionDate == nil {
		fmt.Fprintln(w, "  forecast       not enough recent completions")
		return
	}
	fmt.Fprintf(w, "  forecast       %d remaining in ~%.0f days (%.0f-%.0f), around %s\n",
		f.Remaining, f.EstimatedDays, f.Interval.Low, f.Interval.High, f.CompletionDate.Format(time.DateOnly))
}
