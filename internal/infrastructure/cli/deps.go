package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/graph"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

func newDepsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Manage and analyze task dependencies",
	}
	cmd.AddCommand(
		depEdgeCmd(a, "add", "Add a dependency: <from> waits on <to> (cycles are rejected)", true),
		depEdgeCmd(a, "remove", "Remove a dependency", false),
		newDepsAnalyzeCmd(a),
	)
	return cmd
}

func depEdgeCmd(a *app, use, short string, add bool) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   use + " <from> <to>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			dt, err := task.ParseDependencyType(typ)
			if err != nil {
				return MapError(err)
			}
			if add {
				_, err = services.Task.AddDependency(cmd.Context(), args[0], args[1], dt, actor())
			} else {
				_, err = services.Task.RemoveDependency(cmd.Context(), args[0], args[1], dt, actor())
			}
			if err != nil {
				return MapError(err)
			}
			verb := "Added"
			if !add {
				verb = "Removed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s.\n", verb, args[0], dt, args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", string(task.DependencyBlockedBy), "Edge type: blocked_by, blocks, related")
	return cmd
}

func newDepsAnalyzeCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Show cycles, the critical path, bottlenecks, conflicts and ready tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			report, err := services.Task.AnalyzeDependencies(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), report)
			}
			renderReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func renderReport(w io.Writer, r graph.Report) {
	fmt.Fprintf(w, "%s (%d tasks, %d edges)\n", titleStyle.Render("Dependency analysis"), r.TaskCount, r.EdgeCount)
	if len(r.Cycle) > 0 {
		fmt.Fprintf(w, "%s %s\n", statusErr.Render("Cycle:"), strings.Join(r.Cycle, " -> "))
	}
	if len(r.CriticalPath.TaskIDs) > 0 {
		fmt.Fprintf(w, "Critical path (weight %.1f): %s\n", r.CriticalPath.Weight, strings.Join(r.CriticalPath.TaskIDs, " -> "))
	}
	if len(r.Ready) > 0 {
		fmt.Fprintf(w, "Ready: %s\n", strings.Join(r.Ready, ", "))
	}
	for _, c := range r.Conflicts {
		fmt.Fprintf(w, "%s %s\n", statusWIP.Render("Conflict:"), c)
	}
	if len(r.Bottlenecks) == 0 {
		return
	}
	sort.SliceStable(r.Bottlenecks, func(i, j int) bool {
		return len(r.Bottlenecks[i].Dependents) > len(r.Bottlenecks[j].Dependents)
	})
	columns := []table.Column{
		{Title: "Bottleneck", Width: 36},
		{Title: "Title", Width: 30},
		{Title: "Status", Width: 12},
		{Title: "Blocks", Width: 7},
	}
	rows := make([]table.Row, 0, len(r.Bottlenecks))
	for _, b := range r.Bottlenecks {
		rows = append(rows, table.Row{b.TaskID, truncate(b.Title, 30), b.Status, fmt.Sprintf("%d", len(b.Dependents))})
	}
	fmt.Fprintln(w, staticTable(columns, rows))
}
