package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/critical-claude/pkg/application"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
	"github.com/felixgeelhaar/critical-claude/pkg/storage"
)

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage individual tasks",
	}
	cmd.AddCommand(
		newTaskCreateCmd(a),
		newTaskListCmd(a),
		newTaskViewCmd(a),
		newTaskEditCmd(a),
		newTaskStateCmd(a),
		stateCommand(a, "focus", "Focus on a task (one focused task per assignee)", task.StatusFocused),
		stateCommand(a, "start", "Start working on a task", task.StatusInProgress),
		stateCommand(a, "block", "Mark a task blocked (requires --reason)", task.StatusBlocked),
		stateCommand(a, "dim", "Set a task aside", task.StatusDimmed),
		stateCommand(a, "done", "Complete a task", task.StatusDone),
		newTaskArchiveCmd(a),
		newTaskDeleteCmd(a),
		newTaskHistoryCmd(a),
		newTaskExportCmd(a),
		newTaskImportCmd(a),
	)
	return cmd
}

func newTaskCreateCmd(a *app) *cobra.Command {
	var (
		in        task.NewInput
		priority  string
		blockedBy []string
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			in.Title = strings.Join(args, " ")
			if priority != "" {
				p, err := task.ParsePriority(priority)
				if err != nil {
					return MapError(err)
				}
				in.Priority = p
			}
			t, err := services.Task.CreateTask(cmd.Context(), application.CreateInput{
				NewInput:  in,
				Actor:     actor(),
				BlockedBy: blockedBy,
			})
			if err != nil {
				return MapError(fmt.Errorf("create task: %w", err))
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s: %s\n", t.ID, t.Title)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&in.Description, "description", "d", "", "Task description")
	f.StringVarP(&priority, "priority", "p", "", "Priority: critical, high, medium, low")
	f.IntVar(&in.StoryPoints, "points", 0, "Story points (1, 2, 3, 5, 8, 13, 21)")
	f.Float64Var(&in.EstimatedHours, "hours", 0, "Estimated hours")
	f.StringSliceVarP(&in.Labels, "labels", "l", nil, "Comma-separated labels")
	f.StringVarP(&in.Assignee, "assignee", "a", "", "Assignee")
	f.StringVar(&in.ParentID, "parent", "", "Parent task id")
	f.BoolVar(&in.Draft, "draft", false, "Mark as draft")
	f.StringSliceVar(&blockedBy, "blocked-by", nil, "Ids of tasks this task waits on")
	f.StringArrayVar(&in.AcceptanceCriteria, "criterion", nil, "Acceptance criterion (repeatable)")
	f.BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newTaskListCmd(a *app) *cobra.Command {
	var (
		statuses, priorities []string
		opts                 task.ListOptions
		label, sortBy        string
		jsonOut              bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks (archived tasks are hidden unless --all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			for _, raw := range statuses {
				s, err := task.ParseStatus(raw)
				if err != nil {
					return MapError(err)
				}
				opts.Filter.Statuses = append(opts.Filter.Statuses, s)
			}
			for _, raw := range priorities {
				p, err := task.ParsePriority(raw)
				if err != nil {
					return MapError(err)
				}
				opts.Filter.Priorities = append(opts.Filter.Priorities, p)
			}
			if label != "" {
				opts.Filter.Labels = []string{label}
			}
			if sortBy != "" {
				f, err := task.ParseSortField(sortBy)
				if err != nil {
					return MapError(err)
				}
				opts.SortBy = f
			}
			tasks, err := services.Task.ListTasks(cmd.Context(), opts)
			if err != nil {
				return MapError(fmt.Errorf("list tasks: %w", err))
			}
			if jsonOut {
				if tasks == nil {
					tasks = []*task.Task{}
				}
				return printJSON(cmd.OutOrStdout(), tasks)
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
				return nil
			}
			renderTaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&statuses, "status", "s", nil, "Filter by status")
	f.StringSliceVarP(&priorities, "priority", "p", nil, "Filter by priority")
	f.StringVarP(&opts.Filter.Assignee, "assignee", "a", "", "Filter by assignee")
	f.StringVarP(&label, "label", "l", "", "Filter by label")
	f.StringVar(&opts.Filter.Search, "search", "", "Search title, description, labels and assignee")
	f.BoolVar(&opts.Filter.IncludeArchived, "all", false, "Include archived tasks")
	f.StringVar(&sortBy, "sort", "", "Sort by priority, createdAt, updatedAt, title, status, storyPoints")
	f.BoolVar(&opts.Descending, "desc", false, "Reverse the sort order")
	f.IntVar(&opts.Limit, "limit", 0, "Maximum number of tasks")
	f.IntVar(&opts.Offset, "offset", 0, "Skip this many tasks")
	f.BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newTaskViewCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "view <id>",
		Short: "Show a task with its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			t, err := services.Task.GetTask(cmd.Context(), args[0])
			if err != nil {
				return MapError(err)
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), t)
			}
			children, err := services.Task.Children(cmd.Context(), t.ID)
			if err != nil {
				return MapError(err)
			}
			renderTask(cmd.OutOrStdout(), t, children)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newTaskEditCmd(a *app) *cobra.Command {
	var (
		title, description, priority, assignee string
		points                                 int
		hours, actual                          float64
		draft                                  bool
		addLabels, removeLabels, addCriteria   []string
		verify                                 []int
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			f := cmd.Flags()
			patch := task.Patch{
				AddLabels:      addLabels,
				RemoveLabels:   removeLabels,
				AddCriteria:    addCriteria,
				VerifyCriteria: verify,
			}
			if f.Changed("title") {
				patch.Title = &title
			}
			if f.Changed("description") {
				patch.Description = &description
			}
			if f.Changed("priority") {
				p, err := task.ParsePriority(priority)
				if err != nil {
					return MapError(err)
				}
				patch.Priority = &p
			}
			if f.Changed("points") {
				patch.StoryPoints = &points
			}
			if f.Changed("hours") {
				patch.EstimatedHours = &hours
			}
			if f.Changed("actual-hours") {
				patch.ActualHours = &actual
			}
			if f.Changed("assignee") {
				patch.Assignee = &assignee
			}
			if f.Changed("draft") {
				patch.Draft = &draft
			}
			t, err := services.Task.UpdateTask(cmd.Context(), args[0], patch, actor())
			if err != nil {
				return MapError(fmt.Errorf("edit task: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s (version %d)\n", t.ID, t.Version)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "New title")
	f.StringVarP(&description, "description", "d", "", "New description")
	f.StringVarP(&priority, "priority", "p", "", "New priority")
	f.IntVar(&points, "points", 0, "Story points (0 clears)")
	f.Float64Var(&hours, "hours", 0, "Estimated hours")
	f.Float64Var(&actual, "actual-hours", 0, "Actual hours spent")
	f.StringVarP(&assignee, "assignee", "a", "", "Assignee (empty clears)")
	f.BoolVar(&draft, "draft", false, "Draft flag")
	f.StringSliceVar(&addLabels, "add-label", nil, "Labels to add")
	f.StringSliceVar(&removeLabels, "remove-label", nil, "Labels to remove")
	f.StringArrayVar(&addCriteria, "add-criterion", nil, "Acceptance criterion to add (repeatable)")
	f.IntSliceVar(&verify, "verify-criterion", nil, "1-based criterion numbers to mark verified")
	return cmd
}

// changeFlags are shared by every state-changing command.
type changeFlags struct {
	reason string
	until  string
}

func (c *changeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.reason, "reason", "r", "", "Reason for the change (required when blocking)")
	cmd.Flags().StringVar(&c.until, "until", "", "Expected resolution date for blocked tasks (YYYY-MM-DD)")
}

func (c *changeFlags) request() (application.ChangeRequest, error) {
	req := application.ChangeRequest{Actor: actor(), Reason: c.reason}
	if c.until != "" {
		d, err := time.Parse(time.DateOnly, c.until)
		if err != nil {
			return req, NewCLIError("invalid --until date", "Use YYYY-MM-DD", err)
		}
		req.ExpectedResolution = &d
	}
	return req, nil
}

func changeState(a *app, cmd *cobra.Command, id string, target task.Status, c *changeFlags) error {
	services, err := a.load(cmd)
	if err != nil {
		return err
	}
	req, err := c.request()
	if err != nil {
		return err
	}
	t, err := services.Task.ChangeState(cmd.Context(), id, target, req)
	if err != nil {
		return MapError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s.\n", t.ID, t.Status.DisplayName())
	return nil
}

func newTaskStateCmd(a *app) *cobra.Command {
	var c changeFlags
	cmd := &cobra.Command{
		Use:   "state <id> <status>",
		Short: "Move a task to any state allowed by the state machine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := task.ParseStatus(args[1])
			if err != nil {
				return MapError(err)
			}
			return changeState(a, cmd, args[0], target, &c)
		},
	}
	c.register(cmd)
	return cmd
}

func stateCommand(a *app, use, short string, target task.Status) *cobra.Command {
	var c changeFlags
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return changeState(a, cmd, args[0], target, &c)
		},
	}
	c.register(cmd)
	return cmd
}

func newTaskArchiveCmd(a *app) *cobra.Command {
	var c changeFlags
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a done, blocked or dimmed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			req, err := c.request()
			if err != nil {
				return err
			}
			t, err := services.Task.ArchiveTask(cmd.Context(), args[0], req)
			if err != nil {
				return MapError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s.\n", t.ID, t.Status.DisplayName())
			return nil
		},
	}
	c.register(cmd)
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task and remove references to it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			if err := services.Task.DeleteTask(cmd.Context(), args[0], actor()); err != nil {
				return MapError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s.\n", args[0])
			return nil
		},
	}
}

func newTaskHistoryCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the state history and recorded events of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			history, evs, err := services.Task.History(cmd.Context(), args[0])
			if err != nil {
				return MapError(err)
			}
			w := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(w, map[string]any{"stateHistory": history, "events": evs})
			}
			for _, h := range history {
				from := "-"
				if h.From != "" {
					from = string(h.From)
				}
				fmt.Fprintf(w, "%s  %-16s -> %-16s by %s", h.ChangedAt.Format(time.RFC3339), from, h.To, h.ChangedBy)
				if h.Reason != "" {
					fmt.Fprintf(w, " (%s)", h.Reason)
				}
				fmt.Fprintln(w)
			}
			if len(evs) > 0 {
				fmt.Fprintf(w, "\n%d recorded events\n", len(evs))
				for _, e := range evs {
					fmt.Fprintf(w, "  %s  %s by %s\n", e.Timestamp.Format(time.RFC3339), e.Type, e.Actor)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newTaskExportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every task, archived included, as JSON or YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			f, err := storage.ParseFormat(format)
			if err != nil {
				return MapError(err)
			}
			tasks, err := services.Task.Snapshot(cmd.Context())
			if err != nil {
				return MapError(err)
			}
			w := cmd.OutOrStdout()
			if output != "" {
				file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
				if err != nil {
					return NewCLIError("cannot write export file", "", err)
				}
				defer file.Close() //nolint:errcheck // write errors surface from EncodeSnapshot
				w = file
			}
			if err := storage.EncodeSnapshot(w, tasks, f); err != nil {
				return MapError(err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d tasks to %s\n", len(tasks), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newTaskImportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import tasks from a JSON or YAML export; existing ids are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.load(cmd)
			if err != nil {
				return err
			}
			if format == "" {
				format = formatFromPath(args[0])
			}
			f, err := storage.ParseFormat(format)
			if err != nil {
				return MapError(err)
			}
			file, err := os.Open(args[0])
			if err != nil {
				return NewCLIError("cannot read import file", "", err)
			}
			defer file.Close() //nolint:errcheck // read-only
			tasks, err := storage.DecodeSnapshot(file, f)
			if err != nil {
				return NewCLIError("cannot parse import file", "", err)
			}
			res, err := services.Task.Import(cmd.Context(), tasks, actor())
			if err != nil {
				return MapError(fmt.Errorf("import: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tasks, skipped %d.\n", len(res.Created), len(res.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Input format: json or yaml (default from extension)")
	return cmd
}

func formatFromPath(path string) string {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return "yaml"
	}
	return "json"
}
