package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	statusDone  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusWIP   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusErr   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func styleStatus(s task.Status) string {
	switch {
	case s.IsComplete():
		return statusDone.Render(s.DisplayName())
	case s.IsActive():
		return statusWIP.Render(s.DisplayName())
	case s == task.StatusBlocked:
		return statusErr.Render(s.DisplayName())
	case s == task.StatusDimmed || s.IsArchived():
		return statusMuted.Render(s.DisplayName())
	default:
		return s.DisplayName()
	}
}

// staticTable renders a non-interactive table.
func staticTable(columns []table.Column, rows []table.Row) string {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(len(rows)+1),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = lipgloss.NewStyle()
	t.SetStyles(s)
	return t.View()
}

func renderTaskTable(w io.Writer, tasks []*task.Task) {
	columns := []table.Column{
		{Title: "ID", Width: 36},
		{Title: "Title", Width: 40},
		{Title: "Status", Width: 16},
		{Title: "Priority", Width: 9},
		{Title: "Pts", Width: 4},
		{Title: "Assignee", Width: 14},
	}
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		pts := "-"
		if t.StoryPoints > 0 {
			pts = fmt.Sprintf("%d", t.StoryPoints)
		}
		rows = append(rows, table.Row{
			t.ID,
			truncate(t.Title, 40),
			t.Status.DisplayName(),
			string(t.Priority),
			pts,
			t.Assignee,
		})
	}
	fmt.Fprintln(w, staticTable(columns, rows))
}

func renderTask(w io.Writer, t *task.Task, children []*task.Task) {
	fmt.Fprintf(w, "%s\n", titleStyle.Render(t.Title))
	fmt.Fprintf(w, "ID:        %s\n", t.ID)
	fmt.Fprintf(w, "Status:    %s\n", styleStatus(t.Status))
	fmt.Fprintf(w, "Priority:  %s\n", t.Priority)
	if t.StoryPoints > 0 {
		fmt.Fprintf(w, "Points:    %d\n", t.StoryPoints)
	}
	if t.EstimatedHours > 0 {
		fmt.Fprintf(w, "Estimate:  %.1fh\n", t.EstimatedHours)
	}
	if t.Assignee != "" {
		fmt.Fprintf(w, "Assignee:  %s\n", t.Assignee)
	}
	if len(t.Labels) > 0 {
		fmt.Fprintf(w, "Labels:    %s\n", strings.Join(t.Labels, ", "))
	}
	if t.ParentID != "" {
		fmt.Fprintf(w, "Parent:    %s\n", t.ParentID)
	}
	if t.Blocker != nil {
		fmt.Fprintf(w, "Blocked:   %s\n", t.Blocker.Reason)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if len(t.Dependencies) > 0 {
		fmt.Fprintln(w, "\nDependencies:")
		for _, d := range t.Dependencies {
			fmt.Fprintf(w, "  %s %s\n", d.Type, d.TaskID)
		}
	}
	if len(t.AcceptanceCriteria) > 0 {
		fmt.Fprintln(w, "\nAcceptance criteria:")
		for i, c := range t.AcceptanceCriteria {
			mark := " "
			if c.Verified {
				mark = "x"
			}
			fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, mark, c.Text)
		}
	}
	if len(children) > 0 {
		fmt.Fprintln(w, "\nSubtasks:")
		for _, c := range children {
			fmt.Fprintf(w, "  %s  %-12s %s\n", c.ID, c.Status, c.Title)
		}
	}
	if next := t.Status.ValidTransitions(); len(next) > 0 {
		names := make([]string, len(next))
		for i, s := range next {
			names[i] = string(s)
		}
		fmt.Fprintf(w, "\nNext states: %s\n", strings.Join(names, ", "))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
