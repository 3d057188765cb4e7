package task

import (
	"cmp"
	"slices"
	"strings"
)

// SortField names a field tasks can be ordered by.
type SortField string

const (
	SortPriority  SortField = "priority"
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
	SortStatus    SortField = "status"
	SortPoints    SortField = "storyPoints"
)

// ParseSortField parses a sort field name.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(s); f {
	case SortPriority, SortCreatedAt, SortUpdatedAt, SortTitle, SortStatus, SortPoints:
		return f, nil
	case "created":
		return SortCreatedAt, nil
	case "updated":
		return SortUpdatedAt, nil
	case "points":
		return SortPoints, nil
	default:
		return "", Invalid("", "sort", "unknown sort field "+s)
	}
}

// Filter selects tasks. Zero values match everything except archived tasks.
type Filter struct {
	Statuses        []Status
	Priorities      []Priority
	Assignee        string
	Labels          []string
	Draft           *bool
	ParentID        string
	IncludeArchived bool
	Search          string
}

// Matches reports whether t passes every predicate of f.
func (f Filter) Matches(t *Task) bool {
	if len(f.Statuses) > 0 {
		if !slices.Contains(f.Statuses, t.Status) {
			return false
		}
	} else if t.Status.IsArchived() && !f.IncludeArchived {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(f.Assignee, t.Assignee) {
		return false
	}
	for _, l := range f.Labels {
		if !t.HasLabel(l) {
			return false
		}
	}
	if f.Draft != nil && *f.Draft != t.Draft {
		return false
	}
	if f.ParentID != "" && f.ParentID != t.ParentID {
		return false
	}
	if f.Search != "" && !t.matchesText(f.Search) {
		return false
	}
	return true
}

// matchesText reports whether q occurs in the title, description, labels or
// assignee, ignoring case.
func (t *Task) matchesText(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	fields := append([]string{t.Title, t.Description, t.Assignee}, t.Labels...)
	return slices.ContainsFunc(fields, func(f string) bool {
		return strings.Contains(strings.ToLower(f), q)
	})
}

// ListOptions combines filtering, ordering and pagination.
type ListOptions struct {
	Filter Filter
	// SortBy empty means priority descending then newest first.
	SortBy     SortField
	Descending bool
	Limit      int
	Offset     int
}

// Apply filters, sorts and pages tasks. The input slice is not modified.
func (o ListOptions) Apply(tasks []*Task) []*Task {
	out := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if o.Filter.Matches(t) {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, o.compare)

	if o.Offset > 0 {
		if o.Offset >= len(out) {
			return []*Task{}
		}
		out = out[o.Offset:]
	}
	if o.Limit > 0 && o.Limit < len(out) {
		out = out[:o.Limit]
	}
	return out
}

func (o ListOptions) compare(a, b *Task) int {
	if o.SortBy == "" {
		return DefaultOrder(a, b)
	}
	var c int
	switch o.SortBy {
	case SortPriority:
		c = a.Priority.Compare(b.Priority)
	case SortCreatedAt:
		c = a.CreatedAt.Compare(b.CreatedAt)
	case SortUpdatedAt:
		c = a.UpdatedAt.Compare(b.UpdatedAt)
	case SortTitle:
		c = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortStatus:
		c = cmp.Compare(statusRank(a.Status), statusRank(b.Status))
	case SortPoints:
		c = cmp.Compare(a.StoryPoints, b.StoryPoints)
	}
	if o.Descending {
		c = -c
	}
	if c == 0 {
		c = cmp.Compare(a.ID, b.ID)
	}
	return c
}

// DefaultOrder sorts by priority descending, then newest first, then id.
func DefaultOrder(a, b *Task) int {
	if c := b.Priority.Compare(a.Priority); c != 0 {
		return c
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func statusRank(s Status) int {
	return slices.Index(AllStatuses(), s)
}
