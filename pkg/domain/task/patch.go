package task

import (
	"fmt"
	"strings"
	"time"
)

// Patch is a partial update of the editable task fields. Nil fields are left
// unchanged. Status changes go through the transition validator and are not
// part of a patch.
type Patch struct {
	Title          *string
	Description    *string
	Priority       *Priority
	StoryPoints    *int
	EstimatedHours *float64
	ActualHours    *float64
	Assignee       *string
	Draft          *bool
	Labels         *[]string
	AddLabels      []string
	RemoveLabels   []string
	AddCriteria    []string
	// VerifyCriteria holds 1-based criterion positions.
	VerifyCriteria []int
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil &&
		p.StoryPoints == nil && p.EstimatedHours == nil && p.ActualHours == nil &&
		p.Assignee == nil && p.Draft == nil && p.Labels == nil &&
		len(p.AddLabels) == 0 && len(p.RemoveLabels) == 0 &&
		len(p.AddCriteria) == 0 && len(p.VerifyCriteria) == 0
}

// Apply merges the patch into t and re-validates it. On error t may be
// partially modified, so callers apply patches to a clone.
func (p Patch) Apply(t *Task, now time.Time) error {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.StoryPoints != nil {
		t.StoryPoints = *p.StoryPoints
	}
	if p.EstimatedHours != nil {
		t.EstimatedHours = *p.EstimatedHours
	}
	if p.ActualHours != nil {
		t.ActualHours = *p.ActualHours
	}
	if p.Assignee != nil {
		t.Assignee = strings.TrimSpace(*p.Assignee)
	}
	if p.Draft != nil {
		t.Draft = *p.Draft
	}
	if p.Labels != nil {
		t.Labels = NormalizeLabels(*p.Labels)
	}
	if len(p.AddLabels) > 0 {
		t.Labels = NormalizeLabels(append(t.Labels, p.AddLabels...))
	}
	for _, rm := range p.RemoveLabels {
		kept := t.Labels[:0]
		for _, l := range t.Labels {
			if !strings.EqualFold(l, rm) {
				kept = append(kept, l)
			}
		}
		t.Labels = kept
	}
	for _, c := range p.AddCriteria {
		if c = strings.TrimSpace(c); c != "" {
			t.AcceptanceCriteria = append(t.AcceptanceCriteria, Criterion{Text: c})
		}
	}
	for _, n := range p.VerifyCriteria {
		if n < 1 || n > len(t.AcceptanceCriteria) {
			return Invalid(t.ID, "acceptanceCriteria", fmt.Sprintf("no criterion #%d", n))
		}
		verifiedAt := now
		t.AcceptanceCriteria[n-1].Verified = true
		t.AcceptanceCriteria[n-1].VerifiedAt = &verifiedAt
	}
	t.Touch(now)
	return t.Validate()
}
