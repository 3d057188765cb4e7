package task

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced on create and edit.
const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 5000
	MaxLabels            = 10
	MaxAssigneeLength    = 100
)

// Complexity tiers reported by estimates.
const (
	ComplexityLow      = "low"
	ComplexityMedium   = "medium"
	ComplexityHigh     = "high"
	ComplexityVeryHigh = "very-high"
)

// Task is the central tracked unit of work.
type Task struct {
	ID                 string         `json:"id" yaml:"id"`
	Title              string         `json:"title" yaml:"title"`
	Description        string         `json:"description,omitempty" yaml:"description,omitempty"`
	Status             Status         `json:"status" yaml:"status"`
	Priority           Priority       `json:"priority" yaml:"priority"`
	StoryPoints        int            `json:"storyPoints,omitempty" yaml:"storyPoints,omitempty"`
	EstimatedHours     float64        `json:"estimatedHours,omitempty" yaml:"estimatedHours,omitempty"`
	ActualHours        float64        `json:"actualHours,omitempty" yaml:"actualHours,omitempty"`
	Labels             []string       `json:"labels,omitempty" yaml:"labels,omitempty"`
	Assignee           string         `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Draft              bool           `json:"draft,omitempty" yaml:"draft,omitempty"`
	ParentID           string         `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	Dependencies       []Dependency   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	AcceptanceCriteria []Criterion    `json:"acceptanceCriteria,omitempty" yaml:"acceptanceCriteria,omitempty"`
	Blocker            *Blocker       `json:"blocker,omitempty" yaml:"blocker,omitempty"`
	AIMetadata         *AIMetadata    `json:"aiMetadata,omitempty" yaml:"aiMetadata,omitempty"`
	AIEstimation       *AIMetadata    `json:"aiEstimation,omitempty" yaml:"aiEstimation,omitempty"`
	StateHistory       []StateChange  `json:"stateHistory" yaml:"stateHistory"`
	Version            int            `json:"version" yaml:"version"`
	CreatedAt          time.Time      `json:"createdAt" yaml:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt" yaml:"updatedAt"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	ArchivedAt         *time.Time     `json:"archivedAt,omitempty" yaml:"archivedAt,omitempty"`
}

// StateChange is one entry of the append-only state history. From is empty
// for the creation entry.
type StateChange struct {
	From      Status    `json:"fromState,omitempty" yaml:"fromState,omitempty"`
	To        Status    `json:"toState" yaml:"toState"`
	ChangedBy string    `json:"changedBy" yaml:"changedBy"`
	ChangedAt time.Time `json:"changedAt" yaml:"changedAt"`
	Reason    string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Criterion is an acceptance criterion that must be verified before done.
type Criterion struct {
	Text       string     `json:"text" yaml:"text"`
	Verified   bool       `json:"verified" yaml:"verified"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty" yaml:"verifiedAt,omitempty"`
}

// Blocker records why a blocked task is blocked.
type Blocker struct {
	Reason             string     `json:"reason" yaml:"reason"`
	ExpectedResolution *time.Time `json:"expectedResolution,omitempty" yaml:"expectedResolution,omitempty"`
	BlockedAt          time.Time  `json:"blockedAt" yaml:"blockedAt"`
}

// AIMetadata is attached when a task or its estimate came from an AI provider.
type AIMetadata struct {
	Confidence     float64   `json:"confidence" yaml:"confidence"`
	Reasoning      string    `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Complexity     string    `json:"complexity,omitempty" yaml:"complexity,omitempty"`
	RiskFactors    []string  `json:"riskFactors,omitempty" yaml:"riskFactors,omitempty"`
	StoryPoints    int       `json:"storyPoints,omitempty" yaml:"storyPoints,omitempty"`
	EstimatedHours float64   `json:"estimatedHours,omitempty" yaml:"estimatedHours,omitempty"`
	Source         string    `json:"source,omitempty" yaml:"source,omitempty"`
	GeneratedAt    time.Time `json:"generatedAt" yaml:"generatedAt"`
}

// NewInput holds the caller-supplied fields of a new task.
type NewInput struct {
	Title              string
	Description        string
	Priority           Priority
	StoryPoints        int
	EstimatedHours     float64
	Labels             []string
	Assignee           string
	Draft              bool
	ParentID           string
	AcceptanceCriteria []string
	AIMetadata         *AIMetadata
}

// New builds a todo task with a single creation history entry.
func New(id string, in NewInput, actor string, now time.Time) (*Task, error) {
	priority := in.Priority
	if priority == "" {
		priority = DefaultPriority()
	}
	t := &Task{
		ID:             id,
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Status:         StatusTodo,
		Priority:       priority,
		StoryPoints:    in.StoryPoints,
		EstimatedHours: in.EstimatedHours,
		Labels:         NormalizeLabels(in.Labels),
		Assignee:       strings.TrimSpace(in.Assignee),
		Draft:          in.Draft,
		ParentID:       in.ParentID,
		AIMetadata:     in.AIMetadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, c := range in.AcceptanceCriteria {
		if c = strings.TrimSpace(c); c != "" {
			t.AcceptanceCriteria = append(t.AcceptanceCriteria, Criterion{Text: c})
		}
	}
	t.StateHistory = []StateChange{{To: StatusTodo, ChangedBy: actorOrSystem(actor), ChangedAt: now, Reason: "created"}}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks field-level constraints. It does not look at other tasks.
func (t *Task) Validate() error {
	if t.ID == "" {
		return Invalid("", "id", "id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return Invalid(t.ID, "title", "title is required")
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return Invalid(t.ID, "title", "title exceeds 500 characters")
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return Invalid(t.ID, "description", "description exceeds 5000 characters")
	}
	if len(t.Labels) > MaxLabels {
		return Invalid(t.ID, "labels", "at most 10 labels are allowed")
	}
	if utf8.RuneCountInString(t.Assignee) > MaxAssigneeLength {
		return Invalid(t.ID, "assignee", "assignee exceeds 100 characters")
	}
	if !t.Status.IsValid() {
		return Invalid(t.ID, "status", "unknown status "+string(t.Status))
	}
	if !t.Priority.IsValid() {
		return Invalid(t.ID, "priority", "unknown priority "+string(t.Priority))
	}
	if t.StoryPoints < 0 || (t.StoryPoints != 0 && !IsAllowedPoints(t.StoryPoints)) {
		return Invalid(t.ID, "storyPoints", "story points must be one of 1, 2, 3, 5, 8, 13, 21")
	}
	if t.EstimatedHours < 0 || t.ActualHours < 0 {
		return Invalid(t.ID, "hours", "hours must not be negative")
	}
	for _, d := range t.Dependencies {
		if d.TaskID == t.ID {
			return NewRuleError(ErrCircularDependency, t.ID, "self-dependency", "a task cannot depend on itself")
		}
		if !d.Type.IsValid() {
			return Invalid(t.ID, "dependencies", "unknown dependency type "+string(d.Type))
		}
	}
	if n := len(t.StateHistory); n > 0 && t.StateHistory[n-1].To != t.Status {
		return Invalid(t.ID, "stateHistory", "last history entry does not match status")
	}
	return nil
}

// Transition moves the task to target and appends the history entry. The
// caller is responsible for having validated the move.
func (t *Task) Transition(target Status, actor, reason string, now time.Time) {
	t.StateHistory = append(t.StateHistory, StateChange{
		From:      t.Status,
		To:        target,
		ChangedBy: actorOrSystem(actor),
		ChangedAt: now,
		Reason:    reason,
	})
	t.Status = target
	t.UpdatedAt = now
}

// Touch refreshes UpdatedAt.
func (t *Task) Touch(now time.Time) {
	t.UpdatedAt = now
}

// BlockedBy returns the ids this task waits on, in declaration order.
func (t *Task) BlockedBy() []string {
	var ids []string
	for _, d := range t.Dependencies {
		if d.Type == DependencyBlockedBy {
			ids = append(ids, d.TaskID)
		}
	}
	return ids
}

// HasDependency reports whether an edge of the given type to id exists.
func (t *Task) HasDependency(id string, typ DependencyType) bool {
	for _, d := range t.Dependencies {
		if d.TaskID == id && d.Type == typ {
			return true
		}
	}
	return false
}

// AddDependency appends an edge unless it already exists.
func (t *Task) AddDependency(id string, typ DependencyType, now time.Time) bool {
	if t.HasDependency(id, typ) {
		return false
	}
	t.Dependencies = append(t.Dependencies, Dependency{TaskID: id, Type: typ, CreatedAt: now})
	return true
}

// RemoveDependency removes edges to id. An empty typ removes every type.
func (t *Task) RemoveDependency(id string, typ DependencyType) bool {
	before := len(t.Dependencies)
	t.Dependencies = slices.DeleteFunc(t.Dependencies, func(d Dependency) bool {
		return d.TaskID == id && (typ == "" || d.Type == typ)
	})
	return len(t.Dependencies) != before
}

// UnverifiedCriteria returns the texts of criteria not yet verified.
func (t *Task) UnverifiedCriteria() []string {
	var open []string
	for _, c := range t.AcceptanceCriteria {
		if !c.Verified {
			open = append(open, c.Text)
		}
	}
	return open
}

// HasLabel reports whether the task carries label, case-insensitively.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Weight is the effort used for critical path computation.
func (t *Task) Weight() float64 {
	switch {
	case t.StoryPoints > 0:
		return float64(t.StoryPoints)
	case t.EstimatedHours > 0:
		return t.EstimatedHours
	default:
		return 1
	}
}

// Clone returns a deep copy.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Labels = slices.Clone(t.Labels)
	c.Dependencies = slices.Clone(t.Dependencies)
	c.AcceptanceCriteria = slices.Clone(t.AcceptanceCriteria)
	c.StateHistory = slices.Clone(t.StateHistory)
	if t.Blocker != nil {
		b := *t.Blocker
		c.Blocker = &b
	}
	if t.AIMetadata != nil {
		m := *t.AIMetadata
		m.RiskFactors = slices.Clone(t.AIMetadata.RiskFactors)
		c.AIMetadata = &m
	}
	if t.AIEstimation != nil {
		m := *t.AIEstimation
		m.RiskFactors = slices.Clone(t.AIEstimation.RiskFactors)
		c.AIEstimation = &m
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.ArchivedAt != nil {
		ts := *t.ArchivedAt
		c.ArchivedAt = &ts
	}
	return &c
}

// NormalizeLabels trims labels and drops empty and duplicate entries while
// keeping the first-seen order.
func NormalizeLabels(labels []string) []string {
	var out []string
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		key := strings.ToLower(l)
		if l == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

// SameLabels compares label sets ignoring order.
func SameLabels(a, b []string) bool {
	a, b = NormalizeLabels(a), NormalizeLabels(b)
	if len(a) != len(b) {
		return false
	}
	for _, l := range a {
		found := false
		for _, r := range b {
			if strings.EqualFold(l, r) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}
