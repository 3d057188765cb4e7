package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
	"github.com/xeipuuv/gojsonschema"
)

// Expansion limits.
const (
	DefaultMaxSubtasks = 8
	MaxSubtasksLimit   = 20
)

// DefaultEstimationTimeout bounds a single provider round trip.
const DefaultEstimationTimeout = 30 * time.Second

// hoursPerPoint converts story points to hours when only one is known.
const hoursPerPoint = 4.0

// Estimate sources.
const (
	SourceAI        = "ai"
	SourceHeuristic = "heuristic"
)

const estimateSchemaJSON = `{
  "type": "object",
  "required": ["storyPoints"],
  "properties": {
    "storyPoints": {"type": "number", "minimum": 0},
    "estimatedHours": {"type": "number", "minimum": 0},
    "complexity": {"type": "string"},
    "confidence": {"type": "number"},
    "factors": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`

// Subtask items are only checked for being objects here; individually
// malformed entries are dropped later instead of failing the whole answer.
const breakdownSchemaJSON = `{
  "type": "object",
  "required": ["subtasks"],
  "properties": {
    "subtasks": {"type": "array", "items": {"type": "object"}},
    "estimatedTimeline": {"type": "string"},
    "riskFactors": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	estimateSchemaLoader  = gojsonschema.NewStringLoader(estimateSchemaJSON)
	breakdownSchemaLoader = gojsonschema.NewStringLoader(breakdownSchemaJSON)
)

// Estimate is a normalized effort estimate.
type Estimate struct {
	StoryPoints    int      `json:"storyPoints"`
	EstimatedHours float64  `json:"estimatedHours"`
	Complexity     string   `json:"complexity"`
	Confidence     float64  `json:"confidence"`
	Factors        []string `json:"factors,omitempty"`
	Reasoning      string   `json:"reasoning,omitempty"`
	Source         string   `json:"source"`
}

// Metadata converts the estimate into the record stored on a task.
func (e *Estimate) Metadata(now time.Time) *task.AIMetadata {
	return &task.AIMetadata{
		Confidence:     e.Confidence,
		Reasoning:      e.Reasoning,
		Complexity:     e.Complexity,
		RiskFactors:    append([]string(nil), e.Factors...),
		StoryPoints:    e.StoryPoints,
		EstimatedHours: e.EstimatedHours,
		Source:         e.Source,
		GeneratedAt:    now,
	}
}

// ExpandConstraints limits a breakdown request.
type ExpandConstraints struct {
	MaxTasks int
	// Context is extra guidance passed to the provider verbatim.
	Context string
}

func (c ExpandConstraints) maxTasks() int {
	switch {
	case c.MaxTasks <= 0:
		return DefaultMaxSubtasks
	case c.MaxTasks > MaxSubtasksLimit:
		return MaxSubtasksLimit
	default:
		return c.MaxTasks
	}
}

// Suggestion is one well-formed task proposed by the provider.
type Suggestion struct {
	Title              string        `json:"title"`
	Description        string        `json:"description,omitempty"`
	Priority           task.Priority `json:"priority"`
	StoryPoints        int           `json:"storyPoints,omitempty"`
	EstimatedHours     float64       `json:"estimatedHours,omitempty"`
	Labels             []string      `json:"labels,omitempty"`
	AcceptanceCriteria []string      `json:"acceptanceCriteria,omitempty"`
	// DependsOn holds indexes of other suggestions in the same breakdown that
	// must be done first.
	DependsOn []int `json:"dependsOn,omitempty"`
}

// Breakdown is the normalized result of Expand or GenerateFromText.
type Breakdown struct {
	Subtasks          []Suggestion `json:"subtasks"`
	EstimatedTimeline string       `json:"estimatedTimeline,omitempty"`
	RiskFactors       []string     `json:"riskFactors,omitempty"`
	Dropped           int          `json:"dropped,omitempty"`
	Source            string       `json:"source"`
}

// EstimationService turns tasks and free text into estimates and task
// suggestions by delegating to an AI provider. Every failure it returns
// matches ai.ErrProvider.
type EstimationService struct {
	provider ai.Provider
	timeout  time.Duration
	logger   *slog.Logger
}

// EstimationOption configures an EstimationService.
type EstimationOption func(*EstimationService)

// WithEstimationTimeout overrides DefaultEstimationTimeout.
func WithEstimationTimeout(d time.Duration) EstimationOption {
	return func(s *EstimationService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithEstimationLogger sets the logger for dropped suggestions.
func WithEstimationLogger(l *slog.Logger) EstimationOption {
	return func(s *EstimationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewEstimationService(provider ai.Provider, opts ...EstimationOption) *EstimationService {
	s := &EstimationService{
		provider: provider,
		timeout:  DefaultEstimationTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout returns the per-call timeout.
func (s *EstimationService) Timeout() time.Duration {
	return s.timeout
}

// Estimate asks the provider to size a task. Story points are snapped to the
// allowed scale and confidence is clamped to [0,1].
func (s *EstimationService) Estimate(ctx context.Context, t *task.Task) (*Estimate, error) {
	prompt := fmt.Sprintf(`Estimate the effort of this development task.

Title: %s
Description: %s
Labels: %s
Priority: %s

Return a JSON object with: storyPoints (one of %s), estimatedHours, complexity
(low|medium|high|very-high), confidence (0..1), factors (list of strings) and reasoning.`,
		t.Title, orNone(t.Description), orNone(strings.Join(t.Labels, ", ")), t.Priority, scaleText())

	var raw struct {
		StoryPoints    float64  `json:"storyPoints"`
		EstimatedHours float64  `json:"estimatedHours"`
		Complexity     string   `json:"complexity"`
		Confidence     *float64 `json:"confidence"`
		Factors        []string `json:"factors"`
		Reasoning      string   `json:"reasoning"`
	}
	if err := s.completeJSON(ctx, "estimate", prompt, estimateSchemaJSON, estimateSchemaLoader, "", &raw); err != nil {
		return nil, err
	}
	if raw.StoryPoints <= 0 && raw.EstimatedHours <= 0 {
		return nil, ai.NewProviderError(s.provider.ID(), "estimate", errors.New("estimate has neither story points nor hours"))
	}

	points := task.NearestPoints(raw.StoryPoints)
	if raw.StoryPoints <= 0 {
		points = task.NearestPoints(raw.EstimatedHours / hoursPerPoint)
	}
	hours := raw.EstimatedHours
	if hours <= 0 {
		hours = float64(points) * hoursPerPoint
	}
	confidence := 0.5
	if raw.Confidence != nil {
		confidence = task.ClampConfidence(*raw.Confidence)
	}
	complexity := normalizeComplexity(raw.Complexity)
	if complexity == "" {
		complexity = complexityFor(points)
	}
	return &Estimate{
		StoryPoints:    points,
		EstimatedHours: hours,
		Complexity:     complexity,
		Confidence:     confidence,
		Factors:        raw.Factors,
		Reasoning:      strings.TrimSpace(raw.Reasoning),
		Source:         SourceAI,
	}, nil
}

// Expand asks the provider to break a task into at most c.MaxTasks subtasks.
func (s *EstimationService) Expand(ctx context.Context, parent *task.Task, c ExpandConstraints) (*Breakdown, error) {
	prompt := fmt.Sprintf(`Break this development task into at most %d concrete subtasks.

Title: %s
Description: %s
%s
%s`, c.maxTasks(), parent.Title, orNone(parent.Description), contextLine(c.Context), breakdownInstructions())
	return s.breakdown(ctx, "expand", prompt, c.maxTasks())
}

// GenerateFromText proposes tasks for a free-text feature description.
func (s *EstimationService) GenerateFromText(ctx context.Context, text string, c ExpandConstraints) (*Breakdown, error) {
	if strings.TrimSpace(text) == "" {
		return nil, task.Invalid("", "text", "feature description is required")
	}
	prompt := fmt.Sprintf(`Plan at most %d development tasks that implement this feature.

Feature: %s
%s
%s`, c.maxTasks(), strings.TrimSpace(text), contextLine(c.Context), breakdownInstructions())
	return s.breakdown(ctx, "generate", prompt, c.maxTasks())
}

func (s *EstimationService) breakdown(ctx context.Context, op, prompt string, maxTasks int) (*Breakdown, error) {
	var raw struct {
		Subtasks          []map[string]any `json:"subtasks"`
		EstimatedTimeline string           `json:"estimatedTimeline"`
		RiskFactors       []string         `json:"riskFactors"`
	}
	if err := s.completeJSON(ctx, op, prompt, breakdownSchemaJSON, breakdownSchemaLoader, "subtasks", &raw); err != nil {
		return nil, err
	}

	out := &Breakdown{
		EstimatedTimeline: strings.TrimSpace(raw.EstimatedTimeline),
		RiskFactors:       raw.RiskFactors,
		Source:            SourceAI,
	}
	// Original provider index of each accepted suggestion, for remapping.
	kept := make(map[int]int)
	var rawDeps [][]int
	for i, item := range raw.Subtasks {
		if len(out.Subtasks) == maxTasks {
			out.Dropped += len(raw.Subtasks) - i
			s.logger.Warn("ai suggestions truncated", "op", op, "max_tasks", maxTasks, "received", len(raw.Subtasks))
			break
		}
		sug, deps, err := normalizeSuggestion(item)
		if err != nil {
			out.Dropped++
			s.logger.Warn("dropping malformed ai suggestion", "op", op, "index", i, "reason", err.Error())
			continue
		}
		kept[i] = len(out.Subtasks)
		out.Subtasks = append(out.Subtasks, sug)
		rawDeps = append(rawDeps, deps)
	}
	if len(out.Subtasks) == 0 {
		return nil, ai.NewProviderError(s.provider.ID(), op, errors.New("no well-formed suggestions in answer"))
	}

	for i, deps := range rawDeps {
		for _, d := range deps {
			j, ok := kept[d]
			if !ok || j == i {
				s.logger.Warn("dropping ai dependency reference", "op", op, "subtask", i, "depends_on", d)
				continue
			}
			if !slices.Contains(out.Subtasks[i].DependsOn, j) {
				out.Subtasks[i].DependsOn = append(out.Subtasks[i].DependsOn, j)
			}
		}
	}
	return out, nil
}

// completeJSON performs one provider call under the service timeout and
// decodes the schema-validated payload into dst. A bare array answer is
// wrapped under arrayKey when one is given.
func (s *EstimationService) completeJSON(ctx context.Context, op, prompt, schema string, loader gojsonschema.JSONLoader, arrayKey string, dst any) error {
	id := s.provider.ID()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.Complete(ctx, ai.CompletionRequest{
		Prompt:      prompt,
		System:      "You are an experienced agile technical lead. You answer with JSON only.",
		Temperature: 0.2,
		MaxTokens:   2000,
		Schema:      schema,
	})
	if err != nil {
		if errors.Is(err, ai.ErrProvider) {
			return err
		}
		return ai.NewProviderError(id, op, err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return ai.NewProviderError(id, op, errors.New("empty response"))
	}

	payload := extractJSONPayload(resp.Text)
	if arrayKey != "" && strings.HasPrefix(payload, "[") {
		payload = fmt.Sprintf(`{%q:%s}`, arrayKey, payload)
	}
	s.logger.Debug("ai response", "op", op, "model", resp.Model,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)

	result, err := gojsonschema.Validate(loader, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return ai.NewProviderError(id, op, fmt.Errorf("malformed JSON: %w", err))
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return ai.NewProviderError(id, op, fmt.Errorf("schema violation: %s", strings.Join(issues, "; ")))
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return ai.NewProviderError(id, op, fmt.Errorf("decode answer: %w", err))
	}
	return nil
}

// HeuristicEstimate sizes a task from its text alone. It is the fallback
// when the provider is unavailable and never fails.
func HeuristicEstimate(title, description string) *Estimate {
	text := strings.ToLower(title + " " + description)
	score := 1
	var factors []string

	switch n := len([]rune(description)); {
	case n > 1500:
		score += 3
		factors = append(factors, "very long description")
	case n > 600:
		score += 2
		factors = append(factors, "long description")
	case n > 150:
		score++
		factors = append(factors, "detailed description")
	}
	for _, kw := range complexKeywords {
		if strings.Contains(text, kw) {
			score++
			factors = append(factors, "mentions "+kw)
		}
	}
	for _, kw := range simpleKeywords {
		if strings.Contains(text, kw) {
			score--
			factors = append(factors, "mentions "+kw)
		}
	}
	if score < 1 {
		score = 1
	}
	idx := min(score-1, len(task.StoryPointScale)-1)
	points := task.StoryPointScale[idx]
	return &Estimate{
		StoryPoints:    points,
		EstimatedHours: float64(points) * hoursPerPoint,
		Complexity:     complexityFor(points),
		Confidence:     0.3,
		Factors:        factors,
		Reasoning:      "heuristic estimate from description length and keywords",
		Source:         SourceHeuristic,
	}
}

var complexKeywords = []string{
	"refactor", "migrat", "architect", "security", "auth", "integrat",
	"database", "performance", "concurren", "distributed", "api",
}

var simpleKeywords = []string{"typo", "rename", "readme", "docs", "bump", "copy"}

// HeuristicBreakdown is the fallback for Expand: a single subtask covering
// the whole parent, sized heuristically.
func HeuristicBreakdown(parent *task.Task) *Breakdown {
	est := HeuristicEstimate(parent.Title, parent.Description)
	return &Breakdown{
		Subtasks: []Suggestion{{
			Title:          truncateRunes("Implement: "+parent.Title, task.MaxTitleLength),
			Description:    parent.Description,
			Priority:       parent.Priority,
			StoryPoints:    est.StoryPoints,
			EstimatedHours: est.EstimatedHours,
			Labels:         append([]string(nil), parent.Labels...),
		}},
		Source: SourceHeuristic,
	}
}

func normalizeSuggestion(raw map[string]any) (Suggestion, []int, error) {
	title := strings.TrimSpace(getString(raw, "title", "name", "summary"))
	if title == "" {
		return Suggestion{}, nil, errors.New("missing title")
	}
	points := getNumber(raw, "storyPoints", "story_points", "points")
	hours := getNumber(raw, "estimatedHours", "estimated_hours", "hours")
	if points <= 0 && hours <= 0 {
		return Suggestion{}, nil, fmt.Errorf("subtask %q has no estimate", title)
	}

	sug := Suggestion{
		Title:       truncateRunes(title, task.MaxTitleLength),
		Description: truncateRunes(strings.TrimSpace(getString(raw, "description", "details")), task.MaxDescriptionLength),
		Priority:    task.DefaultPriority(),
		Labels:      getStrings(raw, "labels", "tags"),
	}
	if p, err := task.ParsePriority(getString(raw, "priority")); err == nil {
		sug.Priority = p
	}
	if points > 0 {
		sug.StoryPoints = task.NearestPoints(points)
	} else {
		sug.StoryPoints = task.NearestPoints(hours / hoursPerPoint)
	}
	sug.EstimatedHours = hours
	if hours <= 0 {
		sug.EstimatedHours = float64(sug.StoryPoints) * hoursPerPoint
	}
	if len(sug.Labels) > task.MaxLabels {
		sug.Labels = sug.Labels[:task.MaxLabels]
	}
	sug.AcceptanceCriteria = getStrings(raw, "acceptanceCriteria", "acceptance_criteria")

	var deps []int
	for _, key := range []string{"dependsOn", "depends_on", "dependencies"} {
		list, ok := raw[key].([]any)
		if !ok {
			continue
		}
		for _, v := range list {
			if f, ok := v.(float64); ok && f >= 0 && f == math.Trunc(f) {
				deps = append(deps, int(f))
			}
		}
		break
	}
	return sug, deps, nil
}

func getString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func getNumber(raw map[string]any, keys ...string) float64 {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			return v
		case string:
			var f float64
			if _, err := fmt.Sscanf(strings.TrimSpace(v), "%g", &f); err == nil {
				return f
			}
		}
	}
	return 0
}

func getStrings(raw map[string]any, keys ...string) []string {
	for _, k := range keys {
		list, ok := raw[k].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, v := range list {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

func extractJSONPayload(text string) string {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return clean
	}

	// Prose around the payload: take the first array or object.
	start := strings.IndexAny(clean, "[{")
	if start == -1 {
		return clean
	}
	closer := "}"
	if clean[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(clean, closer)
	if end <= start {
		return clean[start:]
	}
	return clean[start : end+1]
}

func breakdownInstructions() string {
	return fmt.Sprintf(`Return a JSON object with:
- subtasks: list of objects with title, description, storyPoints (one of %s),
  estimatedHours, priority (critical|high|medium|low), labels, acceptanceCriteria
  and dependsOn (zero-based indexes of subtasks in this list that must be done first)
- estimatedTimeline: short text
- riskFactors: list of strings`, scaleText())
}

func contextLine(c string) string {
	if strings.TrimSpace(c) == "" {
		return ""
	}
	return "Context: " + strings.TrimSpace(c) + "\n"
}

func scaleText() string {
	parts := make([]string, len(task.StoryPointScale))
	for i, p := range task.StoryPointScale {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ", ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func normalizeComplexity(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case task.ComplexityLow, "simple", "trivial":
		return task.ComplexityLow
	case task.ComplexityMedium, "moderate":
		return task.ComplexityMedium
	case task.ComplexityHigh, "complex":
		return task.ComplexityHigh
	case task.ComplexityVeryHigh, "very high", "very_high", "epic":
		return task.ComplexityVeryHigh
	}
	return ""
}

func complexityFor(points int) string {
	switch {
	case points <= 2:
		return task.ComplexityLow
	case points <= 5:
		return task.ComplexityMedium
	case points <= 13:
		return task.ComplexityHigh
	default:
		return task.ComplexityVeryHigh
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
