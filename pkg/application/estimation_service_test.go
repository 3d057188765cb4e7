package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/critical-claude/pkg/application"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/ai"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// fakeProvider answers with canned text or blocks until the context ends.
type fakeProvider struct {
	mu       sync.Mutex
	answers  []string
	err      error
	hang     bool
	requests []ai.CompletionRequest
}

func (p *fakeProvider) ID() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if p.err != nil {
		return nil, p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.answers) == 0 {
		return &ai.CompletionResponse{}, nil
	}
	text := p.answers[0]
	if len(p.answers) > 1 {
		p.answers = p.answers[1:]
	}
	return &ai.CompletionResponse{Text: text, Model: "fake-1"}, nil
}

func sampleTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := task.New("t-1", task.NewInput{
		Title:       "Add login endpoint",
		Description: "OAuth based login for the API",
		Labels:      []string{"backend"},
	}, "alice", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

func TestEstimationService_Estimate(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		points     int
		hours      float64
		confidence float64
		complexity string
	}{
		{
			name:       "exact values",
			answer:     `{"storyPoints": 5, "estimatedHours": 16, "complexity": "medium", "confidence": 0.8, "factors": ["oauth"]}`,
			points:     5,
			hours:      16,
			confidence: 0.8,
			complexity: task.ComplexityMedium,
		},
		{
			name:       "snaps points and clamps confidence",
			answer:     "Sure!\n```json\n{\"storyPoints\": 6, \"confidence\": 1.7}\n```",
			points:     5,
			hours:      20,
			confidence: 1,
			complexity: task.ComplexityMedium,
		},
		{
			name:       "hours only",
			answer:     `{"storyPoints": 0, "estimatedHours": 33, "confidence": -2, "complexity": "complex"}`,
			points:     8,
			hours:      33,
			confidence: 0,
			complexity: task.ComplexityHigh,
		},
		{
			name:       "huge estimate capped to scale",
			answer:     `{"storyPoints": 100}`,
			points:     21,
			hours:      84,
			confidence: 0.5,
			complexity: task.ComplexityVeryHigh,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := application.NewEstimationService(&fakeProvider{answers: []string{tt.answer}})
			est, err := svc.Estimate(context.Background(), sampleTask(t))
			if err != nil {
				t.Fatalf("Estimate: %v", err)
			}
			if est.StoryPoints != tt.points {
				t.Errorf("points = %d, want %d", est.StoryPoints, tt.points)
			}
			if est.EstimatedHours != tt.hours {
				t.Errorf("hours = %v, want %v", est.EstimatedHours, tt.hours)
			}
			if est.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", est.Confidence, tt.confidence)
			}
			if est.Complexity != tt.complexity {
				t.Errorf("complexity = %q, want %q", est.Complexity, tt.complexity)
			}
			if est.Source != application.SourceAI {
				t.Errorf("source = %q", est.Source)
			}
		})
	}
}

func TestEstimationService_Estimate_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{"transport error", &fakeProvider{err: errors.New("connection refused")}},
		{"empty answer", &fakeProvider{answers: []string{"   "}}},
		{"not json", &fakeProvider{answers: []string{"I think about five points"}}},
		{"schema violation", &fakeProvider{answers: []string{`{"storyPoints": "lots"}`}}},
		{"missing required field", &fakeProvider{answers: []string{`{"confidence": 0.9}`}}},
		{"zero estimate", &fakeProvider{answers: []string{`{"storyPoints": 0}`}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := application.NewEstimationService(tt.provider)
			_, err := svc.Estimate(context.Background(), sampleTask(t))
			if !errors.Is(err, ai.ErrProvider) {
				t.Fatalf("expected ai.ErrProvider, got %v", err)
			}
		})
	}
}

func TestEstimationService_Timeout(t *testing.T) {
	p := &fakeProvider{hang: true}
	svc := application.NewEstimationService(p, application.WithEstimationTimeout(20*time.Millisecond))
	if svc.Timeout() != 20*time.Millisecond {
		t.Fatalf("Timeout() = %v", svc.Timeout())
	}

	start := time.Now()
	_, err := svc.Expand(context.Background(), sampleTask(t), application.ExpandConstraints{MaxTasks: 5})
	if !errors.Is(err, ai.ErrProvider) {
		t.Fatalf("expected ai.ErrProvider, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout was not applied")
	}
}

func TestEstimationService_Expand(t *testing.T) {
	answer := `{
	  "subtasks": [
	    {"title": "Design schema", "storyPoints": 2, "priority": "high"},
	    {"title": "", "storyPoints": 3},
	    {"title": "Implement handler", "estimatedHours": 12, "dependsOn": [0]},
	    {"title": "No estimate"},
	    {"title": "Write tests", "storyPoints": 3, "dependsOn": [2, 3, 9, 4]}
	  ],
	  "estimatedTimeline": "1 week",
	  "riskFactors": ["token expiry"]
	}`
	p := &fakeProvider{answers: []string{answer}}
	svc := application.NewEstimationService(p)

	b, err := svc.Expand(context.Background(), sampleTask(t), application.ExpandConstraints{MaxTasks: 5, Context: "Go service"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(b.Subtasks) != 3 {
		t.Fatalf("expected 3 subtasks, got %d: %+v", len(b.Subtasks), b.Subtasks)
	}
	if b.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", b.Dropped)
	}
	if b.Subtasks[0].Priority != task.PriorityHigh {
		t.Errorf("priority = %q", b.Subtasks[0].Priority)
	}
	if b.Subtasks[1].StoryPoints != 3 || b.Subtasks[1].EstimatedHours != 12 {
		t.Errorf("hours-only subtask = %+v", b.Subtasks[1])
	}
	if got := b.Subtasks[1].DependsOn; len(got) != 1 || got[0] != 0 {
		t.Errorf("DependsOn[1] = %v, want [0]", got)
	}
	// Index 2 in the answer is the second kept suggestion; 3 was dropped,
	// 9 is out of range and 4 is itself.
	if got := b.Subtasks[2].DependsOn; len(got) != 1 || got[0] != 1 {
		t.Errorf("DependsOn[2] = %v, want [1]", got)
	}
	if b.EstimatedTimeline != "1 week" || len(b.RiskFactors) != 1 {
		t.Errorf("metadata = %q %v", b.EstimatedTimeline, b.RiskFactors)
	}
	if !strings.Contains(p.requests[0].Prompt, "Go service") {
		t.Error("constraint context not passed to provider")
	}
	if p.requests[0].Schema == "" {
		t.Error("schema not passed to provider")
	}
}

func TestEstimationService_Expand_TruncatesToMaxTasks(t *testing.T) {
	answer := `[
	  {"title": "a", "storyPoints": 1},
	  {"title": "b", "storyPoints": 1},
	  {"title": "c", "storyPoints": 1, "dependsOn": [0]}
	]`
	svc := application.NewEstimationService(&fakeProvider{answers: []string{answer}})
	b, err := svc.Expand(context.Background(), sampleTask(t), application.ExpandConstraints{MaxTasks: 2})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(b.Subtasks) != 2 || b.Dropped != 1 {
		t.Fatalf("got %d subtasks, %d dropped", len(b.Subtasks), b.Dropped)
	}
}

func TestEstimationService_Expand_NothingUsable(t *testing.T) {
	svc := application.NewEstimationService(&fakeProvider{answers: []string{`{"subtasks": [{"title": "x"}]}`}})
	_, err := svc.Expand(context.Background(), sampleTask(t), application.ExpandConstraints{})
	if !errors.Is(err, ai.ErrProvider) {
		t.Fatalf("expected ai.ErrProvider, got %v", err)
	}
}

func TestEstimationService_GenerateFromText(t *testing.T) {
	svc := application.NewEstimationService(&fakeProvider{answers: []string{`{"subtasks": [{"title": "Set up CI", "storyPoints": 2}]}`}})
	b, err := svc.GenerateFromText(context.Background(), "continuous delivery pipeline", application.ExpandConstraints{})
	if err != nil {
		t.Fatalf("GenerateFromText: %v", err)
	}
	if len(b.Subtasks) != 1 || b.Subtasks[0].Title != "Set up CI" {
		t.Fatalf("unexpected breakdown %+v", b)
	}

	_, err = svc.GenerateFromText(context.Background(), "  ", application.ExpandConstraints{})
	if !errors.Is(err, task.ErrValidation) {
		t.Fatalf("expected validation error for empty text, got %v", err)
	}
}

func TestHeuristicEstimate(t *testing.T) {
	small := application.HeuristicEstimate("Fix typo in README", "")
	if small.StoryPoints != 1 || small.Source != application.SourceHeuristic {
		t.Errorf("small = %+v", small)
	}

	big := application.HeuristicEstimate("Refactor auth", strings.Repeat("Migrate the database layer for performance. ", 40))
	if big.StoryPoints < 8 {
		t.Errorf("big estimate too small: %+v", big)
	}
	if !task.IsAllowedPoints(big.StoryPoints) {
		t.Errorf("points %d not on the scale", big.StoryPoints)
	}
	if big.EstimatedHours != float64(big.StoryPoints)*4 {
		t.Errorf("hours = %v", big.EstimatedHours)
	}
	if big.Confidence <= 0 || big.Confidence > 1 {
		t.Errorf("confidence = %v", big.Confidence)
	}
}

func TestHeuristicBreakdown(t *testing.T) {
	parent := sampleTask(t)
	b := application.HeuristicBreakdown(parent)
	if len(b.Subtasks) != 1 {
		t.Fatalf("expected a single subtask, got %d", len(b.Subtasks))
	}
	if b.Source != application.SourceHeuristic || b.Subtasks[0].StoryPoints == 0 {
		t.Errorf("unexpected fallback %+v", b)
	}
}
