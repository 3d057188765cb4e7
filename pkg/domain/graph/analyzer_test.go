package graph_test

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/graph"
	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// build creates tasks created one minute apart in argument order.
func build(specs ...string) map[string]*task.Task {
	out := make(map[string]*task.Task)
	for i, id := range specs {
		out[id] = &task.Task{
			ID:        id,
			Title:     id,
			Status:    task.StatusTodo,
			Priority:  task.PriorityMedium,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func blockedBy(t *task.Task, ids ...string) {
	for _, id := range ids {
		t.AddDependency(id, task.DependencyBlockedBy, base)
	}
}

func list(m map[string]*task.Task) []*task.Task {
	out := make([]*task.Task, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	return out
}

func TestCriticalPath_Chain(t *testing.T) {
	ts := build("A", "B", "C")
	ts["A"].StoryPoints, ts["B"].StoryPoints, ts["C"].StoryPoints = 3, 5, 2
	blockedBy(ts["B"], "A")
	blockedBy(ts["C"], "B")

	cp, err := graph.NewAnalyzer().CriticalPath(list(ts))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cp.TaskIDs, []string{"A", "B", "C"}) {
		t.Errorf("path = %v", cp.TaskIDs)
	}
	if cp.Weight != 10 {
		t.Errorf("weight = %v", cp.Weight)
	}
}

func TestCriticalPath_PicksHeaviestBranchAndBreaksTies(t *testing.T) {
	ts := build("root", "light", "heavy", "tieA", "tieB", "leaf")
	ts["root"].StoryPoints = 1
	ts["light"].StoryPoints = 2
	ts["heavy"].EstimatedHours = 8
	ts["tieA"].StoryPoints = 3
	ts["tieB"].StoryPoints = 3
	ts["leaf"].StoryPoints = 1
	blockedBy(ts["light"], "root")
	blockedBy(ts["heavy"], "root")
	blockedBy(ts["leaf"], "light", "heavy")

	cp, err := graph.NewAnalyzer().CriticalPath(list(ts))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cp.TaskIDs, []string{"root", "heavy", "leaf"}) {
		t.Errorf("path = %v", cp.TaskIDs)
	}

	ties := build("x", "y")
	ties["x"].StoryPoints, ties["y"].StoryPoints = 5, 5
	cp, _ = graph.NewAnalyzer().CriticalPath(list(ties))
	if !slices.Equal(cp.TaskIDs, []string{"x"}) {
		t.Errorf("tie should go to earliest created: %v", cp.TaskIDs)
	}
}

func TestCriticalPath_SkipsArchivedAndRejectsCycles(t *testing.T) {
	ts := build("A", "B")
	ts["A"].Status = task.StatusArchivedDone
	ts["A"].StoryPoints = 21
	blockedBy(ts["B"], "A")
	cp, err := graph.NewAnalyzer().CriticalPath(list(ts))
	if err != nil || !slices.Equal(cp.TaskIDs, []string{"B"}) {
		t.Errorf("path = %v, err = %v", cp.TaskIDs, err)
	}

	cyc := build("A", "B")
	blockedBy(cyc["A"], "B")
	blockedBy(cyc["B"], "A")
	if _, err := graph.NewAnalyzer().CriticalPath(list(cyc)); !errors.Is(err, task.ErrCircularDependency) {
		t.Errorf("err = %v", err)
	}
}

func TestDetectCycles(t *testing.T) {
	ts := build("A", "B", "C", "D")
	blockedBy(ts["A"], "B")
	blockedBy(ts["B"], "C")
	blockedBy(ts["C"], "A")
	blockedBy(ts["D"], "A")

	cycle := graph.NewAnalyzer().DetectCycles(list(ts))
	if !slices.Equal(cycle, []string{"A", "B", "C"}) {
		t.Errorf("cycle = %v", cycle)
	}

	acyclic := build("A", "B")
	blockedBy(acyclic["B"], "A")
	if c := graph.NewAnalyzer().DetectCycles(list(acyclic)); c != nil {
		t.Errorf("unexpected cycle %v", c)
	}
}

func TestWouldCreateCycle(t *testing.T) {
	ts := build("T1", "T2", "T3")
	blockedBy(ts["T2"], "T1")
	blockedBy(ts["T3"], "T2")
	a := graph.NewAnalyzer()

	tests := []struct {
		dependent, dependency string
		want                  bool
	}{
		{"T1", "T2", true},
		{"T1", "T3", true},
		{"T1", "T1", true},
		{"T3", "T1", false},
		{"T2", "T3", true},
	}
	for _, tt := range tests {
		if got := a.WouldCreateCycle(list(ts), tt.dependent, tt.dependency); got != tt.want {
			t.Errorf("WouldCreateCycle(%s, %s) = %v", tt.dependent, tt.dependency, got)
		}
	}

	err := a.CheckEdge(list(ts), task.Edge{From: "T3", To: "T1", Type: task.DependencyBlocks})
	if !errors.Is(err, task.ErrCircularDependency) {
		t.Errorf("T3 blocks T1 is T1 blocked_by T3 and closes a cycle: %v", err)
	}
	if err := a.CheckEdge(list(ts), task.Edge{From: "T1", To: "T3", Type: task.DependencyRelated}); err != nil {
		t.Errorf("related edges never form cycles: %v", err)
	}
}

func TestLegacyBlocksEdgesAreNormalized(t *testing.T) {
	ts := build("A", "B")
	ts["A"].AddDependency("B", task.DependencyBlocks, base)
	a := graph.NewAnalyzer()
	if got := a.Dependents(list(ts), "A"); !slices.Equal(got, []string{"B"}) {
		t.Errorf("dependents = %v", got)
	}
	if !a.WouldCreateCycle(list(ts), "A", "B") {
		t.Error("A blocked_by B should close a cycle with A blocks B")
	}
}

func TestBottlenecks(t *testing.T) {
	ts := build("hub", "small", "a", "b", "c", "d", "gone")
	blockedBy(ts["a"], "hub", "small")
	blockedBy(ts["b"], "hub", "small")
	blockedBy(ts["c"], "hub", "small")
	blockedBy(ts["d"], "hub")
	ts["gone"].Status = task.StatusArchivedDimmed
	blockedBy(ts["gone"], "small")

	got := graph.NewAnalyzer().Bottlenecks(list(ts))
	if len(got) != 2 || got[0].TaskID != "hub" || len(got[0].Dependents) != 4 || got[1].TaskID != "small" {
		t.Errorf("bottlenecks = %+v", got)
	}

	got = graph.NewAnalyzer(graph.WithBottleneckThreshold(4)).Bottlenecks(list(ts))
	if len(got) != 1 {
		t.Errorf("threshold 4 bottlenecks = %+v", got)
	}
}

func TestConflicts(t *testing.T) {
	ts := build("done", "open", "x", "y", "p", "q")
	ts["done"].Status = task.StatusDone
	blockedBy(ts["done"], "open", "ghost")
	blockedBy(ts["x"], "y")
	blockedBy(ts["y"], "x")
	ts["p"].AddDependency("q", task.DependencyBlocks, base)
	blockedBy(ts["q"], "p")

	conflicts := graph.NewAnalyzer().Conflicts(list(ts))
	joined := strings.Join(conflicts, "\n")
	for _, want := range []string{"stale completion", "does not exist", "mutual dependency", "redundant"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in:\n%s", want, joined)
		}
	}
}

func TestAnalyze(t *testing.T) {
	ts := build("A", "B", "C")
	ts["A"].Status = task.StatusDone
	blockedBy(ts["B"], "A")
	blockedBy(ts["C"], "B")

	r := graph.NewAnalyzer().Analyze(list(ts))
	if r.TaskCount != 3 || r.EdgeCount != 2 || r.Cycle != nil {
		t.Errorf("report = %+v", r)
	}
	if !slices.Equal(r.Ready, []string{"B"}) {
		t.Errorf("ready = %v", r.Ready)
	}
	if !slices.Equal(r.Blocks["A"], []string{"B"}) {
		t.Errorf("blocks = %v", r.Blocks)
	}
	if len(r.CriticalPath.TaskIDs) != 3 {
		t.Errorf("critical path = %v", r.CriticalPath)
	}
}

// Edges accepted through CheckEdge never produce a cycle.
func TestCheckEdge_KeepsGraphAcyclic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(rt, "n")
		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("t%d", i)
		}
		ts := build(names...)
		a := graph.NewAnalyzer()

		attempts := rapid.IntRange(0, 30).Draw(rt, "attempts")
		for i := 0; i < attempts; i++ {
			from := rapid.SampledFrom(names).Draw(rt, "from")
			to := rapid.SampledFrom(names).Draw(rt, "to")
			typ := rapid.SampledFrom([]task.DependencyType{task.DependencyBlockedBy, task.DependencyBlocks}).Draw(rt, "type")
			e := task.Edge{From: from, To: to, Type: typ}
			if a.CheckEdge(list(ts), e) != nil {
				continue
			}
			ts[from].AddDependency(to, typ, base)
			if cycle := a.DetectCycles(list(ts)); cycle != nil {
				rt.Fatalf("accepted %s %s %s produced cycle %v", from, typ, to, cycle)
			}
		}
		if _, err := a.CriticalPath(list(ts)); err != nil {
			rt.Fatalf("critical path on acyclic graph: %v", err)
		}
	})
}
