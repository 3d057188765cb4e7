package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// DefaultBottleneckThreshold is the dependent count at which a task is a bottleneck.
const DefaultBottleneckThreshold = 3

// Analyzer answers structural queries over a task set.
type Analyzer struct {
	threshold int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBottleneckThreshold overrides the bottleneck threshold.
func WithBottleneckThreshold(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.threshold = n
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{threshold: DefaultBottleneckThreshold}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Threshold returns the configured bottleneck threshold.
func (a *Analyzer) Threshold() int {
	return a.threshold
}

// Bottleneck is a task many others wait on.
type Bottleneck struct {
	TaskID     string   `json:"taskId"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Dependents []string `json:"dependents"`
}

// CriticalPath is the heaviest chain of blocked_by dependencies.
type CriticalPath struct {
	TaskIDs []string `json:"taskIds"`
	Weight  float64  `json:"weight"`
}

// Report bundles every analysis.
type Report struct {
	TaskCount    int                 `json:"taskCount"`
	EdgeCount    int                 `json:"edgeCount"`
	Cycle        []string            `json:"cycle,omitempty"`
	CriticalPath CriticalPath        `json:"criticalPath"`
	Bottlenecks  []Bottleneck        `json:"bottlenecks"`
	Conflicts    []string            `json:"conflicts"`
	Ready        []string            `json:"ready"`
	Blocks       map[string][]string `json:"blocks,omitempty"`
}

// DetectCycles returns the members of the first cycle found, or nil.
func (a *Analyzer) DetectCycles(tasks []*task.Task) []string {
	return Build(tasks).FirstCycle()
}

// WouldCreateCycle reports whether adding "dependent blocked_by dependency"
// closes a cycle. It is a reachability search from dependency back to dependent.
func (a *Analyzer) WouldCreateCycle(tasks []*task.Task, dependent, dependency string) bool {
	if dependent == dependency {
		return true
	}
	return Build(tasks).Reaches(dependency, dependent)
}

// CheckEdge returns a CircularDependency error if the edge would close a cycle.
func (a *Analyzer) CheckEdge(tasks []*task.Task, e task.Edge) error {
	e = e.Canonical()
	if e.Type != task.DependencyBlockedBy {
		if e.From == e.To {
			return task.NewRuleError(task.ErrCircularDependency, e.From, "self-dependency", "a task cannot relate to itself")
		}
		return nil
	}
	g := Build(tasks)
	if e.From == e.To || g.Reaches(e.To, e.From) {
		return task.NewRuleError(task.ErrCircularDependency, e.From, "acyclic",
			fmt.Sprintf("%s blocked_by %s would close a cycle", e.From, e.To))
	}
	return nil
}

// CriticalPath computes the longest weighted chain over non-archived tasks,
// root first. Weights are story points, else estimated hours, else 1. Ties
// prefer the earliest created task.
func (a *Analyzer) CriticalPath(tasks []*task.Task) (CriticalPath, error) {
	g := Build(activeTasks(tasks))
	order, ok := g.TopoOrder()
	if !ok {
		cycle := g.FirstCycle()
		return CriticalPath{}, task.NewRuleError(task.ErrCircularDependency, firstOf(cycle), "acyclic",
			"critical path is undefined while a cycle exists: "+strings.Join(cycle, " -> "))
	}
	if len(order) == 0 {
		return CriticalPath{}, nil
	}

	dist := make(map[string]float64, len(order))
	parent := make(map[string]string, len(order))
	for _, id := range order {
		node, _ := g.Task(id)
		best := 0.0
		for _, dep := range g.waitsOn[id] {
			// waitsOn is creation-ordered so the first strict maximum wins ties
			if d := dist[dep]; d > best {
				best = d
				parent[id] = dep
			}
		}
		dist[id] = best + node.Weight()
	}

	end := ""
	for _, id := range g.order {
		if end == "" || dist[id] > dist[end] {
			end = id
		}
	}

	var path []string
	for id := end; id != ""; id = parent[id] {
		path = append(path, id)
	}
	slices.Reverse(path)
	return CriticalPath{TaskIDs: path, Weight: dist[end]}, nil
}

// Bottlenecks returns non-archived tasks that at least threshold other
// non-archived tasks are blocked by, most dependents first.
func (a *Analyzer) Bottlenecks(tasks []*task.Task) []Bottleneck {
	g := Build(activeTasks(tasks))
	var out []Bottleneck
	for _, id := range g.order {
		dependents := g.unblocks[id]
		if len(dependents) < a.threshold {
			continue
		}
		t, _ := g.Task(id)
		out = append(out, Bottleneck{
			TaskID:     id,
			Title:      t.Title,
			Status:     string(t.Status),
			Dependents: slices.Clone(dependents),
		})
	}
	slices.SortStableFunc(out, func(x, y Bottleneck) int {
		return len(y.Dependents) - len(x.Dependents)
	})
	return out
}

// Conflicts describes inconsistencies in the declared dependencies.
func (a *Analyzer) Conflicts(tasks []*task.Task) []string {
	g := Build(tasks)
	var out []string

	for _, e := range g.dangling {
		out = append(out, fmt.Sprintf("%s is blocked by %s, which does not exist", e.From, e.To))
	}

	for _, id := range g.order {
		t, _ := g.Task(id)
		if t.Status.IsComplete() {
			for _, dep := range g.waitsOn[id] {
				d, _ := g.Task(dep)
				if !d.Status.IsComplete() {
					out = append(out, fmt.Sprintf("%s is %s but depends on %s which is %s (stale completion)",
						id, t.Status, dep, d.Status))
				}
			}
		}
		for _, dep := range g.waitsOn[id] {
			if id < dep && slices.Contains(g.waitsOn[dep], id) {
				out = append(out, fmt.Sprintf("%s and %s block each other (mutual dependency)", id, dep))
			}
		}
		for _, d := range t.Dependencies {
			if d.Type != task.DependencyBlocks {
				continue
			}
			other, ok := g.Task(d.TaskID)
			if ok && other.HasDependency(id, task.DependencyBlockedBy) {
				out = append(out, fmt.Sprintf("%s declares blocks %s and %s declares blocked_by %s (redundant, keep blocked_by)",
					id, d.TaskID, d.TaskID, id))
			}
		}
	}
	return out
}

// Dependents returns the ids blocked by id.
func (a *Analyzer) Dependents(tasks []*task.Task, id string) []string {
	return Build(tasks).Unblocks(id)
}

// Ready returns todo or dimmed tasks whose dependencies are all complete,
// in creation order.
func (a *Analyzer) Ready(tasks []*task.Task) []string {
	g := Build(tasks)
	var ready []string
	for _, id := range g.order {
		t, _ := g.Task(id)
		if t.Status != task.StatusTodo && t.Status != task.StatusDimmed {
			continue
		}
		satisfied := true
		for _, dep := range g.waitsOn[id] {
			if d, _ := g.Task(dep); !d.Status.IsComplete() {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// Analyze runs every query. A cycle leaves the critical path empty instead
// of failing the report.
func (a *Analyzer) Analyze(tasks []*task.Task) Report {
	g := Build(tasks)
	r := Report{
		TaskCount: len(tasks),
		Cycle:     g.FirstCycle(),
		Conflicts: a.Conflicts(tasks),
		Ready:     a.Ready(tasks),
		Blocks:    make(map[string][]string),
	}
	for _, deps := range g.waitsOn {
		r.EdgeCount += len(deps)
	}
	for id, dependents := range g.unblocks {
		r.Blocks[id] = slices.Clone(dependents)
	}
	if cp, err := a.CriticalPath(tasks); err == nil {
		r.CriticalPath = cp
	}
	r.Bottlenecks = a.Bottlenecks(tasks)
	return r
}

func activeTasks(tasks []*task.Task) []*task.Task {
	out := make([]*task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Status.IsArchived() {
			out = append(out, t)
		}
	}
	return out
}

func firstOf(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
