// Package graph analyzes the dependency structure of a task set.
//
// Only blocked_by edges carry ordering. They are arcs from the dependent task
// to the task it waits on. A legacy blocks edge on task A pointing at B is read
// as B blocked_by A, so both spellings produce the same graph. The reverse
// (blocks) view is always derived here and never stored.
package graph

import (
	"cmp"
	"slices"

	"github.com/felixgeelhaar/critical-claude/pkg/domain/task"
)

// Graph is an immutable dependency graph built from a task snapshot.
type Graph struct {
	nodes map[string]*task.Task
	// order holds node ids sorted by creation time, then id.
	order []string
	// waitsOn maps a dependent to the tasks it is blocked by.
	waitsOn map[string][]string
	// unblocks maps a dependency to the tasks waiting on it.
	unblocks map[string][]string
	dangling []task.Edge
}

// Build constructs the graph. Edges that reference unknown tasks are kept
// aside as dangling and do not become arcs.
func Build(tasks []*task.Task) *Graph {
	g := &Graph{
		nodes:    make(map[string]*task.Task, len(tasks)),
		waitsOn:  make(map[string][]string),
		unblocks: make(map[string][]string),
	}
	for _, t := range tasks {
		g.nodes[t.ID] = t
		g.order = append(g.order, t.ID)
	}
	slices.SortFunc(g.order, g.byCreation)

	for _, id := range g.order {
		for _, e := range edgesOf(g.nodes[id]) {
			if e.Type != task.DependencyBlockedBy {
				continue
			}
			if _, ok := g.nodes[e.From]; !ok {
				g.dangling = append(g.dangling, e)
				continue
			}
			if _, ok := g.nodes[e.To]; !ok {
				g.dangling = append(g.dangling, e)
				continue
			}
			g.addArc(e.From, e.To)
		}
	}
	for id := range g.waitsOn {
		slices.SortFunc(g.waitsOn[id], g.byCreation)
	}
	for id := range g.unblocks {
		slices.SortFunc(g.unblocks[id], g.byCreation)
	}
	return g
}

// edgesOf returns a task's declared edges in canonical form.
func edgesOf(t *task.Task) []task.Edge {
	edges := make([]task.Edge, 0, len(t.Dependencies))
	for _, d := range t.Dependencies {
		e := task.Edge{From: t.ID, To: d.TaskID, Type: d.Type, CreatedAt: d.CreatedAt}
		edges = append(edges, e.Canonical())
	}
	return edges
}

func (g *Graph) addArc(dependent, dependency string) {
	if slices.Contains(g.waitsOn[dependent], dependency) {
		return
	}
	g.waitsOn[dependent] = append(g.waitsOn[dependent], dependency)
	g.unblocks[dependency] = append(g.unblocks[dependency], dependent)
}

func (g *Graph) byCreation(a, b string) int {
	ta, tb := g.nodes[a], g.nodes[b]
	if ta == nil || tb == nil {
		return cmp.Compare(a, b)
	}
	if c := ta.CreatedAt.Compare(tb.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// Task returns the node with the given id.
func (g *Graph) Task(id string) (*task.Task, bool) {
	t, ok := g.nodes[id]
	return t, ok
}

// WaitsOn returns the ids id is blocked by.
func (g *Graph) WaitsOn(id string) []string {
	return slices.Clone(g.waitsOn[id])
}

// Unblocks returns the ids blocked by id. This is the derived blocks index.
func (g *Graph) Unblocks(id string) []string {
	return slices.Clone(g.unblocks[id])
}

// Reaches reports whether a path of blocked_by arcs leads from src to dst.
func (g *Graph) Reaches(src, dst string) bool {
	if src == dst {
		return true
	}
	seen := map[string]bool{src: true}
	stack := []string{src}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.waitsOn[n] {
			if next == dst {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

const (
	white = iota
	grey
	black
)

// FirstCycle runs a colored DFS in creation order and returns the members of
// the cycle closed by the first back edge found, or nil.
func (g *Graph) FirstCycle() []string {
	color := make(map[string]int, len(g.nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		path = append(path, id)
		for _, next := range g.waitsOn[id] {
			switch color[next] {
			case grey:
				start := slices.Index(path, next)
				cycle = slices.Clone(path[start:])
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopoOrder returns dependencies before dependents using Kahn's algorithm.
// Among ready nodes the earliest created goes first. Nodes on or behind a
// cycle are left out; ok is false in that case.
func (g *Graph) TopoOrder() (order []string, ok bool) {
	pending := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		pending[id] = len(g.waitsOn[id])
	}

	var ready []string
	for _, id := range g.order {
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dependent := range g.unblocks[id] {
			pending[dependent]--
			if pending[dependent] == 0 {
				ready = append(ready, dependent)
				slices.SortFunc(ready, g.byCreation)
			}
		}
	}
	return order, len(order) == len(g.nodes)
}
