// Package dag provides the dependency graph over node unique ids.
// It supports cycle detection, topological sorting, transitive closure and
// induced subgraphs used for node selection.
package dag

import (
	"fmt"
	"maps"
	"slices"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

type idSet map[string]struct{}

func (s idSet) sorted() []string { return slices.Sorted(maps.Keys(s)) }

// Graph is a directed graph over unique ids.
// An edge parent → child means child depends on parent.
type Graph struct {
	children adjacency
	parents  adjacency
}

// adjacency maps a vertex to its neighbours. Every vertex has an entry.
type adjacency map[string]idSet

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{children: adjacency{}, parents: adjacency{}}
}

// AddNode adds a vertex. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) {
	if g.HasNode(id) {
		return
	}
	g.children[id] = idSet{}
	g.parents[id] = idSet{}
}

// HasNode reports whether the vertex exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.children[id]
	return ok
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Self loops are accepted so that FindCycle reports them.
func (g *Graph) AddEdge(parentID, childID string) error {
	switch {
	case !g.HasNode(parentID):
		return fmt.Errorf("parent node %q does not exist", parentID)
	case !g.HasNode(childID):
		return fmt.Errorf("child node %q does not exist", childID)
	}
	g.children[parentID][childID] = struct{}{}
	g.parents[childID][parentID] = struct{}{}
	return nil
}

// HasEdge reports whether parent → child exists.
func (g *Graph) HasEdge(parentID, childID string) bool {
	_, ok := g.children[parentID][childID]
	return ok
}

// RemoveNode deletes a vertex and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	for child := range g.children[id] {
		delete(g.parents[child], id)
	}
	for parent := range g.parents[id] {
		delete(g.children[parent], id)
	}
	delete(g.children, id)
	delete(g.parents, id)
}

// Parents returns the direct dependencies of a node, sorted.
func (g *Graph) Parents(id string) []string { return g.parents[id].sorted() }

// Children returns the direct dependents of a node, sorted.
func (g *Graph) Children(id string) []string { return g.children[id].sorted() }

// InDegree returns the number of direct dependencies of a node.
func (g *Graph) InDegree(id string) int { return len(g.parents[id]) }

// Nodes returns all vertex ids, sorted.
func (g *Graph) Nodes() []string { return slices.Sorted(maps.Keys(g.children)) }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.children) }

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, out := range g.children {
		n += len(out)
	}
	return n
}

// Edges returns every edge as a [parent, child] pair, sorted.
func (g *Graph) Edges() [][2]string {
	var out [][2]string
	for _, parent := range g.Nodes() {
		for _, child := range g.Children(parent) {
			out = append(out, [2]string{parent, child})
		}
	}
	return out
}

// Copy returns an independent copy of the graph.
func (g *Graph) Copy() *Graph {
	c := NewGraph()
	for id := range g.children {
		c.children[id] = maps.Clone(g.children[id])
		c.parents[id] = maps.Clone(g.parents[id])
	}
	return c
}

// FindCycle returns nil if the graph is acyclic, otherwise one cycle as a
// path whose first and last ids are the same. Vertices and edges are
// visited in sorted order so the reported cycle is stable.
func (g *Graph) FindCycle() []string {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(g.children))
	var path, cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = onPath
		path = append(path, id)
		for _, child := range g.Children(id) {
			switch state[child] {
			case onPath:
				start := slices.Index(path, child)
				cycle = append(slices.Clone(path[start:]), child)
				return true
			case unvisited:
				if visit(child) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return false
	}

	for _, id := range g.Nodes() {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// waves peels the graph from its roots: each wave holds the vertices whose
// parents all sit in earlier waves. It fails with *core.CycleError when
// vertices remain that no wave can take.
func (g *Graph) waves() ([][]string, error) {
	pending := make(map[string]int, len(g.parents))
	var ready []string
	for id, in := range g.parents {
		pending[id] = len(in)
		if len(in) == 0 {
			ready = append(ready, id)
		}
	}

	var out [][]string
	placed := 0
	for len(ready) > 0 {
		slices.Sort(ready)
		out = append(out, ready)
		placed += len(ready)

		var next []string
		for _, id := range ready {
			for child := range g.children[id] {
				pending[child]--
				if pending[child] == 0 {
					next = append(next, child)
				}
			}
		}
		ready = next
	}

	if placed < len(g.children) {
		return nil, &core.CycleError{Path: g.FindCycle()}
	}
	return out, nil
}

// TopologicalSort returns ids in dependency order (dependencies first).
// Returns *core.CycleError if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	levels, err := g.waves()
	if err != nil {
		return nil, err
	}
	return slices.Concat(levels...), nil
}

// GetExecutionLevels returns nodes grouped by execution level.
// Nodes at level N can be executed in parallel after level N-1 completes.
// Level 0 contains nodes with no dependencies.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	levels, err := g.waves()
	if err != nil {
		return nil, err
	}
	if levels == nil {
		levels = [][]string{}
	}
	return levels, nil
}

// reach returns every vertex reachable from id through adj.
func reach(adj adjacency, id string) idSet {
	seen := idSet{}
	stack := slices.Collect(maps.Keys(adj[id]))
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[cur]; ok {
			continue
		}
		seen[cur] = struct{}{}
		for next := range adj[cur] {
			stack = append(stack, next)
		}
	}
	return seen
}

// Descendants returns every node reachable from id, sorted. id itself is not
// included unless it sits on a cycle.
func (g *Graph) Descendants(id string) []string { return reach(g.children, id).sorted() }

// Ancestors returns every node id depends on, directly or transitively, sorted.
func (g *Graph) Ancestors(id string) []string { return reach(g.parents, id).sorted() }

// GetAffectedNodes returns the given nodes and all their downstream
// dependents. Unknown ids are ignored.
func (g *Graph) GetAffectedNodes(changedIDs []string) []string {
	affected := idSet{}
	for _, id := range changedIDs {
		if !g.HasNode(id) {
			continue
		}
		affected[id] = struct{}{}
		maps.Copy(affected, reach(g.children, id))
	}
	return affected.sorted()
}

func (g *Graph) unlinked(adj adjacency) []string {
	var ids []string
	for _, id := range g.Nodes() {
		if len(adj[id]) == 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Roots returns nodes with no parents (no dependencies).
func (g *Graph) Roots() []string { return g.unlinked(g.parents) }

// Leaves returns nodes with no children (no dependents).
func (g *Graph) Leaves() []string { return g.unlinked(g.children) }

// TransitiveClosure returns a new graph with an edge a → b for every pair
// where b is reachable from a.
func (g *Graph) TransitiveClosure() *Graph {
	closure := NewGraph()
	for id := range g.children {
		closure.AddNode(id)
	}
	for id := range g.children {
		for d := range reach(g.children, id) {
			_ = closure.AddEdge(id, d)
		}
	}
	return closure
}

// InducedSubgraph keeps only the given ids. Dependencies that ran through a
// removed node are preserved: with a → b → c, keeping {a, c} yields a → c.
// Every kept ancestor becomes a direct parent, which is what scheduling needs.
// Returns *core.SelectionError when a kept id is not in the graph.
func (g *Graph) InducedSubgraph(keep []string) (*Graph, error) {
	return g.subgraph(keep, func(id string, kept idSet) idSet {
		out := idSet{}
		for d := range reach(g.children, id) {
			if _, ok := kept[d]; ok {
				out[d] = struct{}{}
			}
		}
		return out
	})
}

// ContractedSubgraph keeps only the given ids and their direct edges. A path
// between two kept nodes that runs only through removed nodes becomes one
// edge; paths through another kept node are not shortcut. It is the view of
// a selection for display.
// Returns *core.SelectionError when a kept id is not in the graph.
func (g *Graph) ContractedSubgraph(keep []string) (*Graph, error) {
	return g.subgraph(keep, func(id string, kept idSet) idSet {
		out := idSet{}
		seen := idSet{}
		stack := slices.Collect(maps.Keys(g.children[id]))
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := seen[cur]; ok {
				continue
			}
			seen[cur] = struct{}{}
			if _, ok := kept[cur]; ok {
				out[cur] = struct{}{}
				continue
			}
			for next := range g.children[cur] {
				stack = append(stack, next)
			}
		}
		return out
	})
}

// subgraph builds a graph over keep, linking each kept id to the kept ids
// edges returns for it.
func (g *Graph) subgraph(keep []string, edges func(id string, kept idSet) idSet) (*Graph, error) {
	kept := idSet{}
	missing := idSet{}
	for _, id := range keep {
		if g.HasNode(id) {
			kept[id] = struct{}{}
		} else {
			missing[id] = struct{}{}
		}
	}
	if len(missing) > 0 {
		return nil, &core.SelectionError{Missing: missing.sorted()}
	}

	sub := NewGraph()
	for id := range kept {
		sub.AddNode(id)
	}
	for id := range kept {
		for child := range edges(id, kept) {
			_ = sub.AddEdge(id, child)
		}
	}
	return sub, nil
}
