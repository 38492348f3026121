package dep

import (
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Edge is a derived dependency between two transactions: To must observe an
// order consistent with running after From.
type Edge struct {
	From     string
	To       string
	Kind     txn.ConflictKind
	Resource txn.ResourceID
}

// Graph is a directed graph over transaction IDs. Nodes are kept in
// submission order and every traversal iterates successors in submission
// order, so all derived artifacts (sort, sets, cycles) are deterministic.
// The graph must be acyclic before any execution is attempted.
type Graph struct {
	nodes []string
	index map[string]int
	edges []Edge
	out   map[string][]string
	seen  map[[2]string]struct{}
}

func NewGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		out:   make(map[string][]string),
		seen:  make(map[[2]string]struct{}),
	}
}

// AddNode registers a transaction ID. Duplicate adds are ignored.
func (g *Graph) AddNode(id string) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.nodes)
	g.nodes = append(g.nodes, id)
}

// AddEdge records a dependency edge. The adjacency list is deduplicated per
// (from, to) pair; the full edge list keeps every (kind, resource) record.
func (g *Graph) AddEdge(e Edge) {
	g.AddNode(e.From)
	g.AddNode(e.To)
	g.edges = append(g.edges, e)
	key := [2]string{e.From, e.To}
	if _, ok := g.seen[key]; ok {
		return
	}
	g.seen[key] = struct{}{}
	g.out[e.From] = append(g.out[e.From], e.To)
}

// Nodes returns transaction IDs in submission order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Edges returns every recorded edge in insertion order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// HasEdgeBetween reports whether an edge exists between a and b in either
// direction.
func (g *Graph) HasEdgeBetween(a, b string) bool {
	_, fwd := g.seen[[2]string{a, b}]
	_, rev := g.seen[[2]string{b, a}]
	return fwd || rev
}

// HasCycle runs a depth-first search with a recursion stack; a back-edge to
// a node still on the stack signals a cycle. O(V+E).
func (g *Graph) HasCycle() bool {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, next := range g.out[id] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if onStack[next] {
				return true
			}
		}
		onStack[id] = false
		return false
	}
	for _, id := range g.nodes {
		if !visited[id] && visit(id) {
			return true
		}
	}
	return false
}

// FindCycle returns one concrete cycle for diagnostics, with the first and
// last element equal, or nil if the graph is acyclic.
func (g *Graph) FindCycle() []string {
	visited := make(map[string]bool, len(g.nodes))
	onStack := make(map[string]bool, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		stack = append(stack, id)
		for _, next := range g.out[id] {
			if !visited[next] {
				if visit(next) {
					return true
				}
			} else if onStack[next] {
				// Slice the stack from the first occurrence of next and
				// close the loop.
				for i, n := range stack {
					if n == next {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, next)
						return true
					}
				}
			}
		}
		onStack[id] = false
		stack = stack[:len(stack)-1]
		return false
	}
	for _, id := range g.nodes {
		if !visited[id] && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopoSort returns a topological order using Kahn's algorithm, breaking
// ties by submission order. Returns nil if the graph has a cycle, never a
// partial order.
func (g *Graph) TopoSort() []string {
	inDegree := g.inDegrees()
	order := make([]string, 0, len(g.nodes))
	done := make(map[string]bool, len(g.nodes))

	for len(order) < len(g.nodes) {
		progressed := false
		for _, id := range g.nodes {
			if done[id] || inDegree[id] != 0 {
				continue
			}
			done[id] = true
			order = append(order, id)
			for _, next := range g.out[id] {
				inDegree[next]--
			}
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
	return order
}

// IndependentSets partitions the nodes into levels: level 0 is every node
// with zero in-degree, and each subsequent level is the nodes whose
// in-degree drops to zero once the previous level is removed. Members of a
// level have no dependencies between them and may run concurrently.
// Concatenating the levels in order is always a valid topological order.
// Within a level, order is stable submission order. Returns nil if the
// graph has a cycle.
func (g *Graph) IndependentSets() [][]string {
	inDegree := g.inDegrees()
	remaining := len(g.nodes)
	done := make(map[string]bool, len(g.nodes))
	var levels [][]string

	for remaining > 0 {
		var level []string
		for _, id := range g.nodes {
			if !done[id] && inDegree[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			return nil
		}
		for _, id := range level {
			done[id] = true
			for _, next := range g.out[id] {
				inDegree[next]--
			}
		}
		remaining -= len(level)
		levels = append(levels, level)
	}
	return levels
}

func (g *Graph) inDegrees() map[string]int {
	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		inDegree[id] = 0
	}
	for _, nexts := range g.out {
		for _, next := range nexts {
			inDegree[next]++
		}
	}
	return inDegree
}
