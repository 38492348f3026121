package dep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

func chainGraph(ids ...string) *Graph {
	g := NewGraph()
	for _, id := range ids {
		g.AddNode(id)
	}
	for i := 0; i+1 < len(ids); i++ {
		g.AddEdge(Edge{From: ids[i], To: ids[i+1], Kind: txn.RAW, Resource: "r"})
	}
	return g
}

func TestTopoSortRespectsEdges(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		g.AddNode(id)
	}
	g.AddEdge(Edge{From: "a", To: "c", Kind: txn.WAW, Resource: "x"})
	g.AddEdge(Edge{From: "b", To: "c", Kind: txn.RAW, Resource: "y"})
	g.AddEdge(Edge{From: "c", To: "e", Kind: txn.WAR, Resource: "z"})

	order := g.TopoSort()
	require.Len(t, order, 5)

	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range g.Edges() {
		assert.Less(t, pos[e.From], pos[e.To], "edge %s->%s out of order", e.From, e.To)
	}
}

func TestTopoSortStableBySubmission(t *testing.T) {
	g := chainGraph("t1", "t2")
	g.AddNode("t3")
	// t3 has no edges; it should keep its submission position relative to
	// other zero in-degree nodes.
	assert.Equal(t, []string{"t1", "t2", "t3"}, g.TopoSort())
}

func TestCycleDetection(t *testing.T) {
	g := chainGraph("a", "b", "c")
	assert.False(t, g.HasCycle())
	assert.Nil(t, g.FindCycle())

	g.AddEdge(Edge{From: "c", To: "a", Kind: txn.WAW, Resource: "r"})
	assert.True(t, g.HasCycle())

	cycle := g.FindCycle()
	require.NotEmpty(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1], "cycle must close on itself")
	assert.GreaterOrEqual(t, len(cycle), 3)
}

func TestTwoNodeMutualCycle(t *testing.T) {
	g := NewGraph()
	g.AddEdge(Edge{From: "t1", To: "t2", Kind: txn.WAW, Resource: "a"})
	g.AddEdge(Edge{From: "t2", To: "t1", Kind: txn.WAW, Resource: "b"})

	assert.True(t, g.HasCycle())
	cycle := g.FindCycle()
	require.NotEmpty(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])

	// Rejected with a ValidationError, never partially sorted.
	assert.Nil(t, g.TopoSort())
	assert.Nil(t, g.IndependentSets())
	err := RequireAcyclic(g)
	require.Error(t, err)
	var verr *txn.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestIndependentSetsPartition(t *testing.T) {
	// a -> c, b -> c, c -> d gives levels {a,b}, {c}, {d}; e floats free in
	// level 0.
	g := NewGraph()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		g.AddNode(id)
	}
	g.AddEdge(Edge{From: "a", To: "c", Kind: txn.WAW, Resource: "x"})
	g.AddEdge(Edge{From: "b", To: "c", Kind: txn.WAW, Resource: "x"})
	g.AddEdge(Edge{From: "c", To: "d", Kind: txn.RAW, Resource: "x"})

	sets := g.IndependentSets()
	require.Equal(t, [][]string{{"a", "b", "e"}, {"c"}, {"d"}}, sets)

	// Every node appears exactly once.
	seen := make(map[string]int)
	var flat []string
	for _, set := range sets {
		for _, id := range set {
			seen[id]++
			flat = append(flat, id)
		}
	}
	for _, id := range g.Nodes() {
		assert.Equal(t, 1, seen[id], "node %s", id)
	}

	// Concatenating levels in order is a valid topological order.
	pos := make(map[string]int)
	for i, id := range flat {
		pos[id] = i
	}
	for _, e := range g.Edges() {
		assert.Less(t, pos[e.From], pos[e.To])
	}
}

func TestHasEdgeBetween(t *testing.T) {
	g := chainGraph("a", "b")
	assert.True(t, g.HasEdgeBetween("a", "b"))
	assert.True(t, g.HasEdgeBetween("b", "a"))
	assert.False(t, g.HasEdgeBetween("a", "c"))
}
