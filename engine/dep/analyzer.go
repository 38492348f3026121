package dep

import (
	"fmt"
	"sort"

	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Analyze builds the dependency graph for a batch from each transaction's
// declared read and write sets. For every ordered pair (i, j) with i before
// j in submission order:
//
//	write(i) ∩ write(j) ≠ ∅  →  WAW edge
//	write(i) ∩ read(j)  ≠ ∅  →  RAW edge
//	read(i)  ∩ write(j) ≠ ∅  →  WAR edge
//
// No overlap means no edge: the pair is independent. A transaction without
// declared sets fails with a ValidationError before any analysis.
func Analyze(b *txn.Batch) (*Graph, error) {
	g := NewGraph()
	ids := make(map[string]struct{}, len(b.Txns))
	for _, t := range b.Txns {
		if t.ID == "" {
			return nil, &txn.ValidationError{Reason: "transaction without an ID"}
		}
		if _, dup := ids[t.ID]; dup {
			return nil, &txn.ValidationError{TxID: t.ID, Reason: "duplicate transaction ID"}
		}
		ids[t.ID] = struct{}{}
		if t.ReadSet == nil {
			return nil, &txn.ValidationError{TxID: t.ID, Reason: "missing read set"}
		}
		if t.WriteSet == nil {
			return nil, &txn.ValidationError{TxID: t.ID, Reason: "missing write set"}
		}
		g.AddNode(t.ID)
	}

	for i := 0; i < len(b.Txns); i++ {
		for j := i + 1; j < len(b.Txns); j++ {
			earlier, later := b.Txns[i], b.Txns[j]
			for _, res := range intersect(earlier.Writes(), later.Writes()) {
				g.AddEdge(Edge{From: earlier.ID, To: later.ID, Kind: txn.WAW, Resource: res})
			}
			for _, res := range intersect(earlier.Writes(), later.Reads()) {
				g.AddEdge(Edge{From: earlier.ID, To: later.ID, Kind: txn.RAW, Resource: res})
			}
			for _, res := range intersect(earlier.Reads(), later.Writes()) {
				g.AddEdge(Edge{From: earlier.ID, To: later.ID, Kind: txn.WAR, Resource: res})
			}
		}
	}
	return g, nil
}

// RequireAcyclic refuses the batch if the graph has a cycle, reporting the
// concrete offending sequence.
func RequireAcyclic(g *Graph) error {
	if cycle := g.FindCycle(); cycle != nil {
		return &txn.ValidationError{
			Reason: fmt.Sprintf("dependency cycle %v", cycle),
		}
	}
	return nil
}

// intersect returns the sorted intersection of two resource sets. Sorted
// output keeps edge derivation byte-for-byte deterministic.
func intersect(a, b map[txn.ResourceID]struct{}) []txn.ResourceID {
	var out []txn.ResourceID
	for id := range a {
		if _, ok := b[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
