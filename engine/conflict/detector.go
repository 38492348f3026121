// Package conflict re-derives the pairwise relationships found by the
// dependency analysis as serializable Conflict records, for reporting and
// for a defensive cross-check against the scheduler's independent sets.
package conflict

import (
	"fmt"
	"sort"

	"github.com/diotec-barros/diotec360-sub000/engine/dep"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Resolution is attached to every conflict. The engine never randomizes and
// never consults the clock: conflicting transactions are always serialized
// by original submission order.
const Resolution = "serialize by submission order"

// Detect enumerates every pairwise conflict in the batch. The output is
// deterministic: an identical batch yields a byte-identical conflict list
// on every run (pair order by submission, kinds in WAW/RAW/WAR order,
// resources sorted).
func Detect(b *txn.Batch) []txn.Conflict {
	var out []txn.Conflict
	for i := 0; i < len(b.Txns); i++ {
		for j := i + 1; j < len(b.Txns); j++ {
			earlier, later := b.Txns[i], b.Txns[j]
			appendConflicts(&out, earlier.ID, later.ID, txn.WAW, earlier.Writes(), later.Writes())
			appendConflicts(&out, earlier.ID, later.ID, txn.RAW, earlier.Writes(), later.Reads())
			appendConflicts(&out, earlier.ID, later.ID, txn.WAR, earlier.Reads(), later.Writes())
		}
	}
	return out
}

func appendConflicts(out *[]txn.Conflict, a, b string, kind txn.ConflictKind, setA, setB map[txn.ResourceID]struct{}) {
	var shared []txn.ResourceID
	for id := range setA {
		if _, ok := setB[id]; ok {
			shared = append(shared, id)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i] < shared[j] })
	for _, res := range shared {
		*out = append(*out, txn.Conflict{
			TxA:        a,
			TxB:        b,
			Kind:       kind,
			Resource:   res,
			Resolution: Resolution,
		})
	}
}

// CrossCheck verifies the scheduler's partition against the recorded
// edges: two transactions that share an independent set must not have an
// edge between them. A hit means the scheduler is defective, which is
// fatal, never silently resolved.
func CrossCheck(g *dep.Graph, sets [][]string) error {
	for _, set := range sets {
		for i := 0; i < len(set); i++ {
			for j := i + 1; j < len(set); j++ {
				if g.HasEdgeBetween(set[i], set[j]) {
					return &txn.ConflictResolutionError{
						TxA:    set[i],
						TxB:    set[j],
						Detail: fmt.Sprintf("recorded edge inside independent set %v", set),
					}
				}
			}
		}
	}
	return nil
}
