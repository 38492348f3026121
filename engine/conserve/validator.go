// Package conserve checks declared conservation invariants against the
// proven final state of a batch, strictly after the linearizability step
// and strictly before commit.
package conserve

import (
	"github.com/diotec-barros/diotec360-sub000/engine/storage"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Quantity is a declared conserved sum. A nil Members list means the
// quantity ranges over every resource, e.g. "total balance".
type Quantity struct {
	Name    string
	Members []txn.ResourceID
}

// TotalOf declares a quantity over an explicit resource group.
func TotalOf(name string, members ...txn.ResourceID) Quantity {
	return Quantity{Name: name, Members: members}
}

// Total declares a quantity over all resources.
func Total(name string) Quantity {
	return Quantity{Name: name}
}

// Validate sums each quantity before and after the batch. Any non-zero
// delta is a violation; the batch must then be refused with the full
// detail attached to the result.
func Validate(quantities []Quantity, before, after *storage.MemState) []txn.ConservationViolation {
	var violations []txn.ConservationViolation
	for _, q := range quantities {
		pre := sum(q, before, after)
		post := sum(q, after, before)
		if pre != post {
			violations = append(violations, txn.ConservationViolation{
				Quantity: q.Name,
				Before:   pre,
				After:    post,
				Delta:    post - pre,
			})
		}
	}
	return violations
}

// sum totals a quantity over one state. For an open quantity the resource
// universe is the union of both states, so a resource created (or zeroed)
// by the batch still participates on both sides.
func sum(q Quantity, state, other *storage.MemState) int64 {
	var total int64
	if q.Members != nil {
		for _, id := range q.Members {
			v, _ := state.Get(id)
			total += v
		}
		return total
	}
	seen := make(map[txn.ResourceID]struct{})
	state.Ascend(func(id txn.ResourceID, v int64) bool {
		total += v
		seen[id] = struct{}{}
		return true
	})
	other.Ascend(func(id txn.ResourceID, _ int64) bool {
		if _, ok := seen[id]; !ok {
			v, _ := state.Get(id)
			total += v
		}
		return true
	})
	return total
}
