// Package prove checks that the parallel execution of a batch is
// linearizable: equivalent to some legal serial execution. The check is by
// construction: replay the batch serially in a topological order against a
// fresh copy of the initial state and compare final states. On mismatch the
// serial result wins unconditionally, so callers always observe behavior
// equivalent to a serial execution even when the parallel pass was wrong.
package prove

import (
	"github.com/ngaut/log"
	"github.com/pingcap/errors"

	"github.com/diotec-barros/diotec360-sub000/engine/dep"
	"github.com/diotec-barros/diotec360-sub000/engine/storage"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
	"github.com/diotec-barros/diotec360-sub000/metrics"
)

// Outcome is the proven final state of a batch together with the verdict.
// Divergence is telemetry, never a caller-visible error.
type Outcome struct {
	Proof txn.Proof
	// Final is the proven final state: the parallel result when it matched
	// the serial replay, the serial result otherwise.
	Final *storage.MemState
}

// Prove replays the batch serially in the graph's topological order
// against a copy of base and compares the result to the candidate parallel
// state, field by field over every touched resource.
func Prove(b *txn.Batch, g *dep.Graph, base *storage.MemState, parallel *storage.MemState) (Outcome, error) {
	order := g.TopoSort()
	if order == nil {
		// The batch was validated acyclic before execution; reaching this
		// point is a pipeline defect.
		return Outcome{}, errors.New("topological sort failed on a validated batch")
	}

	serial, err := Replay(b, order, base)
	if err != nil {
		return Outcome{}, err
	}

	touched := touchedResources(b)
	if parallel.Equal(serial, touched) {
		return Outcome{
			Proof: txn.Proof{Linearizable: true, Order: order},
			Final: parallel,
		}, nil
	}

	metrics.LinearizabilityDivergences.Inc()
	log.Warnf("batch %s: parallel result diverged from serial replay; using serial result", b.ID)
	return Outcome{
		Proof: txn.Proof{Linearizable: false, Order: order},
		Final: serial,
	}, nil
}

// Replay runs the batch one transaction at a time in the given order
// against a fresh copy of base. Unlike the parallel pass, each effect
// observes all earlier effects: this is the serial reference semantics.
func Replay(b *txn.Batch, order []string, base *storage.MemState) (*storage.MemState, error) {
	state := base.Snapshot()
	for _, id := range order {
		t := b.ByID(id)
		if t == nil {
			return nil, errors.Errorf("replay order references unknown transaction %s", id)
		}
		diff, err := t.Effect.Apply(state)
		if err != nil {
			return nil, errors.Annotatef(err, "serial replay of %s", id)
		}
		state.Apply(diff)
	}
	return state, nil
}

func touchedResources(b *txn.Batch) []txn.ResourceID {
	seen := make(map[txn.ResourceID]struct{})
	for _, t := range b.Txns {
		for _, id := range t.Touches() {
			seen[id] = struct{}{}
		}
	}
	out := make([]txn.ResourceID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}
