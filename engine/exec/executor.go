// Package exec runs a batch on a bounded worker pool, one independent set
// at a time. Every transaction reads from the snapshot fixed at batch
// start and writes into a private shadow diff; no live state is touched
// here. Mutual exclusion is an emergent property of the independent-set
// partition, not of locks.
package exec

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ngaut/log"

	"github.com/diotec-barros/diotec360-sub000/engine/dep"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Executor schedules independent sets over a worker pool.
type Executor struct {
	workers int
	timeout time.Duration
}

// New sizes the pool for a batch: min(batch size, workers), where workers
// defaults to twice the available hardware concurrency when zero.
func New(workers int, batchSize int, timeout time.Duration) *Executor {
	if workers <= 0 {
		workers = 2 * runtime.NumCPU()
	}
	if batchSize < workers {
		workers = batchSize
	}
	if workers < 1 {
		workers = 1
	}
	return &Executor{workers: workers, timeout: timeout}
}

// Run executes every independent set in order, with a barrier between
// sets: the next set starts only after every transaction in the current
// one has finished (success, failure, or timeout). Any failure or timeout
// aborts the whole batch. Returns the per-transaction shadow diffs and the
// drained trace.
func (e *Executor) Run(ctx context.Context, b *txn.Batch, g *dep.Graph, sets [][]string, snap txn.Snapshot) (map[string]*txn.Diff, []txn.TraceEntry, error) {
	traceCh := make(chan txn.TraceEntry, len(b.Txns))
	traceDone := make(chan []txn.TraceEntry)
	go func() {
		var trace []txn.TraceEntry
		for entry := range traceCh {
			trace = append(trace, entry)
		}
		traceDone <- trace
	}()

	p := newPool(e.workers, len(b.Txns), func(worker int, t *txn.Transaction) result {
		return e.runOne(ctx, worker, t, snap, traceCh)
	})

	diffs := make(map[string]*txn.Diff, len(b.Txns))
	var failure error

	for level, set := range sets {
		results := make(chan result, len(set))
		for _, id := range set {
			p.submit(task{t: b.ByID(id), done: results})
		}
		setDiffs := make(map[string]*txn.Diff, len(set))
		errByTx := make(map[string]error, len(set))
		for range set {
			res := <-results
			if res.err != nil {
				errByTx[res.txID] = res.err
			} else {
				setDiffs[res.txID] = res.diff
			}
		}
		if len(errByTx) > 0 {
			// Report the earliest-submitted failure so aborts are
			// deterministic regardless of interleaving.
			for _, t := range b.Txns {
				if err, ok := errByTx[t.ID]; ok {
					failure = err
					break
				}
			}
			log.Warnf("batch %s: aborting at set %d: %v", b.ID, level, failure)
			break
		}
		if err := checkObservedOverlap(b, g, set, setDiffs); err != nil {
			failure = err
			break
		}
		for id, d := range setDiffs {
			diffs[id] = d
		}
	}

	p.stop()
	close(traceCh)
	trace := <-traceDone

	if failure != nil {
		return nil, trace, failure
	}
	return diffs, trace, nil
}

// runOne evaluates a single effect against the batch snapshot under the
// per-transaction timeout. Cancellation is best effort: the effect
// goroutine cannot be killed, but its result is discarded and the batch
// aborts regardless.
func (e *Executor) runOne(ctx context.Context, worker int, t *txn.Transaction, snap txn.Snapshot, traceCh chan<- txn.TraceEntry) result {
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		diff, err := t.Effect.Apply(snap)
		done <- result{txID: t.ID, diff: diff, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-tctx.Done():
		res = result{txID: t.ID, err: &txn.TimeoutError{TxID: t.ID, Limit: e.timeout}}
	}

	entry := txn.TraceEntry{
		TxID:   t.ID,
		Worker: worker,
		Start:  start,
		End:    time.Now(),
		OK:     res.err == nil,
	}
	if res.err != nil {
		entry.Err = res.err.Error()
	}
	traceCh <- entry
	return res
}

// RunSingle is the degraded path for a batch of size one: the effect runs
// inline under the same timeout, with no pool and no barrier. Behavior is
// otherwise identical to the pooled path.
func RunSingle(ctx context.Context, t *txn.Transaction, snap txn.Snapshot, timeout time.Duration) (*txn.Diff, txn.TraceEntry, error) {
	e := &Executor{workers: 1, timeout: timeout}
	traceCh := make(chan txn.TraceEntry, 1)
	res := e.runOne(ctx, 0, t, snap, traceCh)
	entry := <-traceCh
	if res.err != nil {
		return nil, entry, res.err
	}
	if err := checkDeclaredWrites(t, res.diff); err != nil {
		return nil, entry, err
	}
	return res.diff, entry, nil
}

// checkDeclaredWrites refuses a diff that writes outside the transaction's
// declared write set.
func checkDeclaredWrites(t *txn.Transaction, diff *txn.Diff) error {
	declared := t.Writes()
	for _, res := range diff.Resources() {
		if _, ok := declared[res]; !ok {
			return &txn.ConflictResolutionError{
				TxA:      t.ID,
				TxB:      t.ID,
				Resource: res,
				Detail:   "wrote outside declared write set",
			}
		}
	}
	return nil
}

// checkObservedOverlap is the defensive half of the scheduler invariant:
// inside one independent set, no two transactions may actually touch the
// same resource with at least one writer, and no transaction may write
// outside its declared write set. Either observation means the dependency
// analysis missed an edge, which is a defect, not something to resolve at
// runtime.
func checkObservedOverlap(b *txn.Batch, g *dep.Graph, set []string, diffs map[string]*txn.Diff) error {
	for _, id := range set {
		if err := checkDeclaredWrites(b.ByID(id), diffs[id]); err != nil {
			return err
		}
	}
	for i := 0; i < len(set); i++ {
		for j := i + 1; j < len(set); j++ {
			a, bID := set[i], set[j]
			other := b.ByID(bID).Touches()
			touched := make(map[txn.ResourceID]struct{}, len(other))
			for _, res := range other {
				touched[res] = struct{}{}
			}
			for _, res := range diffs[a].Resources() {
				if _, ok := touched[res]; ok && !g.HasEdgeBetween(a, bID) {
					return &txn.ConflictResolutionError{
						TxA:      a,
						TxB:      bID,
						Resource: res,
						Detail:   fmt.Sprintf("unmodeled overlap inside independent set %v", set),
					}
				}
			}
		}
	}
	return nil
}
