// Package engine is the entry point of the parallel transaction execution
// engine. SubmitBatch runs the whole pipeline: dependency analysis,
// conflict detection, parallel execution over independent sets,
// linearizability proof, conservation validation, and atomic commit
// through the durable log.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"

	"github.com/diotec-barros/diotec360-sub000/config"
	"github.com/diotec-barros/diotec360-sub000/engine/conflict"
	"github.com/diotec-barros/diotec360-sub000/engine/conserve"
	"github.com/diotec-barros/diotec360-sub000/engine/dep"
	"github.com/diotec-barros/diotec360-sub000/engine/exec"
	"github.com/diotec-barros/diotec360-sub000/engine/prove"
	"github.com/diotec-barros/diotec360-sub000/engine/storage"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
	"github.com/diotec-barros/diotec360-sub000/engine/verify"
	"github.com/diotec-barros/diotec360-sub000/metrics"
)

// Engine owns the live state, the durable log, and the declared
// conservation quantities. All batch processing state is scoped to the
// batch being processed; nothing is retained across batches, so multiple
// batches may be submitted from different goroutines without interference.
type Engine struct {
	conf     *config.Config
	verifier verify.Verifier
	dlog     storage.DurableLog

	mu         sync.Mutex
	state      *storage.MemState
	quantities []conserve.Quantity

	submitted   atomic.Int64
	committed   atomic.Int64
	aborted     atomic.Int64
	divergences atomic.Int64
}

// Stats is a point-in-time snapshot of the engine's batch counters. The
// divergence count is the programmatic view of the silent serial
// fallbacks; prometheus carries the same signal for dashboards.
type Stats struct {
	Submitted   int64
	Committed   int64
	Aborted     int64
	Divergences int64
}

func New(conf *config.Config, dlog storage.DurableLog, verifier verify.Verifier) *Engine {
	if verifier == nil {
		verifier = verify.NewLocalVerifier()
	}
	log.SetLevelByString(conf.LogLevel)
	return &Engine{
		conf:     conf,
		verifier: verifier,
		dlog:     dlog,
		state:    storage.NewMemState(),
	}
}

// NewFromConfig builds an engine with the durable log the configuration
// selects: disk-backed under LogPath, in-memory otherwise.
func NewFromConfig(conf *config.Config, verifier verify.Verifier) (*Engine, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	var dlog storage.DurableLog
	if conf.LogPath != "" {
		dl, err := storage.OpenDiskLog(conf.LogPath)
		if err != nil {
			return nil, errors.Annotatef(err, "open durable log at %s", conf.LogPath)
		}
		dlog = dl
	} else {
		dlog = storage.NewMemLog()
	}
	return New(conf, dlog, verifier), nil
}

// Stats returns the engine's counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Submitted:   e.submitted.Load(),
		Committed:   e.committed.Load(),
		Aborted:     e.aborted.Load(),
		Divergences: e.divergences.Load(),
	}
}

// DeclareQuantity registers a conserved quantity checked on every batch.
func (e *Engine) DeclareQuantity(q conserve.Quantity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quantities = append(e.quantities, q)
}

// SetResource writes a resource value directly, outside any batch. Meant
// for seeding state at startup.
func (e *Engine) SetResource(id txn.ResourceID, value int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Set(id, value)
}

// Resource reads a resource value from live state.
func (e *Engine) Resource(id txn.ResourceID) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Get(id)
}

// SubmitBatch consumes a batch of transactions and either commits every
// effect durably or none of them. The returned BatchResult is always
// populated; fatal conditions are additionally returned as typed errors.
func (e *Engine) SubmitBatch(ctx context.Context, txns []*txn.Transaction, atomic bool) (*txn.BatchResult, error) {
	started := time.Now()
	e.submitted.Inc()
	metrics.BatchesSubmitted.Inc()
	defer func() {
		metrics.BatchDuration.Observe(time.Since(started).Seconds())
	}()

	b := txn.NewBatch(txns, atomic)
	res := &txn.BatchResult{BatchID: b.ID}
	if len(txns) == 0 {
		return e.abort(res, &txn.ValidationError{Reason: "empty batch"})
	}

	snap, quantities := e.freeze()

	admitted, err := e.admit(b, snap)
	if err != nil {
		return e.abort(res, err)
	}
	if len(admitted.Txns) == 0 {
		// Every guard failed on a non-atomic batch; nothing to run.
		log.Infof("batch %s: no transactions admitted", b.ID)
		e.aborted.Inc()
		metrics.BatchesAborted.Inc()
		return res, nil
	}

	g, err := dep.Analyze(admitted)
	if err != nil {
		return e.abort(res, err)
	}
	// Cycles are refused here, before any worker is spawned.
	if err := dep.RequireAcyclic(g); err != nil {
		return e.abort(res, err)
	}

	res.Conflicts = conflict.Detect(admitted)
	for _, c := range res.Conflicts {
		metrics.ConflictsDetected.WithLabelValues(c.Kind.String()).Inc()
	}

	sets := g.IndependentSets()
	if err := conflict.CrossCheck(g, sets); err != nil {
		return e.abort(res, err)
	}
	log.Debugf("batch %s: %d txns, %d conflicts, %d independent sets",
		b.ID, len(admitted.Txns), len(res.Conflicts), len(sets))

	outcome, trace, err := e.execute(ctx, admitted, g, sets, snap)
	res.Trace = trace
	if err != nil {
		return e.abort(res, err)
	}
	res.Proof = outcome.Proof
	if !res.Proof.Linearizable {
		e.divergences.Inc()
	}

	res.Violations = conserve.Validate(quantities, snap, outcome.Final)
	if len(res.Violations) > 0 {
		for _, v := range res.Violations {
			log.Errorf("batch %s: conserved quantity %q changed: %d -> %d (delta %d)",
				b.ID, v.Quantity, v.Before, v.After, v.Delta)
		}
		return e.abort(res, txn.ErrConservation)
	}

	staged := stage(snap, outcome.Final, touched(admitted))
	if err := e.commit(ctx, b.ID, staged); err != nil {
		return e.abort(res, err)
	}

	res.Committed = true
	e.committed.Inc()
	metrics.BatchesCommitted.Inc()
	log.Infof("batch %s: committed %d transactions (linearizable=%v)",
		b.ID, len(admitted.Txns), res.Proof.Linearizable)
	return res, nil
}

// freeze snapshots live state and the declared quantities under the lock.
func (e *Engine) freeze() (*storage.MemState, []conserve.Quantity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	qs := make([]conserve.Quantity, len(e.quantities))
	copy(qs, e.quantities)
	return e.state.Snapshot(), qs
}

// admit checks every transaction's guards against the batch snapshot. On
// an atomic batch any failed guard refuses the whole batch; otherwise the
// failing transaction is dropped. Read/write sets reported by the verifier
// replace missing declarations.
func (e *Engine) admit(b *txn.Batch, snap txn.Snapshot) (*txn.Batch, error) {
	admitted := &txn.Batch{ID: b.ID, Atomic: b.Atomic}
	for _, t := range b.Txns {
		rep, err := e.verifier.Check(t, snap)
		if err != nil {
			return nil, errors.Annotatef(err, "verifier check of %s", t.ID)
		}
		if rep.Outcome != verify.Proved {
			if b.Atomic {
				return nil, &txn.ValidationError{TxID: t.ID, Reason: "guard not proved"}
			}
			log.Debugf("batch %s: dropping %s: guard not proved", b.ID, t.ID)
			continue
		}
		if t.ReadSet == nil || t.WriteSet == nil {
			// The verifier owns the resource footprint; adopt its report
			// without mutating the submitted transaction.
			clone := *t
			clone.ReadSet = rep.ReadSet
			clone.WriteSet = rep.WriteSet
			t = &clone
		}
		admitted.Txns = append(admitted.Txns, t)
	}
	return admitted, nil
}

// execute runs the batch and proves the result. A batch of size one takes
// the direct single-transaction path: no pool, no barrier, and a trivial
// proof.
func (e *Engine) execute(ctx context.Context, b *txn.Batch, g *dep.Graph, sets [][]string, snap *storage.MemState) (prove.Outcome, []txn.TraceEntry, error) {
	if len(b.Txns) == 1 {
		t := b.Txns[0]
		diff, entry, err := exec.RunSingle(ctx, t, snap, e.conf.TxnTimeout.Duration)
		trace := []txn.TraceEntry{entry}
		if err != nil {
			return prove.Outcome{}, trace, err
		}
		final := snap.Snapshot()
		final.Apply(diff)
		return prove.Outcome{
			Proof: txn.Proof{Linearizable: true, Order: []string{t.ID}},
			Final: final,
		}, trace, nil
	}

	ex := exec.New(e.conf.PoolSize(), len(b.Txns), e.conf.TxnTimeout.Duration)
	diffs, trace, err := ex.Run(ctx, b, g, sets, snap)
	if err != nil {
		return prove.Outcome{}, trace, err
	}

	// Merge the private shadow diffs in submission order and apply them to
	// a copy of the snapshot: the candidate parallel result.
	merged := txn.NewDiff()
	for _, t := range b.Txns {
		merged.Merge(diffs[t.ID])
	}
	parallel := snap.Snapshot()
	parallel.Apply(merged)

	outcome, err := prove.Prove(b, g, snap, parallel)
	return outcome, trace, err
}

// abort finalizes a refused or failed batch: nothing was committed.
func (e *Engine) abort(res *txn.BatchResult, err error) (*txn.BatchResult, error) {
	e.aborted.Inc()
	metrics.BatchesAborted.Inc()
	return res, err
}

// stage computes the validated commit diff: the proven final values minus
// the batch-start values over every touched resource.
func stage(base, final *storage.MemState, resources []txn.ResourceID) *txn.Diff {
	staged := txn.NewDiff()
	for _, id := range resources {
		before, _ := base.Get(id)
		after, _ := final.Get(id)
		if after != before {
			staged.Add(id, after-before)
		}
	}
	return staged
}

func touched(b *txn.Batch) []txn.ResourceID {
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
