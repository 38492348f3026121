package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ngaut/log"

	"github.com/diotec-barros/diotec360-sub000/engine/storage"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
	"github.com/diotec-barros/diotec360-sub000/metrics"
)

// commit is the second phase of the two-phase commit. The first phase,
// staging, already happened in memory, gated on every guard having held,
// the linearizability proof, and a clean conservation pass. Here the
// staged diff is appended to the durable log as a single record, with
// exponential backoff on failure, and only then folded into live state.
// If every attempt fails the batch is aborted with zero partial
// visibility: live state is untouched and the log holds nothing for this
// batch ID.
func (e *Engine) commit(ctx context.Context, batchID string, staged *txn.Diff) error {
	rec := storage.NewRecord(batchID, staged)

	attempts := 0
	op := func() error {
		if attempts > 0 {
			metrics.CommitRetries.Inc()
			log.Warnf("batch %s: retrying durable log append (attempt %d)", batchID, attempts+1)
		}
		attempts++
		return e.dlog.Append(rec)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.conf.CommitRetries), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return &txn.CommitError{BatchID: batchID, Attempts: attempts, Err: err}
	}

	e.mu.Lock()
	e.state.Apply(staged)
	e.mu.Unlock()
	return nil
}
