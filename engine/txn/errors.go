package txn

import (
	"fmt"
	"time"

	"github.com/pingcap/errors"
)

// ErrConservation is returned by SubmitBatch when the batch was refused for
// a conservation violation; the per-quantity detail rides on the
// BatchResult.
var ErrConservation = errors.New("conserved quantity changed across batch")

// ValidationError refuses a batch before any execution is attempted:
// a malformed transaction, a failed guard, or a dependency cycle.
// Non-retryable.
type ValidationError struct {
	TxID   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.TxID == "" {
		return fmt.Sprintf("batch validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("transaction %s failed validation: %s", e.TxID, e.Reason)
}

// ConflictResolutionError signals a scheduler defect: two transactions were
// observed to overlap in a way the dependency analysis did not model.
// Always fatal; never resolved at runtime.
type ConflictResolutionError struct {
	TxA      string
	TxB      string
	Resource ResourceID
	Detail   string
}

func (e *ConflictResolutionError) Error() string {
	if e.TxA == e.TxB {
		return fmt.Sprintf("scheduler invariant violated by %s on %q: %s",
			e.TxA, e.Resource, e.Detail)
	}
	return fmt.Sprintf("scheduler invariant violated between %s and %s on %q: %s",
		e.TxA, e.TxB, e.Resource, e.Detail)
}

// TimeoutError aborts the entire batch when one transaction exceeds its
// wall-clock budget.
type TimeoutError struct {
	TxID  string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s exceeded %v; batch aborted", e.TxID, e.Limit)
}

// CommitError marks a batch Aborted after the durable log refused the
// staged diff for every retry attempt. The caller must resubmit.
type CommitError struct {
	BatchID  string
	Attempts int
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("batch %s aborted: durable log append failed after %d attempts: %v",
		e.BatchID, e.Attempts, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
