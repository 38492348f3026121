package txn

import "time"

// ConflictKind classifies a pairwise resource overlap between two
// transactions, named from the perspective of the later transaction.
type ConflictKind int

const (
	// RAW: the earlier transaction writes a resource the later one reads.
	RAW ConflictKind = iota
	// WAW: both transactions write the same resource.
	WAW
	// WAR: the earlier transaction reads a resource the later one writes.
	WAR
)

func (k ConflictKind) String() string {
	switch k {
	case RAW:
		return "RAW"
	case WAW:
		return "WAW"
	case WAR:
		return "WAR"
	}
	return "unknown"
}

// Conflict is a serializable record of one detected pairwise conflict.
// Resolution is always "serialize by submission order"; it is recorded as a
// string so the report is self-describing.
type Conflict struct {
	TxA        string       `json:"tx_a"`
	TxB        string       `json:"tx_b"`
	Kind       ConflictKind `json:"kind"`
	Resource   ResourceID   `json:"resource"`
	Resolution string       `json:"resolution"`
}

// TraceEntry records one transaction execution for diagnostics. Entries are
// pushed on an event channel by the executor and drained by a separate
// consumer, keeping the execution hot path free of side effects.
type TraceEntry struct {
	TxID   string    `json:"tx_id"`
	Worker int       `json:"worker"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	OK     bool      `json:"ok"`
	Err    string    `json:"err,omitempty"`
}

// ConservationViolation reports a conserved quantity whose sum changed
// across the batch.
type ConservationViolation struct {
	Quantity string `json:"quantity"`
	Before   int64  `json:"before"`
	After    int64  `json:"after"`
	Delta    int64  `json:"delta"`
}

// Proof is the linearizability verdict for a batch: whether the parallel
// result matched the serial replay, and the serial order used.
type Proof struct {
	Linearizable bool     `json:"linearizable"`
	Order        []string `json:"order"`
}

// BatchResult is the caller-visible outcome of one batch. It is created
// once, immutable after return, and owned by the caller.
type BatchResult struct {
	BatchID    string                  `json:"batch_id"`
	Committed  bool                    `json:"committed"`
	Conflicts  []Conflict              `json:"conflicts_detected"`
	Trace      []TraceEntry            `json:"execution_trace"`
	Violations []ConservationViolation `json:"violations"`
	Proof      Proof                   `json:"proof"`
}
