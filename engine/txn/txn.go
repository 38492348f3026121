package txn

import (
	"sort"

	"github.com/google/uuid"
)

// ResourceID names a single numeric register in the engine's state, for
// example an account balance. Resources are the unit of conflict analysis:
// two transactions conflict exactly when their declared read/write sets
// overlap on at least one ResourceID.
type ResourceID string

// Snapshot is a read-only view of engine state. During parallel execution
// every transaction sees the same snapshot, fixed at batch start; during
// serial replay the prover feeds an evolving state through the same
// interface.
type Snapshot interface {
	// Get returns the value of a resource. Missing resources read as zero
	// with ok == false.
	Get(id ResourceID) (int64, bool)
}

// Guard is a predicate evaluated against a snapshot before a transaction is
// admitted. All guards of a transaction must hold.
type Guard func(snap Snapshot) bool

// Transaction is a single state-mutating operation with declared read and
// write sets. It is immutable once submitted; the engine never mutates it.
type Transaction struct {
	ID     string
	Guards []Guard
	Effect Effect

	// ReadSet and WriteSet are declared by the submitter; when missing, the
	// admission verifier's reported footprint is adopted instead. A nil set
	// that no verifier fills in fails validation; an empty non-nil set is a
	// legitimate declaration of no reads (or writes).
	ReadSet  []ResourceID
	WriteSet []ResourceID
}

// Reads returns the read set as a lookup map.
func (t *Transaction) Reads() map[ResourceID]struct{} {
	return toSet(t.ReadSet)
}

// Writes returns the write set as a lookup map.
func (t *Transaction) Writes() map[ResourceID]struct{} {
	return toSet(t.WriteSet)
}

// Touches returns the union of the read and write sets, sorted.
func (t *Transaction) Touches() []ResourceID {
	m := t.Reads()
	for id := range t.Writes() {
		m[id] = struct{}{}
	}
	return sortedIDs(m)
}

func toSet(ids []ResourceID) map[ResourceID]struct{} {
	m := make(map[ResourceID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func sortedIDs(m map[ResourceID]struct{}) []ResourceID {
	out := make([]ResourceID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Batch is an ordered sequence of transactions submitted together. It is
// consumed exactly once by Engine.SubmitBatch and never reused.
type Batch struct {
	ID     string
	Txns   []*Transaction
	Atomic bool
}

// NewBatch assigns a fresh batch ID. Submission order of txns is
// significant: it is the tiebreak order for every deterministic decision
// the engine makes.
func NewBatch(txns []*Transaction, atomic bool) *Batch {
	return &Batch{
		ID:     uuid.New().String(),
		Txns:   txns,
		Atomic: atomic,
	}
}

// Index returns the submission position of a transaction ID, or -1.
func (b *Batch) Index(id string) int {
	for i, t := range b.Txns {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// ByID returns the transaction with the given ID, or nil.
func (b *Batch) ByID(id string) *Transaction {
	if i := b.Index(id); i >= 0 {
		return b.Txns[i]
	}
	return nil
}
