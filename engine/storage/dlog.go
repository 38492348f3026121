package storage

import (
	"sync"

	"github.com/pingcap/errors"

	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Record is one durably logged batch: the batch ID and the merged,
// validated diff, flattened to sorted (resource, delta) pairs.
type Record struct {
	BatchID string  `json:"batch_id"`
	Writes  []Write `json:"writes"`
}

// Write is a single logged delta.
type Write struct {
	Resource txn.ResourceID `json:"resource"`
	Delta    int64          `json:"delta"`
}

// NewRecord flattens a diff into a Record.
func NewRecord(batchID string, diff *txn.Diff) Record {
	rec := Record{BatchID: batchID}
	for _, id := range diff.Resources() {
		rec.Writes = append(rec.Writes, Write{Resource: id, Delta: diff.Delta(id)})
	}
	return rec
}

// DurableLog is the engine's write-ahead collaborator. Append must be
// atomic: either the whole record is durably recorded or none of it is.
type DurableLog interface {
	Append(rec Record) error
}

// MemLog is an in-memory DurableLog. It doubles as the test fixture for
// commit failure paths: FailNext makes the next n appends return an error
// without recording anything.
type MemLog struct {
	mu       sync.Mutex
	records  []Record
	failures int
}

func NewMemLog() *MemLog {
	return &MemLog{}
}

// FailNext makes the next n Append calls fail.
func (l *MemLog) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

func (l *MemLog) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failures > 0 {
		l.failures--
		return errors.New("durable log unavailable")
	}
	l.records = append(l.records, rec)
	return nil
}

// Len returns the number of committed records.
func (l *MemLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Last returns the most recent record, if any.
func (l *MemLog) Last() (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return Record{}, false
	}
	return l.records[len(l.records)-1], true
}
