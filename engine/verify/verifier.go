// Package verify defines the engine's boundary with the external guard
// prover. The engine only depends on the Verifier interface; LocalVerifier
// is the in-process implementation used by default and in tests.
package verify

import (
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// Outcome is the verifier's verdict for one transaction.
type Outcome int

const (
	Proved Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Proved {
		return "PROVED"
	}
	return "FAILED"
}

// Report carries the verdict and the transaction's resource footprint. The
// read and write sets returned here are what the dependency analysis runs
// on.
type Report struct {
	Outcome  Outcome
	ReadSet  []txn.ResourceID
	WriteSet []txn.ResourceID
}

// Verifier checks a transaction's guards against a snapshot and reports
// its read/write sets. Check is synchronous; it may block the calling
// worker but nothing else.
type Verifier interface {
	Check(t *txn.Transaction, snap txn.Snapshot) (Report, error)
}

// LocalVerifier evaluates guard predicates in-process and passes through
// the transaction's declared resource sets.
type LocalVerifier struct{}

func NewLocalVerifier() *LocalVerifier {
	return &LocalVerifier{}
}

func (v *LocalVerifier) Check(t *txn.Transaction, snap txn.Snapshot) (Report, error) {
	rep := Report{
		Outcome:  Proved,
		ReadSet:  t.ReadSet,
		WriteSet: t.WriteSet,
	}
	for _, guard := range t.Guards {
		if !guard(snap) {
			rep.Outcome = Failed
			return rep, nil
		}
	}
	return rep, nil
}
