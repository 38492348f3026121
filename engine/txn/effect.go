package txn

import (
	"sort"

	"github.com/pingcap/errors"
)

// EffectKind is a closed set of built-in effect shapes plus a custom
// escape hatch. Dispatch is by switch, never by reflection.
type EffectKind int

const (
	EffectTransfer EffectKind = iota
	EffectDeposit
	EffectWithdraw
	EffectCustom
)

func (k EffectKind) String() string {
	switch k {
	case EffectTransfer:
		return "transfer"
	case EffectDeposit:
		return "deposit"
	case EffectWithdraw:
		return "withdraw"
	case EffectCustom:
		return "custom"
	}
	return "unknown"
}

// CustomEffect computes a diff from a snapshot. It must be pure: same
// snapshot in, same diff out, no side effects.
type CustomEffect func(snap Snapshot) (*Diff, error)

// Effect is a pure function from snapshot to resource diff, expressed as a
// tagged variant. From/To/Amount are meaningful for the built-in kinds;
// Custom carries its own closure.
type Effect struct {
	Kind   EffectKind
	From   ResourceID
	To     ResourceID
	Amount int64
	Custom CustomEffect
}

// Transfer moves amount from one resource to another.
func Transfer(from, to ResourceID, amount int64) Effect {
	return Effect{Kind: EffectTransfer, From: from, To: to, Amount: amount}
}

// Deposit adds amount to a resource.
func Deposit(to ResourceID, amount int64) Effect {
	return Effect{Kind: EffectDeposit, To: to, Amount: amount}
}

// Withdraw removes amount from a resource.
func Withdraw(from ResourceID, amount int64) Effect {
	return Effect{Kind: EffectWithdraw, From: from, Amount: amount}
}

// Apply evaluates the effect against a snapshot and returns the proposed
// diff. The snapshot is read-only; the diff is the transaction's private
// shadow state.
func (e Effect) Apply(snap Snapshot) (*Diff, error) {
	d := NewDiff()
	switch e.Kind {
	case EffectTransfer:
		d.Add(e.From, -e.Amount)
		d.Add(e.To, e.Amount)
	case EffectDeposit:
		d.Add(e.To, e.Amount)
	case EffectWithdraw:
		d.Add(e.From, -e.Amount)
	case EffectCustom:
		if e.Custom == nil {
			return nil, errors.New("custom effect without function")
		}
		return e.Custom(snap)
	default:
		return nil, errors.Errorf("unknown effect kind %d", e.Kind)
	}
	return d, nil
}

// Diff is a private shadow of proposed state changes: per-resource deltas
// relative to the snapshot the effect ran against. Diffs are merged only at
// commit time, so concurrently running transactions never observe each
// other.
type Diff struct {
	deltas map[ResourceID]int64
}

func NewDiff() *Diff {
	return &Diff{deltas: make(map[ResourceID]int64)}
}

// Add accumulates a delta for a resource.
func (d *Diff) Add(id ResourceID, delta int64) {
	d.deltas[id] += delta
}

// Delta returns the accumulated delta for a resource.
func (d *Diff) Delta(id ResourceID) int64 {
	return d.deltas[id]
}

// Resources returns the touched resources in sorted order.
func (d *Diff) Resources() []ResourceID {
	out := make([]ResourceID, 0, len(d.deltas))
	for id := range d.deltas {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of touched resources.
func (d *Diff) Len() int {
	return len(d.deltas)
}

// Merge folds another diff into this one.
func (d *Diff) Merge(other *Diff) {
	for id, delta := range other.deltas {
		d.deltas[id] += delta
	}
}

// Sum returns the net delta across every touched resource. A batch that
// only moves value around sums to zero.
func (d *Diff) Sum() int64 {
	var total int64
	for _, delta := range d.deltas {
		total += delta
	}
	return total
}
