package storage

import (
	"github.com/petar/GoLLRB/llrb"

	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

// MemState is the engine's in-memory state: an ordered map from resource ID
// to a 64-bit value, backed by a left-leaning red-black tree. It is not
// safe for concurrent mutation; the engine mutates it only at commit, under
// its own lock. Snapshots are deep copies and may be read freely.
type MemState struct {
	data *llrb.LLRB
}

type stateItem struct {
	id    txn.ResourceID
	value int64
}

func (it stateItem) Less(than llrb.Item) bool {
	return it.id < than.(stateItem).id
}

func NewMemState() *MemState {
	return &MemState{data: llrb.New()}
}

// Get implements txn.Snapshot. Missing resources read as zero.
func (s *MemState) Get(id txn.ResourceID) (int64, bool) {
	result := s.data.Get(stateItem{id: id})
	if result == nil {
		return 0, false
	}
	return result.(stateItem).value, true
}

// Set inserts or replaces a resource value.
func (s *MemState) Set(id txn.ResourceID, value int64) {
	s.data.ReplaceOrInsert(stateItem{id: id, value: value})
}

// Delete removes a resource.
func (s *MemState) Delete(id txn.ResourceID) {
	s.data.Delete(stateItem{id: id})
}

// Len returns the number of resources.
func (s *MemState) Len() int {
	return s.data.Len()
}

// Snapshot returns a deep copy of the state, fixed at the moment of the
// call. Every transaction in a batch reads from one such copy.
func (s *MemState) Snapshot() *MemState {
	copied := NewMemState()
	s.Ascend(func(id txn.ResourceID, value int64) bool {
		copied.Set(id, value)
		return true
	})
	return copied
}

// Ascend visits every resource in ascending ID order until fn returns
// false.
func (s *MemState) Ascend(fn func(id txn.ResourceID, value int64) bool) {
	min := s.data.Min()
	if min == nil {
		return
	}
	s.data.AscendGreaterOrEqual(min, func(item llrb.Item) bool {
		it := item.(stateItem)
		return fn(it.id, it.value)
	})
}

// Resources returns every resource ID in ascending order.
func (s *MemState) Resources() []txn.ResourceID {
	out := make([]txn.ResourceID, 0, s.Len())
	s.Ascend(func(id txn.ResourceID, _ int64) bool {
		out = append(out, id)
		return true
	})
	return out
}

// Apply folds a diff of deltas into the state.
func (s *MemState) Apply(diff *txn.Diff) {
	for _, id := range diff.Resources() {
		current, _ := s.Get(id)
		s.Set(id, current+diff.Delta(id))
	}
}

// Equal reports whether two states agree on the given resources. A nil
// resource list compares every resource present in either state.
func (s *MemState) Equal(other *MemState, resources []txn.ResourceID) bool {
	if resources == nil {
		seen := make(map[txn.ResourceID]struct{})
		s.Ascend(func(id txn.ResourceID, _ int64) bool {
			seen[id] = struct{}{}
			return true
		})
		other.Ascend(func(id txn.ResourceID, _ int64) bool {
			seen[id] = struct{}{}
			return true
		})
		resources = make([]txn.ResourceID, 0, len(seen))
		for id := range seen {
			resources = append(resources, id)
		}
	}
	for _, id := range resources {
		a, _ := s.Get(id)
		b, _ := other.Get(id)
		if a != b {
			return false
		}
	}
	return true
}
