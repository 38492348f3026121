package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diotec-barros/diotec360-sub000/engine/dep"
	"github.com/diotec-barros/diotec360-sub000/engine/storage"
	"github.com/diotec-barros/diotec360-sub000/engine/txn"
)

func transfer(id string, from, to txn.ResourceID, amount int64) *txn.Transaction {
	return &txn.Transaction{
		ID:       id,
		Effect:   txn.Transfer(from, to, amount),
		ReadSet:  []txn.ResourceID{from, to},
		WriteSet: []txn.ResourceID{from, to},
	}
}

func seeded(values map[txn.ResourceID]int64) *storage.MemState {
	s := storage.NewMemState()
	for id, v := range values {
		s.Set(id, v)
	}
	return s
}

func runBatch(t *testing.T, b *txn.Batch, snap *storage.MemState, timeout time.Duration) (map[string]*txn.Diff, []txn.TraceEntry, error) {
	t.Helper()
	g, err := dep.Analyze(b)
	require.NoError(t, err)
	sets := g.IndependentSets()
	require.NotNil(t, sets)
	ex := New(4, len(b.Txns), timeout)
	return ex.Run(context.Background(), b, g, sets, snap)
}

func TestDisjointPairRunsInOneSet(t *testing.T) {
	b := &txn.Batch{ID: "b", Txns: []*txn.Transaction{
		transfer("t1", "a", "b", 10),
		transfer("t2", "c", "d", 10),
	}}
	snap := seeded(map[txn.ResourceID]int64{"a": 50, "b": 0, "c": 50, "d": 0})

	g, err := dep.Analyze(b)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"t1", "t2"}}, g.IndependentSets())

	diffs, trace, err := runBatch(t, b, snap, time.Second)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	assert.Equal(t, int64(-10), diffs["t1"].Delta("a"))
	assert.Equal(t, int64(10), diffs["t2"].Delta("d"))
	require.Len(t, trace, 2)
	for _, entry := range trace {
		assert.True(t, entry.OK)
		assert.False(t, entry.End.Before(entry.Start))
	}
}

func TestDependentChainRunsAcrossSets(t *testing.T) {
	b := &txn.Batch{ID: "b", Txns: []*txn.Transaction{
		transfer("t1", "a", "b", 100),
		transfer("t2", "b", "c", 100),
	}}
	snap := seeded(map[txn.ResourceID]int64{"a": 500, "b": 40, "c": 0})

	g, err := dep.Analyze(b)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"t1"}, {"t2"}}, g.IndependentSets())

	diffs, _, err := runBatch(t, b, snap, time.Second)
	require.NoError(t, err)

	merged := txn.NewDiff()
	merged.Merge(diffs["t1"])
	merged.Merge(diffs["t2"])
	assert.Equal(t, int64(-100), merged.Delta("a"))
	assert.Equal(t, int64(0), merged.Delta("b"))
	assert.Equal(t, int64(100), merged.Delta("c"))
}

func TestTimeoutAbortsWholeBatch(t *testing.T) {
	slow := &txn.Transaction{
		ID:       "slow",
		ReadSet:  []txn.ResourceID{},
		WriteSet: []txn.ResourceID{"x"},
		Effect: txn.Effect{Kind: txn.EffectCustom, Custom: func(txn.Snapshot) (*txn.Diff, error) {
			time.Sleep(300 * time.Millisecond)
			return txn.NewDiff(), nil
		}},
	}
	b := &txn.Batch{ID: "b", Txns: []*txn.Transaction{
		slow,
		transfer("fast", "a", "b", 1),
	}}
	snap := seeded(map[txn.ResourceID]int64{"a": 10, "b": 0, "x": 0})

	diffs, trace, err := runBatch(t, b, snap, 20*time.Millisecond)
	var terr *txn.TimeoutError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "slow", terr.TxID)
	assert.Nil(t, diffs, "no diffs survive an aborted batch")

	// The barrier waited for the whole set, so both outcomes are traced.
	require.Len(t, trace, 2)
	byID := make(map[string]txn.TraceEntry)
	for _, entry := range trace {
		byID[entry.TxID] = entry
	}
	assert.False(t, byID["slow"].OK)
	assert.True(t, byID["fast"].OK)
}

func TestUnmodeledOverlapIsFatal(t *testing.T) {
	// A manufactured scheduler defect: both transactions land in the same
	// set with no recorded edge, yet t1 writes a resource t2 reads.
	t1 := &txn.Transaction{
		ID:       "t1",
		ReadSet:  []txn.ResourceID{},
		WriteSet: []txn.ResourceID{"a"},
		Effect:   txn.Deposit("a", 1),
	}
	t2 := &txn.Transaction{
		ID:       "t2",
		ReadSet:  []txn.ResourceID{"a"},
		WriteSet: []txn.ResourceID{"b"},
		Effect:   txn.Deposit("b", 1),
	}
	b := &txn.Batch{ID: "b", Txns: []*txn.Transaction{t1, t2}}
	g := dep.NewGraph()
	g.AddNode("t1")
	g.AddNode("t2")

	ex := New(2, 2, time.Second)
	_, _, err := ex.Run(context.Background(), b, g, [][]string{{"t1", "t2"}}, seeded(nil))
	var cerr *txn.ConflictResolutionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, txn.ResourceID("a"), cerr.Resource)
}

func TestWriteOutsideDeclaredSetIsFatal(t *testing.T) {
	rogue := &txn.Transaction{
		ID:       "rogue",
		ReadSet:  []txn.ResourceID{},
		WriteSet: []txn.ResourceID{"a"},
		Effect:   txn.Deposit("z", 1),
	}
	b := &txn.Batch{ID: "b", Txns: []*txn.Transaction{rogue, transfer("t2", "c", "d", 1)}}

	_, _, err := runBatch(t, b, seeded(map[txn.ResourceID]int64{"c": 5}), time.Second)
	var cerr *txn.ConflictResolutionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, txn.ResourceID("z"), cerr.Resource)
}

func TestRunSingle(t *testing.T) {
	diff, entry, err := RunSingle(context.Background(), transfer("t1", "a", "b", 5),
		seeded(map[txn.ResourceID]int64{"a": 10}), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), diff.Delta("a"))
	assert.Equal(t, "t1", entry.TxID)
	assert.True(t, entry.OK)
}

func TestPoolBoundsWorkers(t *testing.T) {
	assert.Equal(t, 3, New(8, 3, time.Second).workers)
	assert.Equal(t, 2, New(2, 100, time.Second).workers)
	assert.Equal(t, 1, New(5, 0, time.Second).workers)
}
