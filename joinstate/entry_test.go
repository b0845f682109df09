package joinstate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/codec"
	"storj.io/dataflow/datum"
	"storj.io/dataflow/joinstate"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore/memstore"
)

func TestEntryEmptyStartHasNoValues(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	e := joinstate.NewEntry([]byte("p"), 2, 1, joinstate.Empty)

	vals, err := e.Values(ctx, store)
	require.NoError(t, err)
	require.Empty(t, vals)

	empty, err := e.IsEmpty(ctx, store)
	require.NoError(t, err)
	require.True(t, empty)
	require.Equal(t, joinstate.Empty, e.Kind())
}

func TestEntryNotAllScansBackingStoreOnFirstRead(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	prefix := []byte("p")
	r := row.New(datum.Int64(1), datum.Int64(2))
	pk, _ := row.KeyOf(r, []int{0})
	rowPrefix := append(append([]byte{}, prefix...), []byte(pk)...)

	b := store.NewBatch()
	for _, kv := range codec.EncodeRowCells(rowPrefix, r) {
		b.Put(kv.Key, kv.Value)
	}
	require.NoError(t, b.Ingest(ctx, barrier.New(0, 1).Epoch))

	e := joinstate.NewEntry(prefix, 2, 1, joinstate.NotAll)
	vals, err := e.Values(ctx, store)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	require.True(t, vals[0].Equal(r))
}

func TestEntryInsertThenRemoveClearsPending(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	e := joinstate.NewEntry([]byte("p"), 2, 1, joinstate.Empty)

	r := row.New(datum.Int64(1), datum.Int64(2))
	pk := row.Key("k1")
	e.Insert(pk, r)
	require.True(t, e.Dirty())

	vals, err := e.Values(ctx, store)
	require.NoError(t, err)
	require.Len(t, vals, 1)

	e.Remove(pk)
	require.False(t, e.Dirty()) // the pending insert is cancelled, not tombstoned

	empty, err := e.IsEmpty(ctx, store)
	require.NoError(t, err)
	require.True(t, empty)
}

func TestEntryFlushPromotesNotAllToAllCached(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	e := joinstate.NewEntry([]byte("p"), 2, 1, joinstate.NotAll)

	r := row.New(datum.Int64(1), datum.Int64(2))
	e.Insert(row.Key("k1"), r)

	_, err := e.Values(ctx, store) // force the lastScan cache to populate
	require.NoError(t, err)

	b := store.NewBatch()
	e.Flush(b)
	require.NoError(t, b.Ingest(ctx, barrier.New(0, 1).Epoch))

	require.Equal(t, joinstate.AllCached, e.Kind())
	require.False(t, e.Dirty())

	vals, err := e.Values(ctx, store)
	require.NoError(t, err)
	require.Len(t, vals, 1)
}

func TestEntryFlushWritesTombstonesForRemovedPersistedRows(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	prefix := []byte("p")
	r := row.New(datum.Int64(1), datum.Int64(2))
	pk := row.Key("k1")
	rowPrefix := append(append([]byte{}, prefix...), []byte(pk)...)

	b := store.NewBatch()
	for _, kv := range codec.EncodeRowCells(rowPrefix, r) {
		b.Put(kv.Key, kv.Value)
	}
	require.NoError(t, b.Ingest(ctx, barrier.New(0, 1).Epoch))

	e := joinstate.NewEntry(prefix, 2, 1, joinstate.NotAll)
	e.Remove(pk)

	b2 := store.NewBatch()
	e.Flush(b2)
	require.NoError(t, b2.Ingest(ctx, barrier.New(1, 2).Epoch))

	entries, err := store.Scan(ctx, prefix, 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}
