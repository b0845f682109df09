// Package storetest holds a statestore.Store conformance suite shared by
// every backend (memstore, boltstore), in the spirit of the teacher's
// kvstore/testsuite package: one set of behavioral tests run against each
// concrete implementation rather than duplicated per package.
package storetest

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/statestore"
)

// RunCRUD exercises Put/Delete/Scan/Ingest/LastIngestedEpoch against a
// freshly-constructed, empty store.
func RunCRUD(t *testing.T, store statestore.Store) {
	ctx := context.Background()

	t.Run("empty scan returns nothing", func(t *testing.T) {
		entries, err := store.Scan(ctx, []byte("any"), 0)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("zero epoch before any ingest", func(t *testing.T) {
		e, err := store.LastIngestedEpoch(ctx)
		require.NoError(t, err)
		require.Equal(t, barrier.Epoch{}, e)
	})

	t.Run("put then scan recovers values under a shared prefix", func(t *testing.T) {
		b := store.NewBatch()
		b.Put([]byte("a/1"), []byte("v1"))
		b.Put([]byte("a/2"), []byte("v2"))
		b.Put([]byte("b/1"), []byte("v3"))
		require.Equal(t, 3, b.Len())
		require.NoError(t, b.Ingest(ctx, barrier.New(0, 1).Epoch))

		entries, err := store.Scan(ctx, []byte("a/"), 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		values := make([]string, len(entries))
		for i, e := range entries {
			values[i] = string(e.Value)
		}
		sort.Strings(values)
		require.Equal(t, []string{"v1", "v2"}, values)

		epoch, err := store.LastIngestedEpoch(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), epoch.Curr)
		require.Equal(t, uint64(0), epoch.Prev)
	})

	t.Run("scan respects limit", func(t *testing.T) {
		entries, err := store.Scan(ctx, []byte("a/"), 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})

	t.Run("delete removes a key from future scans", func(t *testing.T) {
		b := store.NewBatch()
		b.Delete([]byte("a/1"))
		require.NoError(t, b.Ingest(ctx, barrier.New(1, 2).Epoch))

		entries, err := store.Scan(ctx, []byte("a/"), 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		require.True(t, bytes.Equal(entries[0].Key, []byte("a/2")))
	})

	t.Run("unrelated prefix untouched", func(t *testing.T) {
		entries, err := store.Scan(ctx, []byte("b/"), 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
	})
}
