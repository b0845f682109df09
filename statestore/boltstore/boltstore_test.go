package boltstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/statestore/boltstore"
	"storj.io/dataflow/statestore/storetest"
)

func TestBoltstoreConformsToStore(t *testing.T) {
	dbname := filepath.Join(t.TempDir(), "bolt.db")
	store, err := boltstore.New(dbname, "bucket")
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	storetest.RunCRUD(t, store)
}

func TestBoltstoreDefaultsBucketName(t *testing.T) {
	dbname := filepath.Join(t.TempDir(), "bolt.db")
	store, err := boltstore.New(dbname, "")
	require.NoError(t, err)
	defer store.Close()

	storetest.RunCRUD(t, store)
}

func TestBoltstorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbname := filepath.Join(t.TempDir(), "bolt.db")
	store, err := boltstore.New(dbname, "data")
	require.NoError(t, err)

	b := store.NewBatch()
	b.Put([]byte("k"), []byte("v"))
	require.NoError(t, b.Ingest(ctx, barrier.New(0, 1).Epoch))
	require.NoError(t, store.Close())

	reopened, err := boltstore.New(dbname, "data")
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Scan(ctx, []byte("k"), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, []byte("v"), entries[0].Value)
}
