// Package mview implements the materialized-view writer: a buffered
// pk-keyed memtable that flushes to the shared cell-based row encoding at
// epoch boundaries, the same encoding the join's persistent state uses
// (storj.io/dataflow/codec).
package mview

import (
	"context"

	"github.com/zeebo/errs"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/codec"
	"storj.io/dataflow/keyspace"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore"
)

// Error is the error class for writer failures.
var Error = errs.Class("mview")

// entry is one memtable slot: value == nil means the pk is pending
// deletion, matching the spec's Option<row> memtable semantics.
type entry struct {
	pk    row.Row
	value row.Row
}

// Writer buffers upserts and deletes keyed by primary key and flushes them
// as cell-encoded puts/deletes in one atomic batch per epoch.
//
// Writer is not safe for concurrent use; like hashjoin.Operator it is meant
// to be driven by a single actor between barriers (spec §5).
type Writer struct {
	ks    keyspace.Keyspace
	store statestore.Store

	schemaLen int
	order     codec.OrderSpec

	memtable map[row.Key]entry
}

// New creates a Writer rooted at ks, writing rows of the given column
// count to store. order controls the memcmp sort direction per primary-key
// column; pass codec.Ascending(n) for an all-ascending primary key.
func New(ks keyspace.Keyspace, store statestore.Store, schemaLen int, order codec.OrderSpec) *Writer {
	return &Writer{
		ks:        ks,
		store:     store,
		schemaLen: schemaLen,
		order:     order,
		memtable:  make(map[row.Key]entry),
	}
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func keyOfPK(pk row.Row) row.Key {
	k, _ := row.KeyOf(pk, identity(len(pk)))
	return k
}

// Put buffers an upsert: r's full row, keyed by its projection onto pk.
// Replaces any pending mutation previously buffered for the same pk.
func (w *Writer) Put(pk, r row.Row) {
	w.memtable[keyOfPK(pk)] = entry{pk: pk, value: r}
}

// Delete buffers a tombstone for pk. Replaces any pending mutation
// previously buffered for the same pk.
func (w *Writer) Delete(pk row.Row) {
	w.memtable[keyOfPK(pk)] = entry{pk: pk, value: nil}
}

// Dirty reports whether the memtable holds unflushed mutations.
func (w *Writer) Dirty() bool { return len(w.memtable) > 0 }

// Len returns the number of distinct primary keys buffered.
func (w *Writer) Len() int { return len(w.memtable) }

// Flush writes every buffered mutation as schemaLen cell puts or deletes,
// one atomic batch ingested at epoch, then clears the memtable. The total
// number of KV operations is len(memtable) * schemaLen, matching the
// invariant a prefix scan of one pk's bytes always recovers every column.
func (w *Writer) Flush(ctx context.Context, epoch barrier.Epoch) error {
	batch := w.store.NewBatch()
	for _, e := range w.memtable {
		pkBuf := codec.SerializePK(e.pk, identity(len(e.pk)), w.order)
		prefix := w.ks.Key(pkBuf)
		if e.value != nil {
			for _, kv := range codec.EncodeRowCells(prefix, e.value) {
				batch.Put(kv.Key, kv.Value)
			}
			continue
		}
		for _, key := range codec.CellKeys(prefix, w.schemaLen) {
			batch.Delete(key)
		}
	}
	if err := batch.Ingest(ctx, epoch); err != nil {
		return Error.Wrap(err)
	}
	w.memtable = make(map[row.Key]entry)
	return nil
}
