// Package joinstate implements ManagedJoinState: the per-join-key cache of
// matching rows on one side of the hash join, lazily hydrated from the
// backing key-value store and flushed at barrier boundaries.
package joinstate

import (
	"context"
	"encoding/binary"
	"sort"

	"storj.io/dataflow/codec"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore"
)

// Kind is the physical representation of a per-key state entry.
type Kind uint8

const (
	// Empty means no rows are known and nothing has been scanned or
	// mutated yet.
	Empty Kind = iota
	// NotAll means only a recent-mutation buffer is resident; the
	// authoritative set lives in the backing store and must be scanned on
	// read.
	NotAll
	// AllCached means the full matching set resides in memory.
	AllCached
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "Empty"
	case NotAll:
		return "NotAll"
	case AllCached:
		return "AllCached"
	default:
		return "Kind(?)"
	}
}

// Entry is the authoritative multiset of rows under a single join key on
// one side. It is not safe for concurrent use; the operator that owns it
// is single-threaded per spec §5.
type Entry struct {
	state Kind

	// cached holds the full matching set, valid iff state == AllCached.
	cached map[row.Key]row.Row

	// lastScan caches the most recent raw backing-store scan (pre-overlay)
	// for a NotAll entry, so that repeated Values()/IsEmpty() calls within
	// one epoch don't repeat the scan. Any Insert/Remove call does not
	// invalidate it directly -- the overlay in Values() always applies the
	// current pendingInsert/pendingDelete on top of it, so it stays
	// correct without needing invalidation.
	lastScan map[row.Key]row.Row

	// pendingInsert/pendingDelete buffer mutations since the last Flush,
	// regardless of state; Flush writes exactly this delta.
	pendingInsert map[row.Key]row.Row
	pendingDelete map[row.Key]struct{}

	prefix    []byte // keyspace || join-key bytes
	schemaLen int
	pkNumCols int
}

// NewEntry creates a fresh entry for one join key. prefix is the
// fully-qualified scan prefix (keyspace || join-key bytes) under which this
// entry's rows are persisted; schemaLen is the row's column count;
// pkNumCols is the number of columns in the side's primary key projection
// (needed to split a scanned cell key back into its pk and column-index
// parts, since the pk encoding is itself variable-length).
//
// initial is the entry's starting Kind: Empty only if the caller can prove
// the backing store has never been written to for this key (a brand-new
// pipeline with no prior ingested epoch), otherwise NotAll so the first
// Values() call scans the store instead of assuming there is nothing
// there. Defaulting every lazily-created entry to Empty would silently
// lose a resumed operator's persisted join state: the in-memory Map starts
// out with no entries at all after a restart, and nothing would ever
// trigger a scan to discover what is already on disk.
func NewEntry(prefix []byte, schemaLen, pkNumCols int, initial Kind) *Entry {
	return &Entry{
		state:         initial,
		pendingInsert: make(map[row.Key]row.Row),
		pendingDelete: make(map[row.Key]struct{}),
		prefix:        prefix,
		schemaLen:     schemaLen,
		pkNumCols:     pkNumCols,
	}
}

// Kind returns the entry's current physical representation.
func (e *Entry) Kind() Kind { return e.state }

// Dirty reports whether the entry has buffered mutations awaiting flush.
func (e *Entry) Dirty() bool {
	return len(e.pendingInsert) > 0 || len(e.pendingDelete) > 0
}

// Insert records an insertion keyed by pk, overwriting any existing row
// with the same pk (idempotent upsert, never multiplies a pk).
func (e *Entry) Insert(pk row.Key, r row.Row) {
	if e.state == Empty {
		e.state = NotAll
	}
	if e.state == AllCached {
		e.cached[pk] = r
	}
	delete(e.pendingDelete, pk)
	e.pendingInsert[pk] = r
}

// Remove records a tombstone for pk. If a pending insert for pk exists in
// the since-last-flush buffer, it is cancelled instead of writing a
// tombstone, since neither ever reached the store.
func (e *Entry) Remove(pk row.Key) {
	if e.state == Empty {
		e.state = NotAll
	}
	if e.state == AllCached {
		delete(e.cached, pk)
	}
	if _, hadPendingInsert := e.pendingInsert[pk]; hadPendingInsert {
		delete(e.pendingInsert, pk)
		return
	}
	e.pendingDelete[pk] = struct{}{}
}

// Values returns every currently-matching row. For a NotAll entry this
// scans the backing keyspace under the entry's prefix (once per epoch,
// cached in lastScan), decodes rows, and overlays pending mutations.
func (e *Entry) Values(ctx context.Context, store statestore.Store) ([]row.Row, error) {
	switch e.state {
	case Empty:
		return nil, nil
	case AllCached:
		out := make([]row.Row, 0, len(e.cached))
		for _, r := range e.cached {
			out = append(out, r)
		}
		return out, nil
	default: // NotAll
		if e.lastScan == nil {
			scanned, err := e.scan(ctx, store)
			if err != nil {
				return nil, err
			}
			e.lastScan = scanned
		}
		merged := make(map[row.Key]row.Row, len(e.lastScan))
		for pk, r := range e.lastScan {
			merged[pk] = r
		}
		for pk := range e.pendingDelete {
			delete(merged, pk)
		}
		for pk, r := range e.pendingInsert {
			merged[pk] = r
		}
		out := make([]row.Row, 0, len(merged))
		for _, r := range merged {
			out = append(out, r)
		}
		return out, nil
	}
}

// IsEmpty reports whether the materialized set, after overlay, contains
// zero rows. It always forces a scan for a NotAll entry rather than
// trusting a possibly-stale view, resolving the spec's open question in
// favor of making IsEmpty itself async-aware.
func (e *Entry) IsEmpty(ctx context.Context, store statestore.Store) (bool, error) {
	switch e.state {
	case Empty:
		return true, nil
	case AllCached:
		return len(e.cached) == 0, nil
	default:
		vals, err := e.Values(ctx, store)
		if err != nil {
			return false, err
		}
		return len(vals) == 0, nil
	}
}

// Flush appends all pending insertions as cell-encoded puts and all
// tombstones as cell-encoded deletes into batch, then clears the pending
// buffer. If the entry is NotAll and a scan has happened this epoch, the
// full set is now known (scan result merged with the flushed delta), so
// the entry is promoted to AllCached.
func (e *Entry) Flush(batch statestore.Batch) {
	for pk, r := range e.pendingInsert {
		rowPrefix := append(append([]byte{}, e.prefix...), []byte(pk)...)
		for _, kv := range codec.EncodeRowCells(rowPrefix, r) {
			batch.Put(kv.Key, kv.Value)
		}
	}
	for pk := range e.pendingDelete {
		rowPrefix := append(append([]byte{}, e.prefix...), []byte(pk)...)
		for _, key := range codec.CellKeys(rowPrefix, e.schemaLen) {
			batch.Delete(key)
		}
	}

	if e.state == NotAll && e.lastScan != nil {
		merged := make(map[row.Key]row.Row, len(e.lastScan))
		for pk, r := range e.lastScan {
			merged[pk] = r
		}
		for pk := range e.pendingDelete {
			delete(merged, pk)
		}
		for pk, r := range e.pendingInsert {
			merged[pk] = r
		}
		e.cached = merged
		e.state = AllCached
		e.lastScan = nil
	}

	e.pendingInsert = make(map[row.Key]row.Row)
	e.pendingDelete = make(map[row.Key]struct{})
}

// scan performs the backing-keyspace range scan and reassembles rows from
// their per-column cells, splitting each scanned key's suffix back into
// its (pk, column index) parts. The pk segment is itself a variable-length,
// length-prefixed encoding (row.KeyOf), so it is parsed front-to-back by
// column count rather than by a fixed byte width.
func (e *Entry) scan(ctx context.Context, store statestore.Store) (map[row.Key]row.Row, error) {
	entries, err := store.Scan(ctx, e.prefix, 0)
	if err != nil {
		return nil, err
	}

	byPK := make(map[row.Key][]codec.KV)
	for _, ent := range entries {
		suffix := ent.Key[len(e.prefix):]
		pkLen, err := pkSuffixLen(suffix, e.pkNumCols)
		if err != nil {
			return nil, err
		}
		pk := row.Key(suffix[:pkLen])
		byPK[pk] = append(byPK[pk], codec.KV{Key: ent.Key, Value: ent.Value})
	}

	out := make(map[row.Key]row.Row, len(byPK))
	for pk, cells := range byPK {
		rowPrefix := append(append([]byte{}, e.prefix...), []byte(pk)...)
		r, err := codec.DecodeRowFromCells(rowPrefix, cells, e.schemaLen)
		if err != nil {
			return nil, err
		}
		out[pk] = r
	}
	return out, nil
}

// pkSuffixLen parses nPkCols consecutive length-prefixed segments from the
// front of suffix and returns the total byte length they occupy (the pk's
// encoded length); the remaining 4 bytes of suffix are the column index.
func pkSuffixLen(suffix []byte, nPkCols int) (int, error) {
	offset := 0
	for i := 0; i < nPkCols; i++ {
		if offset+4 > len(suffix) {
			return 0, errShortKey
		}
		segLen := int(binary.BigEndian.Uint32(suffix[offset : offset+4]))
		offset += 4 + segLen
		if offset > len(suffix) {
			return 0, errShortKey
		}
	}
	return offset, nil
}

var errShortKey = shortKeyError{}

type shortKeyError struct{}

func (shortKeyError) Error() string { return "joinstate: scanned key shorter than expected pk encoding" }

// sortedKeys returns the keys of m in ascending byte order. It is
// unexported and has no callers; the package's tests live in the external
// joinstate_test package and cannot reach it.
func sortedKeys(m map[row.Key]row.Row) []row.Key {
	out := make([]row.Key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
