package joinstate

import (
	"storj.io/dataflow/keyspace"
	"storj.io/dataflow/row"
	"storj.io/dataflow/statestore"
)

// EvictionPolicy is an injectable extension point for bounding the
// in-memory per-key map, which the core does not otherwise evict (per
// spec §3 "Lifecycles"). The default NoEviction never evicts anything.
// An implementation must never evict an entry with Dirty() == true or
// Kind() == NotAll with a pending scan result still needed by an
// in-flight Values() overlay.
type EvictionPolicy interface {
	// Touch is called whenever a key is looked up; implementations may
	// use it to maintain recency order.
	Touch(key row.Key)
	// Evictable returns the join keys, if any, that may currently be
	// dropped from the map without losing unflushed state.
	Evictable(dirty func(row.Key) bool) []row.Key
}

// NoEviction never evicts; it is the default EvictionPolicy.
type NoEviction struct{}

// Touch implements EvictionPolicy.
func (NoEviction) Touch(row.Key) {}

// Evictable implements EvictionPolicy.
func (NoEviction) Evictable(func(row.Key) bool) []row.Key { return nil }

// Map is the per-side collection of Entry values, keyed by join key.
// Entries are created lazily on first encounter and never evicted by
// default.
type Map struct {
	ks           keyspace.Keyspace
	schemaLen    int
	pkNumCols    int
	entryInitial Kind
	entries      map[row.Key]*Entry
	evict        EvictionPolicy
}

// NewMap creates an empty per-side join-state map rooted at ks. resumed
// must be true whenever the backing store may already hold rows under ks
// from a prior run (i.e. its LastIngestedEpoch is non-zero); every entry
// Get lazily creates then starts out NotAll instead of Empty, forcing a
// store scan on first read rather than assuming there is nothing there.
func NewMap(ks keyspace.Keyspace, schemaLen, pkNumCols int, resumed bool) *Map {
	initial := Empty
	if resumed {
		initial = NotAll
	}
	return &Map{
		ks:           ks,
		schemaLen:    schemaLen,
		pkNumCols:    pkNumCols,
		entryInitial: initial,
		entries:      make(map[row.Key]*Entry),
		evict:        NoEviction{},
	}
}

// SetEvictionPolicy installs a custom eviction policy, replacing the
// default no-op.
func (m *Map) SetEvictionPolicy(p EvictionPolicy) {
	if p == nil {
		p = NoEviction{}
	}
	m.evict = p
}

// Get returns the entry for joinKey, creating it lazily if absent.
func (m *Map) Get(joinKey row.Key) *Entry {
	m.evict.Touch(joinKey)
	e, ok := m.entries[joinKey]
	if ok {
		return e
	}
	prefix := m.ks.Key([]byte(joinKey))
	e = NewEntry(prefix, m.schemaLen, m.pkNumCols, m.entryInitial)
	m.entries[joinKey] = e
	return e
}

// Peek returns the entry for joinKey without creating it.
func (m *Map) Peek(joinKey row.Key) (*Entry, bool) {
	e, ok := m.entries[joinKey]
	return e, ok
}

// DirtyEntries returns every entry with buffered mutations, paired with
// its join key, in unspecified order.
func (m *Map) DirtyEntries() []DirtyEntry {
	var out []DirtyEntry
	for k, e := range m.entries {
		if e.Dirty() {
			out = append(out, DirtyEntry{Key: k, Entry: e})
		}
	}
	return out
}

// DirtyEntry pairs a join key with its dirty Entry.
type DirtyEntry struct {
	Key   row.Key
	Entry *Entry
}

// FlushAll flushes every dirty entry into batch and runs the configured
// eviction policy afterward.
func (m *Map) FlushAll(batch statestore.Batch) {
	for _, d := range m.DirtyEntries() {
		d.Entry.Flush(batch)
	}
	evictable := m.evict.Evictable(func(k row.Key) bool {
		e, ok := m.entries[k]
		return ok && e.Dirty()
	})
	for _, k := range evictable {
		delete(m.entries, k)
	}
}
