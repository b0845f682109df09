// Package memstore implements an in-memory statestore.Store, used by unit
// tests so the joinstate, operator and mview test suites never touch disk.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/statestore"
)

// Store is a sorted in-memory key-value store guarded by a single mutex.
// It is not meant for production use; see statestore/boltstore for the
// durable implementation.
type Store struct {
	mu        sync.RWMutex
	data      map[string][]byte
	lastEpoch barrier.Epoch
}

// New creates an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Scan implements statestore.Store.
func (s *Store) Scan(ctx context.Context, prefix []byte, limit int) ([]statestore.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]statestore.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, statestore.Entry{Key: []byte(k), Value: append([]byte{}, s.data[k]...)})
	}
	return out, nil
}

// NewBatch implements statestore.Store.
func (s *Store) NewBatch() statestore.Batch {
	return &batch{store: s}
}

// LastIngestedEpoch implements statestore.Store.
func (s *Store) LastIngestedEpoch(ctx context.Context) (barrier.Epoch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEpoch, nil
}

// Close implements statestore.Store.
func (s *Store) Close() error { return nil }

type op struct {
	key    []byte
	delete bool
	value  []byte
}

type batch struct {
	store *Store
	ops   []op
}

func (b *batch) Put(key, value []byte) {
	b.ops = append(b.ops, op{key: append([]byte{}, key...), value: append([]byte{}, value...)})
}

func (b *batch) Delete(key []byte) {
	b.ops = append(b.ops, op{key: append([]byte{}, key...), delete: true})
}

func (b *batch) Len() int { return len(b.ops) }

func (b *batch) Ingest(ctx context.Context, epoch barrier.Epoch) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, o := range b.ops {
		if o.delete {
			delete(b.store.data, string(o.key))
			continue
		}
		b.store.data[string(o.key)] = o.value
	}
	b.store.lastEpoch = epoch
	return nil
}
