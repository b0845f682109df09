// Package statestore defines the durable key-value store contract the
// join state and the materialized-view writer are built on.
package statestore

import (
	"context"

	"storj.io/dataflow/barrier"
)

// Entry is one key-value pair returned from a Scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Store is a keyspace-scoped handle onto the backing key-value store.
// Writes become visible atomically at Batch.Ingest; reads observe the
// latest-ingested epoch less than or equal to the current one.
type Store interface {
	// Scan returns every entry whose key starts with prefix, in
	// unspecified but stable-within-a-call order. limit <= 0 means no
	// limit.
	Scan(ctx context.Context, prefix []byte, limit int) ([]Entry, error)
	// NewBatch starts a new write batch.
	NewBatch() Batch
	// LastIngestedEpoch returns the most recently ingested epoch, or the
	// zero Epoch if nothing has ever been ingested. Used on operator
	// bootstrap to resume from the correct point (spec §8 S6).
	LastIngestedEpoch(ctx context.Context) (barrier.Epoch, error)
	// Close releases any resources held by the store.
	Close() error
}

// Batch accumulates puts and deletes for atomic application.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	// Ingest applies every accumulated mutation atomically and records
	// epoch as the store's last-ingested epoch. A failed Ingest leaves the
	// store's prior state untouched; the batch must not be reused.
	Ingest(ctx context.Context, epoch barrier.Epoch) error
	// Len reports the number of operations accumulated so far, used by
	// tests.
	Len() int
}
