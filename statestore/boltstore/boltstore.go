// Package boltstore implements statestore.Store on top of go.etcd.io/bbolt,
// the maintained successor of the boltdb dependency the teacher repository
// already carries (github.com/boltdb/bolt, shadowed transitively by
// github.com/coreos/bbolt in its dependency graph).
package boltstore

import (
	"bytes"
	"context"

	"go.etcd.io/bbolt"

	"storj.io/dataflow/barrier"
	"storj.io/dataflow/dataflowpb"
	"storj.io/dataflow/statestore"
)

var epochBucket = []byte("epoch")
var epochKey = []byte("last_ingested")

// Store is a bbolt-backed statestore.Store. One bbolt database holds both
// the data bucket (all keyspaces, disambiguated by their own prefixes) and
// a small epoch-bookkeeping bucket used for recovery.
type Store struct {
	db         *bbolt.DB
	dataBucket []byte
}

// New opens (creating if absent) a bbolt database at path and prepares its
// buckets. bucket names the data bucket, mirroring the teacher's
// kvstore/boltdb.New(dbname, bucket) constructor shape.
func New(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "data"
	}
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	s := &Store{db: db, dataBucket: []byte(bucket)}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.dataBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(epochBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, Error.Wrap(err)
	}
	return s, nil
}

// Close implements statestore.Store.
func (s *Store) Close() error {
	return Error.Wrap(s.db.Close())
}

// Scan implements statestore.Store.
func (s *Store) Scan(ctx context.Context, prefix []byte, limit int) ([]statestore.Entry, error) {
	var out []statestore.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.dataBucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, statestore.Entry{
				Key:   append([]byte{}, k...),
				Value: append([]byte{}, v...),
			})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return out, nil
}

// NewBatch implements statestore.Store.
func (s *Store) NewBatch() statestore.Batch {
	return &batch{store: s}
}

// LastIngestedEpoch implements statestore.Store.
func (s *Store) LastIngestedEpoch(ctx context.Context) (barrier.Epoch, error) {
	var e barrier.Epoch
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(epochBucket)
		if b == nil {
			return nil
		}
		v := b.Get(epochKey)
		if v == nil {
			return nil
		}
		decoded, err := dataflowpb.DecodeEpoch(v)
		if err != nil {
			return err
		}
		e = decoded
		return nil
	})
	if err != nil {
		return barrier.Epoch{}, Error.Wrap(err)
	}
	return e, nil
}

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

// Ingest applies every accumulated mutation and the new epoch watermark in
// a single bbolt write transaction, giving the atomicity the spec's
// Batch.Ingest contract requires.
func (b *batch) Ingest(ctx context.Context, epoch barrier.Epoch) error {
	err := b.store.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(b.store.dataBucket)
		for _, o := range b.ops {
			if o.delete {
				if err := data.Delete(o.key); err != nil {
					return err
				}
				continue
			}
			if err := data.Put(o.key, o.value); err != nil {
				return err
			}
		}
		return tx.Bucket(epochBucket).Put(epochKey, dataflowpb.EncodeEpoch(nil, epoch))
	})
	return Error.Wrap(err)
}
