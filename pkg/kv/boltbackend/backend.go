// Package boltbackend is an optional persistence backend for pkg/kv built
// on go.etcd.io/bbolt, grounded on the teacher's bucket-per-entity BoltDB
// store: one bucket per collection, keys are the binary-encoded int64 key,
// values carry an 8-byte big-endian generation prefix followed by the blob.
package boltbackend

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// Backend persists collections as BoltDB buckets.
type Backend struct {
	db *bolt.DB
}

// Open opens (or creates) the database file under dataDir.
func Open(dataDir string) (*Backend, error) {
	dbPath := filepath.Join(dataDir, "ukv.bolt")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("ukv: opening bolt backend: %w", err)
	}
	return &Backend{db: db}, nil
}

func encodeKey(k kv.Key) []byte {
	buf := make([]byte, 8)
	// Flip the sign bit so BoltDB's byte-lexicographic bucket ordering
	// matches signed ascending key order.
	binary.BigEndian.PutUint64(buf, uint64(k)^(1<<63))
	return buf
}

func decodeKey(buf []byte) kv.Key {
	return kv.Key(binary.BigEndian.Uint64(buf) ^ (1 << 63))
}

func encodeValue(value []byte, generation kv.Generation) []byte {
	out := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(out[:8], generation)
	copy(out[8:], value)
	return out
}

func decodeValue(buf []byte) ([]byte, kv.Generation) {
	if len(buf) < 8 {
		return nil, 0
	}
	gen := binary.BigEndian.Uint64(buf[:8])
	value := make([]byte, len(buf)-8)
	copy(value, buf[8:])
	return value, gen
}

// Load reads every bucket into a per-collection entry slice.
func (b *Backend) Load() (map[string][]kv.Entry, error) {
	out := make(map[string][]kv.Entry)
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, bucket *bolt.Bucket) error {
			var entries []kv.Entry
			err := bucket.ForEach(func(k, v []byte) error {
				value, gen := decodeValue(v)
				entries = append(entries, kv.Entry{
					Key:        decodeKey(k),
					Value:      value,
					Generation: gen,
					Present:    true,
				})
				return nil
			})
			if err != nil {
				return err
			}
			out[string(name)] = entries
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("ukv: loading bolt backend: %w", err)
	}
	return out, nil
}

// Flush overwrites every collection's bucket with the given snapshot.
func (b *Backend) Flush(snapshot map[string][]kv.Entry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for name, entries := range snapshot {
			bucketName := []byte(name)
			if err := tx.DeleteBucket(bucketName); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			bucket, err := tx.CreateBucket(bucketName)
			if err != nil {
				return fmt.Errorf("ukv: creating bucket %s: %w", name, err)
			}
			for _, ent := range entries {
				if err := bucket.Put(encodeKey(ent.Key), encodeValue(ent.Value, ent.Generation)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (b *Backend) Close() error {
	return b.db.Close()
}
