package kv

import (
	"sync"

	"github.com/google/btree"
)

const numShards = 64

// version is one link in a key's history chain, newest first.
type version struct {
	value      []byte
	generation Generation
	tombstone  bool
	prev       *version
}

// item is the btree element for one key; its version chain is swapped
// under the owning shard's write lock on every commit that touches it.
type item struct {
	key    Key
	latest *version
}

func (it *item) Less(other btree.Item) bool {
	return it.key < other.(*item).key
}

// shard guards one 1/numShards slice of a collection's keyspace.
type shard struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func newShard() *shard {
	return &shard{tree: btree.New(32)}
}

func shardIndex(k Key) int {
	// Key is frequently sequential (ids, hashes); mix the bits before
	// reducing mod numShards so adjacent keys spread across shards.
	u := uint64(k)
	u ^= u >> 33
	u *= 0xff51afd7ed558ccd
	u ^= u >> 33
	return int(u % uint64(numShards))
}

// resolve walks the version chain for a key starting at head, returning the
// newest version visible at or before asOf (math.MaxUint64 for "latest").
func resolve(head *version, asOf Generation) *version {
	for v := head; v != nil; v = v.prev {
		if v.generation <= asOf {
			return v
		}
	}
	return nil
}

// get returns the item for key, or nil if the key has never been written.
func (s *shard) get(key Key) *item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.tree.Get(&item{key: key})
	if found == nil {
		return nil
	}
	return found.(*item)
}

// applyLocked pushes a new version onto key's chain. Caller must hold s.mu
// for writing. value == nil encodes a tombstone.
func (s *shard) applyLocked(key Key, value []byte, gen Generation) {
	var prev *version
	existing := s.tree.Get(&item{key: key})
	if existing != nil {
		prev = existing.(*item).latest
	}
	v := &version{value: value, generation: gen, tombstone: value == nil, prev: prev}
	s.tree.ReplaceOrInsert(&item{key: key, latest: v})
}

// scanFrom returns up to limit keys >= start, ascending, visible as of asOf.
func (s *shard) scanFrom(start Key, limit int, asOf Generation) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Key
	s.tree.AscendGreaterOrEqual(&item{key: start}, func(i btree.Item) bool {
		it := i.(*item)
		if v := resolve(it.latest, asOf); v != nil && !v.tombstone {
			out = append(out, it.key)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// reclaim drops versions strictly older than the oldest version still
// needed by any live snapshot/transaction, freeing the rest of the chain.
func (s *shard) reclaim(minLiveGeneration Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		// The newest version at or below minLiveGeneration is the one a read
		// at that generation resolves to; everything behind it is unneeded.
		for v := it.latest; v != nil; v = v.prev {
			if v.generation <= minLiveGeneration {
				v.prev = nil
				break
			}
		}
		return true
	})
}

// liveEntries returns every live (key, value, generation) visible at asOf,
// used to materialize a flush image.
func (s *shard) liveEntries(asOf Generation) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		if v := resolve(it.latest, asOf); v != nil && !v.tombstone {
			out = append(out, Entry{Key: it.key, Value: v.value, Generation: v.generation, Present: true})
		}
		return true
	})
	return out
}

func (s *shard) count(asOf Generation) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*item)
		if v := resolve(it.latest, asOf); v != nil && !v.tombstone {
			n++
		}
		return true
	})
	return n
}
