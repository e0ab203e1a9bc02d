// Package txn implements the optimistic transaction protocol that sits
// above pkg/kv: a per-transaction watch set (keys read, with the generation
// last observed and whether the key existed at all), a write buffer of
// pending blobs/tombstones, and a stage-then-commit conflict check run
// under the engine's own shard locks.
package txn

import (
	"fmt"
	"sync"

	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/log"
)

// watchMissing marks a watch-set entry for a key that did not exist when it
// was read, distinguishing "never written" from "written at generation 0".
const watchMissing kv.Generation = ^kv.Generation(0)

type watchEntry struct {
	collection kv.Handle
	key        kv.Key
	generation kv.Generation // watchMissing if absent at read time
}

type writeEntry struct {
	collection kv.Handle
	key        kv.Key
	value      []byte // nil = tombstone
}

// State tracks one transaction's lifecycle against an *kv.Engine. Its
// methods serialize on an internal mutex; a transaction is owned by
// whichever caller holds its handle, per spec.
type State struct {
	engine *kv.Engine

	mu      sync.Mutex
	began   kv.Generation
	done    bool // committed or aborted; Read, Write and Commit then fail
	watches map[watchKey]watchEntry
	writes  map[watchKey]*writeEntry // preserves last-write-wins per key
	order   []watchKey               // commit order: first write wins position
}

type watchKey struct {
	collection kv.Handle
	key        kv.Key
}

// ErrConflict is returned by Stage/Commit when a watched key was overwritten
// (or a watched-missing key came into existence) since Begin.
type ErrConflict struct {
	Collection kv.Handle
	Key        kv.Key
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("ukv: transaction-conflict: collection %d key %d changed since begin", e.Collection, e.Key)
}

// Begin starts a new transaction against engine, capturing the current
// global generation.
func Begin(engine *kv.Engine) *State {
	s := &State{
		engine:  engine,
		began:   engine.Generation(),
		watches: map[watchKey]watchEntry{},
		writes:  map[watchKey]*writeEntry{},
	}
	log.WithState("txn", "", 0, s.began).Debug().Msg("transaction begun")
	return s
}

// Generation returns the generation this transaction began at.
func (s *State) Generation() kv.Generation {
	return s.began
}

// Read resolves keys through the write buffer first, falling back to the
// engine at the transaction's begin generation. Unless dontWatch is set,
// every key read (hit or miss) is added to the watch set.
func (s *State) Read(collection kv.Handle, keys []kv.Key, dontWatch bool) ([]kv.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, fmt.Errorf("ukv: uninitialized-state: transaction already committed or aborted")
	}

	out := make([]kv.Entry, len(keys))
	var misses []kv.Key
	missIdx := map[kv.Key]int{}
	for i, k := range keys {
		wk := watchKey{collection, k}
		if w, ok := s.writes[wk]; ok {
			if w.value == nil {
				out[i] = kv.Entry{Key: k, Present: false}
			} else {
				out[i] = kv.Entry{Key: k, Value: w.value, Present: true}
			}
			continue
		}
		missIdx[k] = i
		misses = append(misses, k)
	}

	if len(misses) > 0 {
		resolved, err := s.engine.Read(collection, misses, s.began)
		if err != nil {
			return nil, err
		}
		for _, ent := range resolved {
			out[missIdx[ent.Key]] = ent
			if !dontWatch {
				wk := watchKey{collection, ent.Key}
				if _, alreadyWatched := s.watches[wk]; !alreadyWatched {
					gen := ent.Generation
					if !ent.Present {
						gen = watchMissing
					}
					s.watches[wk] = watchEntry{collection: collection, key: ent.Key, generation: gen}
				}
			}
		}
	}
	return out, nil
}

// Write buffers a set of writes against the transaction's local state; they
// are not visible to other transactions or HEAD reads until Commit.
func (s *State) Write(collection kv.Handle, writes []kv.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("ukv: uninitialized-state: transaction already committed or aborted")
	}
	for _, w := range writes {
		wk := watchKey{collection, w.Key}
		if _, exists := s.writes[wk]; !exists {
			s.order = append(s.order, wk)
		}
		s.writes[wk] = &writeEntry{collection: collection, key: w.Key, value: w.Value}
	}
	return nil
}

// Stage verifies every watched key's committed generation still matches
// what was observed at read time, accounting for generation wraparound, and
// that no watched-missing key has since come into existence. It does not
// mutate engine state; Commit re-verifies under lock and applies atomically.
func (s *State) Stage() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkConflictsLocked()
}

func (s *State) checkConflictsLocked() error {
	y := s.engine.Generation()
	for wk, w := range s.watches {
		current, err := s.engine.Read(wk.collection, []kv.Key{wk.key}, y)
		if err != nil {
			return err
		}
		ent := current[0]
		if w.generation == watchMissing {
			if ent.Present {
				return &ErrConflict{Collection: wk.collection, Key: wk.key}
			}
			continue
		}
		if ent.Present && overwrittenModular(s.began, y, ent.Generation) {
			return &ErrConflict{Collection: wk.collection, Key: wk.key}
		}
		if !ent.Present {
			// Present at read time and absent now: deleted within the
			// window. Read reports no generation for an absent key, so
			// this presence change is checked directly. A key absent at
			// read time that is created and deleted again before commit
			// is absent both times and is not reported as a conflict.
			return &ErrConflict{Collection: wk.collection, Key: wk.key}
		}
	}
	return nil
}

// overwrittenModular reports whether entryGen lies in the half-open modular
// interval (began, youngest], i.e. the entry was committed after this
// transaction's begin generation, handling uint64 wraparound.
func overwrittenModular(began, youngest, entryGen kv.Generation) bool {
	sinceBegin := entryGen - began   // wraps correctly for began > entryGen
	windowWidth := youngest - began  // wraps correctly for youngest < began
	return sinceBegin != 0 && sinceBegin <= windowWidth
}

// Commit re-validates under the transaction's own lock and, if the check
// passes, applies every buffered write as one atomic batch per touched
// collection via the engine's CommitBatch.
func (s *State) Commit() (kv.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return 0, fmt.Errorf("ukv: uninitialized-state: transaction already committed or aborted")
	}
	if err := s.checkConflictsLocked(); err != nil {
		return 0, err
	}

	byCollection := map[kv.Handle][]kv.Write{}
	for _, wk := range s.order {
		w := s.writes[wk]
		byCollection[wk.collection] = append(byCollection[wk.collection], kv.Write{Key: w.key, Value: w.value})
	}

	var commitGen kv.Generation
	for collection, writes := range byCollection {
		gen, err := s.engine.CommitBatch(collection, writes)
		if err != nil {
			return 0, err
		}
		commitGen = gen
	}
	s.done = true
	log.WithState("txn", "", 0, commitGen).Debug().Int("writes", len(s.order)).Msg("transaction committed")
	return commitGen, nil
}

// Abort discards the write buffer and watch set without touching engine
// state. The handle may then be reused by discarding this State and calling
// Begin again.
func (s *State) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.watches = nil
	s.writes = nil
	s.order = nil
}
