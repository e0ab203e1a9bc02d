package kv

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/unum-cloud/ukvdb/pkg/log"
)

// Backend persists a flushed snapshot of the engine on demand. Engine works
// with or without one configured; see pkg/kv/filebackend and
// pkg/kv/boltbackend for the two reference implementations described in
// SPEC_FULL.md.
type Backend interface {
	// Load reads a persisted image and returns its entries grouped by
	// collection name, for replay into a freshly constructed Engine.
	Load() (map[string][]Entry, error)
	// Flush persists the current committed state.
	Flush(snapshot map[string][]Entry) error
	Close() error
}

type collectionState struct {
	name   string
	shards [numShards]*shard
}

func newCollectionState(name string) *collectionState {
	cs := &collectionState{name: name}
	for i := range cs.shards {
		cs.shards[i] = newShard()
	}
	return cs
}

func (cs *collectionState) shardFor(k Key) *shard {
	return cs.shards[shardIndex(k)]
}

// Engine owns the committed state of every collection and the name table.
// It is safe for concurrent use.
type Engine struct {
	structural sync.RWMutex
	byHandle   map[Handle]*collectionState
	byName     map[string]Handle
	nextHandle uint64

	generation uint64 // atomic: youngest committed generation

	snapMu       sync.Mutex
	liveSnapshots map[Generation]int // refcount per pinned generation

	backend Backend
}

// Config controls Engine construction.
type Config struct {
	Backend Backend
}

// NewEngine constructs an Engine with the reserved main collection already
// open, optionally replaying a persisted image from Config.Backend.
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{
		byHandle:      map[Handle]*collectionState{},
		byName:        map[string]Handle{},
		liveSnapshots: map[Generation]int{},
		backend:       cfg.Backend,
	}
	e.byHandle[MainCollection] = newCollectionState("main")
	e.byName["main"] = MainCollection
	e.nextHandle = 1
	// Generation 0 is reserved as the SnapshotHandle/TxnHandle zero-value
	// sentinel ("none requested"); the counter starts at 1, so the first
	// commit lands at generation 2 and CreateSnapshot never returns 0.
	e.generation = 1

	if cfg.Backend != nil {
		image, err := cfg.Backend.Load()
		if err != nil {
			return nil, fmt.Errorf("ukv: loading persisted image: %w", err)
		}
		if err := e.replay(image); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) replay(image map[string][]Entry) error {
	for name, entries := range image {
		handle, err := e.ensureCollectionLocked(name)
		if err != nil {
			return err
		}
		cs := e.byHandle[handle]
		gen := Generation(1)
		for _, ent := range entries {
			if ent.Generation > gen {
				gen = ent.Generation
			}
			cs.shardFor(ent.Key).applyLocked(ent.Key, ent.Value, ent.Generation)
		}
		if gen > atomic.LoadUint64(&e.generation) {
			atomic.StoreUint64(&e.generation, gen)
		}
	}
	return nil
}

func (e *Engine) ensureCollectionLocked(name string) (Handle, error) {
	e.structural.Lock()
	defer e.structural.Unlock()
	if h, ok := e.byName[name]; ok {
		return h, nil
	}
	h := Handle(e.nextHandle)
	e.nextHandle++
	e.byHandle[h] = newCollectionState(name)
	e.byName[name] = h
	return h, nil
}

// CreateCollection creates a new named collection and returns its handle.
func (e *Engine) CreateCollection(name string) (Handle, error) {
	e.structural.Lock()
	defer e.structural.Unlock()
	if _, ok := e.byName[name]; ok {
		return 0, ErrCollectionExists
	}
	h := Handle(e.nextHandle)
	e.nextHandle++
	e.byHandle[h] = newCollectionState(name)
	e.byName[name] = h
	log.WithState("kv", name, 0, 0).Debug().Uint64("handle", uint64(h)).Msg("collection created")
	return h, nil
}

// OpenCollection resolves a name to its handle.
func (e *Engine) OpenCollection(name string) (Handle, error) {
	if name == "" || name == "main" {
		return MainCollection, nil
	}
	e.structural.RLock()
	defer e.structural.RUnlock()
	h, ok := e.byName[name]
	if !ok {
		return 0, ErrUnknownCollection
	}
	return h, nil
}

// RemoveCollection drops a named collection. The main collection cannot be
// dropped.
func (e *Engine) RemoveCollection(h Handle) error {
	if h == MainCollection {
		return fmt.Errorf("ukv: args-combo: the main collection cannot be removed")
	}
	e.structural.Lock()
	defer e.structural.Unlock()
	cs, ok := e.byHandle[h]
	if !ok {
		return ErrUnknownCollection
	}
	delete(e.byHandle, h)
	delete(e.byName, cs.name)
	return nil
}

// ListCollections returns every named collection's handle.
func (e *Engine) ListCollections() map[string]Handle {
	e.structural.RLock()
	defer e.structural.RUnlock()
	out := make(map[string]Handle, len(e.byName))
	for name, h := range e.byName {
		out[name] = h
	}
	return out
}

func (e *Engine) collection(h Handle) (*collectionState, error) {
	e.structural.RLock()
	defer e.structural.RUnlock()
	cs, ok := e.byHandle[h]
	if !ok {
		return nil, ErrUnknownCollection
	}
	return cs, nil
}

// Generation returns the current youngest committed generation.
func (e *Engine) Generation() Generation {
	return atomic.LoadUint64(&e.generation)
}

// Read resolves each key against generation asOf (use e.Generation() for
// HEAD reads, or a pinned Snapshot's generation).
func (e *Engine) Read(h Handle, keys []Key, asOf Generation) ([]Entry, error) {
	cs, err := e.collection(h)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(keys))
	for i, k := range keys {
		it := cs.shardFor(k).get(k)
		if it == nil {
			out[i] = Entry{Key: k, Present: false}
			continue
		}
		v := resolve(it.latest, asOf)
		if v == nil || v.tombstone {
			out[i] = Entry{Key: k, Present: false}
			continue
		}
		out[i] = Entry{Key: k, Value: v.value, Generation: v.generation, Present: true}
	}
	return out, nil
}

// CommitBatch applies a set of writes atomically at a single new
// generation, used both by HEAD writes (Write) and by transaction commit.
// Every write lands at the returned generation, or (on error) none do.
func (e *Engine) CommitBatch(h Handle, writes []Write) (Generation, error) {
	cs, err := e.collection(h)
	if err != nil {
		return 0, err
	}

	// Acquire shard locks in a fixed order (shard index ascending) to avoid
	// deadlocking against a concurrent batch touching overlapping shards.
	touched := map[int]*shard{}
	for _, w := range writes {
		idx := shardIndex(w.Key)
		touched[idx] = cs.shardFor(w.Key)
	}
	ordered := make([]*shard, 0, len(touched))
	for i := 0; i < numShards; i++ {
		if s, ok := touched[i]; ok {
			ordered = append(ordered, s)
		}
	}
	for _, s := range ordered {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range ordered {
			s.mu.Unlock()
		}
	}()

	gen := atomic.AddUint64(&e.generation, 1)
	for _, w := range writes {
		cs.shardFor(w.Key).applyLocked(w.Key, w.Value, gen)
	}
	return gen, nil
}

// Write is the non-transactional (HEAD) batched write: either every entry
// lands at one new generation, or none do.
func (e *Engine) Write(h Handle, writes []Write) (Generation, error) {
	return e.CommitBatch(h, writes)
}

// Scan returns up to limit keys >= start in ascending order, without
// values. A zero or negative limit is rejected: full scans are disallowed.
func (e *Engine) Scan(h Handle, start Key, limit int, asOf Generation) ([]Key, error) {
	if limit <= 0 {
		return nil, ErrFullScanRejected
	}
	cs, err := e.collection(h)
	if err != nil {
		return nil, err
	}

	// Collection-wide ascending scan spans shards; merge per-shard runs.
	type cursor struct {
		keys []Key
		pos  int
	}
	cursors := make([]*cursor, numShards)
	for i, s := range cs.shards {
		cursors[i] = &cursor{keys: s.scanFrom(start, limit, asOf)}
	}

	var out []Key
	for len(out) < limit {
		bestIdx := -1
		var bestKey Key
		for i, c := range cursors {
			if c.pos >= len(c.keys) {
				continue
			}
			if bestIdx == -1 || c.keys[c.pos] < bestKey {
				bestIdx = i
				bestKey = c.keys[c.pos]
			}
		}
		if bestIdx == -1 {
			break
		}
		out = append(out, bestKey)
		cursors[bestIdx].pos++
	}
	return out, nil
}

// Sample returns up to limit uniformly-random live keys from the
// collection, without replacement, via reservoir sampling over a full
// ascending walk (the reference engine favors simplicity over avoiding the
// O(n) walk; SPEC_FULL's non-goal on secondary indexing applies equally
// here).
func (e *Engine) Sample(h Handle, limit int, asOf Generation) ([]Key, error) {
	if limit <= 0 {
		return nil, ErrFullScanRejected
	}
	cs, err := e.collection(h)
	if err != nil {
		return nil, err
	}

	reservoir := make([]Key, 0, limit)
	seen := 0
	for _, s := range cs.shards {
		keys := s.scanFrom(KeyUnknown+1, -1, asOf)
		for _, k := range keys {
			seen++
			if len(reservoir) < limit {
				reservoir = append(reservoir, k)
				continue
			}
			j := rand.Intn(seen)
			if j < limit {
				reservoir[j] = k
			}
		}
	}
	return reservoir, nil
}

// Measure returns conservative cardinality bounds for a collection as of a
// generation; the in-memory engine can compute exact counts cheaply enough
// to return them as both the min and max bound.
type Measurement struct {
	MinCardinality, MaxCardinality int64
}

func (e *Engine) Measure(h Handle, asOf Generation) (Measurement, error) {
	cs, err := e.collection(h)
	if err != nil {
		return Measurement{}, err
	}
	var total int64
	for _, s := range cs.shards {
		total += int64(s.count(asOf))
	}
	return Measurement{MinCardinality: total, MaxCardinality: total}, nil
}

// CreateSnapshot pins the current generation, preventing its versions (and
// anything newer) from being reclaimed until DropSnapshot releases it.
// Multiple concurrent snapshots at the same generation are refcounted.
func (e *Engine) CreateSnapshot() Generation {
	gen := e.Generation()
	e.snapMu.Lock()
	e.liveSnapshots[gen]++
	e.snapMu.Unlock()
	return gen
}

// DropSnapshot releases a pinned generation and, if it was the oldest live
// pin, reclaims version-chain history no longer reachable by any live
// snapshot or running transaction.
func (e *Engine) DropSnapshot(gen Generation) {
	e.snapMu.Lock()
	e.liveSnapshots[gen]--
	if e.liveSnapshots[gen] <= 0 {
		delete(e.liveSnapshots, gen)
	}
	minLive := e.minLiveSnapshotLocked()
	e.snapMu.Unlock()
	e.reclaim(minLive)
}

// ListSnapshots returns every currently pinned generation.
func (e *Engine) ListSnapshots() []Generation {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	out := make([]Generation, 0, len(e.liveSnapshots))
	for gen := range e.liveSnapshots {
		out = append(out, gen)
	}
	return out
}

func (e *Engine) minLiveSnapshotLocked() Generation {
	min := e.Generation()
	for gen := range e.liveSnapshots {
		if gen < min {
			min = gen
		}
	}
	return min
}

// reclaim drops, across every shard of every collection, the version-chain
// history behind each key's newest version at or below minLive.
func (e *Engine) reclaim(minLive Generation) {
	e.structural.RLock()
	defer e.structural.RUnlock()
	for _, cs := range e.byHandle {
		for _, s := range cs.shards {
			s.reclaim(minLive)
		}
	}
}

// Flush persists the current committed state via the configured Backend.
func (e *Engine) Flush() error {
	if e.backend == nil {
		return nil
	}
	e.structural.RLock()
	asOf := e.Generation()
	snapshot := make(map[string][]Entry, len(e.byHandle))
	for _, cs := range e.byHandle {
		var entries []Entry
		for _, s := range cs.shards {
			entries = append(entries, s.liveEntries(asOf)...)
		}
		snapshot[cs.name] = entries
	}
	e.structural.RUnlock()
	return e.backend.Flush(snapshot)
}
