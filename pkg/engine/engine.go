// Package engine wires the ordered-set engine, transaction protocol, and
// derived modalities into one public Database facade, following the
// spec's "shared-pointer graphs" resolution: the database exclusively owns
// the collection table, and transaction/snapshot handles are opaque ids
// looked up in per-database tables rather than reference-counted pointers.
package engine

import (
	"sync"

	"github.com/unum-cloud/ukvdb/pkg/docs"
	"github.com/unum-cloud/ukvdb/pkg/graph"
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/modality"
	"github.com/unum-cloud/ukvdb/pkg/paths"
	"github.com/unum-cloud/ukvdb/pkg/txn"
	"github.com/unum-cloud/ukvdb/pkg/wire"
)

// TxnHandle identifies a live transaction within one Database.
type TxnHandle uint64

// SnapshotHandle identifies a pinned generation within one Database.
type SnapshotHandle kv.Generation

// Capability flags every caller should honor before relying on a feature;
// this backend supports all three unconditionally.
const (
	SupportsTransactions     = true
	SupportsNamedCollections = true
	SupportsSnapshots        = true
)

// Options is re-exported from pkg/wire so callers of pkg/engine don't need
// a second import for the option bitset.
type Options = wire.Options

const (
	OptDontWatch         = wire.OptDontWatch
	OptDontDiscardMemory = wire.OptDontDiscardMemory
	OptReadSharedMemory  = wire.OptReadSharedMemory
	OptWriteFlush        = wire.OptWriteFlush
	OptScanBulk          = wire.OptScanBulk
)

// Config controls Database construction.
type Config struct {
	Backend kv.Backend
}

// Database is the public facade. Every fallible method reports failure as
// an error value. Database recovers no panics itself; pkg/server's HTTP
// middleware and the grpcserver unary interceptor turn a handler panic into
// ErrUnknown at the transport boundary.
type Database struct {
	kv *kv.Engine

	txnMu      sync.Mutex
	nextTxn    uint64
	txns       map[TxnHandle]*txn.State
}

// Open constructs a Database, optionally replaying a persisted image.
func Open(cfg Config) (*Database, error) {
	e, err := kv.NewEngine(kv.Config{Backend: cfg.Backend})
	if err != nil {
		return nil, err
	}
	return &Database{kv: e, txns: map[TxnHandle]*txn.State{}}, nil
}

// Engine exposes the underlying ordered-set engine for callers (e.g.
// pkg/server, pkg/metrics) that need direct access beyond this facade.
func (d *Database) Engine() *kv.Engine { return d.kv }

// --- Collections ---

func (d *Database) CreateCollection(name string) (kv.Handle, error) { return d.kv.CreateCollection(name) }
func (d *Database) OpenCollection(name string) (kv.Handle, error)   { return d.kv.OpenCollection(name) }
func (d *Database) RemoveCollection(h kv.Handle) error               { return d.kv.RemoveCollection(h) }
func (d *Database) ListCollections() map[string]kv.Handle            { return d.kv.ListCollections() }

// --- HEAD (non-transactional) read/write/scan/sample/measure ---

func (d *Database) Read(collection kv.Handle, keys []kv.Key) ([]kv.Entry, error) {
	return d.kv.Read(collection, keys, d.kv.Generation())
}

func (d *Database) Write(collection kv.Handle, writes []kv.Write) (kv.Generation, error) {
	return d.kv.Write(collection, writes)
}

func (d *Database) Scan(collection kv.Handle, start kv.Key, limit int) ([]kv.Key, error) {
	return d.kv.Scan(collection, start, limit, d.kv.Generation())
}

func (d *Database) Sample(collection kv.Handle, limit int) ([]kv.Key, error) {
	return d.kv.Sample(collection, limit, d.kv.Generation())
}

func (d *Database) Measure(collection kv.Handle) (kv.Measurement, error) {
	return d.kv.Measure(collection, d.kv.Generation())
}

func (d *Database) Flush() error { return d.kv.Flush() }

// ReadBatch resolves a wire.BatchReader at HEAD — either a plain
// slice-of-records wire.RecordBatch or a zero-copy wire.StridedView over an
// externally-owned buffer (e.g. an Arrow column's backing array). Records
// are grouped by their per-entry collection before hitting the engine, so
// both batch shapes produce identical results for the same logical batch.
func (d *Database) ReadBatch(b wire.BatchReader) ([]kv.Entry, error) {
	if err := wire.ValidateBatch(b); err != nil {
		return nil, err
	}
	n := b.Len()
	out := make([]kv.Entry, n)

	byCollection := map[kv.Handle][]int{}
	for i := 0; i < n; i++ {
		c, _ := b.At(i)
		byCollection[c] = append(byCollection[c], i)
	}

	asOf := d.kv.Generation()
	for c, idxs := range byCollection {
		keys := make([]kv.Key, len(idxs))
		for j, i := range idxs {
			_, k := b.At(i)
			keys[j] = k
		}
		entries, err := d.kv.Read(c, keys, asOf)
		if err != nil {
			return nil, err
		}
		for j, i := range idxs {
			out[i] = entries[j]
		}
	}
	return out, nil
}

// --- Transactions ---

// BeginTransaction allocates a new transaction handle.
func (d *Database) BeginTransaction() TxnHandle {
	state := txn.Begin(d.kv)
	d.txnMu.Lock()
	defer d.txnMu.Unlock()
	d.nextTxn++
	h := TxnHandle(d.nextTxn)
	d.txns[h] = state
	return h
}

func (d *Database) transaction(h TxnHandle) (*txn.State, error) {
	d.txnMu.Lock()
	defer d.txnMu.Unlock()
	state, ok := d.txns[h]
	if !ok {
		return nil, ErrUninitializedState
	}
	return state, nil
}

// TxnRead reads through a transaction's buffer and watch set.
func (d *Database) TxnRead(h TxnHandle, collection kv.Handle, keys []kv.Key, opts Options) ([]kv.Entry, error) {
	state, err := d.transaction(h)
	if err != nil {
		return nil, err
	}
	return state.Read(collection, keys, opts.Has(OptDontWatch))
}

// TxnWrite buffers writes against a transaction without touching committed
// state.
func (d *Database) TxnWrite(h TxnHandle, collection kv.Handle, writes []kv.Write) error {
	state, err := d.transaction(h)
	if err != nil {
		return err
	}
	return state.Write(collection, writes)
}

// CommitTransaction stages and commits a transaction, releasing its handle
// on either outcome (a failed commit still frees the handle; callers must
// Begin again to retry, per the abort/retry lifecycle).
func (d *Database) CommitTransaction(h TxnHandle) (kv.Generation, error) {
	state, err := d.transaction(h)
	if err != nil {
		return 0, err
	}
	gen, commitErr := state.Commit()
	d.txnMu.Lock()
	delete(d.txns, h)
	d.txnMu.Unlock()
	return gen, commitErr
}

// AbortTransaction discards a transaction's buffered state and frees its
// handle.
func (d *Database) AbortTransaction(h TxnHandle) error {
	state, err := d.transaction(h)
	if err != nil {
		return err
	}
	state.Abort()
	d.txnMu.Lock()
	delete(d.txns, h)
	d.txnMu.Unlock()
	return nil
}

// --- Snapshots ---

func (d *Database) CreateSnapshot() SnapshotHandle {
	return SnapshotHandle(d.kv.CreateSnapshot())
}

func (d *Database) DropSnapshot(h SnapshotHandle) {
	d.kv.DropSnapshot(kv.Generation(h))
}

func (d *Database) ListSnapshots() []SnapshotHandle {
	gens := d.kv.ListSnapshots()
	out := make([]SnapshotHandle, len(gens))
	for i, g := range gens {
		out[i] = SnapshotHandle(g)
	}
	return out
}

func (d *Database) ReadSnapshot(h SnapshotHandle, collection kv.Handle, keys []kv.Key) ([]kv.Entry, error) {
	return d.kv.Read(collection, keys, kv.Generation(h))
}

// --- Modality accessors ---

// accessorFor resolves the Accessor a modality call should use: a
// transaction's buffered view if txnHandle is nonzero, a pinned snapshot if
// snap is nonzero, else the live HEAD view.
func (d *Database) accessorFor(txnHandle TxnHandle, snap SnapshotHandle, dontWatch bool) (modality.Accessor, error) {
	if txnHandle != 0 {
		state, err := d.transaction(txnHandle)
		if err != nil {
			return nil, err
		}
		return modality.Transaction{State: state, DontWatch: dontWatch}, nil
	}
	if snap != 0 {
		return modality.Snapshot{Engine: d.kv, Generation: kv.Generation(snap)}, nil
	}
	return modality.Head{Engine: d.kv}, nil
}

// Documents returns a documents-modality store bound to collection, routed
// through the given transaction (if nonzero) or snapshot (if nonzero), else
// HEAD.
func (d *Database) Documents(collection kv.Handle, txnHandle TxnHandle, snap SnapshotHandle) (*docs.Store, error) {
	accessor, err := d.accessorFor(txnHandle, snap, false)
	if err != nil {
		return nil, err
	}
	return &docs.Store{Accessor: accessor, Collection: collection}, nil
}

// Graph returns a graphs-modality store bound to collection.
func (d *Database) Graph(collection kv.Handle, directed bool, txnHandle TxnHandle, snap SnapshotHandle) (*graph.Store, error) {
	accessor, err := d.accessorFor(txnHandle, snap, false)
	if err != nil {
		return nil, err
	}
	return &graph.Store{Accessor: accessor, Collection: collection, Directed: directed}, nil
}

// Paths returns a paths-modality store bound to collection.
func (d *Database) Paths(collection kv.Handle, txnHandle TxnHandle, snap SnapshotHandle) (*paths.Store, error) {
	accessor, err := d.accessorFor(txnHandle, snap, false)
	if err != nil {
		return nil, err
	}
	return &paths.Store{Accessor: accessor, Collection: collection}, nil
}
