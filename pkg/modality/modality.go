// Package modality defines the shared read/write-through-transaction
// plumbing used by the documents, graphs, and paths modalities: a single
// Accessor interface lets each modality's code be written once and run
// either directly against an *kv.Engine (HEAD reads/writes) or buffered
// inside a transaction, without the modality packages depending on pkg/txn.
package modality

import (
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/txn"
)

// Accessor is the narrow read/write surface every modality needs.
type Accessor interface {
	Read(collection kv.Handle, keys []kv.Key) ([]kv.Entry, error)
	Write(collection kv.Handle, writes []kv.Write) error
}

// Head adapts an *kv.Engine into an Accessor operating at the engine's
// current (HEAD) generation.
type Head struct {
	Engine *kv.Engine
}

func (h Head) Read(collection kv.Handle, keys []kv.Key) ([]kv.Entry, error) {
	return h.Engine.Read(collection, keys, h.Engine.Generation())
}

func (h Head) Write(collection kv.Handle, writes []kv.Write) error {
	_, err := h.Engine.Write(collection, writes)
	return err
}

// Snapshot adapts an *kv.Engine into a read-only Accessor pinned at a fixed
// generation. Write returns a missing-feature error: snapshots are read-only.
type Snapshot struct {
	Engine     *kv.Engine
	Generation kv.Generation
}

func (s Snapshot) Read(collection kv.Handle, keys []kv.Key) ([]kv.Entry, error) {
	return s.Engine.Read(collection, keys, s.Generation)
}

func (s Snapshot) Write(collection kv.Handle, writes []kv.Write) error {
	return errMissingFeature
}

var errMissingFeature = snapshotWriteError{}

type snapshotWriteError struct{}

func (snapshotWriteError) Error() string {
	return "ukv: missing-feature: snapshots are read-only"
}

// Transaction adapts an *txn.State into an Accessor; reads add to the
// transaction's watch set unless DontWatch is set.
type Transaction struct {
	State     *txn.State
	DontWatch bool
}

func (t Transaction) Read(collection kv.Handle, keys []kv.Key) ([]kv.Entry, error) {
	return t.State.Read(collection, keys, t.DontWatch)
}

func (t Transaction) Write(collection kv.Handle, writes []kv.Write) error {
	return t.State.Write(collection, writes)
}
