// Package wire validates request shapes before they reach a modality or the
// engine, and defines the option bitset and BatchReader abstraction shared
// by every batched operation (read/write/scan/...). A caller may supply a
// natural slice-of-records batch or a StridedView over externally-owned
// columnar buffers; both satisfy BatchReader and must behave identically.
package wire

import (
	"fmt"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// Options is the bitset carried on most requests, matching the option bits
// specified for the engine.
type Options uint32

const (
	OptDontWatch Options = 1 << iota
	OptDontDiscardMemory
	OptReadSharedMemory
	OptWriteFlush
	OptScanBulk
)

func (o Options) Has(flag Options) bool { return o&flag != 0 }

// BatchReader is a read-only view over a batch of (collection, key) pairs,
// implemented either by a plain slice of records or by StridedView over
// columnar buffers.
type BatchReader interface {
	Len() int
	At(i int) (collection kv.Handle, key kv.Key)
}

// RecordBatch is the natural slice-of-records BatchReader.
type RecordBatch struct {
	Collections []kv.Handle
	Keys        []kv.Key
}

func (b RecordBatch) Len() int { return len(b.Keys) }

func (b RecordBatch) At(i int) (kv.Handle, kv.Key) {
	c := kv.MainCollection
	if len(b.Collections) > 0 {
		c = b.Collections[i]
	}
	return c, b.Keys[i]
}

// StridedView adapts an externally-owned columnar buffer (e.g. one field of
// an Arrow record batch) into a BatchReader without copying: Collections
// and Keys are read at element index i*CollectionStr / i*KeyStride of their
// respective slices rather than assumed contiguous. A stride of 0
// means "broadcast the first element," matching the C-API convention this
// was derived from.
type StridedView struct {
	Collections   []kv.Handle
	CollectionStr int // element stride, not bytes: index = i*CollectionStr
	Keys          []kv.Key
	KeyStride     int
	Count         int
}

func (v StridedView) Len() int { return v.Count }

func (v StridedView) At(i int) (kv.Handle, kv.Key) {
	c := kv.MainCollection
	if len(v.Collections) > 0 {
		idx := i * v.CollectionStr
		if v.CollectionStr == 0 {
			idx = 0
		}
		c = v.Collections[idx]
	}
	idx := i * v.KeyStride
	if v.KeyStride == 0 {
		idx = 0
	}
	return c, v.Keys[idx]
}

// ValidateBatch checks the argument-shape invariants common to every batched
// call: the batch isn't empty-with-nonzero-declared-length, and any stride
// is non-negative.
func ValidateBatch(b BatchReader) error {
	if b == nil {
		return fmt.Errorf("ukv: argument-wrong: nil batch")
	}
	if sv, ok := b.(StridedView); ok {
		if sv.CollectionStr < 0 || sv.KeyStride < 0 {
			return fmt.Errorf("ukv: argument-wrong: negative stride")
		}
		if sv.Count < 0 {
			return fmt.Errorf("ukv: argument-wrong: negative count")
		}
		if sv.Count > 0 && len(sv.Keys) == 0 {
			return fmt.Errorf("ukv: argument-wrong: null required pointer: keys")
		}
	}
	return nil
}

// ValidateScan checks a scan/sample request's limit argument. Full scans
// (limit <= 0) are always rejected, matching pkg/kv.
func ValidateScan(limit int) error {
	if limit <= 0 {
		return kv.ErrFullScanRejected
	}
	return nil
}

// ValidateOptionCombo rejects option-bit combinations that are mutually
// exclusive or otherwise ill-formed together. transactionDontWatch only
// makes sense paired with an active transaction.
func ValidateOptionCombo(opts Options, hasTransaction bool) error {
	if opts.Has(OptDontWatch) && !hasTransaction {
		return fmt.Errorf("ukv: args-combo: transaction_dont_watch requires an active transaction")
	}
	return nil
}

// ValidatePath checks a JSON-Pointer field path is at least syntactically
// well-formed (starts with "/" or is empty for whole-document access).
func ValidatePath(path string) error {
	if path == "" {
		return nil
	}
	if path[0] != '/' {
		return fmt.Errorf("ukv: argument-wrong: malformed path %q: must start with '/'", path)
	}
	return nil
}
