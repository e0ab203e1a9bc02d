// Package arena implements the request-scoped bump allocator that backs
// every response buffer returned by the engine. A single Arena is acquired
// per top-level request, grows by chaining new blocks as it fills, and is
// reset (supplementary blocks freed, first block retained) the next time
// its owner acquires it unless the caller asks to retain prior results.
package arena

import (
	"fmt"
	"sync"
)

// Backing selects where a block's memory comes from.
type Backing int

const (
	// BackingHeap allocates a process-private Go byte slice.
	BackingHeap Backing = iota
	// BackingShared allocates a shared-memory mapping usable across
	// processes attached to the same region (see SharedBlock).
	BackingShared
)

const (
	defaultBlockSize  = 64 * 1024
	growthFactor      = 2
	blockHeaderSlack  = 64
)

// block is one node in the arena's singly-linked chain.
type block struct {
	data     []byte
	mark     int // high-water mark within data
	backing  Backing
	next     *block
}

func newBlock(size int, backing Backing) (*block, error) {
	if size <= 0 {
		size = defaultBlockSize
	}
	data, err := allocateBacking(size, backing)
	if err != nil {
		return nil, err
	}
	return &block{data: data, backing: backing}, nil
}

func (b *block) slack() int {
	return len(b.data) - b.mark
}

// Arena is a chained bump allocator. It is not safe for concurrent use by
// multiple requests at once; callers serialize through Acquire.
type Arena struct {
	mu      sync.Mutex
	head    *block
	tail    *block
	backing Backing

	// lastBlock/lastEnd support the extension shortcut: extending the
	// most recent allocation in place instead of copying into a new one.
	lastBlock *block
	lastEnd   int
}

// New creates an Arena with its first block sized at size bytes (or a
// sensible default when size <= 0), backed per the given Backing kind.
func New(size int, backing Backing) (*Arena, error) {
	b, err := newBlock(size, backing)
	if err != nil {
		return nil, err
	}
	return &Arena{head: b, tail: b, backing: backing}, nil
}

// Acquire locks the arena for the duration of one top-level request. Unless
// retain is true, every block past the first is dropped and the first
// block's high-water mark is rewound to zero, so pointers exported by a
// prior request become invalid.
func (a *Arena) Acquire(retain bool) func() {
	a.mu.Lock()
	if !retain {
		a.head.mark = 0
		a.head.next = nil
		a.tail = a.head
		a.lastBlock = nil
		a.lastEnd = 0
	}
	return a.mu.Unlock
}

// Alloc returns a zeroed slice of n bytes with the arena's lifetime. The
// slice is a weak view: it is invalid after the next non-retaining Acquire.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ukv: out-of-range: negative allocation size %d", n)
	}
	if n == 0 {
		return nil, nil
	}

	for blk := a.head; blk != nil; blk = blk.next {
		if blk.slack() >= n {
			start := blk.mark
			blk.mark += n
			a.lastBlock = blk
			a.lastEnd = blk.mark
			// Blocks are reused after a non-retaining Acquire; clear stale bytes.
			clear(blk.data[start:blk.mark])
			return blk.data[start:blk.mark:blk.mark], nil
		}
	}

	lastCap := a.tail.len()
	size := lastCap * growthFactor
	if size < n+blockHeaderSlack {
		size = n + blockHeaderSlack
	}
	nb, err := newBlock(size, a.backing)
	if err != nil {
		return nil, fmt.Errorf("ukv: out-of-memory: growing arena by %d bytes: %w", size, err)
	}
	a.tail.next = nb
	a.tail = nb
	nb.mark = n
	a.lastBlock = nb
	a.lastEnd = n
	return nb.data[:n:n], nil
}

// Extend grows the most recent allocation by delta bytes in place when
// possible (its end still equals some block's high-water mark and that
// block has slack), avoiding a copy. It falls back to a fresh Alloc plus
// copy otherwise, returning the combined buffer.
func (a *Arena) Extend(prev []byte, delta int) ([]byte, error) {
	if delta <= 0 {
		return prev, nil
	}
	if a.lastBlock != nil && a.lastEnd == a.lastBlock.mark && a.lastBlock.slack() >= delta {
		start := a.lastEnd - len(prev)
		a.lastBlock.mark += delta
		a.lastEnd = a.lastBlock.mark
		return a.lastBlock.data[start:a.lastEnd:a.lastEnd], nil
	}
	grown, err := a.Alloc(len(prev) + delta)
	if err != nil {
		return nil, err
	}
	copy(grown, prev)
	return grown, nil
}

func (b *block) len() int { return len(b.data) }
