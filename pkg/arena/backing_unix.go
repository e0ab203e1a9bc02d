//go:build linux || darwin

package arena

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocateBacking returns process-private memory for BackingHeap, or an
// anonymous MAP_SHARED mapping for BackingShared so that response pointers
// remain valid across processes attached to the same region for the
// arena's lifetime, per the read_shared_memory option contract.
func allocateBacking(size int, backing Backing) ([]byte, error) {
	if backing == BackingHeap {
		return make([]byte, size), nil
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap shared arena block: %w", err)
	}
	return data, nil
}
