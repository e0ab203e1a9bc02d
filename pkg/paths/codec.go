// Package paths implements the paths modality: variable-length string keys
// resolved through a stable hash into bucketed, collision-chained storage,
// scannable by prefix or regex.
package paths

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// Hash maps a path string to its bucket key.
func Hash(path string) kv.Key {
	return kv.Key(xxhash.Sum64String(path))
}

// entry is one (path, value) pair inside a bucket.
type entry struct {
	path  string
	value []byte
}

// encodeBucket packs entries per the fixed layout: 4-byte count, N 4-byte
// path lengths, N 4-byte value lengths, concatenated path bytes,
// concatenated value bytes.
func encodeBucket(entries []entry) []byte {
	n := len(entries)
	size := 4 + 4*n + 4*n
	for _, e := range entries {
		size += len(e.path) + len(e.value)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(n))
	off := 4
	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.path)))
		off += 4
	}
	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(e.value)))
		off += 4
	}
	for _, e := range entries {
		off += copy(buf[off:], e.path)
	}
	for _, e := range entries {
		off += copy(buf[off:], e.value)
	}
	return buf
}

func decodeBucket(buf []byte) []entry {
	if len(buf) < 4 {
		return nil
	}
	n := int(binary.BigEndian.Uint32(buf[0:4]))
	off := 4
	pathLens := make([]int, n)
	for i := 0; i < n; i++ {
		pathLens[i] = int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	valueLens := make([]int, n)
	for i := 0; i < n; i++ {
		valueLens[i] = int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
	}
	entries := make([]entry, n)
	for i := 0; i < n; i++ {
		entries[i].path = string(buf[off : off+pathLens[i]])
		off += pathLens[i]
	}
	for i := 0; i < n; i++ {
		v := make([]byte, valueLens[i])
		copy(v, buf[off:off+valueLens[i]])
		entries[i].value = v
		off += valueLens[i]
	}
	return entries
}
