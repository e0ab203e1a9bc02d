// Package filebackend implements the bespoke flat-file persistence layout
// described in SPEC_FULL.md/spec.md §6: a human-readable header (entry
// count, collection count, one "-<name>: 0x<16-hex-digit-handle>" line per
// collection, terminated by a blank line) followed by a binary sequence of
// records, each an 8-byte collection handle, 8-byte key, 4-byte value
// length, and that many value bytes (zero-length values carry no payload).
package filebackend

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// Backend persists the engine's committed state to a single file at Path.
type Backend struct {
	Path string
}

// Open returns a Backend rooted at path; the file need not exist yet.
func Open(path string) (*Backend, error) {
	return &Backend{Path: path}, nil
}

// Load reads the persisted image, or returns an empty image if the file
// does not exist yet (first run).
func (b *Backend) Load() (map[string][]kv.Entry, error) {
	f, err := os.Open(b.Path)
	if os.IsNotExist(err) {
		return map[string][]kv.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ukv: opening persisted image: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var totalEntries, collectionCount int
	if _, err := fmt.Fscanf(r, "%d\n", &totalEntries); err != nil {
		return nil, fmt.Errorf("ukv: reading entry count: %w", err)
	}
	if _, err := fmt.Fscanf(r, "%d\n", &collectionCount); err != nil {
		return nil, fmt.Errorf("ukv: reading collection count: %w", err)
	}

	handleToName := make(map[uint64]string, collectionCount)
	for i := 0; i < collectionCount; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ukv: reading collection header line: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		name, handleHex, ok := strings.Cut(strings.TrimPrefix(line, "-"), ": ")
		if !ok {
			return nil, fmt.Errorf("ukv: malformed collection header line %q", line)
		}
		var handle uint64
		if _, err := fmt.Sscanf(handleHex, "0x%016x", &handle); err != nil {
			return nil, fmt.Errorf("ukv: parsing collection handle: %w", err)
		}
		handleToName[handle] = name
	}
	// Blank line terminator.
	if _, err := r.ReadString('\n'); err != nil && err != io.EOF {
		return nil, fmt.Errorf("ukv: reading header terminator: %w", err)
	}

	out := make(map[string][]kv.Entry)
	header := make([]byte, 20)
	for {
		_, err := io.ReadFull(r, header)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ukv: reading record header: %w", err)
		}
		handle := binary.BigEndian.Uint64(header[0:8])
		key := int64(binary.BigEndian.Uint64(header[8:16]))
		length := binary.BigEndian.Uint32(header[16:20])

		var value []byte
		if length > 0 {
			value = make([]byte, length)
			if _, err := io.ReadFull(r, value); err != nil {
				return nil, fmt.Errorf("ukv: reading record payload: %w", err)
			}
		} else {
			value = []byte{}
		}

		name, ok := handleToName[handle]
		if !ok {
			return nil, fmt.Errorf("ukv: record references unknown collection handle 0x%016x", handle)
		}
		out[name] = append(out[name], kv.Entry{Key: key, Value: value, Generation: 1, Present: true})
	}
	return out, nil
}

// Flush writes the persisted image, overwriting any existing file.
func (b *Backend) Flush(snapshot map[string][]kv.Entry) error {
	f, err := os.Create(b.Path)
	if err != nil {
		return fmt.Errorf("ukv: creating persisted image: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	var totalEntries int
	handles := make(map[string]uint64, len(snapshot))
	next := uint64(0)
	for name, entries := range snapshot {
		handles[name] = next
		next++
		totalEntries += len(entries)
	}

	if _, err := fmt.Fprintf(w, "%d\n%d\n", totalEntries, len(snapshot)); err != nil {
		return err
	}
	for name, handle := range handles {
		if _, err := fmt.Fprintf(w, "-%s: 0x%016x\n", name, handle); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\n"); err != nil {
		return err
	}

	header := make([]byte, 20)
	for name, entries := range snapshot {
		handle := handles[name]
		for _, ent := range entries {
			binary.BigEndian.PutUint64(header[0:8], handle)
			binary.BigEndian.PutUint64(header[8:16], uint64(ent.Key))
			binary.BigEndian.PutUint32(header[16:20], uint32(len(ent.Value)))
			if _, err := w.Write(header); err != nil {
				return err
			}
			if len(ent.Value) > 0 {
				if _, err := w.Write(ent.Value); err != nil {
					return err
				}
			}
		}
	}
	return w.Flush()
}

// Close is a no-op: Backend does not hold an open file handle between calls.
func (b *Backend) Close() error { return nil }
