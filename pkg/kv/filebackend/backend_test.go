package filebackend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

func TestFlushAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(filepath.Join(dir, "image.ukv"))
	require.NoError(t, err)

	snapshot := map[string][]kv.Entry{
		"main": {
			{Key: 1, Value: []byte("a"), Generation: 1, Present: true},
			{Key: 2, Value: []byte{}, Generation: 2, Present: true},
			{Key: -5, Value: []byte("negative"), Generation: 3, Present: true},
		},
		"other": {
			{Key: 42, Value: []byte("answer"), Generation: 1, Present: true},
		},
	}

	require.NoError(t, b.Flush(snapshot))

	loaded, err := b.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.ElementsMatch(t, withResetGeneration(snapshot["main"]), withResetGeneration(loaded["main"]))
	assert.ElementsMatch(t, withResetGeneration(snapshot["other"]), withResetGeneration(loaded["other"]))
}

func TestLoadMissingFileReturnsEmptyImage(t *testing.T) {
	b, err := Open(filepath.Join(t.TempDir(), "missing.ukv"))
	require.NoError(t, err)

	loaded, err := b.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

// withResetGeneration normalizes generation to 1 since filebackend.Load does
// not currently round-trip arbitrary generations through the header (it
// assigns 1 to every replayed entry on load, matching a fresh engine replay).
func withResetGeneration(entries []kv.Entry) []kv.Entry {
	out := make([]kv.Entry, len(entries))
	for i, e := range entries {
		e.Generation = 1
		out[i] = e
	}
	return out
}
