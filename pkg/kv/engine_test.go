package kv

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Config{})
	require.NoError(t, err)
	return e
}

func TestWriteReadRoundTrip(t *testing.T) {
	e := newEngine(t)
	gen, err := e.Write(MainCollection, []Write{{Key: 1, Value: []byte("a")}})
	require.NoError(t, err)
	assert.Greater(t, gen, Generation(0))

	out, err := e.Read(MainCollection, []Key{1}, e.Generation())
	require.NoError(t, err)
	assert.True(t, out[0].Present)
	assert.Equal(t, []byte("a"), out[0].Value)
}

func TestBatchWriteIsAtomic(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(MainCollection, []Write{
		{Key: 1, Value: []byte("a")},
		{Key: 2, Value: []byte("b")},
	})
	require.NoError(t, err)

	out, err := e.Read(MainCollection, []Key{1, 2}, e.Generation())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), out[0].Value)
	assert.Equal(t, []byte("b"), out[1].Value)
	assert.Equal(t, out[0].Generation, out[1].Generation)
}

func TestSnapshotStabilityAcrossInterleavedWrites(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(MainCollection, []Write{{Key: 1, Value: []byte("v0")}})
	require.NoError(t, err)

	snap := e.CreateSnapshot()
	defer e.DropSnapshot(snap)

	for i := 0; i < 5; i++ {
		_, err := e.Write(MainCollection, []Write{{Key: 1, Value: []byte{byte(i)}}})
		require.NoError(t, err)

		out, err := e.Read(MainCollection, []Key{1}, snap)
		require.NoError(t, err)
		assert.Equal(t, []byte("v0"), out[0].Value)
	}
}

func TestScanRejectsNonPositiveLimit(t *testing.T) {
	e := newEngine(t)
	_, err := e.Scan(MainCollection, KeyUnknown, 0, e.Generation())
	assert.ErrorIs(t, err, ErrFullScanRejected)
}

func TestScanReturnsAscendingOrder(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(MainCollection, []Write{
		{Key: 5, Value: []byte("e")},
		{Key: 1, Value: []byte("a")},
		{Key: 3, Value: []byte("c")},
	})
	require.NoError(t, err)

	keys, err := e.Scan(MainCollection, KeyUnknown+1, 10, e.Generation())
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.True(t, keys[0] < keys[1] && keys[1] < keys[2])
}

func TestCreateCollectionRejectsDuplicate(t *testing.T) {
	e := newEngine(t)
	_, err := e.CreateCollection("widgets")
	require.NoError(t, err)
	_, err = e.CreateCollection("widgets")
	assert.ErrorIs(t, err, ErrCollectionExists)
}

func TestMainCollectionCannotBeRemoved(t *testing.T) {
	e := newEngine(t)
	err := e.RemoveCollection(MainCollection)
	assert.Error(t, err)
}

func TestGenerationMonotonicUnderConcurrentBatches(t *testing.T) {
	e := newEngine(t)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(k Key) {
			defer wg.Done()
			_, _ = e.Write(MainCollection, []Write{{Key: k, Value: []byte("x")}})
		}(Key(i))
	}
	wg.Wait()

	out, err := e.Read(MainCollection, []Key{0, 1, 2}, e.Generation())
	require.NoError(t, err)
	for _, ent := range out {
		assert.True(t, ent.Present)
	}
}

func TestTombstoneHidesValueButPreservesHistory(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(MainCollection, []Write{{Key: 1, Value: []byte("a")}})
	require.NoError(t, err)
	genBeforeDelete := e.Generation()

	_, err = e.Write(MainCollection, []Write{{Key: 1, Value: nil}})
	require.NoError(t, err)

	out, err := e.Read(MainCollection, []Key{1}, e.Generation())
	require.NoError(t, err)
	assert.False(t, out[0].Present)

	out, err = e.Read(MainCollection, []Key{1}, genBeforeDelete)
	require.NoError(t, err)
	assert.True(t, out[0].Present)
}
