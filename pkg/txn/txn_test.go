package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

func newEngine(t *testing.T) *kv.Engine {
	t.Helper()
	e, err := kv.NewEngine(kv.Config{})
	require.NoError(t, err)
	return e
}

func TestReadYourOwnWrites(t *testing.T) {
	e := newEngine(t)
	tx := Begin(e)

	require.NoError(t, tx.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("a")}}))
	out, err := tx.Read(kv.MainCollection, []kv.Key{1}, false)
	require.NoError(t, err)
	require.True(t, out[0].Present)
	assert.Equal(t, []byte("a"), out[0].Value)
}

func TestCommitAppliesAtomically(t *testing.T) {
	e := newEngine(t)
	tx := Begin(e)
	require.NoError(t, tx.Write(kv.MainCollection, []kv.Write{
		{Key: 1, Value: []byte("a")},
		{Key: 2, Value: []byte("b")},
	}))
	gen, err := tx.Commit()
	require.NoError(t, err)
	assert.Greater(t, gen, kv.Generation(0))

	out, err := e.Read(kv.MainCollection, []kv.Key{1, 2}, e.Generation())
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), out[0].Value)
	assert.Equal(t, []byte("b"), out[1].Value)
}

func TestConflictOnOverwrittenWatchedKey(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("orig")}})
	require.NoError(t, err)

	tx := Begin(e)
	_, err = tx.Read(kv.MainCollection, []kv.Key{1}, false)
	require.NoError(t, err)

	_, err = e.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("concurrent")}})
	require.NoError(t, err)

	require.NoError(t, tx.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("mine")}}))
	_, err = tx.Commit()
	require.Error(t, err)
	var conflict *ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

// TestWatchedMissingKeyBecomesPresent reproduces the scenario from the
// testable-properties list: TxnA reads an absent key, TxnB writes and
// commits it, TxnA's commit must fail as a conflict even though TxnA never
// observed a generation number to compare against.
func TestWatchedMissingKeyBecomesPresent(t *testing.T) {
	e := newEngine(t)
	txA := Begin(e)

	out, err := txA.Read(kv.MainCollection, []kv.Key{1}, false)
	require.NoError(t, err)
	require.False(t, out[0].Present)

	_, err = e.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x01}}})
	require.NoError(t, err)

	require.NoError(t, txA.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x02}}}))
	_, err = txA.Commit()
	require.Error(t, err)
}

// TestDeleteThenRecreateWithinWindowIsDetected: a watched key that is
// deleted and then written again between watch and commit is flagged; the
// re-created entry's generation lies inside the transaction's window.
func TestDeleteThenRecreateWithinWindowIsDetected(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(kv.MainCollection, []kv.Write{{Key: 7, Value: []byte("x")}})
	require.NoError(t, err)

	tx := Begin(e)
	out, err := tx.Read(kv.MainCollection, []kv.Key{7}, false)
	require.NoError(t, err)
	require.True(t, out[0].Present)

	_, err = e.Write(kv.MainCollection, []kv.Write{{Key: 7, Value: nil}})
	require.NoError(t, err)
	_, err = e.Write(kv.MainCollection, []kv.Write{{Key: 7, Value: []byte("y")}})
	require.NoError(t, err)

	require.NoError(t, tx.Write(kv.MainCollection, []kv.Write{{Key: 8, Value: []byte("unrelated")}}))
	_, err = tx.Commit()
	assert.Error(t, err)
}

func TestDontWatchSkipsConflictTracking(t *testing.T) {
	e := newEngine(t)
	_, err := e.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("orig")}})
	require.NoError(t, err)

	tx := Begin(e)
	_, err = tx.Read(kv.MainCollection, []kv.Key{1}, true)
	require.NoError(t, err)

	_, err = e.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("concurrent")}})
	require.NoError(t, err)

	require.NoError(t, tx.Write(kv.MainCollection, []kv.Write{{Key: 2, Value: []byte("mine")}}))
	_, err = tx.Commit()
	assert.NoError(t, err)
}

func TestAbortDiscardsWriteBuffer(t *testing.T) {
	e := newEngine(t)
	tx := Begin(e)
	require.NoError(t, tx.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("a")}}))
	tx.Abort()

	out, err := e.Read(kv.MainCollection, []kv.Key{1}, e.Generation())
	require.NoError(t, err)
	assert.False(t, out[0].Present)

	_, err = tx.Commit()
	assert.Error(t, err)
}
