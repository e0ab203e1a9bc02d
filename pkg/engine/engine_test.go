package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unum-cloud/ukvdb/pkg/docs"
	"github.com/unum-cloud/ukvdb/pkg/kv"
)

func newDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(Config{})
	require.NoError(t, err)
	return db
}

// TestBasicRoundTrip reproduces scenario 1: write then read a present and
// an absent key.
func TestBasicRoundTrip(t *testing.T) {
	db := newDatabase(t)
	_, err := db.Write(kv.MainCollection, []kv.Write{{Key: 42, Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}}})
	require.NoError(t, err)

	out, err := db.Read(kv.MainCollection, []kv.Key{42, 43})
	require.NoError(t, err)
	assert.True(t, out[0].Present)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, out[0].Value)
	assert.False(t, out[1].Present)
}

// TestTransactionalConflict reproduces scenario 2: TxnA watches a missing
// key, TxnB creates it and commits, TxnA's commit must fail.
func TestTransactionalConflict(t *testing.T) {
	db := newDatabase(t)
	txnA := db.BeginTransaction()

	out, err := db.TxnRead(txnA, kv.MainCollection, []kv.Key{1}, 0)
	require.NoError(t, err)
	assert.False(t, out[0].Present)

	_, err = db.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x01}}})
	require.NoError(t, err)

	require.NoError(t, db.TxnWrite(txnA, kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x02}}}))
	_, err = db.CommitTransaction(txnA)
	assert.Error(t, err)
}

// TestDocumentPatch reproduces scenario 3 via the facade's Documents
// accessor.
func TestDocumentPatch(t *testing.T) {
	db := newDatabase(t)
	store, err := db.Documents(kv.MainCollection, 0, 0)
	require.NoError(t, err)

	require.NoError(t, store.Apply([]docs.Write{
		{Key: 7, Mode: docs.ModeUpsert, Value: []byte(`{"a":{"b":1},"c":[10,20,30]}`)},
	}))
	patch := []byte(`[{"op":"replace","path":"/a/b","value":2},{"op":"add","path":"/c/-","value":40}]`)
	require.NoError(t, store.Apply([]docs.Write{{Key: 7, Mode: docs.ModePatch, Value: patch}}))

	out, err := store.Read([]kv.Key{7}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"b":2},"c":[10,20,30,40]}`, string(out[0]))
}

// TestSnapshotIsolation exercises CreateSnapshot/ReadSnapshot/DropSnapshot
// through the facade.
func TestSnapshotIsolation(t *testing.T) {
	db := newDatabase(t)
	_, err := db.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("v0")}})
	require.NoError(t, err)

	snap := db.CreateSnapshot()
	_, err = db.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte("v1")}})
	require.NoError(t, err)

	out, err := db.ReadSnapshot(snap, kv.MainCollection, []kv.Key{1})
	require.NoError(t, err)
	assert.Equal(t, []byte("v0"), out[0].Value)

	db.DropSnapshot(snap)
}

func TestCommitTransactionFreesHandleEvenOnConflict(t *testing.T) {
	db := newDatabase(t)
	txnA := db.BeginTransaction()
	_, err := db.TxnRead(txnA, kv.MainCollection, []kv.Key{1}, 0)
	require.NoError(t, err)

	_, err = db.Write(kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{1}}})
	require.NoError(t, err)

	require.NoError(t, db.TxnWrite(txnA, kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{2}}}))
	_, err = db.CommitTransaction(txnA)
	require.Error(t, err)

	// Handle is freed regardless of outcome; a second commit attempt must
	// report uninitialized-state, not re-run the conflict check.
	_, err = db.CommitTransaction(txnA)
	assert.ErrorIs(t, err, ErrUninitializedState)
}
