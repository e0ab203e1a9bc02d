// Package integration exercises the six concrete end-to-end scenarios
// literally against one in-process engine.Database, following the
// teacher's test/integration + test/e2e split: package-level tests cover
// unit behavior, this file covers cross-modality scenarios end to end.
package integration

import (
	"testing"

	"github.com/apache/arrow/go/v15/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unum-cloud/ukvdb/pkg/docs"
	"github.com/unum-cloud/ukvdb/pkg/engine"
	"github.com/unum-cloud/ukvdb/pkg/graph"
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/paths"
)

func newDatabase(t *testing.T) *engine.Database {
	t.Helper()
	db, err := engine.Open(engine.Config{})
	require.NoError(t, err)
	return db
}

// TestScenario1BasicKVRoundTrip matches spec scenario 1.
func TestScenario1BasicKVRoundTrip(t *testing.T) {
	db := newDatabase(t)

	_, err := db.Write(kv.MainCollection, []kv.Write{{Key: 42, Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}}})
	require.NoError(t, err)

	entries, err := db.Read(kv.MainCollection, []kv.Key{42, 43})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Present)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, entries[0].Value)
	assert.False(t, entries[1].Present)
}

// TestScenario2TransactionalConflict matches spec scenario 2: TxnA watches a
// missing key, TxnB writes and commits it, TxnA's commit must conflict.
func TestScenario2TransactionalConflict(t *testing.T) {
	db := newDatabase(t)

	txnA := db.BeginTransaction()
	txnB := db.BeginTransaction()

	_, err := db.TxnRead(txnA, kv.MainCollection, []kv.Key{1}, 0)
	require.NoError(t, err)

	require.NoError(t, db.TxnWrite(txnB, kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x01}}}))
	_, err = db.CommitTransaction(txnB)
	require.NoError(t, err)

	require.NoError(t, db.TxnWrite(txnA, kv.MainCollection, []kv.Write{{Key: 1, Value: []byte{0x02}}}))
	_, err = db.CommitTransaction(txnA)
	assert.Error(t, err)
}

// TestScenario3DocumentPatch matches spec scenario 3.
func TestScenario3DocumentPatch(t *testing.T) {
	db := newDatabase(t)
	store, err := db.Documents(kv.MainCollection, 0, 0)
	require.NoError(t, err)

	require.NoError(t, store.Apply([]docs.Write{
		{Key: 7, Mode: docs.ModeUpsert, Value: []byte(`{"a":{"b":1},"c":[10,20,30]}`)},
	}))

	patch := `[{"op":"replace","path":"/a/b","value":2},{"op":"add","path":"/c/-","value":40}]`
	require.NoError(t, store.Apply([]docs.Write{{Key: 7, Mode: docs.ModePatch, Value: []byte(patch)}}))

	out, err := db.Read(kv.MainCollection, []kv.Key{7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"b":2},"c":[10,20,30,40]}`, string(out[0].Value))
}

// TestScenario4DocumentGather matches spec scenario 4.
func TestScenario4DocumentGather(t *testing.T) {
	db := newDatabase(t)
	store, err := db.Documents(kv.MainCollection, 0, 0)
	require.NoError(t, err)

	require.NoError(t, store.Apply([]docs.Write{
		{Key: 1, Mode: docs.ModeUpsert, Value: []byte(`{"x":"10"}`)},
		{Key: 2, Mode: docs.ModeUpsert, Value: []byte(`{"x":42}`)},
		{Key: 3, Mode: docs.ModeUpsert, Value: []byte(`{"y":"oops"}`)},
	}))

	cols, err := store.Gather([]kv.Key{1, 2, 3}, []docs.GatherColumn{{Path: "/x", Type: docs.ColumnInt32}}, memory.NewGoAllocator())
	require.NoError(t, err)
	require.Len(t, cols, 1)

	assert.Equal(t, []bool{true, true, false}, cols[0].Validity)
	assert.Equal(t, []bool{true, false, false}, cols[0].Conversion)
	assert.Equal(t, []bool{false, false, false}, cols[0].Collision)
}

// TestScenario5GraphTwoHop matches spec scenario 5.
func TestScenario5GraphTwoHop(t *testing.T) {
	db := newDatabase(t)
	store, err := db.Graph(kv.MainCollection, false, 0, 0)
	require.NoError(t, err)

	require.NoError(t, store.UpsertEdges([]graph.Triplet{
		{Source: 1, Target: 2, EdgeID: 100},
		{Source: 2, Target: 3, EdgeID: 101},
		{Source: 2, Target: 4, EdgeID: 102},
	}))

	results, err := store.FindEdges([]kv.Key{1}, graph.RoleEither)
	require.NoError(t, err)
	assert.Equal(t, 1, results[1].Degree)
	assert.Equal(t, []graph.Triplet{{Source: 1, Target: 2, EdgeID: 100}}, results[1].Triplets)

	results, err = store.FindEdges([]kv.Key{2}, graph.RoleEither)
	require.NoError(t, err)
	assert.Equal(t, 3, results[2].Degree)
	assert.ElementsMatch(t, []graph.Triplet{
		{Source: 1, Target: 2, EdgeID: 100},
		{Source: 2, Target: 3, EdgeID: 101},
		{Source: 2, Target: 4, EdgeID: 102},
	}, results[2].Triplets)
}

// TestScenario6PathPrefixMatch matches spec scenario 6.
func TestScenario6PathPrefixMatch(t *testing.T) {
	db := newDatabase(t)
	store, err := db.Paths(kv.MainCollection, 0, 0)
	require.NoError(t, err)

	require.NoError(t, store.Write([]paths.Write{
		{Path: "home/user/a", Value: []byte("1")},
		{Path: "home/user/b", Value: []byte("1")},
		{Path: "home/other/c", Value: []byte("1")},
	}))

	matches, err := store.Match(db.Engine(), kv.MainCollection, []string{"home/user/"}, "", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home/user/a", "home/user/b"}, matches)
}
