package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/modality"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	e, err := kv.NewEngine(kv.Config{})
	require.NoError(t, err)
	return &Store{Accessor: modality.Head{Engine: e}, Collection: kv.MainCollection}
}

func TestUpsertCreatesWholeDocument(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply([]Write{{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":1}`)}}))

	out, err := s.Read([]kv.Key{1}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(out[0]))
}

func TestUpdateFailsWhenDocumentMissing(t *testing.T) {
	s := newStore(t)
	err := s.Apply([]Write{{Key: 1, Mode: ModeUpdate, Path: "/x", Value: []byte(`1`)}})
	assert.Error(t, err)
}

func TestInsertFailsWhenPathExists(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply([]Write{{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":1}`)}}))
	err := s.Apply([]Write{{Key: 1, Mode: ModeInsert, Path: "/x", Value: []byte(`2`)}})
	assert.Error(t, err)
}

func TestPatchAppliesRFC6902(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply([]Write{{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":1}`)}}))
	patch := []byte(`[{"op":"add","path":"/y","value":2},{"op":"remove","path":"/x"}]`)
	require.NoError(t, s.Apply([]Write{{Key: 1, Mode: ModePatch, Value: patch}}))

	out, err := s.Read([]kv.Key{1}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"y":2}`, string(out[0]))
}

func TestMergeAppliesRFC7396NullRemovesKey(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply([]Write{{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":1,"y":2}`)}}))
	require.NoError(t, s.Apply([]Write{{Key: 1, Mode: ModeMerge, Value: []byte(`{"x":null,"z":3}`)}}))

	out, err := s.Read([]kv.Key{1}, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"y":2,"z":3}`, string(out[0]))
}

func TestBatchDeduplicatesReadsAndAppliesInOrder(t *testing.T) {
	s := newStore(t)
	err := s.Apply([]Write{
		{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":1}`)},
		{Key: 1, Mode: ModeUpsert, Path: "/x", Value: []byte(`2`)},
	})
	require.NoError(t, err)

	out, err := s.Read([]kv.Key{1}, "/x")
	require.NoError(t, err)
	assert.Equal(t, "2", string(out[0]))
}

func TestGistEnumeratesSortedLeafPaths(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply([]Write{
		{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":1,"y":{"z":2}}`)},
		{Key: 2, Mode: ModeUpsert, Value: []byte(`{"x":3}`)},
	}))

	paths, err := s.Gist([]kv.Key{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"/x", "/y/z"}, paths)
}

// TestGatherMatchesDocumentedExample reproduces the example from the
// testable-properties list: three documents, one gathered i32 column "/x".
func TestGatherMatchesDocumentedExample(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Apply([]Write{
		{Key: 1, Mode: ModeUpsert, Value: []byte(`{"x":"10"}`)},
		{Key: 2, Mode: ModeUpsert, Value: []byte(`{"x":42}`)},
		{Key: 3, Mode: ModeUpsert, Value: []byte(`{"y":"oops"}`)},
	}))

	cols, err := s.Gather([]kv.Key{1, 2, 3}, []GatherColumn{{Path: "/x", Type: ColumnInt32}}, nil)
	require.NoError(t, err)
	require.Len(t, cols, 1)

	col := cols[0]
	assert.Equal(t, []bool{true, true, false}, col.Validity)
	assert.Equal(t, []bool{true, false, false}, col.Conversion)
	assert.Equal(t, []bool{false, false, false}, col.Collision)
}
