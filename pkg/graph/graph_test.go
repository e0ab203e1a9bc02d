package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/modality"
)

func newStore(t *testing.T, directed bool) *Store {
	t.Helper()
	e, err := kv.NewEngine(kv.Config{})
	require.NoError(t, err)
	return &Store{Accessor: modality.Head{Engine: e}, Collection: kv.MainCollection, Directed: directed}
}

func TestDirectedUpsertIsSymmetric(t *testing.T) {
	s := newStore(t, true)
	require.NoError(t, s.UpsertEdges([]Triplet{{Source: 1, Target: 2, EdgeID: 100}}))

	res, err := s.FindEdges([]kv.Key{1, 2}, RoleEither)
	require.NoError(t, err)
	assert.Equal(t, 1, res[1].Degree)
	assert.Equal(t, Triplet{Source: 1, Target: 2, EdgeID: 100}, res[1].Triplets[0])
	assert.Equal(t, 1, res[2].Degree)
	assert.Equal(t, Triplet{Source: 1, Target: 2, EdgeID: 100}, res[2].Triplets[0])
}

func TestUndirectedUpsertMirrorsBothEndpoints(t *testing.T) {
	s := newStore(t, false)
	require.NoError(t, s.UpsertEdges([]Triplet{{Source: 1, Target: 2, EdgeID: 100}}))

	res, err := s.FindEdges([]kv.Key{1, 2}, RoleSource)
	require.NoError(t, err)
	assert.Equal(t, 1, res[1].Degree)
	assert.Equal(t, 1, res[2].Degree)
}

func TestDuplicateTripletIsNoOp(t *testing.T) {
	s := newStore(t, true)
	require.NoError(t, s.UpsertEdges([]Triplet{{Source: 1, Target: 2, EdgeID: 100}}))
	require.NoError(t, s.UpsertEdges([]Triplet{{Source: 1, Target: 2, EdgeID: 100}}))

	res, err := s.FindEdges([]kv.Key{1}, RoleSource)
	require.NoError(t, err)
	assert.Equal(t, 1, res[1].Degree)
}

func TestParallelEdgesWithDistinctIDsAllowed(t *testing.T) {
	s := newStore(t, true)
	require.NoError(t, s.UpsertEdges([]Triplet{
		{Source: 1, Target: 2, EdgeID: 100},
		{Source: 1, Target: 2, EdgeID: 101},
	}))

	res, err := s.FindEdges([]kv.Key{1}, RoleSource)
	require.NoError(t, err)
	assert.Equal(t, 2, res[1].Degree)
}

func TestRemoveEdgesWithNullEdgeIDRemovesAllParallel(t *testing.T) {
	s := newStore(t, true)
	require.NoError(t, s.UpsertEdges([]Triplet{
		{Source: 1, Target: 2, EdgeID: 100},
		{Source: 1, Target: 2, EdgeID: 101},
	}))
	require.NoError(t, s.RemoveEdges([]Triplet{{Source: 1, Target: 2, EdgeID: NullEdgeID}}))

	res, err := s.FindEdges([]kv.Key{1}, RoleSource)
	require.NoError(t, err)
	assert.Equal(t, 0, res[1].Degree)
}

func TestRemoveVerticesCascadesAndReturnsRemovedEdgeIDs(t *testing.T) {
	s := newStore(t, true)
	require.NoError(t, s.UpsertEdges([]Triplet{
		{Source: 1, Target: 2, EdgeID: 100},
		{Source: 3, Target: 1, EdgeID: 200},
	}))

	removed, err := s.RemoveVertices([]kv.Key{1}, RoleEither)
	require.NoError(t, err)
	assert.ElementsMatch(t, []kv.Key{100, 200}, removed[1])

	res, err := s.FindEdges([]kv.Key{2, 3}, RoleEither)
	require.NoError(t, err)
	assert.Equal(t, 0, res[2].Degree)
	assert.Equal(t, 0, res[3].Degree)
}

func TestFindEdgesMissingVertexHasSentinelDegree(t *testing.T) {
	s := newStore(t, true)
	res, err := s.FindEdges([]kv.Key{999}, RoleEither)
	require.NoError(t, err)
	assert.Equal(t, -1, res[999].Degree)
}
