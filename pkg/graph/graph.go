package graph

import (
	"sort"

	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/modality"
)

// NullEdgeID marks "every parallel edge between these endpoints" in
// RemoveEdges, mirroring the default edge identity sentinel used elsewhere.
const NullEdgeID = kv.KeyUnknown

// Role filters which incident edges of a vertex an operation considers.
type Role int

const (
	RoleSource Role = iota // edges where the vertex is the source (out-edges)
	RoleTarget              // edges where the vertex is the target (in-edges)
	RoleEither
)

// Triplet is one (source, target, edge identity) edge.
type Triplet struct {
	Source kv.Key
	Target kv.Key
	EdgeID kv.Key
}

// Store operates one graph collection. Directed selects the adjacency
// encoding: directed graphs keep separate in/out segments per vertex,
// undirected mirror every edge onto both endpoints in a single segment.
type Store struct {
	Accessor   modality.Accessor
	Collection kv.Handle
	Directed   bool
}

func (s *Store) encode(a Adjacency) []byte {
	if s.Directed {
		return encodeDirected(a)
	}
	return encodeUndirected(a)
}

func (s *Store) decode(blob []byte) Adjacency {
	if s.Directed {
		return decodeDirected(blob)
	}
	return decodeUndirected(blob)
}

func (s *Store) loadAdjacency(vertices []kv.Key) (map[kv.Key]Adjacency, error) {
	entries, err := s.Accessor.Read(s.Collection, vertices)
	if err != nil {
		return nil, err
	}
	out := make(map[kv.Key]Adjacency, len(vertices))
	for _, ent := range entries {
		if ent.Present {
			out[ent.Key] = s.decode(ent.Value)
		} else {
			out[ent.Key] = Adjacency{}
		}
	}
	return out, nil
}

// storeAdjacency writes each vertex's (possibly empty) adjacency record. An
// empty record still leaves the vertex present with degree 0; use
// deleteVertices to remove a vertex's record entirely.
func (s *Store) storeAdjacency(adj map[kv.Key]Adjacency) error {
	writes := make([]kv.Write, 0, len(adj))
	for vertex, a := range adj {
		writes = append(writes, kv.Write{Key: vertex, Value: s.encode(a)})
	}
	return s.Accessor.Write(s.Collection, writes)
}

func (s *Store) deleteVertices(vertices []kv.Key) error {
	writes := make([]kv.Write, len(vertices))
	for i, v := range vertices {
		writes[i] = kv.Write{Key: v, Value: nil}
	}
	return s.Accessor.Write(s.Collection, writes)
}

func hasEdge(edges []Edge, e Edge) bool {
	for _, existing := range edges {
		if existing.Neighbor == e.Neighbor && existing.EdgeID == e.EdgeID {
			return true
		}
	}
	return false
}

func appendUnique(edges []Edge, e Edge) []Edge {
	if hasEdge(edges, e) {
		return edges
	}
	return append(edges, e)
}

func removeMatching(edges []Edge, neighbor kv.Key, edgeID kv.Key) ([]Edge, []Edge) {
	out := edges[:0:0]
	var removed []Edge
	for _, e := range edges {
		if e.Neighbor == neighbor && (edgeID == NullEdgeID || e.EdgeID == edgeID) {
			removed = append(removed, e)
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

func touchedVertices(triplets []Triplet) []kv.Key {
	seen := map[kv.Key]struct{}{}
	var out []kv.Key
	for _, t := range triplets {
		for _, v := range []kv.Key{t.Source, t.Target} {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

// UpsertEdges inserts each (source, target, edge_id) triplet if not already
// present, deduplicating endpoint reads/writes across the whole batch.
func (s *Store) UpsertEdges(triplets []Triplet) error {
	vertices := touchedVertices(triplets)
	adj, err := s.loadAdjacency(vertices)
	if err != nil {
		return err
	}

	for _, t := range triplets {
		if s.Directed {
			srcAdj := adj[t.Source]
			srcAdj.Out = appendUnique(srcAdj.Out, Edge{Neighbor: t.Target, EdgeID: t.EdgeID})
			adj[t.Source] = srcAdj

			dstAdj := adj[t.Target]
			dstAdj.In = appendUnique(dstAdj.In, Edge{Neighbor: t.Source, EdgeID: t.EdgeID})
			adj[t.Target] = dstAdj
		} else {
			srcAdj := adj[t.Source]
			srcAdj.Out = appendUnique(srcAdj.Out, Edge{Neighbor: t.Target, EdgeID: t.EdgeID})
			adj[t.Source] = srcAdj

			if t.Source != t.Target {
				dstAdj := adj[t.Target]
				dstAdj.Out = appendUnique(dstAdj.Out, Edge{Neighbor: t.Source, EdgeID: t.EdgeID})
				adj[t.Target] = dstAdj
			}
		}
	}
	return s.storeAdjacency(adj)
}

// RemoveEdges deletes each (source, target, edge_id) triplet; a NullEdgeID
// removes every parallel edge between the endpoints (multi-graph removal).
func (s *Store) RemoveEdges(triplets []Triplet) error {
	vertices := touchedVertices(triplets)
	adj, err := s.loadAdjacency(vertices)
	if err != nil {
		return err
	}

	for _, t := range triplets {
		if s.Directed {
			srcAdj := adj[t.Source]
			srcAdj.Out, _ = removeMatching(srcAdj.Out, t.Target, t.EdgeID)
			adj[t.Source] = srcAdj

			dstAdj := adj[t.Target]
			dstAdj.In, _ = removeMatching(dstAdj.In, t.Source, t.EdgeID)
			adj[t.Target] = dstAdj
		} else {
			srcAdj := adj[t.Source]
			srcAdj.Out, _ = removeMatching(srcAdj.Out, t.Target, t.EdgeID)
			adj[t.Source] = srcAdj

			if t.Source != t.Target {
				dstAdj := adj[t.Target]
				dstAdj.Out, _ = removeMatching(dstAdj.Out, t.Source, t.EdgeID)
				adj[t.Target] = dstAdj
			}
		}
	}
	return s.storeAdjacency(adj)
}

// RemoveVertices cascade-removes every edge incident to the given vertices
// (per role) and returns, for each affected vertex, the edge ids removed.
func (s *Store) RemoveVertices(vertices []kv.Key, role Role) (map[kv.Key][]kv.Key, error) {
	self, err := s.loadAdjacency(vertices)
	if err != nil {
		return nil, err
	}

	removedIDs := make(map[kv.Key][]kv.Key, len(vertices))
	neighborTouch := map[kv.Key]struct{}{}
	for _, v := range vertices {
		a := self[v]
		if role != RoleTarget {
			for _, e := range a.Out {
				removedIDs[v] = append(removedIDs[v], e.EdgeID)
				neighborTouch[e.Neighbor] = struct{}{}
			}
		}
		if s.Directed && role != RoleSource {
			for _, e := range a.In {
				removedIDs[v] = append(removedIDs[v], e.EdgeID)
				neighborTouch[e.Neighbor] = struct{}{}
			}
		}
	}

	removedSet := map[kv.Key]struct{}{}
	for _, v := range vertices {
		removedSet[v] = struct{}{}
	}
	var neighbors []kv.Key
	for n := range neighborTouch {
		if _, isSelf := removedSet[n]; !isSelf {
			neighbors = append(neighbors, n)
		}
	}
	neighborAdj, err := s.loadAdjacency(neighbors)
	if err != nil {
		return nil, err
	}

	for n, a := range neighborAdj {
		for _, v := range vertices {
			a.Out, _ = removeMatching(a.Out, v, NullEdgeID)
			if s.Directed {
				a.In, _ = removeMatching(a.In, v, NullEdgeID)
			}
		}
		neighborAdj[n] = a
	}

	if err := s.storeAdjacency(neighborAdj); err != nil {
		return nil, err
	}
	if err := s.deleteVertices(vertices); err != nil {
		return nil, err
	}
	return removedIDs, nil
}

// FindResult is one vertex's resolved adjacency: its degree and flattened
// (source, target, edge_id) triplets. A Degree of -1 marks a vertex that
// does not exist.
type FindResult struct {
	Degree   int
	Triplets []Triplet
}

// FindEdges returns, for each input vertex, its degree and flattened
// triplet list filtered by role. With RoleEither, out-edges precede
// in-edges, each block sorted by neighbor id.
func (s *Store) FindEdges(vertices []kv.Key, role Role) (map[kv.Key]FindResult, error) {
	entries, err := s.Accessor.Read(s.Collection, vertices)
	if err != nil {
		return nil, err
	}
	out := make(map[kv.Key]FindResult, len(vertices))
	for _, ent := range entries {
		if !ent.Present {
			out[ent.Key] = FindResult{Degree: -1}
			continue
		}
		a := s.decode(ent.Value)
		var triplets []Triplet
		if role != RoleTarget {
			sorted := append([]Edge(nil), a.Out...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].Neighbor < sorted[j].Neighbor })
			for _, e := range sorted {
				// Undirected adjacency has no recorded source/target, only a
				// mirrored neighbor link; report the lexicographically
				// smaller endpoint as Source so both queried vertices of an
				// edge agree on its triplet.
				src, dst := ent.Key, e.Neighbor
				if !s.Directed && e.Neighbor < ent.Key {
					src, dst = e.Neighbor, ent.Key
				}
				triplets = append(triplets, Triplet{Source: src, Target: dst, EdgeID: e.EdgeID})
			}
		}
		if s.Directed && role != RoleSource {
			sorted := append([]Edge(nil), a.In...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].Neighbor < sorted[j].Neighbor })
			for _, e := range sorted {
				triplets = append(triplets, Triplet{Source: e.Neighbor, Target: ent.Key, EdgeID: e.EdgeID})
			}
		}
		out[ent.Key] = FindResult{Degree: len(triplets), Triplets: triplets}
	}
	return out, nil
}
