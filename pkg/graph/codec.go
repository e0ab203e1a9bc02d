// Package graph implements the graphs modality: directed or undirected
// multi-graphs over integer vertex identifiers, with each vertex stored as
// one adjacency blob in the underlying engine.
package graph

import (
	"encoding/binary"

	"github.com/unum-cloud/ukvdb/pkg/kv"
)

// Edge is one incident edge as stored in a vertex's adjacency record:
// the neighbor vertex and this edge's identity.
type Edge struct {
	Neighbor kv.Key
	EdgeID   kv.Key
}

// Adjacency is one vertex's decoded adjacency record. For undirected
// graphs, Out holds every incident edge and In is unused.
type Adjacency struct {
	Out []Edge
	In  []Edge
}

// encodeSegment packs a slice of edges as a 4-byte count followed by
// (neighbor, edge_id) pairs, 8 bytes per field (16 bytes per pair).
func encodeSegment(edges []Edge) []byte {
	buf := make([]byte, 4+16*len(edges))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(edges)))
	off := 4
	for _, e := range edges {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(e.Neighbor))
		binary.BigEndian.PutUint64(buf[off+8:off+16], uint64(e.EdgeID))
		off += 16
	}
	return buf
}

func decodeSegment(buf []byte) ([]Edge, []byte) {
	if len(buf) < 4 {
		return nil, nil
	}
	n := binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	edges := make([]Edge, 0, n)
	for i := uint32(0); i < n && len(buf) >= 16; i++ {
		edges = append(edges, Edge{
			Neighbor: kv.Key(binary.BigEndian.Uint64(buf[0:8])),
			EdgeID:   kv.Key(binary.BigEndian.Uint64(buf[8:16])),
		})
		buf = buf[16:]
	}
	return edges, buf
}

// encodeDirected packs an out-segment followed by an in-segment.
func encodeDirected(a Adjacency) []byte {
	out := encodeSegment(a.Out)
	in := encodeSegment(a.In)
	buf := make([]byte, 0, len(out)+len(in))
	buf = append(buf, out...)
	buf = append(buf, in...)
	return buf
}

func decodeDirected(blob []byte) Adjacency {
	out, rest := decodeSegment(blob)
	in, _ := decodeSegment(rest)
	return Adjacency{Out: out, In: in}
}

// encodeUndirected packs a single segment; In is never populated.
func encodeUndirected(a Adjacency) []byte {
	return encodeSegment(a.Out)
}

func decodeUndirected(blob []byte) Adjacency {
	out, _ := decodeSegment(blob)
	return Adjacency{Out: out}
}
