// Package cache implements the caching view over an on-disk graph:
// BFS-preload every node reachable from the entry point within a fixed
// hop depth into memory, delegate there first, and fall through to the
// backing mmap reader on miss.
package cache

import (
	"github.com/arnavk/pqgraph/internal/graph"
)

// Source is the backing store a View falls through to on a cache miss —
// satisfied by *diskstore.Reader.
type Source interface {
	graph.NeighborSource
	At(i int) []float32
}

type node struct {
	neighbors []uint32
	vector    []float32
}

// View layers an in-memory preload over a Source, implementing
// graph.NeighborSource itself so a Searcher can traverse it exactly like
// any other NeighborSource.
type View struct {
	src     Source
	entry   uint32
	preload map[uint32]*node
}

// Open preloads every node reachable from src.EntryNode() within depth
// hops (depth 0 = the entry node alone, depth 1 adds its neighbors, and so
// on).
func Open(src Source, depth int) *View {
	v := &View{src: src, entry: src.EntryNode(), preload: make(map[uint32]*node)}
	if src.Size() == 0 {
		return v
	}
	frontier := []uint32{v.entry}
	v.load(v.entry)
	for hop := 0; hop < depth; hop++ {
		var next []uint32
		for _, n := range frontier {
			for _, nb := range v.neighborsFromSource(n) {
				if _, ok := v.preload[nb]; !ok {
					v.load(nb)
					next = append(next, nb)
				}
			}
		}
		if len(next) == 0 {
			break
		}
		frontier = next
	}
	return v
}

func (v *View) load(ordinal uint32) {
	v.preload[ordinal] = &node{
		neighbors: v.neighborsFromSource(ordinal),
		vector:    v.vectorFromSource(ordinal),
	}
}

func (v *View) neighborsFromSource(ordinal uint32) []uint32 {
	return v.src.Neighbors(ordinal)
}

func (v *View) vectorFromSource(ordinal uint32) []float32 {
	return v.src.At(int(ordinal))
}

// EntryNode implements graph.NeighborSource.
func (v *View) EntryNode() uint32 { return v.entry }

// Size implements graph.NeighborSource.
func (v *View) Size() int { return v.src.Size() }

// Neighbors implements graph.NeighborSource: a cache hit returns the
// preloaded slice directly; a miss falls through to the backing source.
func (v *View) Neighbors(ordinal uint32) []uint32 {
	if n, ok := v.preload[ordinal]; ok {
		return n.neighbors
	}
	return v.src.Neighbors(ordinal)
}

// At returns ordinal's vector, preferring the preloaded copy and falling
// through to the backing source on miss.
func (v *View) At(ordinal uint32) []float32 {
	if n, ok := v.preload[ordinal]; ok {
		return n.vector
	}
	return v.vectorFromSource(ordinal)
}

// CachedCount returns how many nodes are currently preloaded, mostly for
// stats reporting.
func (v *View) CachedCount() int { return len(v.preload) }
