package graph

import (
	"sync"
	"sync/atomic"

	"github.com/arnavk/pqgraph/internal/nodeset"
)

// nodeState is one node's mutable slot: an immutable NodeArray snapshot
// swapped via compare-and-set, a cached short-edge count, and a sticky
// tombstone. A compare-and-set loop over an immutable NodeArray snapshot
// per node is sufficient: read snapshot, compute merged+pruned, CAS;
// retry on conflict.
type nodeState struct {
	adjacency  atomic.Pointer[nodeset.NodeArray]
	shortEdges atomic.Int32
	deleted    atomic.Bool
}

// Adjacency is one layer of the proximity graph: a growable table of
// per-node neighbor snapshots, safe for concurrent reads and concurrent
// lock-free replaces of distinct nodes.
type Adjacency struct {
	mu    sync.Mutex // guards growth of nodes only
	nodes []*nodeState

	entry    atomic.Uint32
	hasEntry atomic.Bool
}

// NewAdjacency returns an empty adjacency layer.
func NewAdjacency() *Adjacency {
	return &Adjacency{}
}

// EnsureNode grows the table so ordinal has a slot, allocating fresh
// zero-value state for any newly created slots. Safe to call concurrently;
// growth and slot lookups share one mutex, so a lookup waits while the
// table grows.
func (a *Adjacency) EnsureNode(ordinal uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for uint32(len(a.nodes)) <= ordinal {
		a.nodes = append(a.nodes, &nodeState{})
	}
}

func (a *Adjacency) slot(ordinal uint32) *nodeState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nodes[ordinal]
}

// Size returns the number of allocated node slots.
func (a *Adjacency) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nodes)
}

// SetEntry sets the layer's entry point. The first node ever added to a
// layer calls this.
func (a *Adjacency) SetEntry(ordinal uint32) {
	a.entry.Store(ordinal)
	a.hasEntry.Store(true)
}

// EntryNode implements NeighborSource.
func (a *Adjacency) EntryNode() uint32 { return a.entry.Load() }

// HasEntry reports whether SetEntry has ever been called.
func (a *Adjacency) HasEntry() bool { return a.hasEntry.Load() }

// Snapshot returns the node's current NodeArray, or nil if it has none yet.
func (a *Adjacency) Snapshot(ordinal uint32) *nodeset.NodeArray {
	return a.slot(ordinal).adjacency.Load()
}

// Neighbors implements NeighborSource.
func (a *Adjacency) Neighbors(ordinal uint32) []uint32 {
	snap := a.Snapshot(ordinal)
	if snap == nil {
		return nil
	}
	return snap.Ordinals()
}

// CAS attempts to swap ordinal's snapshot from old to next, failing (and
// changing nothing) if another writer already moved it on.
func (a *Adjacency) CAS(ordinal uint32, old, next *nodeset.NodeArray) bool {
	return a.slot(ordinal).adjacency.CompareAndSwap(old, next)
}

// ReplaceWithRetry loads ordinal's current snapshot, applies compute to it,
// and CASes the result in, retrying compute against the latest snapshot on
// conflict until it wins. Returns the snapshot that was installed.
func (a *Adjacency) ReplaceWithRetry(ordinal uint32, compute func(old *nodeset.NodeArray) *nodeset.NodeArray) *nodeset.NodeArray {
	slot := a.slot(ordinal)
	for {
		old := slot.adjacency.Load()
		next := compute(old)
		if slot.adjacency.CompareAndSwap(old, next) {
			return next
		}
	}
}

// MarkDeleted sets the sticky tombstone on ordinal. Deletion never removes
// the node's adjacency entry or its appearances as a neighbor of others;
// that is cleanup's job.
func (a *Adjacency) MarkDeleted(ordinal uint32) {
	a.slot(ordinal).deleted.Store(true)
}

// IsDeleted reports ordinal's tombstone state.
func (a *Adjacency) IsDeleted(ordinal uint32) bool {
	return a.slot(ordinal).deleted.Load()
}

// SetShortEdges caches the short-edge count last computed for ordinal.
func (a *Adjacency) SetShortEdges(ordinal uint32, n int) {
	a.slot(ordinal).shortEdges.Store(int32(n))
}

// ShortEdges returns ordinal's cached short-edge count.
func (a *Adjacency) ShortEdges(ordinal uint32) int {
	return int(a.slot(ordinal).shortEdges.Load())
}

// ShortEdgeCount computes how many entries of arr score within alpha of
// arr's own best (first) score — i.e. score >= best/alpha. A "short
// edges" diagnostic: neighbors nearly as good as the best-scoring one.
func ShortEdgeCount(arr *nodeset.NodeArray, alpha float64) int {
	if arr == nil || arr.Len() == 0 {
		return 0
	}
	_, best := arr.At(0)
	threshold := best / float32(alpha)
	n := 0
	for i := 0; i < arr.Len(); i++ {
		_, s := arr.At(i)
		if s >= threshold {
			n++
		}
	}
	return n
}
