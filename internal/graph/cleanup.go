package graph

import (
	"context"

	"github.com/arnavk/pqgraph/internal/nodeset"
	"github.com/arnavk/pqgraph/internal/vector"
)

// Cleanup compacts away every tombstoned node: it drops dangling edges to
// deleted nodes from every surviving node's adjacency, opportunistically
// searches for replacements when a node's degree falls below
// CleanupMinDegree, renumbers the surviving ordinals densely from zero, and
// rebuilds the vector store and every layer's adjacency against the new
// numbering. Single-threaded: callers must not run it concurrently with
// AddGraphNode/MarkNodeDeleted. The cleanup pass is not required to
// restore full reachability — it reports any live node it cannot walk to
// from the entry point rather than repairing it.
func (b *Builder) Cleanup(ctx context.Context) (CleanupMetrics, error) {
	base := b.Base()
	n := base.Size()
	live := make([]bool, n)
	liveCount, deletedCount := 0, 0
	for i := 0; i < n; i++ {
		if base.IsDeleted(uint32(i)) {
			deletedCount++
		} else {
			live[i] = true
			liveCount++
		}
	}

	repaired := 0
	for l := 0; l < b.layerCount(); l++ {
		layer := b.layerAt(l)
		for i := 0; i < n; i++ {
			if !live[i] {
				continue
			}
			snap := layer.Snapshot(uint32(i))
			if snap == nil {
				continue
			}
			cleaned := snap.Clone()
			cleaned.Retain(func(k int) bool {
				o, _ := cleaned.At(k)
				return live[int(o)]
			})
			layer.ReplaceWithRetry(uint32(i), func(*nodeset.NodeArray) *nodeset.NodeArray { return cleaned })
			layer.SetShortEdges(uint32(i), ShortEdgeCount(cleaned, b.cfg.Alpha))

			if l == 0 && cleaned.Len() < b.cfg.CleanupMinDegree {
				b.repairDegree(ctx, layer, uint32(i), cleaned, live)
				repaired++
			}
		}
	}

	oldToNew := make([]uint32, n)
	newToOld := make([]uint32, 0, liveCount)
	for i := 0; i < n; i++ {
		if live[i] {
			oldToNew[i] = uint32(len(newToOld))
			newToOld = append(newToOld, uint32(i))
		}
	}

	newVectors := vector.NewMemory(b.vectors.Dimension())
	for _, old := range newToOld {
		_, _ = newVectors.Append(b.vectors.At(int(old)))
	}

	newLayers := make([]*Adjacency, b.layerCount())
	for l := range newLayers {
		oldLayer := b.layerAt(l)
		newLayer := NewAdjacency()
		for newOrd, old := range newToOld {
			if old >= uint32(oldLayer.Size()) {
				continue
			}
			newLayer.EnsureNode(uint32(newOrd))
			snap := oldLayer.Snapshot(old)
			if snap == nil {
				continue
			}
			remapped := nodeset.NewNodeArray(snap.Len())
			for k := 0; k < snap.Len(); k++ {
				o, s := snap.At(k)
				if !live[int(o)] {
					continue
				}
				_ = remapped.AddInOrder(oldToNew[o], s)
			}
			newLayer.ReplaceWithRetry(uint32(newOrd), func(*nodeset.NodeArray) *nodeset.NodeArray { return remapped })
			newLayer.SetShortEdges(uint32(newOrd), ShortEdgeCount(remapped, b.cfg.Alpha))
		}
		if oldLayer.HasEntry() && live[int(oldLayer.EntryNode())] {
			newLayer.SetEntry(oldToNew[oldLayer.EntryNode()])
		} else if len(newToOld) > 0 {
			newLayer.SetEntry(0)
		}
		newLayers[l] = newLayer
	}

	b.mu.Lock()
	b.vectors = newVectors
	b.layers = newLayers
	b.mu.Unlock()

	unreachable := b.countUnreachable()
	return CleanupMetrics{
		LiveCount:       liveCount,
		DeletedCount:    deletedCount,
		RepairedCount:   repaired,
		UnreachableLive: unreachable,
	}, nil
}

// repairDegree searches the base layer from the entry point for additional
// live neighbors for node, merging whatever it finds (diversity-pruned)
// into node's adjacency, in an attempt to push its degree back up after
// dangling edges were dropped. Each neighbor kept for node also gets the
// back-edge to node (re-pruned to M if that overflows it).
func (b *Builder) repairDegree(ctx context.Context, layer *Adjacency, node uint32, current *nodeset.NodeArray, live []bool) {
	if !layer.HasEntry() {
		return
	}
	ssp := ExactSSP{Metric: b.metric, Query: b.vectors.At(int(node)), At: func(o uint32) []float32 { return b.vectors.At(int(o)) }}
	searcher := NewSearcher(layer)
	res, err := searcher.Search(ctx, ssp, b.cfg.M, b.cfg.BeamWidth, FuncBits(func(o uint32) bool {
		return o != node && int(o) < len(live) && live[o]
	}))
	if err != nil {
		return
	}
	candidates := current.Clone()
	for i, o := range res.Ordinals {
		candidates.InsertSorted(o, res.Scores[i])
	}
	merged := nodeset.NewNodeArray(candidates.Len())
	for k := 0; k < candidates.Len(); k++ {
		o, s := candidates.At(k)
		_ = merged.AddInOrder(o, s)
	}
	pruned := RobustPrune(merged, b.cfg.M, b.cfg.Alpha, b.pairScore)
	layer.ReplaceWithRetry(node, func(*nodeset.NodeArray) *nodeset.NodeArray { return pruned })
	layer.SetShortEdges(node, ShortEdgeCount(pruned, b.cfg.Alpha))
	for k := 0; k < pruned.Len(); k++ {
		nb, _ := pruned.At(k)
		back := nodeset.NewNodeArray(1)
		_ = back.AddInOrder(node, b.pairScore(nb, node))
		snap := layer.ReplaceWithRetry(nb, func(old *nodeset.NodeArray) *nodeset.NodeArray {
			if old == nil {
				return back
			}
			if merged := nodeset.Merge(old, back); merged.Len() <= b.cfg.M {
				return merged
			}
			return RobustPrune(nodeset.Merge(old, back), b.cfg.M, b.cfg.Alpha, b.pairScore)
		})
		layer.SetShortEdges(nb, ShortEdgeCount(snap, b.cfg.Alpha))
	}
}

// countUnreachable walks the base layer from its entry point and counts
// live nodes never reached — open question (a): cleanup reports this
// figure rather than fixing it, since repairing full reachability can
// require adding edges that violate the degree bound.
func (b *Builder) countUnreachable() int {
	base := b.Base()
	n := base.Size()
	if n == 0 || !base.HasEntry() {
		return 0
	}
	seen := make([]bool, n)
	queue := []uint32{base.EntryNode()}
	seen[base.EntryNode()] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range base.Neighbors(cur) {
			if !seen[nb] {
				seen[nb] = true
				queue = append(queue, nb)
			}
		}
	}
	unreachable := 0
	for i := 0; i < n; i++ {
		if !base.IsDeleted(uint32(i)) && !seen[i] {
			unreachable++
		}
	}
	return unreachable
}
