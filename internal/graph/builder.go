package graph

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/nodeset"
	"github.com/arnavk/pqgraph/internal/simdkernel"
	"github.com/arnavk/pqgraph/internal/vector"
)

// CleanupMetrics reports what a Cleanup pass did: cleanup repairs degree
// but only reports (rather than repairs) any live node it cannot reach
// from the entry point after compaction.
type CleanupMetrics struct {
	LiveCount       int
	DeletedCount    int
	RepairedCount   int
	UnreachableLive int
}

// Builder owns one layered proximity graph plus the vector backend behind
// it, and drives AddGraphNode/MarkNodeDeleted/Cleanup.
type Builder struct {
	mu sync.RWMutex // guards layers slice growth (layer count), not per-node state

	vectors *vector.Memory
	metric  simdkernel.Metric
	cfg     Config

	layers []*Adjacency // layers[0] is the base (full) graph

	size int

	bootstrapMu sync.Mutex // serializes the very first AddGraphNode

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewBuilder validates cfg and returns an empty Builder over a fresh vector
// backend of the given dimension and metric.
func NewBuilder(dim int, metric simdkernel.Metric, cfg Config, seed int64) (*Builder, error) {
	if cfg.M < 2 {
		return nil, annerr.NewConfigError("M", cfg.M)
	}
	if cfg.BeamWidth < 1 {
		return nil, annerr.NewConfigError("BeamWidth", cfg.BeamWidth)
	}
	if cfg.Alpha < 1.0 {
		return nil, annerr.NewConfigError("Alpha", cfg.Alpha)
	}
	if cfg.NeighborOverflow < 1.0 {
		return nil, annerr.NewConfigError("NeighborOverflow", cfg.NeighborOverflow)
	}
	if cfg.CleanupMinDegree == 0 {
		cfg.CleanupMinDegree = cfg.M / 2
	}
	b := &Builder{
		vectors: vector.NewMemory(dim),
		metric:  metric,
		cfg:     cfg,
		layers:  []*Adjacency{NewAdjacency()},
		rng:     rand.New(rand.NewSource(seed)),
	}
	return b, nil
}

// Base returns the ground-layer adjacency, the thing a Searcher should
// traverse for exact (no-hierarchy) search.
func (b *Builder) Base() *Adjacency { return b.layers[0] }

// Vectors returns the backing vector store.
func (b *Builder) Vectors() *vector.Memory { return b.vectors }

// Metric returns the configured similarity metric.
func (b *Builder) Metric() simdkernel.Metric { return b.metric }

func (b *Builder) pairScore(x, y uint32) float32 {
	return b.metric.Score(b.vectors.At(int(x)), b.vectors.At(int(y)))
}

// randomLevel draws a node's top layer via the standard geometric
// distribution with mL = 1/ln(M), the same draw HNSW-family indexes use so
// layer populations shrink by roughly 1/M per level. The level is capped
// at log_M(graph size)+1.
func (b *Builder) randomLevel() int {
	if !b.cfg.AddHierarchy || b.cfg.M < 2 {
		return 0
	}
	b.rngMu.Lock()
	u := b.rng.Float64()
	b.rngMu.Unlock()
	if u <= 0 {
		u = 1e-12
	}
	mL := 1.0 / math.Log(float64(b.cfg.M))
	level := int(math.Floor(-math.Log(u) * mL))
	if maxLevel := int(math.Log(float64(b.vectors.Size()))*mL) + 1; level > maxLevel {
		level = maxLevel
	}
	if level > 31 {
		level = 31
	}
	return level
}

func (b *Builder) ensureLayers(upTo int) []*Adjacency {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.layers) <= upTo {
		b.layers = append(b.layers, NewAdjacency())
	}
	return b.layers
}

func (b *Builder) layerAt(i int) *Adjacency {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.layers[i]
}

func (b *Builder) layerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.layers)
}

// AddGraphNode appends vec to the vector store and wires it into the
// graph: find candidate neighbors via search from the current entry point,
// diversity-prune them, store the forward edges, then for each accepted
// neighbor merge the new back-edge into its own adjacency (pruning again
// if that pushes it over NeighborOverflow*M).
func (b *Builder) AddGraphNode(ctx context.Context, vec []float32) (uint32, error) {
	ord, err := b.vectors.Append(vec)
	if err != nil {
		return 0, err
	}
	ordinal := uint32(ord)
	topLevel := b.randomLevel()
	layers := b.ensureLayers(topLevel)
	for l := 0; l <= topLevel; l++ {
		layers[l].EnsureNode(ordinal)
	}

	base := layers[0]
	b.bootstrapMu.Lock()
	if !base.HasEntry() {
		for l := 0; l <= topLevel; l++ {
			layers[l].SetEntry(ordinal)
		}
		b.bootstrapMu.Unlock()
		return ordinal, nil
	}
	b.bootstrapMu.Unlock()

	entryPoint := base.EntryNode()
	numLayers := b.layerCount()
	// Greedy descent through layers above topLevel: find the single best
	// entry point to carry down into the node's own top-qualifying layer.
	for l := numLayers - 1; l > topLevel; l-- {
		if l >= len(layers) {
			continue
		}
		entryPoint = b.greedyDescend(layers[l], entryPoint, ordinal)
	}

	for l := topLevel; l >= 0; l-- {
		layer := layers[l]
		ssp := ExactSSP{Metric: b.metric, Query: vec, At: func(o uint32) []float32 { return b.vectors.At(int(o)) }}
		searcher := NewSearcher(layer)
		res, err := searcher.Search(ctx, ssp, b.cfg.BeamWidth, b.cfg.BeamWidth, FuncBits(func(o uint32) bool { return o != ordinal }))
		if err != nil {
			return ordinal, err
		}
		candidates := nodeset.NewNodeArray(len(res.Ordinals))
		for i, o := range res.Ordinals {
			_ = candidates.AddInOrder(o, res.Scores[i])
		}
		if candidates.Len() > 0 {
			entryPoint, _ = candidates.At(0)
		}

		pruned := RobustPrune(candidates, b.cfg.M, b.cfg.Alpha, b.pairScore)
		layer.ReplaceWithRetry(ordinal, func(*nodeset.NodeArray) *nodeset.NodeArray { return pruned })
		layer.SetShortEdges(ordinal, ShortEdgeCount(pruned, b.cfg.Alpha))

		for i := 0; i < pruned.Len(); i++ {
			neighbor, _ := pruned.At(i)
			backScore := b.pairScore(neighbor, ordinal)
			newSnap := layer.ReplaceWithRetry(neighbor, func(old *nodeset.NodeArray) *nodeset.NodeArray {
				single := nodeset.NewNodeArray(1)
				_ = single.AddInOrder(ordinal, backScore)
				if old == nil {
					old = nodeset.NewNodeArray(0)
				}
				merged := nodeset.Merge(old, single)
				if merged.Len() <= int(float64(b.cfg.M)*b.cfg.NeighborOverflow) {
					return merged
				}
				candidates2 := nodeset.NewNodeArray(merged.Len())
				for k := 0; k < merged.Len(); k++ {
					o, s := merged.At(k)
					_ = candidates2.AddInOrder(o, s)
				}
				return RobustPrune(candidates2, b.cfg.M, b.cfg.Alpha, b.pairScore)
			})
			layer.SetShortEdges(neighbor, ShortEdgeCount(newSnap, b.cfg.Alpha))
		}
	}
	if topLevel >= numLayers-1 {
		for l := 0; l < b.layerCount(); l++ {
			b.layerAt(l).SetEntry(ordinal)
		}
	}
	return ordinal, nil
}

// greedyDescend does a single-hop greedy walk at layer: from current,
// repeatedly move to whichever neighbor scores query best until no
// neighbor improves on the current node, matching the classic HNSW
// upper-layer descent (cheaper than a full best-first search since upper
// layers are sparse).
func (b *Builder) greedyDescend(layer *Adjacency, current uint32, query uint32) uint32 {
	best := current
	bestScore := b.pairScore(current, query)
	for {
		improved := false
		for _, n := range layer.Neighbors(best) {
			s := b.pairScore(n, query)
			if s > bestScore {
				bestScore = s
				best = n
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// MarkNodeDeleted sets the sticky tombstone on ordinal across every layer
// it appears in. The node's adjacency and its appearances in other nodes'
// neighbor lists are left untouched until Cleanup runs.
func (b *Builder) MarkNodeDeleted(ordinal uint32) {
	for l := 0; l < b.layerCount(); l++ {
		layer := b.layerAt(l)
		if ordinal < uint32(layer.Size()) {
			layer.MarkDeleted(ordinal)
		}
	}
}

// IsDeleted reports the base layer's tombstone for ordinal.
func (b *Builder) IsDeleted(ordinal uint32) bool {
	return b.Base().IsDeleted(ordinal)
}

// Size returns the number of ordinals ever assigned (live + deleted).
func (b *Builder) Size() int { return b.Base().Size() }
