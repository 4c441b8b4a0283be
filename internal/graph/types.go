// Package graph implements the concurrent proximity graph: the adjacency
// map with diversity pruning, the parallel builder that drives search to
// discover neighbors for each new node, and the best-first graph search
// with lazy reranking, threshold mode, and resumable iteration.
package graph

import "github.com/arnavk/pqgraph/internal/simdkernel"

// Config holds the builder's tunable knobs.
type Config struct {
	// M is the target max degree. Typical 8-64.
	M int
	// BeamWidth is the search-list size during insertion (ef_construction).
	BeamWidth int
	// Alpha is the diversity slack, >= 1.0. Typical 1.2-1.4.
	Alpha float64
	// NeighborOverflow is the ratio >= 1.0 permitting temporary over-full
	// adjacency before pruning. Typical 1.2-1.4.
	NeighborOverflow float64
	// AddHierarchy enables the multi-layer index.
	AddHierarchy bool
	// CleanupMinDegree is the minimum post-cleanup degree below which the
	// cleanup pass opportunistically searches for replacement neighbors.
	// Defaults to M/2 when zero.
	CleanupMinDegree int
}

// DefaultConfig returns a Config with the typical values documented above
// for each knob.
func DefaultConfig() Config {
	return Config{
		M:                32,
		BeamWidth:        100,
		Alpha:            1.2,
		NeighborOverflow: 1.2,
		AddHierarchy:     false,
	}
}

// Bits selects which ordinals a search is allowed to return. A nil Bits is
// treated as "accept everything".
type Bits interface {
	Test(ordinal uint32) bool
}

// AllBits accepts every ordinal.
type AllBits struct{}

// Test implements Bits.
func (AllBits) Test(uint32) bool { return true }

func accepts(b Bits, ordinal uint32) bool {
	if b == nil {
		return true
	}
	return b.Test(ordinal)
}

// funcBits adapts a predicate function to Bits.
type funcBits func(uint32) bool

func (f funcBits) Test(o uint32) bool { return f(o) }

// FuncBits builds a Bits from a plain predicate, convenient for tests.
func FuncBits(f func(uint32) bool) Bits { return funcBits(f) }

// NeighborSource is what a Searcher traverses: something that can report
// the out-neighbors of a node and the graph's entry point. Both the
// in-memory adjacency table and internal/diskstore's mmap'd reader (and
// internal/cache's layered view over it) implement this.
type NeighborSource interface {
	// Neighbors returns node's current neighbor ordinals.
	Neighbors(node uint32) []uint32
	// EntryNode returns the graph's fixed starting point.
	EntryNode() uint32
	// Size returns an upper bound on ordinal values, for visited-set sizing.
	Size() int
}

// SSP is the scoring interface a search call is driven by: a cheap,
// possibly-compressed approximate score, and an optional exact reranker.
type SSP interface {
	// ApproxScore returns a cheap, higher-is-better score for node.
	ApproxScore(node uint32) float32
	// Rerank returns the exact score for node if a reranker is configured;
	// ok is false when no reranker is present (approx score is exact).
	Rerank(node uint32) (score float32, ok bool)
}

// BatchSSP is an optional extension an SSP may also implement for
// cache/SIMD-friendly batched approximate scoring.
type BatchSSP interface {
	ApproxScoreBatch(nodes []uint32, out []float32)
}

// ExactSSP builds an SSP straight off a similarity metric and vector
// lookup function — the common case where no compression is involved, so
// "approximate" and "exact" are the same computation.
type ExactSSP struct {
	Metric simdkernel.Metric
	Query  []float32
	At     func(ordinal uint32) []float32
}

// ApproxScore implements SSP.
func (s ExactSSP) ApproxScore(node uint32) float32 {
	return s.Metric.Score(s.Query, s.At(node))
}

// Rerank implements SSP: there is nothing cheaper than the exact score
// here, so it is returned as-is with ok=true rather than omitting the
// method.
func (s ExactSSP) Rerank(node uint32) (float32, bool) {
	return s.ApproxScore(node), true
}
