package graph

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/simdkernel"
)

func buildGraph(t *testing.T, vecs [][]float32, metric simdkernel.Metric, cfg Config) *Builder {
	t.Helper()
	b, err := NewBuilder(len(vecs[0]), metric, cfg, 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	ctx := context.Background()
	for _, v := range vecs {
		if _, err := b.AddGraphNode(ctx, v); err != nil {
			t.Fatalf("AddGraphNode: %v", err)
		}
	}
	return b
}

// 2-D zero-centroid pair, COSINE; query (0.5,0.5) top-1 must return
// ordinal 1 (the positive-dot side).
func TestSearchZeroCentroidPair(t *testing.T) {
	vecs := [][]float32{{-1, -1}, {1, 1}}
	cfg := Config{M: 2, BeamWidth: 4, Alpha: 1.0, NeighborOverflow: 1.2}
	b := buildGraph(t, vecs, simdkernel.Cosine, cfg)

	ssp := ExactSSP{Metric: simdkernel.Cosine, Query: []float32{0.5, 0.5}, At: func(o uint32) []float32 { return b.Vectors().At(int(o)) }}
	searcher := NewSearcher(b.Base())
	res, err := searcher.Search(context.Background(), ssp, 1, 4, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Ordinals) != 1 || res.Ordinals[0] != 1 {
		t.Fatalf("top-1 = %v, want [1]", res.Ordinals)
	}
}

// 1000 random unit vectors in R^2, DOT_PRODUCT, M=32, beamWidth=100.
// Query (1,0) top-10 restricted to ordinals >= 500; the returned
// ordinals' sum must stay low, a recall proxy confirming the search
// actually finds vectors close to the query among the permitted set
// rather than arbitrary ones.
func TestSearchAcceptMaskRecallProxy(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vecs := make([][]float32, 1000)
	for i := range vecs {
		a := rng.Float64() * 2 * math.Pi
		vecs[i] = []float32{float32(math.Cos(a)), float32(math.Sin(a))}
	}
	cfg := Config{M: 32, BeamWidth: 100, Alpha: 1.2, NeighborOverflow: 1.2}
	b := buildGraph(t, vecs, simdkernel.DotProduct, cfg)

	ssp := ExactSSP{Metric: simdkernel.DotProduct, Query: []float32{1, 0}, At: func(o uint32) []float32 { return b.Vectors().At(int(o)) }}
	searcher := NewSearcher(b.Base())
	accepted := FuncBits(func(o uint32) bool { return o >= 500 })
	res, err := searcher.Search(context.Background(), ssp, 10, 100, accepted)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Ordinals) != 10 {
		t.Fatalf("got %d results, want 10", len(res.Ordinals))
	}
	sum := 0
	for _, o := range res.Ordinals {
		if o < 500 {
			t.Fatalf("result %d violates accept mask (< 500)", o)
		}
		sum += int(o)
	}
	if sum >= 5100 {
		t.Fatalf("sum of result ordinals = %d, want < 5100", sum)
	}
}

// search(k) followed by resume(k') must match search(k+k') up to tie
// ordering.
func TestResumeEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	vecs := make([][]float32, 300)
	for i := range vecs {
		vecs[i] = []float32{rng.Float32()*2 - 1, rng.Float32()*2 - 1}
	}
	cfg := Config{M: 16, BeamWidth: 64, Alpha: 1.2, NeighborOverflow: 1.2}
	b := buildGraph(t, vecs, simdkernel.Euclidean, cfg)
	query := []float32{0, 0}

	ssp := ExactSSP{Metric: simdkernel.Euclidean, Query: query, At: func(o uint32) []float32 { return b.Vectors().At(int(o)) }}
	combined := NewSearcher(b.Base())
	all, err := combined.Search(context.Background(), ssp, 20, 150, nil)
	if err != nil {
		t.Fatalf("Search(20): %v", err)
	}

	staged := NewSearcher(b.Base())
	first, err := staged.Search(context.Background(), ssp, 10, 75, nil)
	if err != nil {
		t.Fatalf("Search(10): %v", err)
	}
	second, err := staged.Resume(context.Background(), ssp, 10, 75, nil)
	if err != nil {
		t.Fatalf("Resume(10): %v", err)
	}

	allSet := map[uint32]bool{}
	for _, o := range all.Ordinals {
		allSet[o] = true
	}
	stagedOrdinals := append(append([]uint32{}, first.Ordinals...), second.Ordinals...)
	if len(stagedOrdinals) != len(all.Ordinals) {
		t.Fatalf("staged returned %d ordinals, combined returned %d", len(stagedOrdinals), len(all.Ordinals))
	}
	for _, o := range stagedOrdinals {
		if !allSet[o] {
			t.Fatalf("staged ordinal %d not present in combined top-20", o)
		}
	}
}

func TestSearchThresholdMode(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	vecs := make([][]float32, 500)
	for i := range vecs {
		vecs[i] = []float32{rng.Float32()*4 - 2, rng.Float32()*4 - 2}
	}
	cfg := Config{M: 16, BeamWidth: 64, Alpha: 1.2, NeighborOverflow: 1.2}
	b := buildGraph(t, vecs, simdkernel.Euclidean, cfg)

	ssp := ExactSSP{Metric: simdkernel.Euclidean, Query: []float32{0, 0}, At: func(o uint32) []float32 { return b.Vectors().At(int(o)) }}
	searcher := NewSearcher(b.Base())
	threshold := float32(0.5) // 1/(1+sqDist) >= 0.5 <=> sqDist <= 1
	res, err := searcher.SearchThreshold(context.Background(), ssp, threshold, 128, 32, 0.1, nil)
	if err != nil {
		t.Fatalf("SearchThreshold: %v", err)
	}
	for i, o := range res.Ordinals {
		if res.Scores[i] < threshold {
			t.Fatalf("ordinal %d scored %v, below threshold %v", o, res.Scores[i], threshold)
		}
	}
	if !sort.SliceIsSorted(res.Scores, func(i, j int) bool { return res.Scores[i] > res.Scores[j] }) {
		t.Fatal("threshold results not sorted descending")
	}
}

type panicSSP struct{}

func (panicSSP) ApproxScore(uint32) float32    { panic("boom") }
func (panicSSP) Rerank(uint32) (float32, bool) { return 0, true }

func TestSearchRecoversScoreFunctionPanic(t *testing.T) {
	cfg := Config{M: 4, BeamWidth: 4, Alpha: 1.2, NeighborOverflow: 1.2}
	b := buildGraph(t, [][]float32{{0, 0}, {1, 1}, {2, 2}}, simdkernel.Euclidean, cfg)

	searcher := NewSearcher(b.Base())
	_, err := searcher.Search(context.Background(), panicSSP{}, 2, 4, nil)
	if !errors.Is(err, annerr.ErrScoreFunction) {
		t.Fatalf("expected ErrScoreFunction, got %v", err)
	}

	// a fresh Search call on the same Searcher must still work.
	ssp := ExactSSP{Metric: simdkernel.Euclidean, Query: []float32{0, 0}, At: func(o uint32) []float32 { return b.Vectors().At(int(o)) }}
	res, err := searcher.Search(context.Background(), ssp, 2, 4, nil)
	if err != nil {
		t.Fatalf("Search after recovered panic: %v", err)
	}
	if len(res.Ordinals) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Ordinals))
	}
}

func TestSearchCancellation(t *testing.T) {
	cfg := Config{M: 8, BeamWidth: 16, Alpha: 1.2, NeighborOverflow: 1.2}
	rng := rand.New(rand.NewSource(5))
	vecs := make([][]float32, 200)
	for i := range vecs {
		vecs[i] = []float32{rng.Float32(), rng.Float32()}
	}
	b := buildGraph(t, vecs, simdkernel.Euclidean, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ssp := ExactSSP{Metric: simdkernel.Euclidean, Query: []float32{0, 0}, At: func(o uint32) []float32 { return b.Vectors().At(int(o)) }}
	searcher := NewSearcher(b.Base())
	_, err := searcher.Search(ctx, ssp, 10, 20, nil)
	if !errors.Is(err, annerr.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
}
