// Package engine wires the vector backend, proximity graph builder, PQ
// compressor, on-disk format, and caching view into the single Index type,
// the in-process API: open/build/search/save.
package engine

import (
	"context"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/annlog"
	"github.com/arnavk/pqgraph/internal/cache"
	"github.com/arnavk/pqgraph/internal/config"
	"github.com/arnavk/pqgraph/internal/diskstore"
	"github.com/arnavk/pqgraph/internal/graph"
	"github.com/arnavk/pqgraph/internal/pq"
	"github.com/arnavk/pqgraph/internal/simdkernel"
)

// source is the minimal contract Index needs to drive a Searcher,
// satisfied directly by *graph.Builder's base layer or by the loaded
// (optionally cached) on-disk view.
type source interface {
	graph.NeighborSource
	vectorAt(ordinal uint32) []float32
}

type builderSource struct{ b *graph.Builder }

func (s builderSource) Neighbors(o uint32) []uint32 { return s.b.Base().Neighbors(o) }
func (s builderSource) EntryNode() uint32           { return s.b.Base().EntryNode() }
func (s builderSource) Size() int                   { return s.b.Base().Size() }
func (s builderSource) vectorAt(o uint32) []float32 { return s.b.Vectors().At(int(o)) }

type readerSource struct{ r *diskstore.Reader }

func (s readerSource) Neighbors(o uint32) []uint32 { return s.r.Neighbors(o) }
func (s readerSource) EntryNode() uint32           { return s.r.EntryNode() }
func (s readerSource) Size() int                   { return s.r.Size() }
func (s readerSource) vectorAt(o uint32) []float32 { return s.r.At(int(o)) }

type cacheSource struct{ v *cache.View }

func (s cacheSource) Neighbors(o uint32) []uint32 { return s.v.Neighbors(o) }
func (s cacheSource) EntryNode() uint32           { return s.v.EntryNode() }
func (s cacheSource) Size() int                   { return s.v.Size() }
func (s cacheSource) vectorAt(o uint32) []float32 { return s.v.At(o) }

// Index is the engine's single entry point: a builder-backed, mutable
// instance produced by New, or a read-only instance produced by Open.
type Index struct {
	cfg    config.Config
	dim    int
	metric simdkernel.Metric
	log    annlog.Logger

	builder *graph.Builder
	reader  *diskstore.Reader
	view    *cache.View

	quant *pq.Quantizer
	codes [][]byte
}

// New returns a fresh, empty, buildable Index over vectors of the given
// dimension.
func New(cfg config.Config, dim int, seed int64) (*Index, error) {
	b, err := graph.NewBuilder(dim, cfg.MetricValue(), cfg.GraphConfig(), seed)
	if err != nil {
		return nil, err
	}
	return &Index{cfg: cfg, dim: dim, metric: cfg.MetricValue(), builder: b, log: annlog.Discard()}, nil
}

// SetLogger installs a structured logger for build/cleanup/load diagnostics.
func (idx *Index) SetLogger(l annlog.Logger) { idx.log = l }

// Open loads a previously Saved index read-only, wrapping it in a caching
// view preloaded to cfg.CacheDepth hops from the entry node.
func Open(cfg config.Config, path string) (*Index, error) {
	r, err := diskstore.Open(path)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		cfg:    cfg,
		dim:    r.Dimension(),
		metric: r.Metric(),
		reader: r,
		quant:  r.Quantizer(),
		log:    annlog.Discard(),
	}
	idx.view = cache.Open(r, cfg.CacheDepth)
	if idx.quant != nil {
		codes := make([][]byte, r.Size())
		for i := range codes {
			codes[i] = r.Code(uint32(i))
		}
		idx.codes = codes
	}
	idx.log.Info().Int("size", r.Size()).Int("cacheDepth", cfg.CacheDepth).Msg("index loaded")
	return idx, nil
}

func (idx *Index) src() source {
	if idx.builder != nil {
		return builderSource{idx.builder}
	}
	if idx.view != nil {
		return cacheSource{idx.view}
	}
	return readerSource{idx.reader}
}

// AddVector appends vec to a buildable Index's proximity graph, returning
// its assigned ordinal.
func (idx *Index) AddVector(ctx context.Context, vec []float32) (uint32, error) {
	if idx.builder == nil {
		return 0, annerr.NewCorruptIndexError("AddVector called on a read-only (loaded) index")
	}
	return idx.builder.AddGraphNode(ctx, vec)
}

// BuildParallel bulk-inserts vecs using workers concurrent goroutines.
func (idx *Index) BuildParallel(ctx context.Context, vecs [][]float32, workers int) ([]uint32, error) {
	if idx.builder == nil {
		return nil, annerr.NewCorruptIndexError("BuildParallel called on a read-only (loaded) index")
	}
	return idx.builder.BuildParallel(ctx, vecs, workers)
}

// MarkDeleted tombstones ordinal. Searches do not consult the tombstone,
// so the node can still be returned until Cleanup removes it and its
// adjacency entry.
func (idx *Index) MarkDeleted(ordinal uint32) error {
	if idx.builder == nil {
		return annerr.NewCorruptIndexError("MarkDeleted called on a read-only (loaded) index")
	}
	idx.builder.MarkNodeDeleted(ordinal)
	return nil
}

// Cleanup compacts tombstoned nodes out of a buildable Index, renumbering
// surviving ordinals. Any trained PQ codebook's codes are dropped — a
// Compress call after Cleanup is required to re-establish compression
// alongside the new numbering.
func (idx *Index) Cleanup(ctx context.Context) (graph.CleanupMetrics, error) {
	if idx.builder == nil {
		return graph.CleanupMetrics{}, annerr.NewCorruptIndexError("Cleanup called on a read-only (loaded) index")
	}
	metrics, err := idx.builder.Cleanup(ctx)
	if err != nil {
		return metrics, err
	}
	idx.quant = nil
	idx.codes = nil
	idx.log.Info().
		Int("live", metrics.LiveCount).
		Int("deleted", metrics.DeletedCount).
		Int("repaired", metrics.RepairedCount).
		Int("unreachable", metrics.UnreachableLive).
		Msg("cleanup complete")
	return metrics, nil
}

// Compress trains a PQ codebook over every stored vector (tombstoned ones
// included until Cleanup runs) and encodes each of them, enabling approximate-score search and a PQ
// section on the next Save.
func (idx *Index) Compress(seed int64) error {
	if idx.builder == nil {
		return annerr.NewCorruptIndexError("Compress called on a read-only (loaded) index")
	}
	n := idx.builder.Vectors().Size()
	sample := make([][]float32, n)
	for i := 0; i < n; i++ {
		sample[i] = idx.builder.Vectors().At(i)
	}
	q, err := pq.Train(sample, idx.cfg.PQTrainConfig(seed))
	if err != nil {
		return err
	}
	codes := make([][]byte, n)
	for i, v := range sample {
		c, err := q.Encode(v)
		if err != nil {
			return err
		}
		codes[i] = c
	}
	idx.quant = q
	idx.codes = codes
	return nil
}

// Save writes a buildable Index's current (live) graph and vectors to
// path, including a PQ section if Compress has been run.
func (idx *Index) Save(path string) error {
	if idx.builder == nil {
		return annerr.NewCorruptIndexError("Save called on a read-only (loaded) index")
	}
	opts := diskstore.WriteOptions{Metric: idx.metric}
	if idx.quant != nil {
		opts.Quantizer = idx.quant
		opts.Codes = idx.codes
	}
	return diskstore.Write(path, idx.builder.Vectors(), idx.builder.Base(), opts)
}

// Close releases resources held by a loaded (read-only) Index.
func (idx *Index) Close() error {
	if idx.reader != nil {
		return idx.reader.Close()
	}
	return nil
}

func (idx *Index) ssp(query []float32) graph.SSP {
	src := idx.src()
	if idx.quant != nil {
		return newPQSSP(idx.quant, idx.codes, idx.metric, query, src.vectorAt)
	}
	return graph.ExactSSP{Metric: idx.metric, Query: query, At: func(o uint32) []float32 { return src.vectorAt(o) }}
}

// Session carries a Searcher's resumable state across a Search call and
// any subsequent Resume calls against the same query.
type Session struct {
	searcher *graph.Searcher
	ssp      graph.SSP
}

// Search runs a fresh top-K search for query, returning the result and a
// Session that Resume can extend for more results against the same query.
func (idx *Index) Search(ctx context.Context, query []float32, topK, rerankK int, accepted graph.Bits) (graph.Result, *Session, error) {
	if len(query) != idx.dim {
		return graph.Result{}, nil, annerr.NewDimensionError(idx.dim, len(query))
	}
	searcher := graph.NewSearcher(idx.src())
	ssp := idx.ssp(query)
	res, err := searcher.Search(ctx, ssp, topK, rerankK, accepted)
	return res, &Session{searcher: searcher, ssp: ssp}, err
}

// Resume continues s's query for up to extraTopK additional, not
// previously returned results.
func (s *Session) Resume(ctx context.Context, extraTopK, extraRerankK int, accepted graph.Bits) (graph.Result, error) {
	return s.searcher.Resume(ctx, s.ssp, extraTopK, extraRerankK, accepted)
}

// SearchThreshold returns every accepted node whose score is >= threshold,
// using the running-Normal early-stopping model over cfg's ThresholdWindow,
// MinSamples and StopProbability knobs.
func (idx *Index) SearchThreshold(ctx context.Context, query []float32, threshold float32, accepted graph.Bits) (graph.Result, error) {
	if len(query) != idx.dim {
		return graph.Result{}, annerr.NewDimensionError(idx.dim, len(query))
	}
	searcher := graph.NewSearcher(idx.src())
	return searcher.SearchThreshold(ctx, idx.ssp(query), threshold, idx.cfg.ThresholdWindow, idx.cfg.MinSamples, idx.cfg.StopProbability, accepted)
}

// Size returns the number of ordinals ever assigned (live + tombstoned in
// build mode; persisted size in read-only mode).
func (idx *Index) Size() int { return idx.src().Size() }

// Dimension returns the vector dimension this Index was created with.
func (idx *Index) Dimension() int { return idx.dim }

// Metric returns the configured similarity metric.
func (idx *Index) Metric() simdkernel.Metric { return idx.metric }
