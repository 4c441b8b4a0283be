// Package pq implements product quantization: per-subspace k-means++
// codebook training, encode/decode, and the assemble-and-sum distance
// table construction used to approximate a similarity score from PQ codes
// alone.
package pq

import (
	"math"
	"math/rand"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/simdkernel"
)

// Subspace describes one contiguous slice of the full dimension.
type Subspace struct {
	Offset int
	Size   int
}

// subspaceSizesAndOffsets splits dimension D into K contiguous subspaces
// as evenly as possible; the last subspace absorbs the remainder.
func subspaceSizesAndOffsets(d, k int) []Subspace {
	base := d / k
	rem := d % k
	subs := make([]Subspace, k)
	offset := 0
	for i := 0; i < k; i++ {
		size := base
		if i == k-1 {
			size = d - offset
		}
		subs[i] = Subspace{Offset: offset, Size: size}
		offset += size
	}
	_ = rem
	return subs
}

// Quantizer holds trained codebooks for one (dimension, subspaceCount,
// clusterCount) configuration.
type Quantizer struct {
	Dimension     int
	SubspaceCount int
	ClusterCount  int
	Metric        simdkernel.Metric
	Subspaces     []Subspace
	// Centroids[s][c] is the c-th centroid of subspace s, of
	// length Subspaces[s].Size.
	Centroids [][][]float32
	// GlobalMean, if non-nil, is subtracted from every vector before
	// subspace split and training; persisted so decode can add it back.
	GlobalMean []float32
}

// TrainConfig controls k-means++ training.
type TrainConfig struct {
	SubspaceCount int
	ClusterCount  int
	Metric        simdkernel.Metric
	MaxIterations int
	Tolerance     float32
	Seed          int64
	SubtractMean  bool
	// AnisotropicThreshold, when in (0, 1) and Metric is DotProduct, biases
	// Lloyd assignment (the update stays a plain mean) toward preserving reconstruction error along
	// each training vector's own direction over error orthogonal to it —
	// the component that actually moves a dot-product ranking — per the
	// ScaNN anisotropic loss. Parallel error is weighted by 1/threshold^2
	// relative to orthogonal error; 0 (the default) disables weighting and
	// falls back to ordinary squared-distance Lloyd.
	AnisotropicThreshold float32
}

func (c TrainConfig) withDefaults() TrainConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 25
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-4
	}
	if c.ClusterCount <= 0 {
		c.ClusterCount = 256
	}
	return c
}

// Train builds a Quantizer from a training sample. vectors must all share
// the same dimension; len(vectors) must be >= cfg.ClusterCount for every
// subspace to have a chance at a full codebook (fewer distinct points than
// clusters is allowed — surplus clusters just end up unused/duplicated).
func Train(vectors [][]float32, cfg TrainConfig) (*Quantizer, error) {
	cfg = cfg.withDefaults()
	if len(vectors) == 0 {
		return nil, annerr.NewConfigError("vectors", 0)
	}
	dim := len(vectors[0])
	if cfg.SubspaceCount <= 0 || cfg.SubspaceCount > dim {
		return nil, annerr.NewConfigError("SubspaceCount", cfg.SubspaceCount)
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, annerr.NewDimensionError(dim, len(v))
		}
	}

	q := &Quantizer{
		Dimension:     dim,
		SubspaceCount: cfg.SubspaceCount,
		ClusterCount:  cfg.ClusterCount,
		Metric:        cfg.Metric,
		Subspaces:     subspaceSizesAndOffsets(dim, cfg.SubspaceCount),
	}

	working := vectors
	if cfg.SubtractMean {
		mean := make([]float32, dim)
		for _, v := range vectors {
			for d := 0; d < dim; d++ {
				mean[d] += v[d]
			}
		}
		for d := range mean {
			mean[d] /= float32(len(vectors))
		}
		working = make([][]float32, len(vectors))
		for i, v := range vectors {
			centered := make([]float32, dim)
			for d := 0; d < dim; d++ {
				centered[d] = v[d] - mean[d]
			}
			working[i] = centered
		}
		q.GlobalMean = mean
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	q.Centroids = make([][][]float32, cfg.SubspaceCount)
	for s, sub := range q.Subspaces {
		sample := make([][]float32, len(working))
		for i, v := range working {
			sample[i] = v[sub.Offset : sub.Offset+sub.Size]
		}
		parallelWeight := float32(1)
		if cfg.Metric == simdkernel.DotProduct && cfg.AnisotropicThreshold > 0 && cfg.AnisotropicThreshold < 1 {
			parallelWeight = 1 / (cfg.AnisotropicThreshold * cfg.AnisotropicThreshold)
		}
		q.Centroids[s] = trainSubspaceWeighted(sample, cfg.ClusterCount, cfg.MaxIterations, cfg.Tolerance, rng, parallelWeight)
	}
	return q, nil
}

// Refine re-runs Lloyd refinement starting from q's current centroids on a
// new sample B, mutating q in place. Loss on B must strictly decrease
// versus the pre-refine codebook.
func (q *Quantizer) Refine(vectors [][]float32, maxIterations int, tolerance float32) error {
	if maxIterations <= 0 {
		maxIterations = 25
	}
	if tolerance <= 0 {
		tolerance = 1e-4
	}
	working := vectors
	if q.GlobalMean != nil {
		working = make([][]float32, len(vectors))
		for i, v := range vectors {
			centered := make([]float32, q.Dimension)
			for d := 0; d < q.Dimension; d++ {
				centered[d] = v[d] - q.GlobalMean[d]
			}
			working[i] = centered
		}
	}
	for s, sub := range q.Subspaces {
		sample := make([][]float32, len(working))
		for i, v := range working {
			sample[i] = v[sub.Offset : sub.Offset+sub.Size]
		}
		q.Centroids[s] = lloyd(sample, q.Centroids[s], maxIterations, tolerance)
	}
	return nil
}

// Encode maps v to a byte code of length SubspaceCount, one nearest
// centroid index per subspace.
func (q *Quantizer) Encode(v []float32) ([]byte, error) {
	if len(v) != q.Dimension {
		return nil, annerr.NewDimensionError(q.Dimension, len(v))
	}
	centered := v
	if q.GlobalMean != nil {
		centered = make([]float32, q.Dimension)
		for d := 0; d < q.Dimension; d++ {
			centered[d] = v[d] - q.GlobalMean[d]
		}
	}
	code := make([]byte, q.SubspaceCount)
	for s, sub := range q.Subspaces {
		sv := centered[sub.Offset : sub.Offset+sub.Size]
		code[s] = byte(nearestCentroid(sv, q.Centroids[s]))
	}
	return code, nil
}

// Decode reconstructs an approximate vector from a code.
func (q *Quantizer) Decode(code []byte) []float32 {
	out := make([]float32, q.Dimension)
	for s, sub := range q.Subspaces {
		c := q.Centroids[s][code[s]]
		copy(out[sub.Offset:sub.Offset+sub.Size], c)
	}
	if q.GlobalMean != nil {
		for d := 0; d < q.Dimension; d++ {
			out[d] += q.GlobalMean[d]
		}
	}
	return out
}

// DistanceTable precomputes, for query q's perspective, a [SubspaceCount][ClusterCount]
// table T where T[s][c] = raw score (dot or negative squared distance,
// matching Quantizer.Metric's RawScore convention) of q's subspace s
// against centroid c. assembleAndSum(T, ClusterCount, code) then gives the
// raw approximate score between q and whatever vector code encodes.
func (q *Quantizer) DistanceTable(query []float32) ([]float32, error) {
	if len(query) != q.Dimension {
		return nil, annerr.NewDimensionError(q.Dimension, len(query))
	}
	centered := query
	if q.GlobalMean != nil {
		centered = make([]float32, q.Dimension)
		for d := 0; d < q.Dimension; d++ {
			centered[d] = query[d] - q.GlobalMean[d]
		}
	}
	table := make([]float32, q.SubspaceCount*q.ClusterCount)
	for s, sub := range q.Subspaces {
		qv := centered[sub.Offset : sub.Offset+sub.Size]
		for c := 0; c < len(q.Centroids[s]); c++ {
			table[s*q.ClusterCount+c] = q.Metric.RawScore(qv, q.Centroids[s][c])
		}
	}
	return table, nil
}

// ApproxRawScore evaluates a precomputed DistanceTable against a code via
// assemble-and-sum, returning the same raw (unremapped) quantity
// RawScore does; callers pass it through Metric.Report for a final score.
func ApproxRawScore(table []float32, clusterCount int, code []byte) float32 {
	return simdkernel.AssembleAndSum(table, clusterCount, code)
}

func nearestCentroid(v []float32, centroids [][]float32) int {
	best, bestDist := 0, float32(math.MaxFloat32)
	for c, centroid := range centroids {
		d := squaredDistance(v, centroid)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func squaredDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
