package pq

import "math/rand"

// trainSubspaceWeighted runs k-means++ seeding followed by Lloyd refinement
// over one subspace's projected training sample. parallelWeight > 1 applies
// the ScaNN-style anisotropic reweighting (see TrainConfig.AnisotropicThreshold);
// 1 is ordinary unweighted Lloyd.
func trainSubspaceWeighted(sample [][]float32, clusterCount, maxIterations int, tolerance float32, rng *rand.Rand, parallelWeight float32) [][]float32 {
	k := clusterCount
	if k > len(sample) {
		k = len(sample)
	}
	if k < 1 {
		k = 1
	}
	centroids := seedPlusPlus(sample, k, rng)
	centroids = lloydWeighted(sample, centroids, maxIterations, tolerance, parallelWeight)
	// Pad up to clusterCount by duplicating the first centroid when the
	// sample had fewer distinct points than clusters requested — keeps
	// every code byte in [0, clusterCount) addressable.
	for len(centroids) < clusterCount {
		centroids = append(centroids, append([]float32{}, centroids[0]...))
	}
	return centroids
}

// seedPlusPlus implements k-means++ seeding: the first centroid is chosen
// uniformly at random, each subsequent one is chosen with probability
// proportional to its squared distance to the nearest already-chosen
// centroid (probabilistic farthest-point), the same idea perf-analysis's
// taxonomy clustering step uses deterministically — here weighted by
// distance instead of always taking the single farthest point.
func seedPlusPlus(sample [][]float32, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	first := rng.Intn(len(sample))
	centroids = append(centroids, append([]float32{}, sample[first]...))

	dist := make([]float32, len(sample))
	for len(centroids) < k {
		var total float64
		for i, v := range sample {
			d := nearestDistSq(v, centroids)
			dist[i] = d
			total += float64(d)
		}
		if total <= 0 {
			// All remaining points coincide with a chosen centroid;
			// fall back to uniform pick to keep making progress.
			idx := rng.Intn(len(sample))
			centroids = append(centroids, append([]float32{}, sample[idx]...))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		chosen := len(sample) - 1
		for i, d := range dist {
			cum += float64(d)
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float32{}, sample[chosen]...))
	}
	return centroids
}

func nearestDistSq(v []float32, centroids [][]float32) float32 {
	best := float32(-1)
	for _, c := range centroids {
		d := squaredDistance(v, c)
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// lloyd runs Lloyd's algorithm (assign to nearest centroid, recompute
// means) starting from the given initial centroids until the largest
// centroid shift falls below tolerance or maxIterations is reached. Empty
// clusters keep their previous centroid. Ties in assignment favor the
// lower centroid index (natural consequence of the `<` comparison below).
func lloyd(sample [][]float32, centroids [][]float32, maxIterations int, tolerance float32) [][]float32 {
	if len(sample) == 0 || len(centroids) == 0 {
		return centroids
	}
	dim := len(centroids[0])
	k := len(centroids)
	for iter := 0; iter < maxIterations; iter++ {
		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, dim)
		}
		for _, v := range sample {
			best, bestDist := 0, float32(-1)
			for c, centroid := range centroids {
				d := squaredDistance(v, centroid)
				if bestDist < 0 || d < bestDist {
					bestDist = d
					best = c
				}
			}
			for d := 0; d < dim; d++ {
				sums[best][d] += v[d]
			}
			counts[best]++
		}
		maxShift := float32(0)
		next := make([][]float32, k)
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				next[c] = centroids[c]
				continue
			}
			mean := make([]float32, dim)
			for d := 0; d < dim; d++ {
				mean[d] = sums[c][d] / float32(counts[c])
			}
			shift := squaredDistance(mean, centroids[c])
			if shift > maxShift {
				maxShift = shift
			}
			next[c] = mean
		}
		centroids = next
		if maxShift < tolerance {
			break
		}
	}
	return centroids
}

// lloydWeighted is lloyd's assignment step reweighted per ScaNN's
// anisotropic loss: the component of the residual parallel to the
// original sample vector (the part that actually shifts its dot-product
// rank against a query) is scaled by parallelWeight before comparing
// cluster candidates. Centroid recomputation stays a plain per-cluster
// mean — a deliberate simplification versus ScaNN's full weighted least
// squares, which trades a small amount of reconstruction precision for a
// much simpler, easily-verified centroid update.
func lloydWeighted(sample [][]float32, centroids [][]float32, maxIterations int, tolerance float32, parallelWeight float32) [][]float32 {
	if parallelWeight == 1 {
		return lloyd(sample, centroids, maxIterations, tolerance)
	}
	if len(sample) == 0 || len(centroids) == 0 {
		return centroids
	}
	dim := len(centroids[0])
	k := len(centroids)
	for iter := 0; iter < maxIterations; iter++ {
		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, dim)
		}
		for _, v := range sample {
			best, bestDist := 0, float32(-1)
			for c, centroid := range centroids {
				d := anisotropicDistance(v, centroid, parallelWeight)
				if bestDist < 0 || d < bestDist {
					bestDist = d
					best = c
				}
			}
			for d := 0; d < dim; d++ {
				sums[best][d] += v[d]
			}
			counts[best]++
		}
		maxShift := float32(0)
		next := make([][]float32, k)
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				next[c] = centroids[c]
				continue
			}
			mean := make([]float32, dim)
			for d := 0; d < dim; d++ {
				mean[d] = sums[c][d] / float32(counts[c])
			}
			shift := squaredDistance(mean, centroids[c])
			if shift > maxShift {
				maxShift = shift
			}
			next[c] = mean
		}
		centroids = next
		if maxShift < tolerance {
			break
		}
	}
	return centroids
}

// anisotropicDistance decomposes the residual v-c into the component
// parallel to v (scaled by parallelWeight) and the orthogonal remainder,
// returning their weighted squared sum.
func anisotropicDistance(v, c []float32, parallelWeight float32) float32 {
	var vv, rv float32
	residual := make([]float32, len(v))
	for i := range v {
		r := v[i] - c[i]
		residual[i] = r
		vv += v[i] * v[i]
		rv += r * v[i]
	}
	if vv == 0 {
		return squaredDistance(v, c)
	}
	proj := rv / vv
	var parallelSq, orthoSq float32
	for i := range v {
		parallelComponent := proj * v[i]
		orthoComponent := residual[i] - parallelComponent
		parallelSq += parallelComponent * parallelComponent
		orthoSq += orthoComponent * orthoComponent
	}
	return parallelWeight*parallelSq + orthoSq
}

// ReconstructionLoss returns the mean squared distance from each sample
// vector to its assigned centroid's reconstruction, used to test Lloyd
// convergence and refine() improvement.
func ReconstructionLoss(sample [][]float32, centroids [][]float32) float32 {
	if len(sample) == 0 {
		return 0
	}
	var total float32
	for _, v := range sample {
		best := float32(-1)
		for _, c := range centroids {
			d := squaredDistance(v, c)
			if best < 0 || d < best {
				best = d
			}
		}
		total += best
	}
	return total / float32(len(sample))
}
