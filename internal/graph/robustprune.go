package graph

import "github.com/arnavk/pqgraph/internal/nodeset"

// PairScore scores candidate b from the perspective of a, higher-is-better.
// Used by RobustPrune to decide whether an already-accepted neighbor
// "shadows" a candidate.
type PairScore func(a, b uint32) float32

// RobustPrune implements the Vamana diversity pruning rule:
// candidates, sorted descending by score-to-p, are walked in order; a
// candidate c is accepted into the result unless some already-accepted
// neighbor r scores c at least as well (scaled by alpha) as p scored c —
// i.e. r already covers the direction to c well enough that keeping a
// separate edge to c adds no diversity. Stops once m neighbors are
// accepted.
func RobustPrune(candidates *nodeset.NodeArray, m int, alpha float64, pairScore PairScore) *nodeset.NodeArray {
	result := nodeset.NewNodeArray(m)
	for i := 0; i < candidates.Len() && result.Len() < m; i++ {
		c, scorePC := candidates.At(i)
		shadowed := false
		for j := 0; j < result.Len(); j++ {
			r, _ := result.At(j)
			if pairScore(r, c) >= scorePC*float32(alpha) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			// candidates is sorted descending and we only ever append a
			// subsequence of it, so the subsequence stays sorted: AddInOrder
			// can never fail here.
			_ = result.AddInOrder(c, scorePC)
		}
	}
	return result
}
