// Package nodeset provides the sorted-by-score, dedup-by-ordinal
// containers the graph builder and search use to hold candidate and result
// sets: NodeArray (a growable sorted array) and NodeQueue (heap-backed
// top-K).
package nodeset

import (
	"sort"

	"github.com/arnavk/pqgraph/internal/annerr"
)

// NodeArray is a parallel pair of arrays (ordinals, scores), sorted by
// score descending with unique ordinals. The capacity given at creation
// only preallocates; the array grows past it as entries are added.
type NodeArray struct {
	ordinals []uint32
	scores   []float32
}

// NewNodeArray returns an empty NodeArray with the given capacity hint.
func NewNodeArray(capacityHint int) *NodeArray {
	return &NodeArray{
		ordinals: make([]uint32, 0, capacityHint),
		scores:   make([]float32, 0, capacityHint),
	}
}

// Len returns the current logical size.
func (a *NodeArray) Len() int { return len(a.ordinals) }

// At returns the ordinal/score pair at index k.
func (a *NodeArray) At(k int) (uint32, float32) { return a.ordinals[k], a.scores[k] }

// Ordinals returns the backing ordinal slice (read-only use expected).
func (a *NodeArray) Ordinals() []uint32 { return a.ordinals }

// Scores returns the backing score slice (read-only use expected).
func (a *NodeArray) Scores() []float32 { return a.scores }

// AddInOrder appends (node, score) under the assumption the caller is
// feeding scores in non-increasing order. Returns ErrOutOfOrder (and does
// not append) if score is greater than the current last score.
func (a *NodeArray) AddInOrder(node uint32, score float32) error {
	if n := len(a.scores); n > 0 && score > a.scores[n-1] {
		return annerr.ErrOutOfOrder
	}
	a.ordinals = append(a.ordinals, node)
	a.scores = append(a.scores, score)
	return nil
}

// InsertSorted binary-searches the insertion point for score (descending
// order) and inserts node there. If node already exists anywhere in the
// array, InsertSorted is a no-op — even if score differs from the stored
// one. This dedup-on-ordinal rule is mandatory.
func (a *NodeArray) InsertSorted(node uint32, score float32) {
	for _, o := range a.ordinals {
		if o == node {
			return
		}
	}
	// sort.Search finds the first index where scores[i] <= score (i.e.
	// descending order's insertion point for `score`).
	idx := sort.Search(len(a.scores), func(i int) bool {
		return a.scores[i] <= score
	})
	a.ordinals = append(a.ordinals, 0)
	a.scores = append(a.scores, 0)
	copy(a.ordinals[idx+1:], a.ordinals[idx:len(a.ordinals)-1])
	copy(a.scores[idx+1:], a.scores[idx:len(a.scores)-1])
	a.ordinals[idx] = node
	a.scores[idx] = score
}

// RemoveIndex removes the entry at index k, preserving order.
func (a *NodeArray) RemoveIndex(k int) {
	a.ordinals = append(a.ordinals[:k], a.ordinals[k+1:]...)
	a.scores = append(a.scores[:k], a.scores[k+1:]...)
}

// RemoveLast removes the last (lowest-score) entry.
func (a *NodeArray) RemoveLast() {
	if n := len(a.ordinals); n > 0 {
		a.ordinals = a.ordinals[:n-1]
		a.scores = a.scores[:n-1]
	}
}

// Retain compacts the array in place, keeping only indices k for which
// keep(k) is true, preserving relative order.
func (a *NodeArray) Retain(keep func(k int) bool) {
	w := 0
	for r := 0; r < len(a.ordinals); r++ {
		if keep(r) {
			a.ordinals[w] = a.ordinals[r]
			a.scores[w] = a.scores[r]
			w++
		}
	}
	a.ordinals = a.ordinals[:w]
	a.scores = a.scores[:w]
}

// Clone returns an independent copy of a.
func (a *NodeArray) Clone() *NodeArray {
	cp := &NodeArray{
		ordinals: make([]uint32, len(a.ordinals)),
		scores:   make([]float32, len(a.scores)),
	}
	copy(cp.ordinals, a.ordinals)
	copy(cp.scores, a.scores)
	return cp
}

// Merge merge-sorts A and B by descending score, deduplicating by ordinal
// (first occurrence — i.e. A's entry wins over B's on a tie) and returns a
// new NodeArray of length <= |A|+|B|.
func Merge(a, b *NodeArray) *NodeArray {
	out := NewNodeArray(a.Len() + b.Len())
	seen := make(map[uint32]bool, a.Len()+b.Len())
	i, j := 0, 0
	for i < a.Len() && j < b.Len() {
		ao, asc := a.At(i)
		bo, bsc := b.At(j)
		if asc >= bsc {
			if !seen[ao] {
				seen[ao] = true
				out.ordinals = append(out.ordinals, ao)
				out.scores = append(out.scores, asc)
			}
			i++
		} else {
			if !seen[bo] {
				seen[bo] = true
				out.ordinals = append(out.ordinals, bo)
				out.scores = append(out.scores, bsc)
			}
			j++
		}
	}
	for ; i < a.Len(); i++ {
		ao, asc := a.At(i)
		if !seen[ao] {
			seen[ao] = true
			out.ordinals = append(out.ordinals, ao)
			out.scores = append(out.scores, asc)
		}
	}
	for ; j < b.Len(); j++ {
		bo, bsc := b.At(j)
		if !seen[bo] {
			seen[bo] = true
			out.ordinals = append(out.ordinals, bo)
			out.scores = append(out.scores, bsc)
		}
	}
	return out
}
