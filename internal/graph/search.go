package graph

import (
	"context"
	"math"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/nodeset"
	"gonum.org/v1/gonum/stat/distuv"
)

// Result is the sorted, score-descending outcome of a Search or Resume
// call, restricted to ordinals not already returned by a prior call on the
// same Searcher.
type Result struct {
	Ordinals []uint32
	Scores   []float32
}

// scoreWindow keeps a fixed-size ring buffer of recently observed raw
// scores, updated incrementally, that threshold search turns into a
// running Normal model to decide when further expansion is unlikely to
// help.
type scoreWindow struct {
	buf  []float32
	next int
	full bool
}

func newScoreWindow(size int) *scoreWindow {
	return &scoreWindow{buf: make([]float32, size)}
}

func (w *scoreWindow) add(v float32) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

func (w *scoreWindow) len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

func (w *scoreWindow) meanStd() (mean, std float64) {
	n := w.len()
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(w.buf[i])
	}
	mean = sum / float64(n)
	var sq float64
	for i := 0; i < n; i++ {
		d := float64(w.buf[i]) - mean
		sq += d * d
	}
	std = 0
	if n > 1 {
		std = math.Sqrt(sq / float64(n-1))
	}
	if std < 0 {
		std = 0
	}
	return mean, std
}

// Searcher holds the resumable state of one query against one
// NeighborSource: the candidate frontier, the current result set, the
// nodes evicted from it, and the visited set. A fresh Search call resets
// this state; Resume continues it.
type Searcher struct {
	src NeighborSource

	visited    []bool
	candidates *nodeset.NodeQueue // unbounded max-heap, keyed by approx score
	results    *nodeset.NodeArray // bounded to rerankK, sorted descending
	rerankK    int
	reranked   map[uint32]bool
	evicted    *nodeset.NodeArray // unbounded, holds nodes bumped out of results

	returned map[uint32]bool

	// window supports threshold mode's stopping rule across Resume calls.
	window       *scoreWindow
	thresholdSet bool
	threshold    float32
}

// NewSearcher returns a Searcher bound to src, ready for a first Search
// call.
func NewSearcher(src NeighborSource) *Searcher {
	return &Searcher{src: src}
}

func (s *Searcher) resetState(rerankK int) {
	n := s.src.Size()
	s.visited = make([]bool, n)
	s.candidates = nodeset.NewMaxNodeQueue(rerankK * 4)
	s.results = nodeset.NewNodeArray(rerankK)
	s.rerankK = rerankK
	s.reranked = make(map[uint32]bool)
	s.evicted = nodeset.NewNodeArray(rerankK)
	s.returned = make(map[uint32]bool)
}

func (s *Searcher) markVisited(n uint32) bool {
	if int(n) >= len(s.visited) {
		grown := make([]bool, n+1)
		copy(grown, s.visited)
		s.visited = grown
	}
	if s.visited[n] {
		return false
	}
	s.visited[n] = true
	return true
}

// admit inserts (node, score) into the bounded results array, lazily
// reranking it immediately if it survives the insertion — reranking is
// deferred until a node is admitted into the top-rerankK result set — and
// recording whatever falls out into evicted.
func (s *Searcher) admit(ssp SSP, node uint32, approxScore float32) {
	if s.reranked[node] {
		return
	}
	s.results.InsertSorted(node, approxScore)
	if s.results.Len() > s.rerankK {
		evOrd, evScore := s.results.At(s.results.Len() - 1)
		s.results.RemoveLast()
		if evOrd == node {
			// this node was the one that got pushed back out; nothing
			// further to rerank.
			s.evicted.InsertSorted(evOrd, evScore)
			return
		}
		s.evicted.InsertSorted(evOrd, evScore)
	}
	// node survived; it is present in results. Rerank it now.
	exact, ok := ssp.Rerank(node)
	s.reranked[node] = true
	if !ok || exact == approxScore {
		return
	}
	s.removeFromResults(node)
	s.results.InsertSorted(node, exact)
	if s.results.Len() > s.rerankK {
		evOrd, evScore := s.results.At(s.results.Len() - 1)
		s.results.RemoveLast()
		s.evicted.InsertSorted(evOrd, evScore)
	}
}

func (s *Searcher) removeFromResults(node uint32) {
	for i := 0; i < s.results.Len(); i++ {
		o, _ := s.results.At(i)
		if o == node {
			s.results.RemoveIndex(i)
			return
		}
	}
}

func (s *Searcher) worstResultScore() (float32, bool) {
	if s.results.Len() < s.rerankK {
		return 0, false
	}
	_, score := s.results.At(s.results.Len() - 1)
	return score, true
}

// expand pops the best candidate and fans out to its unvisited neighbors,
// scoring and admitting each. Returns the popped candidate's score, or ok
// false if the frontier is empty.
func (s *Searcher) expand(ctx context.Context, ssp SSP, accepted Bits) (poppedScore float32, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = annerr.NewScoreFunctionError(r)
		}
	}()
	if s.candidates.Size() == 0 {
		return 0, false, nil
	}
	c, score := s.candidates.Pop()
	for _, n := range s.src.Neighbors(c) {
		select {
		case <-ctx.Done():
			return score, true, annerr.ErrInterrupted
		default:
		}
		if !s.markVisited(n) {
			continue
		}
		if !accepts(accepted, n) {
			continue
		}
		ns := ssp.ApproxScore(n)
		s.candidates.Push(n, ns)
		s.admit(ssp, n, ns)
		if s.window != nil {
			s.window.add(ns)
		}
	}
	return score, true, nil
}

func (s *Searcher) seed(ssp SSP, accepted Bits) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = annerr.NewScoreFunctionError(r)
		}
	}()
	entry := s.src.EntryNode()
	if s.markVisited(entry) && accepts(accepted, entry) {
		score := ssp.ApproxScore(entry)
		s.candidates.Push(entry, score)
		s.admit(ssp, entry, score)
	}
	return nil
}

func (s *Searcher) finalTopN(n int) Result {
	res := Result{}
	for i := 0; i < s.results.Len() && len(res.Ordinals) < n; i++ {
		o, sc := s.results.At(i)
		if s.returned[o] {
			continue
		}
		res.Ordinals = append(res.Ordinals, o)
		res.Scores = append(res.Scores, sc)
	}
	for _, o := range res.Ordinals {
		s.returned[o] = true
	}
	return res
}

// Search runs a fresh best-first search to topK results using a
// rerankK-sized working set (rerankK must be >= topK), stopping when the
// frontier is exhausted or its best remaining approx score can no longer
// beat the current worst retained result.
func (s *Searcher) Search(ctx context.Context, ssp SSP, topK, rerankK int, accepted Bits) (Result, error) {
	if rerankK < topK {
		rerankK = topK
	}
	s.resetState(rerankK)
	if err := s.seed(ssp, accepted); err != nil {
		return s.finalTopN(topK), err
	}
	for {
		select {
		case <-ctx.Done():
			return s.finalTopN(topK), annerr.ErrInterrupted
		default:
		}
		if worst, full := s.worstResultScore(); full {
			if _, bestScore := s.candidates.Peek(); s.candidates.Size() > 0 && bestScore <= worst {
				break
			}
		}
		_, ok, err := s.expand(ctx, ssp, accepted)
		if err != nil {
			return s.finalTopN(topK), err
		}
		if !ok {
			break
		}
	}
	return s.finalTopN(topK), nil
}

// Resume continues a prior Search or Resume call's candidate frontier and
// visited set with extraRerankK additional result-set capacity, returning
// up to extraTopK newly discovered ordinals not returned by any earlier
// call on this Searcher.
func (s *Searcher) Resume(ctx context.Context, ssp SSP, extraTopK, extraRerankK int, accepted Bits) (Result, error) {
	if s.candidates == nil {
		return s.Search(ctx, ssp, extraTopK, extraRerankK, accepted)
	}
	s.rerankK += extraRerankK
	// Previously evicted entries may now fit in the enlarged result set.
	prevEvicted := s.evicted
	s.evicted = nodeset.NewNodeArray(s.rerankK)
	for i := 0; i < prevEvicted.Len(); i++ {
		o, sc := prevEvicted.At(i)
		s.results.InsertSorted(o, sc)
		if s.results.Len() > s.rerankK {
			evOrd, evScore := s.results.At(s.results.Len() - 1)
			s.results.RemoveLast()
			s.evicted.InsertSorted(evOrd, evScore)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return s.finalTopN(extraTopK), annerr.ErrInterrupted
		default:
		}
		if worst, full := s.worstResultScore(); full {
			if _, bestScore := s.candidates.Peek(); s.candidates.Size() > 0 && bestScore <= worst {
				break
			}
		}
		_, ok, err := s.expand(ctx, ssp, accepted)
		if err != nil {
			return s.finalTopN(extraTopK), err
		}
		if !ok {
			break
		}
	}
	return s.finalTopN(extraTopK), nil
}

// SearchThreshold runs a best-first search that returns every accepted
// node whose final (reranked when possible) score is >= threshold, using a
// running Normal model over the stream of approx scores seen to decide
// when to stop expanding: once the modeled probability that further
// expansion turns up a score >= threshold drops below stopProbability, the
// search halts.
func (s *Searcher) SearchThreshold(ctx context.Context, ssp SSP, threshold float32, window, minSamples int, stopProbability float64, accepted Bits) (result Result, err error) {
	s.resetState(window)
	s.results = nodeset.NewNodeArray(0) // unbounded: threshold mode keeps everyone who qualifies
	s.rerankK = 1 << 30                 // effectively unbounded capacity for admit()
	s.window = newScoreWindow(window)
	s.thresholdSet = true
	s.threshold = threshold

	kept := nodeset.NewNodeArray(0)
	defer func() {
		if r := recover(); r != nil {
			result = Result{Ordinals: kept.Ordinals(), Scores: kept.Scores()}
			err = annerr.NewScoreFunctionError(r)
		}
	}()
	if seedErr := s.seed(ssp, accepted); seedErr != nil {
		return Result{Ordinals: kept.Ordinals(), Scores: kept.Scores()}, seedErr
	}
	checkAndKeep := func(node uint32, approx float32) {
		if approx < threshold {
			return
		}
		exact, ok := ssp.Rerank(node)
		if !ok {
			exact = approx
		}
		if exact >= threshold {
			kept.InsertSorted(node, exact)
		}
	}
	if entry := s.src.EntryNode(); s.results.Len() > 0 {
		o, sc := s.results.At(0)
		if o == entry {
			checkAndKeep(o, sc)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return Result{Ordinals: kept.Ordinals(), Scores: kept.Scores()}, annerr.ErrInterrupted
		default:
		}
		if s.window.len() >= minSamples {
			mean, std := s.window.meanStd()
			prob := 1.0
			if std > 0 {
				n := distuv.Normal{Mu: mean, Sigma: std}
				prob = 1 - n.CDF(float64(threshold))
			} else if mean < float64(threshold) {
				prob = 0
			}
			if prob < stopProbability {
				break
			}
		}
		if s.candidates.Size() == 0 {
			break
		}
		c, _ := s.candidates.Pop()
		for _, n := range s.src.Neighbors(c) {
			select {
			case <-ctx.Done():
				return Result{Ordinals: kept.Ordinals(), Scores: kept.Scores()}, annerr.ErrInterrupted
			default:
			}
			if !s.markVisited(n) {
				continue
			}
			if !accepts(accepted, n) {
				continue
			}
			approx := ssp.ApproxScore(n)
			s.window.add(approx)
			s.candidates.Push(n, approx)
			checkAndKeep(n, approx)
		}
	}
	return Result{Ordinals: kept.Ordinals(), Scores: kept.Scores()}, nil
}
