package graph

import (
	"testing"

	"github.com/arnavk/pqgraph/internal/nodeset"
)

func TestRobustPruneRespectsDiversityAndCap(t *testing.T) {
	// Three candidates where a sits "between" p and c (so a shadows c at
	// alpha=1.0): score(p,a)=0.9, score(p,b)=0.8, score(p,c)=0.7,
	// score(a,c)=0.95 (a covers c's direction well enough to shadow it).
	pair := map[[2]uint32]float32{
		{1, 3}: 0.95, {3, 1}: 0.95,
		{1, 2}: 0.1, {2, 1}: 0.1,
		{2, 3}: 0.1, {3, 2}: 0.1,
	}
	scoreFn := func(a, b uint32) float32 { return pair[[2]uint32{a, b}] }

	cands := nodeset.NewNodeArray(4)
	_ = cands.AddInOrder(1, 0.9) // a
	_ = cands.AddInOrder(2, 0.8) // b
	_ = cands.AddInOrder(3, 0.7) // c, shadowed by a

	result := RobustPrune(cands, 4, 1.0, scoreFn)
	if result.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (c shadowed by a)", result.Len())
	}
	o0, _ := result.At(0)
	o1, _ := result.At(1)
	if o0 != 1 || o1 != 2 {
		t.Fatalf("result = %d,%d want 1,2", o0, o1)
	}
}

func TestRobustPruneCapsAtM(t *testing.T) {
	scoreFn := func(a, b uint32) float32 { return 0 } // never shadows
	cands := nodeset.NewNodeArray(5)
	for i := uint32(0); i < 5; i++ {
		_ = cands.AddInOrder(i, float32(5-i))
	}
	result := RobustPrune(cands, 2, 1.2, scoreFn)
	if result.Len() != 2 {
		t.Fatalf("Len = %d, want 2", result.Len())
	}
	o0, s0 := result.At(0)
	if o0 != 0 || s0 != 5 {
		t.Fatalf("At(0) = %d,%v", o0, s0)
	}
}

func TestRobustPruneHigherAlphaAdmitsMore(t *testing.T) {
	pair := map[[2]uint32]float32{
		{1, 3}: 0.95, {3, 1}: 0.95,
	}
	scoreFn := func(a, b uint32) float32 { return pair[[2]uint32{a, b}] }
	cands := nodeset.NewNodeArray(3)
	_ = cands.AddInOrder(1, 0.9)
	_ = cands.AddInOrder(3, 0.7)
	// alpha=1.0: score(1,3)=0.95 >= 0.7*1.0 -> shadowed.
	r1 := RobustPrune(cands.Clone(), 4, 1.0, scoreFn)
	if r1.Len() != 1 {
		t.Fatalf("alpha=1.0: Len = %d, want 1", r1.Len())
	}
	// alpha=2.0: need score(1,3) >= 0.7*2.0=1.4, never true -> admitted.
	r2 := RobustPrune(cands.Clone(), 4, 2.0, scoreFn)
	if r2.Len() != 2 {
		t.Fatalf("alpha=2.0: Len = %d, want 2", r2.Len())
	}
}
