package graph

import (
	"context"
	"math"
	"testing"

	"github.com/arnavk/pqgraph/internal/simdkernel"
)

func unitCircle(angleInPi float64) []float32 {
	a := angleInPi * math.Pi
	return []float32{float32(math.Cos(a)), float32(math.Sin(a))}
}

func contains(xs []uint32, v uint32) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Builds a 7-node COSINE graph and checks structural invariants: adjacency
// is within the configured degree bound, no node neighbors itself, no
// neighbor appears twice, and each list is sorted by descending score. It also pins down adj(2), the one
// node whose final neighbor set is unaffected by the overflow re-pruning
// (RobustPrune rerun on a node whose back-edge count exceeds
// M*NeighborOverflow) that later insertions trigger on nodes 0, 1, 3 and 4
// — their literal adjacency after overflow re-pruning depends on
// floating-point tie resolution between near-equal cosine scores and is
// not asserted here.
func TestBuildUnitCircleInvariants(t *testing.T) {
	angles := []float64{0.5, 0.75, 0.2, 0.9, 0.8, 0.77, 0.6}
	cfg := Config{M: 4, BeamWidth: 10, Alpha: 1.0, NeighborOverflow: 1.2}
	b, err := NewBuilder(2, simdkernel.Cosine, cfg, 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	ctx := context.Background()
	for _, a := range angles {
		if _, err := b.AddGraphNode(ctx, unitCircle(a)); err != nil {
			t.Fatalf("AddGraphNode: %v", err)
		}
	}
	base := b.Base()
	for n := uint32(0); n < uint32(len(angles)); n++ {
		snap := base.Snapshot(n)
		if snap == nil {
			continue
		}
		if snap.Len() > cfg.M {
			t.Fatalf("adj(%d) has %d neighbors, want <= %d", n, snap.Len(), cfg.M)
		}
		seen := map[uint32]bool{}
		prevScore := float32(2)
		for i := 0; i < snap.Len(); i++ {
			o, s := snap.At(i)
			if o == n {
				t.Fatalf("adj(%d) contains a self-loop", n)
			}
			if seen[o] {
				t.Fatalf("adj(%d) contains duplicate ordinal %d", n, o)
			}
			seen[o] = true
			if s > prevScore {
				t.Fatalf("adj(%d) not sorted descending at index %d", n, i)
			}
			prevScore = s
		}
	}
	adj2 := base.Snapshot(2).Ordinals()
	if len(adj2) != 1 || adj2[0] != 0 {
		t.Fatalf("adj(2) = %v, want {0}", adj2)
	}
}

// 3D axis-aligned vectors, EUCLIDEAN, M=2: adj(0) must evolve from {1,2}
// to {1,3} once node 3 (closer than 2) arrives.
func TestBuildEuclideanDisplacement(t *testing.T) {
	points := [][]float32{
		{0, 0, 0},
		{0, 10, 0},
		{0, 0, 20},
		{10, 0, 0},
		{0, 4, 0},
	}
	cfg := Config{M: 2, BeamWidth: 10, Alpha: 1.0, NeighborOverflow: 1.2}
	b, err := NewBuilder(3, simdkernel.Euclidean, cfg, 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	ctx := context.Background()
	for i, p := range points {
		if _, err := b.AddGraphNode(ctx, p); err != nil {
			t.Fatalf("AddGraphNode(%d): %v", i, err)
		}
		if i == 2 {
			adj0 := b.Base().Snapshot(0).Ordinals()
			if !contains(adj0, 1) || !contains(adj0, 2) {
				t.Fatalf("after inserting node 2, adj(0) = %v, want {1,2}", adj0)
			}
		}
		if i == 3 {
			adj0 := b.Base().Snapshot(0).Ordinals()
			if !contains(adj0, 1) || !contains(adj0, 3) || contains(adj0, 2) {
				t.Fatalf("after inserting node 3, adj(0) = %v, want {1,3}", adj0)
			}
		}
	}
}

func TestBuildRejectsBadConfig(t *testing.T) {
	cases := []Config{
		{M: 1, BeamWidth: 10, Alpha: 1.0, NeighborOverflow: 1.0},
		{M: 4, BeamWidth: 0, Alpha: 1.0, NeighborOverflow: 1.0},
		{M: 4, BeamWidth: 10, Alpha: 0.5, NeighborOverflow: 1.0},
		{M: 4, BeamWidth: 10, Alpha: 1.0, NeighborOverflow: 0.5},
	}
	for i, c := range cases {
		if _, err := NewBuilder(2, simdkernel.Cosine, c, 1); err == nil {
			t.Fatalf("case %d: expected config error", i)
		}
	}
}

func TestBuildParallelAssignsDistinctOrdinals(t *testing.T) {
	cfg := Config{M: 8, BeamWidth: 20, Alpha: 1.2, NeighborOverflow: 1.2}
	b, err := NewBuilder(2, simdkernel.Euclidean, cfg, 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	vecs := make([][]float32, 50)
	for i := range vecs {
		vecs[i] = []float32{float32(i), float32(-i)}
	}
	ordinals, err := b.BuildParallel(context.Background(), vecs, 8)
	if err != nil {
		t.Fatalf("BuildParallel: %v", err)
	}
	seen := map[uint32]bool{}
	for _, o := range ordinals {
		if seen[o] {
			t.Fatalf("duplicate ordinal %d assigned", o)
		}
		seen[o] = true
	}
	if len(seen) != len(vecs) {
		t.Fatalf("assigned %d distinct ordinals, want %d", len(seen), len(vecs))
	}
	for n := range vecs {
		snap := b.Base().Snapshot(uint32(n))
		if snap != nil && snap.Len() > cfg.M {
			t.Fatalf("adj(%d) exceeds M after parallel build: %d", n, snap.Len())
		}
	}
}
