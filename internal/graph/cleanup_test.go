package graph

import (
	"context"
	"testing"

	"github.com/arnavk/pqgraph/internal/simdkernel"
)

// Builds a 3-node graph, deletes node 0, and runs Cleanup. Afterward
// size=2; the surviving nodes (old 1, old 2 -> new 0, new 1) are each
// other's only neighbor.
func TestCleanupDeleteAndRenumber(t *testing.T) {
	cfg := Config{M: 4, BeamWidth: 10, Alpha: 1.2, NeighborOverflow: 1.2}
	b, err := NewBuilder(2, simdkernel.Euclidean, cfg, 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	ctx := context.Background()
	pts := [][]float32{{0, 0}, {1, 0}, {2, 0}}
	for _, p := range pts {
		if _, err := b.AddGraphNode(ctx, p); err != nil {
			t.Fatalf("AddGraphNode: %v", err)
		}
	}
	b.MarkNodeDeleted(0)
	metrics, err := b.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if metrics.LiveCount != 2 {
		t.Fatalf("LiveCount = %d, want 2", metrics.LiveCount)
	}
	if metrics.DeletedCount != 1 {
		t.Fatalf("DeletedCount = %d, want 1", metrics.DeletedCount)
	}
	if b.Base().Size() != 2 {
		t.Fatalf("Size after cleanup = %d, want 2", b.Base().Size())
	}
	adj0 := b.Base().Snapshot(0).Ordinals()
	adj1 := b.Base().Snapshot(1).Ordinals()
	if !contains(adj0, 1) {
		t.Fatalf("new adj(0) = %v, want to contain 1", adj0)
	}
	if !contains(adj1, 0) {
		t.Fatalf("new adj(1) = %v, want to contain 0", adj1)
	}
	for n := 0; n < b.Base().Size(); n++ {
		if b.Base().IsDeleted(uint32(n)) {
			t.Fatalf("node %d still marked deleted after cleanup renumbering", n)
		}
	}
}

func TestCleanupDropsDanglingEdgesAndRepairsDegree(t *testing.T) {
	cfg := Config{M: 2, BeamWidth: 10, Alpha: 1.2, NeighborOverflow: 1.2, CleanupMinDegree: 1}
	b, err := NewBuilder(2, simdkernel.Euclidean, cfg, 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	ctx := context.Background()
	pts := [][]float32{{0, 0}, {1, 0}, {2, 0}, {3, 0}, {4, 0}}
	for _, p := range pts {
		if _, err := b.AddGraphNode(ctx, p); err != nil {
			t.Fatalf("AddGraphNode: %v", err)
		}
	}
	b.MarkNodeDeleted(1)
	b.MarkNodeDeleted(2)
	metrics, err := b.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if metrics.LiveCount != 3 {
		t.Fatalf("LiveCount = %d, want 3", metrics.LiveCount)
	}
	for n := 0; n < b.Base().Size(); n++ {
		snap := b.Base().Snapshot(uint32(n))
		for i := 0; i < snap.Len(); i++ {
			o, _ := snap.At(i)
			if int(o) >= b.Base().Size() {
				t.Fatalf("node %d has dangling neighbor %d", n, o)
			}
		}
	}
}
