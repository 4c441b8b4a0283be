package graph

import (
	"testing"

	"github.com/arnavk/pqgraph/internal/nodeset"
)

func TestAdjacencyCASRetry(t *testing.T) {
	a := NewAdjacency()
	a.EnsureNode(0)

	initial := nodeset.NewNodeArray(1)
	_ = initial.AddInOrder(1, 0.5)
	if !a.CAS(0, nil, initial) {
		t.Fatal("first CAS from nil should succeed")
	}
	if !a.CAS(0, initial, nil) {
		t.Fatal("CAS against the current snapshot should succeed")
	}
	if a.CAS(0, initial, nil) {
		t.Fatal("stale CAS should fail")
	}
}

func TestAdjacencyReplaceWithRetryAppliesLatest(t *testing.T) {
	a := NewAdjacency()
	a.EnsureNode(0)
	calls := 0
	result := a.ReplaceWithRetry(0, func(old *nodeset.NodeArray) *nodeset.NodeArray {
		calls++
		next := nodeset.NewNodeArray(1)
		_ = next.AddInOrder(7, 0.1)
		return next
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no contention)", calls)
	}
	o, _ := result.At(0)
	if o != 7 {
		t.Fatalf("result ordinal = %d, want 7", o)
	}
}

func TestAdjacencyDeletionIsSticky(t *testing.T) {
	a := NewAdjacency()
	a.EnsureNode(3)
	if a.IsDeleted(3) {
		t.Fatal("fresh node should not be deleted")
	}
	a.MarkDeleted(3)
	if !a.IsDeleted(3) {
		t.Fatal("MarkDeleted should stick")
	}
}

func TestShortEdgeCount(t *testing.T) {
	arr := nodeset.NewNodeArray(4)
	_ = arr.AddInOrder(1, 1.0)
	_ = arr.AddInOrder(2, 0.95)
	_ = arr.AddInOrder(3, 0.5)
	// alpha=1.0 -> threshold = best/alpha = 1.0; only the 1.0 entry qualifies.
	if n := ShortEdgeCount(arr, 1.0); n != 1 {
		t.Fatalf("ShortEdgeCount(alpha=1.0) = %d, want 1", n)
	}
	// alpha=1.1 -> threshold = 1.0/1.1 ≈ 0.909; entries 1.0 and 0.95 qualify.
	if n := ShortEdgeCount(arr, 1.1); n != 2 {
		t.Fatalf("ShortEdgeCount(alpha=1.1) = %d, want 2", n)
	}
}
