package diskstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/arnavk/pqgraph/internal/graph"
	"github.com/arnavk/pqgraph/internal/pq"
	"github.com/arnavk/pqgraph/internal/simdkernel"
)

func buildSmallGraph(t *testing.T) *graph.Builder {
	t.Helper()
	b, err := graph.NewBuilder(2, simdkernel.Euclidean, graph.DefaultConfig(), 1)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	pts := [][]float32{{0, 0}, {1, 0}, {0, 1}}
	for _, p := range pts {
		if _, err := b.AddGraphNode(context.Background(), p); err != nil {
			t.Fatalf("AddGraphNode: %v", err)
		}
	}
	return b
}

// A saved-then-reloaded index must answer Neighbors/At identically to the
// in-memory graph it was written from.
func TestWriteReadRoundTrip(t *testing.T) {
	b := buildSmallGraph(t)
	path := filepath.Join(t.TempDir(), "graph.pqg")
	if err := Write(path, b.Vectors(), b.Base(), WriteOptions{Metric: b.Metric()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Size() != b.Base().Size() {
		t.Fatalf("Size = %d, want %d", r.Size(), b.Base().Size())
	}
	if r.Dimension() != b.Vectors().Dimension() {
		t.Fatalf("Dimension = %d, want %d", r.Dimension(), b.Vectors().Dimension())
	}
	if r.EntryNode() != b.Base().EntryNode() {
		t.Fatalf("EntryNode = %d, want %d", r.EntryNode(), b.Base().EntryNode())
	}
	for i := 0; i < b.Base().Size(); i++ {
		want := b.Vectors().At(i)
		got := r.At(i)
		for d := range want {
			if got[d] != want[d] {
				t.Fatalf("node %d vector mismatch: got=%v want=%v", i, got, want)
			}
		}
		wantNeighbors := b.Base().Neighbors(uint32(i))
		gotNeighbors := r.Neighbors(uint32(i))
		if len(gotNeighbors) != len(wantNeighbors) {
			t.Fatalf("node %d neighbor count: got=%v want=%v", i, gotNeighbors, wantNeighbors)
		}
		for k := range wantNeighbors {
			if gotNeighbors[k] != wantNeighbors[k] {
				t.Fatalf("node %d neighbor %d: got=%d want=%d", i, k, gotNeighbors[k], wantNeighbors[k])
			}
		}
	}
}

// Deletes node 0 from a 3-node graph, runs Cleanup, saves, and reloads —
// the reloaded index must show size=2 with 0 and 1 (renumbered) mutually
// adjacent.
func TestSaveReloadAfterDeleteAndCleanup(t *testing.T) {
	b := buildSmallGraph(t)
	b.MarkNodeDeleted(0)
	if _, err := b.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if b.Size() != 2 {
		t.Fatalf("Size after cleanup = %d, want 2", b.Size())
	}

	path := filepath.Join(t.TempDir(), "graph.pqg")
	if err := Write(path, b.Vectors(), b.Base(), WriteOptions{Metric: b.Metric()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.Size() != 2 {
		t.Fatalf("Size = %d, want 2", r.Size())
	}
	n0 := r.Neighbors(0)
	n1 := r.Neighbors(1)
	if !containsOrdinal(n0, 1) {
		t.Fatalf("node 0 neighbors %v do not contain 1", n0)
	}
	if !containsOrdinal(n1, 0) {
		t.Fatalf("node 1 neighbors %v do not contain 0", n1)
	}
}

func containsOrdinal(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// A PQ section written alongside the graph must decode back to an
// equivalent codebook, and node codes must round-trip.
func TestWriteReadWithPQSection(t *testing.T) {
	b := buildSmallGraph(t)
	vecs := make([][]float32, b.Vectors().Size())
	for i := range vecs {
		vecs[i] = b.Vectors().At(i)
	}
	q, err := pq.Train(vecs, pq.TrainConfig{SubspaceCount: 1, ClusterCount: 2, Metric: b.Metric(), Seed: 1})
	if err != nil {
		t.Fatalf("pq.Train: %v", err)
	}
	codes := make([][]byte, len(vecs))
	for i, v := range vecs {
		c, err := q.Encode(v)
		if err != nil {
			t.Fatalf("Encode(%d): %v", i, err)
		}
		codes[i] = c
	}

	path := filepath.Join(t.TempDir(), "graph.pqg")
	err = Write(path, b.Vectors(), b.Base(), WriteOptions{Metric: b.Metric(), Quantizer: q, Codes: codes})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	loaded := r.Quantizer()
	if loaded == nil {
		t.Fatal("expected a loaded quantizer")
	}
	if loaded.SubspaceCount != q.SubspaceCount || loaded.ClusterCount != q.ClusterCount {
		t.Fatalf("codebook geometry mismatch: got %+v, want %+v", loaded, q)
	}
	for i := range vecs {
		got := r.Code(uint32(i))
		want := codes[i]
		for k := range want {
			if got[k] != want[k] {
				t.Fatalf("node %d code mismatch: got=%v want=%v", i, got, want)
			}
		}
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pqg")
	junk := make([]byte, 64)
	if err := os.WriteFile(path, junk, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected an error opening a file with no valid magic")
	}
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	b := buildSmallGraph(t)
	path := filepath.Join(t.TempDir(), "graph.pqg")
	if err := Write(path, b.Vectors(), b.Base(), WriteOptions{Metric: b.Metric()}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	truncPath := filepath.Join(t.TempDir(), "truncated.pqg")
	if err := os.WriteFile(truncPath, data[:len(data)/2], 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Open(truncPath); err == nil {
		t.Fatal("expected an error opening a truncated file")
	}
}
