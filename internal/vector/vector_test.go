package vector

import (
	"errors"
	"testing"

	"github.com/arnavk/pqgraph/internal/annerr"
)

func TestMemoryAppendAndAt(t *testing.T) {
	m := NewMemory(3)
	i0, err := m.Append([]float32{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	i1, err := m.Append([]float32{4, 5, 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i0 != 0 || i1 != 1 {
		t.Fatalf("ordinals = %d, %d", i0, i1)
	}
	if m.Size() != 2 {
		t.Fatalf("Size = %d, want 2", m.Size())
	}
	got := m.At(1)
	if got[0] != 4 || got[1] != 5 || got[2] != 6 {
		t.Fatalf("At(1) = %v", got)
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	m := NewMemory(3)
	_, err := m.Append([]float32{1, 2})
	if !errors.Is(err, annerr.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMemoryAtOutOfRangePanics(t *testing.T) {
	m := NewMemory(2)
	m.Append([]float32{1, 2})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-range At")
		}
	}()
	m.At(5)
}

func TestMemoryCopyIsIndependent(t *testing.T) {
	m := NewMemory(2)
	m.Append([]float32{1, 2})
	cp := m.Copy().(*Memory)
	cp.Flat()[0] = 99
	if m.At(0)[0] == 99 {
		t.Fatal("Copy shares storage with original")
	}
}

func TestMappedSharedContract(t *testing.T) {
	flat := []float32{1, 2, 3, 4}
	mp := NewMapped(2, 2, flat)
	if !mp.Shared() {
		t.Fatal("Mapped.Shared() should be true")
	}
	v := mp.At(0)
	if v[0] != 1 || v[1] != 2 {
		t.Fatalf("At(0) = %v", v)
	}
	cp := mp.Copy()
	if cp.Shared() {
		t.Fatal("Copy() of a Mapped backend must be non-shared")
	}
	if cp.At(1)[0] != 3 {
		t.Fatalf("Copy At(1) = %v", cp.At(1))
	}
}
