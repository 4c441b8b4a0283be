// Package vector provides the lazy, random-access view over N vectors of
// fixed dimension D that the rest of the engine reads through. A Backend
// either owns its storage (Memory, growable during build) or borrows it
// (a Mapped view over a caller-supplied flat slice).
package vector

import (
	"sync"

	"github.com/arnavk/pqgraph/internal/annerr"
)

// Vector is a dense fixed-length sequence of 32-bit floats.
type Vector = []float32

// Backend is the contract every vector store in this engine satisfies.
// Implementations marked Shared() may return, from At, a slice that aliases
// internal scratch or a memory-mapped page: a caller that retains the
// result across the next call to At must Copy it first.
type Backend interface {
	// Size returns the current number of vectors, N.
	Size() int
	// Dimension returns D, fixed for the lifetime of the backend.
	Dimension() int
	// At returns the vector at ordinal i. i must be in [0, Size()); an
	// out-of-range i is a programmer error and panics.
	At(i int) Vector
	// Copy returns an independent Backend over the same logical data.
	Copy() Backend
	// Shared reports whether At's result aliases backend-owned storage.
	Shared() bool
}

// Memory is an in-memory, append-only Backend. It owns a flat slab of
// float32s sliced per ordinal, rather than a slice of slices, so growth
// is a single reallocation instead of N small ones.
type Memory struct {
	mu   sync.RWMutex // serializes Append against other Appends and At/Size
	dim  int
	data []float32 // len == cap*dim conceptually; logical length tracked by n
	n    int
}

// NewMemory creates an empty in-memory backend for vectors of dimension dim.
func NewMemory(dim int) *Memory {
	if dim <= 0 {
		panic("vector: dimension must be positive")
	}
	return &Memory{dim: dim}
}

// NewMemoryFromFlat wraps a pre-populated flat slab (len(data) must be a
// multiple of dim) as a read-only-sized Memory backend with n = len/dim.
func NewMemoryFromFlat(dim int, data []float32) *Memory {
	if dim <= 0 || len(data)%dim != 0 {
		panic("vector: invalid flat slab for dimension")
	}
	return &Memory{dim: dim, data: data, n: len(data) / dim}
}

func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.n
}
func (m *Memory) Dimension() int { return m.dim }
func (m *Memory) Shared() bool   { return false }

func (m *Memory) At(i int) Vector {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= m.n {
		panic("vector: index out of range")
	}
	off := i * m.dim
	return m.data[off : off+m.dim]
}

// Copy returns an independent Memory backend with its own backing slab.
func (m *Memory) Copy() Backend {
	data := make([]float32, len(m.data))
	copy(data, m.data)
	return &Memory{dim: m.dim, data: data, n: m.n}
}

// Append adds vec (must have length Dimension()) and returns its new
// ordinal. Append is safe to call from several writers concurrently with
// readers calling At/Size: it holds the write lock, so each call gets a
// distinct ordinal and readers never see a half-grown slab.
func (m *Memory) Append(vec Vector) (int, error) {
	if len(vec) != m.dim {
		return 0, annerr.NewDimensionError(m.dim, len(vec))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, vec...)
	ord := m.n
	m.n++
	return ord, nil
}

// Flat returns the underlying flat slab (read-only use expected); used by
// internal/diskstore when serializing a freshly-built in-memory index.
func (m *Memory) Flat() []float32 { return m.data }

// Mapped is a Backend borrowing a memory-mapped region: each At call
// returns a slice directly into the mapped bytes. Shared() is true.
type Mapped struct {
	dim   int
	n     int
	flat  []float32 // aliases mapped memory; never mutated
	owned bool
}

// NewMapped wraps a pre-sliced flat float32 view as a Backend. Nothing in
// this module constructs one; internal/diskstore's Reader copies vectors
// out of the mapped file instead.
func NewMapped(dim, n int, flat []float32) *Mapped {
	return &Mapped{dim: dim, n: n, flat: flat}
}

func (m *Mapped) Size() int      { return m.n }
func (m *Mapped) Dimension() int { return m.dim }
func (m *Mapped) Shared() bool   { return true }

func (m *Mapped) At(i int) Vector {
	if i < 0 || i >= m.n {
		panic("vector: index out of range")
	}
	off := i * m.dim
	return m.flat[off : off+m.dim]
}

// Copy materializes an independent, non-shared Memory backend with the
// same contents — the escape hatch callers must use before retaining a
// Mapped-sourced vector across another At call.
func (m *Mapped) Copy() Backend {
	data := make([]float32, m.n*m.dim)
	copy(data, m.flat[:m.n*m.dim])
	return &Memory{dim: m.dim, data: data, n: m.n}
}
