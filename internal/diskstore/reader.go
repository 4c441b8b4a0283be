package diskstore

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/mmap"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/pq"
	"github.com/arnavk/pqgraph/internal/simdkernel"
	"github.com/arnavk/pqgraph/internal/vector"
)

// Reader is a read-only, memory-mapped view over a file written by Write.
// Every accessor reads through ReaderAt.ReadAt into a freshly allocated
// buffer: x/exp/mmap's public surface exposes no raw byte-slice aliasing,
// so this is not a true zero-copy view, but it is still backed by the
// kernel's page cache rather than a whole-file read into the heap up
// front, which is the property that matters for an index too large to fit
// comfortably in RAM.
type Reader struct {
	ra     *mmap.ReaderAt
	header Header
	quant  *pq.Quantizer
}

// Open validates and opens path, rejecting anything that doesn't look
// like a file Write produced.
func Open(path string) (*Reader, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, annerr.NewIOError("mmap-open", path, err)
	}
	hdrBuf := make([]byte, headerFixedSize+layerInfoSize+pqInfoSize)
	if _, err := ra.ReadAt(hdrBuf, 0); err != nil {
		ra.Close()
		return nil, annerr.NewIOError("read-header", path, err)
	}
	h := decodeHeader(hdrBuf)
	if h.Magic != Magic {
		ra.Close()
		return nil, annerr.NewCorruptIndexError("bad magic")
	}
	if h.Version != Version {
		ra.Close()
		return nil, annerr.NewCorruptIndexError("unsupported version")
	}
	if h.LayerCount != 1 {
		ra.Close()
		return nil, annerr.NewCorruptIndexError("unexpected layer count")
	}
	wantLen := h.pqSectionStart()
	if h.HasPQ {
		// Section length validated lazily below, after we know the
		// codebook geometry; just sanity-check the file is at least
		// long enough to hold the base records plus a PQ header.
		wantLen += 12
	}
	if int64(ra.Len()) < wantLen {
		ra.Close()
		return nil, annerr.NewCorruptIndexError("file shorter than header implies")
	}

	r := &Reader{ra: ra, header: h}
	if h.HasPQ {
		q, err := r.readPQSection()
		if err != nil {
			ra.Close()
			return nil, err
		}
		r.quant = q
	}
	for i := 0; i < int(h.Size); i++ {
		ordinals, err := r.rawNeighbors(i)
		if err != nil {
			ra.Close()
			return nil, err
		}
		for _, o := range ordinals {
			if o != noNeighbor && o >= h.Size {
				ra.Close()
				return nil, annerr.NewCorruptIndexError("neighbor ordinal out of range")
			}
		}
	}
	if h.Size > 0 && h.EntryNode >= h.Size {
		ra.Close()
		return nil, annerr.NewCorruptIndexError("entry node out of range")
	}
	return r, nil
}

// Close releases the underlying mapping.
func (r *Reader) Close() error {
	if err := r.ra.Close(); err != nil {
		return annerr.NewIOError("mmap-close", "", err)
	}
	return nil
}

// Size reports the node count (graph.NeighborSource sizing).
func (r *Reader) Size() int { return int(r.header.Size) }

// Dimension reports the vector dimension. Reader mirrors the
// vector.Backend accessors but is not itself a vector.Backend: its Copy
// returns a *ReaderCopy.
func (r *Reader) Dimension() int { return int(r.header.Dimension) }

// Shared reports false: every At result is a freshly allocated buffer, so
// it never aliases reader state across calls.
func (r *Reader) Shared() bool { return false }

// At reads node i's vector off the mapped file into a new buffer.
func (r *Reader) At(i int) []float32 {
	if i < 0 || i >= int(r.header.Size) {
		panic("diskstore: index out of range")
	}
	off := r.header.nodeOffset(i)
	buf := make([]byte, r.header.Dimension*4)
	if _, err := r.ra.ReadAt(buf, off); err != nil {
		panic(err)
	}
	out := make([]float32, r.header.Dimension)
	for d := range out {
		out[d] = math.Float32frombits(binary.LittleEndian.Uint32(buf[d*4:]))
	}
	return out
}

// Copy materializes an independent in-memory snapshot of every vector.
func (r *Reader) Copy() *ReaderCopy {
	n := int(r.header.Size)
	flat := make([]float32, n*int(r.header.Dimension))
	for i := 0; i < n; i++ {
		copy(flat[i*int(r.header.Dimension):], r.At(i))
	}
	return &ReaderCopy{dim: int(r.header.Dimension), n: n, flat: flat}
}

// ReaderCopy is a plain in-memory vector.Backend produced by Reader.Copy.
type ReaderCopy struct {
	dim  int
	n    int
	flat []float32
}

func (c *ReaderCopy) Size() int      { return c.n }
func (c *ReaderCopy) Dimension() int { return c.dim }
func (c *ReaderCopy) Shared() bool   { return false }
func (c *ReaderCopy) At(i int) []float32 {
	off := i * c.dim
	return c.flat[off : off+c.dim]
}

func (c *ReaderCopy) Copy() vector.Backend {
	flat := make([]float32, len(c.flat))
	copy(flat, c.flat)
	return &ReaderCopy{dim: c.dim, n: c.n, flat: flat}
}

// EntryNode implements graph.NeighborSource.
func (r *Reader) EntryNode() uint32 { return r.header.EntryNode }

// Neighbors implements graph.NeighborSource, reading node ordinal's
// neighbor list directly off the mapped file and filtering sentinel
// slots.
func (r *Reader) Neighbors(ordinal uint32) []uint32 {
	raw, err := r.rawNeighbors(int(ordinal))
	if err != nil {
		panic(err)
	}
	out := make([]uint32, 0, len(raw))
	for _, o := range raw {
		if o != noNeighbor {
			out = append(out, o)
		}
	}
	return out
}

func (r *Reader) rawNeighbors(i int) ([]uint32, error) {
	off := r.header.nodeOffset(i) + int64(r.header.Dimension)*4
	buf := make([]byte, 4+int(r.header.MaxDegree)*4)
	if _, err := r.ra.ReadAt(buf, off); err != nil {
		return nil, annerr.NewIOError("read-neighbors", "", err)
	}
	count := binary.LittleEndian.Uint32(buf[0:])
	if count > r.header.MaxDegree {
		return nil, annerr.NewCorruptIndexError("neighbor count exceeds max degree")
	}
	out := make([]uint32, count)
	for k := range out {
		out[k] = binary.LittleEndian.Uint32(buf[4+k*4:])
	}
	return out, nil
}

// Metric returns the similarity metric the graph was built under.
func (r *Reader) Metric() simdkernel.Metric { return r.header.Metric }

// Quantizer returns the PQ codebook persisted alongside the graph, or nil
// if the file carries none.
func (r *Reader) Quantizer() *pq.Quantizer { return r.quant }

// Code returns node ordinal's raw PQ code bytes, or nil if this file has
// no PQ section.
func (r *Reader) Code(ordinal uint32) []byte {
	if r.quant == nil {
		return nil
	}
	codesStart := r.pqCodesOffset()
	width := int64(r.quant.SubspaceCount)
	buf := make([]byte, width)
	if _, err := r.ra.ReadAt(buf, codesStart+int64(ordinal)*width); err != nil {
		panic(err)
	}
	return buf
}

func (r *Reader) readPQSection() (*pq.Quantizer, error) {
	base := r.header.PQOffset
	hdr := make([]byte, 8)
	if _, err := r.ra.ReadAt(hdr, base); err != nil {
		return nil, annerr.NewIOError("read-pq-header", "", err)
	}
	subspaceCount := int(binary.LittleEndian.Uint32(hdr[0:]))
	clusterCount := int(binary.LittleEndian.Uint32(hdr[4:]))
	if subspaceCount <= 0 || clusterCount <= 0 {
		return nil, annerr.NewCorruptIndexError("invalid PQ codebook geometry")
	}
	sizesBuf := make([]byte, subspaceCount*4)
	if _, err := r.ra.ReadAt(sizesBuf, base+8); err != nil {
		return nil, annerr.NewIOError("read-pq-sizes", "", err)
	}
	subspaces := make([]pq.Subspace, subspaceCount)
	offset := 0
	for s := 0; s < subspaceCount; s++ {
		size := int(binary.LittleEndian.Uint32(sizesBuf[s*4:]))
		subspaces[s] = pq.Subspace{Offset: offset, Size: size}
		offset += size
	}
	if offset != int(r.header.Dimension) {
		return nil, annerr.NewCorruptIndexError("PQ subspace sizes do not sum to dimension")
	}

	flagOff := base + 8 + int64(subspaceCount*4)
	flagBuf := make([]byte, 1)
	if _, err := r.ra.ReadAt(flagBuf, flagOff); err != nil {
		return nil, annerr.NewIOError("read-pq-flag", "", err)
	}
	hasMean := flagBuf[0] != 0

	pos := flagOff + 1
	centroids := make([][][]float32, subspaceCount)
	for s, sub := range subspaces {
		rowBytes := sub.Size * clusterCount * 4
		row := make([]byte, rowBytes)
		if _, err := r.ra.ReadAt(row, pos); err != nil {
			return nil, annerr.NewIOError("read-pq-centroids", "", err)
		}
		pos += int64(rowBytes)
		cs := make([][]float32, clusterCount)
		off := 0
		for c := 0; c < clusterCount; c++ {
			vec := make([]float32, sub.Size)
			for d := 0; d < sub.Size; d++ {
				vec[d] = math.Float32frombits(binary.LittleEndian.Uint32(row[off:]))
				off += 4
			}
			cs[c] = vec
		}
		centroids[s] = cs
	}

	q := &pq.Quantizer{
		Dimension:     int(r.header.Dimension),
		SubspaceCount: subspaceCount,
		ClusterCount:  clusterCount,
		Metric:        r.header.Metric,
		Subspaces:     subspaces,
		Centroids:     centroids,
	}
	if hasMean {
		meanBuf := make([]byte, int(r.header.Dimension)*4)
		if _, err := r.ra.ReadAt(meanBuf, pos); err != nil {
			return nil, annerr.NewIOError("read-pq-mean", "", err)
		}
		mean := make([]float32, r.header.Dimension)
		for d := range mean {
			mean[d] = math.Float32frombits(binary.LittleEndian.Uint32(meanBuf[d*4:]))
		}
		q.GlobalMean = mean
	}
	return q, nil
}

func (r *Reader) pqCodesOffset() int64 {
	base := r.header.PQOffset
	pos := base + 8 + int64(r.quant.SubspaceCount*4) + 1
	for _, sub := range r.quant.Subspaces {
		pos += int64(sub.Size * r.quant.ClusterCount * 4)
	}
	if r.quant.GlobalMean != nil {
		pos += int64(r.header.Dimension) * 4
	}
	return pos
}
