package diskstore

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/arnavk/pqgraph/internal/annerr"
	"github.com/arnavk/pqgraph/internal/graph"
	"github.com/arnavk/pqgraph/internal/pq"
	"github.com/arnavk/pqgraph/internal/simdkernel"
	"github.com/arnavk/pqgraph/internal/vector"
)

// WriteOptions bundles what Write needs beyond the base graph: the
// similarity metric it was built under, and an optional trained
// quantizer plus per-node codes to append as the PQ section.
type WriteOptions struct {
	Metric     simdkernel.Metric
	Quantizer  *pq.Quantizer
	Codes      [][]byte // Codes[i] is node i's PQ code, len == vectors.Size()
}

// Write serializes base (the graph's layer-0 adjacency) and vectors to
// path, staging to a sibling temp file and renaming into place so a
// crash mid-write never leaves a corrupt file at path.
func Write(path string, vectors vector.Backend, base *graph.Adjacency, opts WriteOptions) error {
	n := base.Size()
	dim := vectors.Dimension()
	m := 0
	for i := 0; i < n; i++ {
		if snap := base.Snapshot(uint32(i)); snap != nil && snap.Len() > m {
			m = snap.Len()
		}
	}

	h := Header{
		Magic:      Magic,
		Version:    Version,
		Size:       uint32(n),
		Dimension:  uint32(dim),
		EntryNode:  base.EntryNode(),
		MaxDegree:  uint32(m),
		LayerCount: 1,
		LayerSize:  uint32(n),
		LayerDeg:   uint32(m),
		Metric:     opts.Metric,
		HasPQ:      opts.Quantizer != nil,
	}
	if h.HasPQ {
		h.PQOffset = h.pqSectionStart()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pqgraph-tmp-*")
	if err != nil {
		return annerr.NewIOError("create-temp", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(encodeHeader(h)); err != nil {
		return annerr.NewIOError("write-header", tmpPath, err)
	}

	recordBuf := make([]byte, h.nodeRecordBytes())
	for i := 0; i < n; i++ {
		v := vectors.At(i)
		off := 0
		for d := 0; d < dim; d++ {
			binary.LittleEndian.PutUint32(recordBuf[off:], math.Float32bits(v[d]))
			off += 4
		}
		var ordinals []uint32
		if snap := base.Snapshot(uint32(i)); snap != nil {
			ordinals = snap.Ordinals()
		}
		binary.LittleEndian.PutUint32(recordBuf[off:], uint32(len(ordinals)))
		off += 4
		for k := 0; k < m; k++ {
			val := noNeighbor
			if k < len(ordinals) {
				val = ordinals[k]
			}
			binary.LittleEndian.PutUint32(recordBuf[off:], val)
			off += 4
		}
		if _, err := tmp.Write(recordBuf); err != nil {
			return annerr.NewIOError("write-node", tmpPath, err)
		}
	}

	if opts.Quantizer != nil {
		if err := writePQSection(tmp, opts.Quantizer, opts.Codes); err != nil {
			return err
		}
	}

	if err := tmp.Sync(); err != nil {
		return annerr.NewIOError("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return annerr.NewIOError("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return annerr.NewIOError("rename", path, err)
	}
	return nil
}

func writePQSection(f *os.File, q *pq.Quantizer, codes [][]byte) error {
	buf := make([]byte, 4+4+4*len(q.Subspaces))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(q.Subspaces)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(q.ClusterCount))
	off := 8
	for _, sub := range q.Subspaces {
		binary.LittleEndian.PutUint32(buf[off:], uint32(sub.Size))
		off += 4
	}
	hasMean := byte(0)
	if q.GlobalMean != nil {
		hasMean = 1
	}
	buf = append(buf, hasMean)
	if _, err := f.Write(buf); err != nil {
		return annerr.NewIOError("write-pq-header", f.Name(), err)
	}

	for _, sub := range q.Centroids {
		row := make([]byte, len(sub)*len(sub[0])*4)
		off := 0
		for _, c := range sub {
			for _, v := range c {
				binary.LittleEndian.PutUint32(row[off:], math.Float32bits(v))
				off += 4
			}
		}
		if _, err := f.Write(row); err != nil {
			return annerr.NewIOError("write-pq-centroids", f.Name(), err)
		}
	}

	if q.GlobalMean != nil {
		meanBuf := make([]byte, len(q.GlobalMean)*4)
		off := 0
		for _, v := range q.GlobalMean {
			binary.LittleEndian.PutUint32(meanBuf[off:], math.Float32bits(v))
			off += 4
		}
		if _, err := f.Write(meanBuf); err != nil {
			return annerr.NewIOError("write-pq-mean", f.Name(), err)
		}
	}

	for _, code := range codes {
		if _, err := f.Write(code); err != nil {
			return annerr.NewIOError("write-pq-codes", f.Name(), err)
		}
	}
	return nil
}
