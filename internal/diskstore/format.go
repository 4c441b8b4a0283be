// Package diskstore implements the single-file on-disk graph format: a
// fixed-width header, fixed-width per-node vector+adjacency records for
// O(1) seek, and an optional appended PQ codebook/codes section.
// The writer always stages to a temp path and renames on
// success; the reader memory-maps the file read-only via
// golang.org/x/exp/mmap.
package diskstore

import (
	"encoding/binary"

	"github.com/arnavk/pqgraph/internal/simdkernel"
)

// Magic and Version identify the file format. A reader that sees a
// different Magic or an unrecognized Version must reject the file with
// CorruptIndex rather than guess at compatibility.
const (
	Magic   uint32 = 0x50514752 // "PQGR"
	Version uint32 = 1
)

const headerFixedSize = 4 * 7 // magic,version,size,dimension,entryNode,maxDegree,layerCount
const layerInfoSize = 4 * 2   // size,degree
const pqInfoSize = 4 + 4 + 8  // metric,hasPQ,pqOffset

// Header is the fixed-size prefix of the file. Only one layer (the base
// graph) is ever persisted — the upper hierarchy layers accelerate build
// and in-memory search only. A loaded index is flat and read-only; its
// upper layers are not rebuilt.
type Header struct {
	Magic      uint32
	Version    uint32
	Size       uint32
	Dimension  uint32
	EntryNode  uint32
	MaxDegree  uint32
	LayerCount uint32
	LayerSize  uint32
	LayerDeg   uint32

	HasPQ     bool
	PQOffset  int64
	Metric    simdkernel.Metric
}

func (h Header) headerBytes() int {
	return headerFixedSize + layerInfoSize + pqInfoSize
}

func (h Header) nodeRecordBytes() int {
	return int(h.Dimension)*4 + 4 + int(h.MaxDegree)*4
}

func (h Header) nodeOffset(i int) int64 {
	return int64(h.headerBytes()) + int64(i)*int64(h.nodeRecordBytes())
}

func (h Header) pqSectionStart() int64 {
	return h.nodeOffset(int(h.Size))
}

func encodeHeader(h Header) []byte {
	buf := make([]byte, h.headerBytes())
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.Size)
	binary.LittleEndian.PutUint32(buf[12:], h.Dimension)
	binary.LittleEndian.PutUint32(buf[16:], h.EntryNode)
	binary.LittleEndian.PutUint32(buf[20:], h.MaxDegree)
	binary.LittleEndian.PutUint32(buf[24:], h.LayerCount)
	binary.LittleEndian.PutUint32(buf[28:], h.LayerSize)
	binary.LittleEndian.PutUint32(buf[32:], h.LayerDeg)
	binary.LittleEndian.PutUint32(buf[36:], uint32(h.Metric))
	hasPQ := uint32(0)
	if h.HasPQ {
		hasPQ = 1
	}
	binary.LittleEndian.PutUint32(buf[40:], hasPQ)
	binary.LittleEndian.PutUint64(buf[44:], uint64(h.PQOffset))
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(buf[0:]),
		Version:    binary.LittleEndian.Uint32(buf[4:]),
		Size:       binary.LittleEndian.Uint32(buf[8:]),
		Dimension:  binary.LittleEndian.Uint32(buf[12:]),
		EntryNode:  binary.LittleEndian.Uint32(buf[16:]),
		MaxDegree:  binary.LittleEndian.Uint32(buf[20:]),
		LayerCount: binary.LittleEndian.Uint32(buf[24:]),
		LayerSize:  binary.LittleEndian.Uint32(buf[28:]),
		LayerDeg:   binary.LittleEndian.Uint32(buf[32:]),
		Metric:     simdkernel.Metric(binary.LittleEndian.Uint32(buf[36:])),
		HasPQ:      binary.LittleEndian.Uint32(buf[40:]) != 0,
		PQOffset:   int64(binary.LittleEndian.Uint64(buf[44:])),
	}
}

const noNeighbor uint32 = 0xFFFFFFFF
