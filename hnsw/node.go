package hnsw

import (
	"encoding/binary"
	"math"
)

// layout derives the fixed byte offsets and sizes for one index's node
// records, matching the classic hnswlib on-disk layout:
//
//	level-0 record: [neighbor count(4)][Mmax0 neighbor ids(4 each)][vector(dim*4)][label(8)]
//	upper-layer segment (one per layer a node reaches): [neighbor count(4)][Mmax neighbor ids(4 each)]
//
// Upper-layer segments for a single node are packed contiguously, one per
// layer from 1 up to that node's sampled level, inside a single arena
// allocation of size level*sizeLinksPerElement.
type layout struct {
	dim int
	m   int

	mmax  int
	mmax0 int

	sizeLinksLevel0    int
	sizeLinksPerElement int
	sizeDataPerElement int

	vectorOffset int
	labelOffset  int
}

func newLayout(dim, m int) *layout {
	mmax := m
	mmax0 := m * 2

	sizeLinksLevel0 := 4 + mmax0*4
	sizeLinksPerElement := 4 + mmax*4
	vectorOffset := sizeLinksLevel0
	labelOffset := vectorOffset + dim*4
	sizeDataPerElement := labelOffset + 8

	return &layout{
		dim:   dim,
		m:     m,
		mmax:  mmax,
		mmax0: mmax0,

		sizeLinksLevel0:      sizeLinksLevel0,
		sizeLinksPerElement:  sizeLinksPerElement,
		sizeDataPerElement:   sizeDataPerElement,

		vectorOffset: vectorOffset,
		labelOffset:  labelOffset,
	}
}

// level0Record returns the byte slice backing internal id's level-0 record.
func (l *layout) level0Record(level0 []byte, id uint32) []byte {
	off := int(id) * l.sizeDataPerElement
	return level0[off : off+l.sizeDataPerElement]
}

// level0LinkCount reads the neighbor count stored at the head of rec.
func (l *layout) level0LinkCount(rec []byte) int {
	return int(binary.LittleEndian.Uint32(rec[0:4]))
}

func (l *layout) setLevel0LinkCount(rec []byte, n int) {
	binary.LittleEndian.PutUint32(rec[0:4], uint32(n))
}

func (l *layout) getLevel0Neighbor(rec []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(rec[4+i*4 : 8+i*4])
}

func (l *layout) setLevel0Neighbor(rec []byte, i int, id uint32) {
	binary.LittleEndian.PutUint32(rec[4+i*4:8+i*4], id)
}

func (l *layout) vector(rec []byte) []byte {
	return rec[l.vectorOffset : l.vectorOffset+l.dim*4]
}

func (l *layout) getVector(rec []byte) []float32 {
	raw := l.vector(rec)
	out := make([]float32, l.dim)
	for i := range out {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func (l *layout) setVector(rec []byte, v []float32) {
	raw := l.vector(rec)
	for i, f := range v {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(f))
	}
}

func (l *layout) getLabel(rec []byte) uint64 {
	return binary.LittleEndian.Uint64(rec[l.labelOffset : l.labelOffset+8])
}

func (l *layout) setLabel(rec []byte, label uint64) {
	binary.LittleEndian.PutUint64(rec[l.labelOffset:l.labelOffset+8], label)
}

// upperSegment returns the byte slice for one layer's neighbor list within a
// node's upper-layer block. layer is 1-indexed (layer 1 is the first upper
// segment); block must be at least layer*sizeLinksPerElement bytes.
func (l *layout) upperSegment(block []byte, layer int) []byte {
	off := (layer - 1) * l.sizeLinksPerElement
	return block[off : off+l.sizeLinksPerElement]
}

func (l *layout) upperLinkCount(seg []byte) int {
	return int(binary.LittleEndian.Uint32(seg[0:4]))
}

func (l *layout) setUpperLinkCount(seg []byte, n int) {
	binary.LittleEndian.PutUint32(seg[0:4], uint32(n))
}

func (l *layout) getUpperNeighbor(seg []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(seg[4+i*4 : 8+i*4])
}

func (l *layout) setUpperNeighbor(seg []byte, i int, id uint32) {
	binary.LittleEndian.PutUint32(seg[4+i*4:8+i*4], id)
}

// upperBlockSize returns the arena allocation size for a node sampled at the
// given level (level >= 1).
func (l *layout) upperBlockSize(level int) int {
	return level * l.sizeLinksPerElement
}
