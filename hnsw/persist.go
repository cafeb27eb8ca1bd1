package hnsw

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/SehyeonOh/hnswlib/internal/conv"
)

// writeSizeT writes v as an 8-byte little-endian field. The classic hnswlib
// format uses native size_t (8 bytes on any host this package targets); we
// fix the width explicitly so saved files are portable across processes on
// the same architecture family instead of depending on the C size_t of
// whatever toolchain produced them.
func writeSizeT(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readSizeT(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func writeInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func writeFloat64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

func readFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

// saveIndex writes the entire graph to w in a fixed field order: header
// fields (in the order written below), the verbatim level-0 block,
// then per-node upper-layer blocks, followed by a trailing tombstone
// bitmap section (not part of the classic positional header, appended
// after it since tombstoning is additive to the original format).
func (g *Graph) saveIndex(w io.Writer) error {
	g.structureMu.Lock()
	curCount := g.curElementCount.Load()
	ep := g.entryPoint()
	g.structureMu.Unlock()

	maxLevel := int32(-1)
	entryNode := int32(-1)
	if ep != nil {
		maxLevel = int32(ep.level)
		entryNode = int32(ep.id)
	}

	fields := []struct {
		v uint64
	}{
		{0}, // offsetLevel0: reserved, always 0
		{uint64(g.maxElements)},
		{uint64(curCount)},
		{uint64(g.layout.sizeDataPerElement)},
		{uint64(g.layout.labelOffset)},
		{uint64(g.layout.vectorOffset)}, // offset_data
	}
	for _, f := range fields {
		if err := writeSizeT(w, f.v); err != nil {
			return &IOError{Op: "write", cause: err}
		}
	}
	if err := writeInt32(w, maxLevel); err != nil {
		return &IOError{Op: "write", cause: err}
	}
	if err := writeInt32(w, entryNode); err != nil {
		return &IOError{Op: "write", cause: err}
	}
	if err := writeSizeT(w, uint64(g.mmax)); err != nil {
		return &IOError{Op: "write", cause: err}
	}
	if err := writeSizeT(w, uint64(g.mmax0)); err != nil {
		return &IOError{Op: "write", cause: err}
	}
	if err := writeSizeT(w, uint64(g.m)); err != nil {
		return &IOError{Op: "write", cause: err}
	}
	if err := writeFloat64(w, g.mL); err != nil {
		return &IOError{Op: "write", cause: err}
	}
	if err := writeSizeT(w, uint64(g.efConstruction)); err != nil {
		return &IOError{Op: "write", cause: err}
	}

	level0Size := int(curCount) * g.layout.sizeDataPerElement
	if _, err := w.Write(g.level0[:level0Size]); err != nil {
		return &IOError{Op: "write", cause: err}
	}

	for id := uint32(0); id < curCount; id++ {
		lvl := int(g.level[id])
		linkListSize := uint64(lvl) * uint64(g.layout.sizeLinksPerElement)
		if err := writeSizeT(w, linkListSize); err != nil {
			return &IOError{Op: "write", cause: err}
		}
		if lvl > 0 {
			block, err := g.upperBlock(id, lvl)
			if err != nil {
				return &InvariantViolationError{Detail: "missing upper block for node with level > 0", cause: err}
			}
			if _, err := w.Write(block); err != nil {
				return &IOError{Op: "write", cause: err}
			}
		}
	}

	g.tombMu.Lock()
	_, err := g.tomb.WriteTo(w)
	g.tombMu.Unlock()
	if err != nil {
		return &IOError{Op: "write", cause: err}
	}

	return nil
}

// SaveIndex writes the index to path, overwriting any existing file.
// Callers must ensure no concurrent AddPoint/AddBatch calls are in flight;
// a save taken during concurrent inserts produces an undefined suffix.
func (idx *Index) SaveIndex(path string) error {
	err := idx.saveIndexTo(path)
	idx.opts.Logger.LogSnapshot(context.Background(), path, err)
	return err
}

func (idx *Index) saveIndexTo(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, cause: err}
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := idx.g.saveIndex(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return &IOError{Op: "write", Path: path, cause: err}
	}
	return f.Close()
}

func (g *Graph) loadIndex(r io.Reader) error {
	_, err := readSizeT(r) // offsetLevel0, unused
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}

	maxElements, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	curCount, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	sizeDataPerElement, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	labelOffset, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	offsetData, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	maxLevel, err := readInt32(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	entryNode, err := readInt32(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	maxM, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	maxM0, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	m, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}
	if _, err := readFloat64(r); err != nil { // mult, unused: newGraph already derived mL from M
		return &IOError{Op: "read", cause: err}
	}
	efConstruction, err := readSizeT(r)
	if err != nil {
		return &IOError{Op: "read", cause: err}
	}

	if uint64(g.layout.sizeDataPerElement) != sizeDataPerElement ||
		uint64(g.layout.labelOffset) != labelOffset ||
		uint64(g.layout.vectorOffset) != offsetData ||
		uint64(g.mmax) != maxM ||
		uint64(g.mmax0) != maxM0 ||
		uint64(g.m) != m {
		return &ShapeMismatchError{Expected: g.layout.sizeDataPerElement, Actual: int(sizeDataPerElement)}
	}
	if maxElements > uint64(g.maxElements) {
		return &CapacityError{MaxElements: g.maxElements}
	}

	g.efConstruction = int(efConstruction)

	// curCount is an untrusted size_t straight off the wire: bounds-check it
	// against int/uint32 range before using it as a slice length or loop
	// bound, rather than trusting a raw cast of attacker- or corruption-
	// controlled file content.
	curCountInt, err := conv.Uint64ToInt(curCount)
	if err != nil {
		return &InvariantViolationError{Detail: "cur_element_count out of range", cause: err}
	}
	curCount32, err := conv.Uint64ToUint32(curCount)
	if err != nil {
		return &InvariantViolationError{Detail: "cur_element_count exceeds internal id range", cause: err}
	}

	level0Size := curCountInt * g.layout.sizeDataPerElement
	if level0Size > len(g.level0) {
		return &InvariantViolationError{Detail: "level-0 block larger than preallocated storage"}
	}
	if _, err := io.ReadFull(r, g.level0[:level0Size]); err != nil {
		return &IOError{Op: "read", cause: err}
	}

	for id := uint32(0); id < curCount32; id++ {
		rec := g.layout.level0Record(g.level0, id)
		label := g.layout.getLabel(rec)
		g.labels.set(label, id)

		// linkListSize is the node's total upper-layer byte count: 0 for a
		// level-0-only node, else level[i]*sizeLinksPerElement. This lets
		// the reader recover level[i] without a separate stored field.
		linkListSize, err := readSizeT(r)
		if err != nil {
			return &IOError{Op: "read", cause: err}
		}
		if linkListSize == 0 {
			g.level[id] = 0
			continue
		}
		if linkListSize%uint64(g.layout.sizeLinksPerElement) != 0 {
			return &InvariantViolationError{Detail: "link list size not a multiple of size_links_per_element"}
		}
		lvl := int(linkListSize / uint64(g.layout.sizeLinksPerElement))
		g.level[id] = uint32(lvl)

		block, err := g.upperBlock(id, lvl)
		if err != nil {
			return &InvariantViolationError{Detail: "upper arena exhausted on load", cause: err}
		}
		if _, err := io.ReadFull(r, block); err != nil {
			return &IOError{Op: "read", cause: err}
		}
	}

	g.curElementCount.Store(curCount32)
	if entryNode >= 0 {
		g.ep.Store(&entryPoint{id: uint32(entryNode), level: int(maxLevel)})
	}

	g.tombMu.Lock()
	_, err = g.tomb.ReadFrom(r)
	g.tombMu.Unlock()
	if err != nil && err != io.EOF {
		return &IOError{Op: "read", cause: err}
	}

	return nil
}

// LoadIndex reconstructs an index from path. The caller must supply the
// same dimension, M, and metric used when the file was created, and a
// max_elements at least as large as the stored one. Dimension and M are
// validated against the stored shape fields (ShapeMismatchError), and a
// stored max_elements above the configured one is a CapacityError. The
// metric is not stored in the file and is not checked.
func LoadIndex(path string, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	idx, err := loadIndexFrom(path, o)
	o.Logger.LogRecovery(context.Background(), path, err)
	return idx, err
}

func loadIndexFrom(path string, o *Options) (*Index, error) {
	g, err := newGraph(o)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op: "open", Path: path, cause: err}
	}
	defer f.Close()

	if err := g.loadIndex(bufio.NewReader(f)); err != nil {
		return nil, err
	}

	return &Index{g: g, opts: o}, nil
}
