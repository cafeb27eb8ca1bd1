package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/SehyeonOh/hnswlib/distance"
	"github.com/SehyeonOh/hnswlib/internal/arena"
	"github.com/SehyeonOh/hnswlib/internal/visited"
)

// entryPoint snapshots the current graph entry point: the internal id to
// begin greedy descent from, and the highest layer it participates in.
type entryPoint struct {
	id    uint32
	level int
}

// labelIndex is a sharded label->internal-id map, so concurrent AddPoint
// calls for unrelated labels don't serialize on a single mutex.
type labelIndex struct {
	shards []labelShard
	mask   uint64
}

type labelShard struct {
	mu sync.Mutex
	m  map[uint64]uint32
}

func newLabelIndex(numShards int) *labelIndex {
	n := 1
	for n < numShards {
		n <<= 1
	}
	shards := make([]labelShard, n)
	for i := range shards {
		shards[i].m = make(map[uint64]uint32)
	}
	return &labelIndex{shards: shards, mask: uint64(n - 1)}
}

func (l *labelIndex) shardFor(label uint64) *labelShard {
	h := label * 0x9E3779B97F4A7C15
	return &l.shards[h&l.mask]
}

func (l *labelIndex) get(label uint64) (uint32, bool) {
	s := l.shardFor(label)
	s.mu.Lock()
	id, ok := s.m[label]
	s.mu.Unlock()
	return id, ok
}

func (l *labelIndex) set(label uint64, id uint32) {
	s := l.shardFor(label)
	s.mu.Lock()
	s.m[label] = id
	s.mu.Unlock()
}

func (l *labelIndex) delete(label uint64) {
	s := l.shardFor(label)
	s.mu.Lock()
	delete(s.m, label)
	s.mu.Unlock()
}

// Graph is the mutable HNSW index state: node storage, the proximity graph
// itself, and the bookkeeping needed to search and grow it concurrently.
//
// Level-0 storage (level0) is one preallocated []byte sized for
// maxElements*sizeDataPerElement, indexed directly by internal id. It is not
// arena-allocated because internal ids are assigned sequentially under
// structureMu, so there is no concurrent-bump-allocation race to guard
// against for level-0 slots, and a flat array lets SaveIndex copy the
// entire block verbatim with a single offset.
//
// Upper-layer neighbor lists (layer >= 1) vary in count per node depending
// on the node's sampled level, so they live in upperArena, a FlatArena that
// bump-allocates one block per node the first time it reaches layer 1.
// upperOffset[id] is that node's arena offset, or 0 (the arena's reserved
// null offset) for a node that never left layer 0.
type Graph struct {
	dim            int
	m              int
	mmax           int
	mmax0          int
	efConstruction int
	maxElements    uint32

	layout   *layout
	distFunc distance.Func
	metric   distance.Metric

	level0     []byte
	upperArena *arena.FlatArena
	upperOffset []uint64
	level       []uint32

	curElementCount atomic.Uint32

	ep atomic.Pointer[entryPoint]

	structureMu sync.Mutex
	epMu        sync.Mutex

	nodeLocks  []sync.Mutex
	numShards  int
	numWorkers int

	labels   *labelIndex
	tombMu   sync.Mutex
	tomb     *roaring.Bitmap

	visitedPool *visited.Pool

	mL     float64
	rngMu  sync.Mutex
	rng    *rand.Rand

	ef atomic.Uint32

	closed atomic.Bool

	counters counters
}

func newGraph(o *Options) (*Graph, error) {
	distFunc, err := distance.Provider(o.Metric)
	if err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}

	lay := newLayout(o.Dimension, o.M)

	g := &Graph{
		dim:            o.Dimension,
		m:              o.M,
		mmax:           lay.mmax,
		mmax0:          lay.mmax0,
		efConstruction: o.EfConstruction,
		maxElements:    o.MaxElements,

		layout:   lay,
		distFunc: distFunc,
		metric:   o.Metric,

		level0:      make([]byte, int(o.MaxElements)*lay.sizeDataPerElement),
		upperArena:  arena.NewFlat(int(o.MaxElements) * lay.sizeLinksPerElement * o.M),
		upperOffset: make([]uint64, o.MaxElements),
		level:       make([]uint32, o.MaxElements),

		nodeLocks:  make([]sync.Mutex, o.NumShards),
		numShards:  o.NumShards,
		numWorkers: o.NumWorkers,

		labels: newLabelIndex(o.NumShards),
		tomb:   roaring.New(),

		visitedPool: visited.NewPool(int(o.MaxElements)),

		mL:  1 / math.Log(float64(o.M)),
		rng: rand.New(rand.NewSource(o.Seed)),
	}
	g.ef.Store(uint32(o.Ef))

	return g, nil
}

// setEf changes the search-time beam width used by future SearchKnn calls.
func (g *Graph) setEf(ef int) {
	g.ef.Store(uint32(ef))
}

// getEf returns the current search-time beam width.
func (g *Graph) getEf() int {
	return int(g.ef.Load())
}

// markDeleted tombstones the node holding label. Returns ErrLabelNotFound if
// label is not present. The node remains structurally reachable in the
// graph, but searchLayer leaves it out of its result set, so it is excluded
// both from SearchKnn results and from the neighbor candidates of later
// insertions (see searchLayer/searchKnn).
func (g *Graph) markDeleted(label uint64) error {
	id, ok := g.labels.get(label)
	if !ok {
		return ErrLabelNotFound
	}
	g.tombMu.Lock()
	g.tomb.Add(id)
	g.tombMu.Unlock()
	return nil
}

// unmarkDeleted reverses a prior markDeleted for label.
func (g *Graph) unmarkDeleted(label uint64) error {
	id, ok := g.labels.get(label)
	if !ok {
		return ErrLabelNotFound
	}
	g.tombMu.Lock()
	g.tomb.Remove(id)
	g.tombMu.Unlock()
	return nil
}

// close releases the level-0 block, the upper-layer arena, and the
// visited-set pool so the garbage collector can reclaim them, idempotently.
// It does not acquire structureMu: callers must ensure no AddPoint/SearchKnn
// is in flight, the same quiescence contract SaveIndex already carries.
func (g *Graph) close() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	g.level0 = nil
	g.upperArena = nil
	g.upperOffset = nil
	g.visitedPool = nil
}

func (g *Graph) nodeLock(id uint32) *sync.Mutex {
	return &g.nodeLocks[id%uint32(g.numShards)]
}

// sampleLevel draws a random layer for a new node per the standard HNSW
// exponential-decay distribution: floor(-ln(U) * mL).
func (g *Graph) sampleLevel() int {
	g.rngMu.Lock()
	u := g.rng.Float64()
	g.rngMu.Unlock()
	for u == 0 {
		g.rngMu.Lock()
		u = g.rng.Float64()
		g.rngMu.Unlock()
	}
	return int(math.Floor(-math.Log(u) * g.mL))
}

func (g *Graph) entryPoint() *entryPoint {
	return g.ep.Load()
}

// upperBlock returns the arena-backed block holding all of id's upper-layer
// segments (layers 1..level[id]), allocating it on first use.
func (g *Graph) upperBlock(id uint32, lvl int) ([]byte, error) {
	off := atomic.LoadUint64(&g.upperOffset[id])
	if off != 0 {
		return g.upperArena.Get(off, uint64(g.layout.upperBlockSize(lvl))), nil
	}
	size := uint64(g.layout.upperBlockSize(lvl))
	newOff, err := g.upperArena.Alloc(size)
	if err != nil {
		return nil, err
	}
	atomic.StoreUint64(&g.upperOffset[id], newOff)
	return g.upperArena.Get(newOff, size), nil
}

func (g *Graph) vectorOf(id uint32) []float32 {
	rec := g.layout.level0Record(g.level0, id)
	return g.layout.getVector(rec)
}

func (g *Graph) labelOf(id uint32) uint64 {
	rec := g.layout.level0Record(g.level0, id)
	return g.layout.getLabel(rec)
}

func (g *Graph) isDeleted(id uint32) bool {
	g.tombMu.Lock()
	defer g.tombMu.Unlock()
	return g.tomb.Contains(id)
}

// neighbors returns the live neighbor ids of id at layer (0 for the base
// layer, >=1 for upper layers).
func (g *Graph) neighbors(id uint32, layer int) []uint32 {
	if layer == 0 {
		rec := g.layout.level0Record(g.level0, id)
		n := g.layout.level0LinkCount(rec)
		out := make([]uint32, n)
		for i := range out {
			out[i] = g.layout.getLevel0Neighbor(rec, i)
		}
		return out
	}

	off := atomic.LoadUint64(&g.upperOffset[id])
	if off == 0 {
		return nil
	}
	lvl := int(atomic.LoadUint32(&g.level[id]))
	block := g.upperArena.Get(off, uint64(g.layout.upperBlockSize(lvl)))
	seg := g.layout.upperSegment(block, layer)
	n := g.layout.upperLinkCount(seg)
	out := make([]uint32, n)
	for i := range out {
		out[i] = g.layout.getUpperNeighbor(seg, i)
	}
	return out
}

// setNeighbors overwrites id's neighbor list at layer with ids. Callers must
// hold id's node lock. Returns an InvariantViolationError if the upper-layer
// arena cannot satisfy the allocation backing layer's segment; the core
// never panics from this path, per the error-taxonomy propagation policy
// (all four error kinds surface to the caller of the triggering public
// operation instead of aborting the process).
func (g *Graph) setNeighbors(id uint32, layer int, ids []uint32) error {
	if layer == 0 {
		rec := g.layout.level0Record(g.level0, id)
		g.layout.setLevel0LinkCount(rec, len(ids))
		for i, nid := range ids {
			g.layout.setLevel0Neighbor(rec, i, nid)
		}
		return nil
	}

	lvl := int(atomic.LoadUint32(&g.level[id]))
	block, err := g.upperBlock(id, lvl)
	if err != nil {
		return &InvariantViolationError{Detail: "upper arena exhausted", cause: err}
	}
	seg := g.layout.upperSegment(block, layer)
	g.layout.setUpperLinkCount(seg, len(ids))
	for i, nid := range ids {
		g.layout.setUpperNeighbor(seg, i, nid)
	}
	return nil
}

func (g *Graph) maxNeighbors(layer int) int {
	if layer == 0 {
		return g.mmax0
	}
	return g.mmax
}
