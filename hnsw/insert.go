package hnsw

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/SehyeonOh/hnswlib/internal/queue"
)

// addPoint inserts vector under label, or reuses the existing internal id if
// label was already present (tombstoned or not), in which case it is treated
// as an update: the vector is rewritten in place, any tombstone is cleared,
// and, unless the node is the current entry point, its neighbor lists are
// rebuilt.
//
// The structure mutex is held for the entire lookup-or-allocate sequence
// (label lookup, capacity check, id allocation, vector write), not just the
// id allocation itself. This keeps a concurrent AddPoint for the same label
// from racing between "label not found" and "slot reserved": without the
// wider critical section two goroutines inserting the same new label could
// both decide to allocate a fresh id.
func (g *Graph) addPoint(vector []float32, label uint64) error {
	if len(vector) != g.dim {
		return &ShapeMismatchError{Expected: g.dim, Actual: len(vector)}
	}

	g.structureMu.Lock()

	if existing, ok := g.labels.get(label); ok {
		g.structureMu.Unlock()
		g.tombMu.Lock()
		g.tomb.Remove(existing)
		g.tombMu.Unlock()
		return g.updatePoint(existing, vector)
	}

	id := g.curElementCount.Load()
	if id >= g.maxElements {
		g.structureMu.Unlock()
		return &CapacityError{MaxElements: g.maxElements}
	}
	g.curElementCount.Add(1)
	g.labels.set(label, id)

	rec := g.layout.level0Record(g.level0, id)
	g.layout.setLevel0LinkCount(rec, 0)
	g.layout.setVector(rec, vector)
	g.layout.setLabel(rec, label)

	lvl := g.sampleLevel()
	g.level[id] = uint32(lvl)

	ep := g.entryPoint()
	g.structureMu.Unlock()

	// A nil ep means this may be the very first node. Whether it actually
	// becomes the entry point is decided under epMu: if another goroutine
	// already published one by the time this one acquires the lock, this
	// node lost the race and must still run the full insertion against
	// that now-published entry point — returning early here instead would
	// leave it with zero graph edges, present in curElementCount and the
	// label map but unreachable from any search, forever.
	if ep == nil {
		g.epMu.Lock()
		if g.entryPoint() == nil {
			g.ep.Store(&entryPoint{id: id, level: lvl})
			g.epMu.Unlock()
			return nil
		}
		g.epMu.Unlock()
		ep = g.entryPoint()
	}

	return g.insertNode(id, vector, lvl, ep)
}

// insertNode runs the per-layer construction loop for a freshly allocated
// node: greedy descent from the entry point down to lvl+1, then at each
// layer from min(lvl, ep.level) down to 0, search for efConstruction
// candidates, pick neighbors heuristically, and install bidirectional edges.
func (g *Graph) insertNode(id uint32, vector []float32, lvl int, ep *entryPoint) error {
	cur := ep.id
	if lvl < ep.level {
		curDist := g.distFunc(vector, g.vectorOf(cur))
		for layer := ep.level; layer > lvl; layer-- {
			for changed := true; changed; {
				changed = false
				g.nodeLock(cur).Lock()
				curNeighbors := g.neighbors(cur, layer)
				g.nodeLock(cur).Unlock()
				for _, n := range curNeighbors {
					if d := g.distFunc(vector, g.vectorOf(n)); d < curDist {
						cur, curDist, changed = n, d, true
					}
				}
			}
		}
	}

	top := lvl
	if ep.level < top {
		top = ep.level
	}

	for layer := top; layer >= 0; layer-- {
		candidates := g.searchLayer(vector, cur, g.efConstruction, layer)
		neighbors := g.selectNeighborsHeuristic(vector, candidates, g.m)

		g.nodeLock(id).Lock()
		err := g.setNeighbors(id, layer, neighbors)
		g.nodeLock(id).Unlock()
		if err != nil {
			return err
		}

		for _, n := range neighbors {
			if err := g.connect(n, id, layer); err != nil {
				return err
			}
		}

		if len(neighbors) > 0 {
			cur = neighbors[0]
		}
	}

	if lvl > ep.level {
		g.epMu.Lock()
		if cp := g.entryPoint(); cp == nil || lvl > cp.level {
			g.ep.Store(&entryPoint{id: id, level: lvl})
		}
		g.epMu.Unlock()
	}

	return nil
}

// connect adds id as a neighbor of n at layer, pruning n's neighbor list
// back down to its layer capacity with the heuristic selector if needed.
func (g *Graph) connect(n, id uint32, layer int) error {
	lock := g.nodeLock(n)
	lock.Lock()
	defer lock.Unlock()

	existing := g.neighbors(n, layer)
	for _, e := range existing {
		if e == id {
			return nil
		}
	}

	maxN := g.maxNeighbors(layer)
	if len(existing) < maxN {
		return g.setNeighbors(n, layer, append(existing, id))
	}

	nVec := g.vectorOf(n)
	cands := queue.NewMin(len(existing) + 1)
	for _, e := range existing {
		cands.PushItem(queue.PriorityQueueItem{Node: e, Distance: g.distFunc(nVec, g.vectorOf(e))})
	}
	cands.PushItem(queue.PriorityQueueItem{Node: id, Distance: g.distFunc(nVec, g.vectorOf(id))})

	pruned := g.selectNeighborsHeuristic(nVec, cands, maxN)
	return g.setNeighbors(n, layer, pruned)
}

// updatePoint rewrites the vector stored for an already-present internal id
// and rebuilds its neighbor lists from scratch, as if it were freshly
// inserted at its existing level. If id is the current entry point (or no
// entry point exists), only the vector is rewritten and its neighbor lists
// are left as they are.
func (g *Graph) updatePoint(id uint32, vector []float32) error {
	lock := g.nodeLock(id)
	lock.Lock()
	rec := g.layout.level0Record(g.level0, id)
	g.layout.setVector(rec, vector)
	lock.Unlock()

	ep := g.entryPoint()
	if ep == nil || ep.id == id {
		return nil
	}

	lvl := int(g.level[id])
	return g.insertNode(id, vector, lvl, ep)
}

// addBatch inserts multiple (vector, label) pairs concurrently, bounded by
// a worker pool sized g.numWorkers (0 meaning GOMAXPROCS at call time) via
// errgroup.SetLimit. ctx cancellation only prevents not-yet-started
// insertions from beginning; insertions already in flight run to
// completion. The returned error is the first one observed; that error also
// cancels the group's context, so pairs whose insertion has not started yet
// are skipped rather than attempted.
func (g *Graph) addBatch(ctx context.Context, vectors [][]float32, labels []uint64) error {
	if len(vectors) != len(labels) {
		return fmt.Errorf("hnsw: AddBatch: %d vectors but %d labels", len(vectors), len(labels))
	}

	workers := g.numWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range vectors {
		i := i
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return g.addPoint(vectors[i], labels[i])
		})
	}
	return eg.Wait()
}
