package hnsw

import (
	"github.com/SehyeonOh/hnswlib/internal/queue"
)

// searchLayer performs a best-first search for ef nearest neighbors of query
// on the given layer, starting from entryID. It returns a max-heap of up to
// ef results so the caller can trim to the top candidates or feed them into
// the heuristic selector.
func (g *Graph) searchLayer(query []float32, entryID uint32, ef int, layer int) *queue.PriorityQueue {
	vs := g.visitedPool.Get()
	defer g.visitedPool.Put(vs)

	entryDist := g.distFunc(query, g.vectorOf(entryID))
	g.counters.distCalculations.Add(1)

	candidates := queue.NewMin(ef)
	candidates.PushItem(queue.PriorityQueueItem{Node: entryID, Distance: entryDist})

	results := queue.NewMax(ef)
	if !g.isDeleted(entryID) {
		results.PushItem(queue.PriorityQueueItem{Node: entryID, Distance: entryDist})
	}
	vs.Visit(entryID)

	for candidates.Len() > 0 {
		cur, _ := candidates.TopItem()

		if worst, ok := results.TopItem(); ok && results.Len() >= ef && cur.Distance > worst.Distance {
			break
		}
		candidates.PopItem()
		g.counters.hops.Add(1)

		lock := g.nodeLock(cur.Node)
		lock.Lock()
		curNeighbors := g.neighbors(cur.Node, layer)
		lock.Unlock()

		for _, neighbor := range curNeighbors {
			if vs.TestAndVisit(neighbor) {
				continue
			}

			d := g.distFunc(query, g.vectorOf(neighbor))
			g.counters.distCalculations.Add(1)

			worst, full := results.TopItem()
			if results.Len() < ef || d < worst.Distance {
				candidates.PushItem(queue.PriorityQueueItem{Node: neighbor, Distance: d})
				if !g.isDeleted(neighbor) {
					results.PushItem(queue.PriorityQueueItem{Node: neighbor, Distance: d})
					if full && results.Len() > ef {
						results.PopItem()
					}
				}
			}
		}
	}

	return results
}

// greedyDescend walks from the entry point down through layers
// fromLevel..1, keeping only the single closest node found at each layer,
// then returns the closest node found at layer 1. This is the coarse
// descent phase; layer 0 always uses the wider searchLayer/ef search.
func (g *Graph) greedyDescend(query []float32, from uint32, fromLevel int) uint32 {
	cur := from
	curDist := g.distFunc(query, g.vectorOf(cur))
	g.counters.distCalculations.Add(1)

	for layer := fromLevel; layer >= 1; layer-- {
		changed := true
		for changed {
			changed = false

			lock := g.nodeLock(cur)
			lock.Lock()
			curNeighbors := g.neighbors(cur, layer)
			lock.Unlock()

			for _, neighbor := range curNeighbors {
				d := g.distFunc(query, g.vectorOf(neighbor))
				g.counters.distCalculations.Add(1)
				g.counters.hops.Add(1)
				if d < curDist {
					curDist = d
					cur = neighbor
					changed = true
				}
			}
		}
	}

	return cur
}

// searchKnn returns the k internal ids closest to query, along with their
// distances, sorted by ascending distance.
func (g *Graph) searchKnn(query []float32, k int, ef int) []queue.PriorityQueueItem {
	ep := g.entryPoint()
	if ep == nil {
		return nil
	}

	if ef < k {
		ef = k
	}

	entry := g.greedyDescend(query, ep.id, ep.level)
	results := g.searchLayer(query, entry, ef, 0)

	items := make([]queue.PriorityQueueItem, 0, results.Len())
	for results.Len() > 0 {
		item, _ := results.PopItem()
		items = append(items, item)
	}

	// results came out of a max-heap pop in descending order; reverse to
	// ascending and trim to k.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	if len(items) > k {
		items = items[:k]
	}
	return items
}
