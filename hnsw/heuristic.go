package hnsw

import "github.com/SehyeonOh/hnswlib/internal/queue"

// selectNeighborsHeuristic implements the Malkov & Yashunin "heuristic
// extend" neighbor selector: starting from the closest candidate, a
// candidate is accepted only if it is closer to the query than it is to
// every neighbor already accepted. This keeps the graph's long-range edges
// instead of degenerating into a list of mutually-close points, which is
// what picking the M closest candidates by distance alone would produce.
func (g *Graph) selectNeighborsHeuristic(query []float32, candidates *queue.PriorityQueue, m int) []uint32 {
	if candidates.Len() <= m {
		out := make([]uint32, 0, candidates.Len())
		for candidates.Len() > 0 {
			item, _ := candidates.PopItem()
			out = append(out, item.Node)
		}
		return out
	}

	closest := queue.NewMin(candidates.Len())
	for candidates.Len() > 0 {
		item, _ := candidates.PopItem()
		closest.PushItem(item)
	}

	selected := make([]uint32, 0, m)
	selectedVecs := make([][]float32, 0, m)

	for closest.Len() > 0 && len(selected) < m {
		item, _ := closest.PopItem()
		candVec := g.vectorOf(item.Node)

		good := true
		for _, sv := range selectedVecs {
			if g.distFunc(candVec, sv) < item.Distance {
				good = false
				break
			}
		}

		if good {
			selected = append(selected, item.Node)
			selectedVecs = append(selectedVecs, candVec)
		}
	}

	return selected
}
