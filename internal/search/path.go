package search

import (
	"container/heap"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/agdb-go/agdb/internal/graph"
)

// CostHandler yields the traversal cost of an edge or node; a cost of 0
// means the edge/node is inadmissible (spec.md §4.6 "Path search").
type CostHandler interface {
	Cost(index int64) (uint64, error)
}

type candidate struct {
	path    []int64
	cost    uint64
	visited *roaring.Bitmap
}

// candidateQueue orders by ascending cost; equal-cost ties prefer the
// longer candidate path (spec.md §4.6: "prefer concrete over speculative").
type candidateQueue []*candidate

func (q candidateQueue) Len() int { return len(q) }
func (q candidateQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return len(q[i].path) > len(q[j].path)
}
func (q candidateQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *candidateQueue) Push(x interface{}) { *q = append(*q, x.(*candidate)) }
func (q *candidateQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// PathSearch finds the lowest-cost path from origin to destination, costed
// per edge by h. Each candidate path in the priority queue carries its own
// visited set, so distinct candidates may revisit nodes other candidates
// used (spec.md §9 "Path search maintains per-path visited through the
// priority-queue frames, not globally"). Returns the node/edge id sequence
// of the winning path, or an error if no path exists.
func PathSearch(g *graph.Graph, origin, destination int64, h CostHandler) ([]int64, error) {
	pq := &candidateQueue{}
	initVisited := roaring.New()
	initVisited.Add(absSlot(origin))
	heap.Push(pq, &candidate{path: []int64{origin}, cost: 0, visited: initVisited})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*candidate)
		last := cur.path[len(cur.path)-1]
		if last == destination {
			return cur.path, nil
		}

		edges, err := g.EdgesFrom(last)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			cost, err := h.Cost(e)
			if err != nil {
				return nil, err
			}
			if cost == 0 {
				continue
			}
			_, m, err := g.EdgeEndpoints(e)
			if err != nil {
				return nil, err
			}
			if cur.visited.Contains(absSlot(m)) {
				continue
			}
			nodeCost, err := h.Cost(m)
			if err != nil {
				return nil, err
			}
			if nodeCost == 0 {
				continue
			}

			newPath := make([]int64, len(cur.path)+2)
			copy(newPath, cur.path)
			newPath[len(cur.path)] = e
			newPath[len(cur.path)+1] = m
			newVisited := cur.visited.Clone()
			newVisited.Add(absSlot(m))
			heap.Push(pq, &candidate{path: newPath, cost: cur.cost + cost, visited: newVisited})
		}
	}
	return nil, fmt.Errorf("search: no path from %d to %d", origin, destination)
}
