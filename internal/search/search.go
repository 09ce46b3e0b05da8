// Package search implements the graph search engine of spec.md §4.6:
// breadth-first, depth-first (forward and reverse) traversal driven by a
// pluggable handler that returns a Continue/Stop/Finish verdict at every
// newly discovered index, plus Limit/Offset/LimitOffset handler
// compositions used by the query executor.
package search

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/agdb-go/agdb/internal/graph"
)

// VerdictKind is one of the three outcomes a Handler may return for a
// visited index (spec.md §4.6).
type VerdictKind int

const (
	// Continue records the index (iff Add) and expands its neighbours.
	Continue VerdictKind = iota
	// Stop records the index (iff Add) but does not expand it.
	Stop
	// Finish records the index (iff Add) and ends the whole search.
	Finish
)

// Verdict is the result of polling a Handler at one visited index.
type Verdict struct {
	Kind VerdictKind
	Add  bool
}

// Handler is polled once per newly visited index, in traversal order.
type Handler interface {
	Process(index int64, distance int64) (Verdict, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(index, distance int64) (Verdict, error)

func (f HandlerFunc) Process(index, distance int64) (Verdict, error) { return f(index, distance) }

type frame struct {
	index    int64
	distance int64
}

func absSlot(item int64) uint32 {
	if item < 0 {
		return uint32(-item)
	}
	return uint32(item)
}

// expandForward returns item's forward neighbours: a node expands to its
// outgoing edges, an edge expands to its destination node (spec.md §4.6
// "BFS").
func expandForward(g *graph.Graph, item int64) ([]int64, error) {
	if item > 0 {
		return g.EdgesFrom(item)
	}
	_, m, err := g.EdgeEndpoints(item)
	if err != nil {
		return nil, err
	}
	return []int64{m}, nil
}

// expandReverse follows incoming edges back toward origins (spec.md §4.6
// "Reverse DFS").
func expandReverse(g *graph.Graph, item int64) ([]int64, error) {
	if item > 0 {
		return g.EdgesTo(item)
	}
	n, _, err := g.EdgeEndpoints(item)
	if err != nil {
		return nil, err
	}
	return []int64{n}, nil
}

// BFS visits origin and its forward-reachable nodes/edges breadth-first,
// returning every index the handler asked to record, in visit order.
func BFS(g *graph.Graph, origin int64, h Handler) ([]int64, error) {
	return traverse(g, origin, h, expandForward, false)
}

// DFS visits origin and its forward-reachable nodes/edges depth-first.
func DFS(g *graph.Graph, origin int64, h Handler) ([]int64, error) {
	return traverse(g, origin, h, expandForward, true)
}

// DFSReverse visits origin and its backward-reachable nodes/edges
// depth-first, following incoming edges.
func DFSReverse(g *graph.Graph, origin int64, h Handler) ([]int64, error) {
	return traverse(g, origin, h, expandReverse, true)
}

func traverse(g *graph.Graph, origin int64, h Handler, expand func(*graph.Graph, int64) ([]int64, error), dfs bool) ([]int64, error) {
	visited := roaring.New()
	visited.Add(absSlot(origin))

	frontier := []frame{{origin, 0}}
	var result []int64

	for len(frontier) > 0 {
		var cur frame
		if dfs {
			cur = frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]
		} else {
			cur = frontier[0]
			frontier = frontier[1:]
		}

		verdict, err := h.Process(cur.index, cur.distance)
		if err != nil {
			return nil, err
		}
		if verdict.Add {
			result = append(result, cur.index)
		}
		if verdict.Kind == Finish {
			return result, nil
		}
		if verdict.Kind == Stop {
			continue
		}

		neighbours, err := expand(g, cur.index)
		if err != nil {
			return nil, err
		}
		if dfs {
			// expand lists a node's edges newest first (edges are prepended
			// to the intrusive list), so pushing them in that order makes
			// popping yield edge insertion order at this frontier.
			for _, nb := range neighbours {
				if !visited.Contains(absSlot(nb)) {
					visited.Add(absSlot(nb))
					frontier = append(frontier, frame{nb, cur.distance + 1})
				}
			}
		} else {
			for _, nb := range neighbours {
				if !visited.Contains(absSlot(nb)) {
					visited.Add(absSlot(nb))
					frontier = append(frontier, frame{nb, cur.distance + 1})
				}
			}
		}
	}
	return result, nil
}
