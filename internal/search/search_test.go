package search

import (
	"testing"

	"github.com/agdb-go/agdb/internal/graph"
	"github.com/agdb-go/agdb/internal/storage/backend"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	store, err := record.Open(backend.KindMemory, t.Name())
	require.NoError(t, err)
	g, err := graph.New(store)
	require.NoError(t, err)
	return g
}

type recordAll struct{}

func (recordAll) Process(index, distance int64) (Verdict, error) {
	return Verdict{Kind: Continue, Add: true}, nil
}

// Search totality (spec.md §8 property 7): BFS and DFS from a node visit
// every node/edge reachable by forward expansion exactly once.
func TestBFSAndDFSVisitEveryReachableIndexOnce(t *testing.T) {
	g := newTestGraph(t)
	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	n3, err := g.InsertNode()
	require.NoError(t, err)
	n4, err := g.InsertNode()
	require.NoError(t, err)

	e1, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	e2, err := g.InsertEdge(n1, n3)
	require.NoError(t, err)
	e3, err := g.InsertEdge(n2, n4)
	require.NoError(t, err)

	want := []int64{n1, e1, n2, e2, n3, e3, n4}

	bfs, err := BFS(g, n1, recordAll{})
	require.NoError(t, err)
	require.ElementsMatch(t, want, bfs)
	require.Len(t, bfs, len(want), "no duplicates")

	dfs, err := DFS(g, n1, recordAll{})
	require.NoError(t, err)
	require.ElementsMatch(t, want, dfs)
	require.Len(t, dfs, len(want), "no duplicates")
}

func TestDFSReverseFollowsIncomingEdges(t *testing.T) {
	g := newTestGraph(t)
	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	e, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)

	got, err := DFSReverse(g, n2, recordAll{})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{n2, e, n1}, got)
}

func TestBFSUnreachableNodeYieldsOnlyOrigin(t *testing.T) {
	g := newTestGraph(t)
	n1, err := g.InsertNode()
	require.NoError(t, err)
	_, err = g.InsertNode()
	require.NoError(t, err)

	got, err := BFS(g, n1, recordAll{})
	require.NoError(t, err)
	require.Equal(t, []int64{n1}, got)
}

// Limit/Offset compositionality (spec.md §8 property 8): Limit(n) stops
// after n recorded results, Offset(k) suppresses the first k, and the two
// compose so LimitOffset(n, k) returns exactly a [k, k+n) slice of the
// unlimited traversal's order.
func TestLimitOffsetCompositionality(t *testing.T) {
	g := newTestGraph(t)
	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	n3, err := g.InsertNode()
	require.NoError(t, err)
	_, err = g.InsertEdge(n1, n2)
	require.NoError(t, err)
	_, err = g.InsertEdge(n2, n3)
	require.NoError(t, err)

	full, err := BFS(g, n1, recordAll{})
	require.NoError(t, err)

	limited, err := BFS(g, n1, NewLimitHandler(recordAll{}, 2))
	require.NoError(t, err)
	require.Equal(t, full[:2], limited)

	offset, err := BFS(g, n1, NewOffsetHandler(recordAll{}, 2))
	require.NoError(t, err)
	require.Equal(t, full[2:], offset)

	both, err := BFS(g, n1, NewLimitOffsetHandler(recordAll{}, 1, 1))
	require.NoError(t, err)
	require.Equal(t, full[1:2], both)
}

func TestLimitOfZeroMeansUnlimited(t *testing.T) {
	g := newTestGraph(t)
	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	_, err = g.InsertEdge(n1, n2)
	require.NoError(t, err)

	got, err := BFS(g, n1, NewLimitHandler(recordAll{}, 0))
	require.NoError(t, err)
	require.Len(t, got, 3)
}
