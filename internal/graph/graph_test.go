package graph

import (
	"testing"

	"github.com/agdb-go/agdb/internal/storage/backend"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *record.Store {
	t.Helper()
	store, err := record.Open(backend.KindMemory, t.Name())
	require.NoError(t, err)
	return store
}

func TestInsertNodeIsNodeNotEdge(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n, err := g.InsertNode()
	require.NoError(t, err)
	require.Greater(t, n, int64(0))

	isNode, err := g.IsNode(n)
	require.NoError(t, err)
	require.True(t, isNode)

	isEdge, err := g.IsEdge(n)
	require.NoError(t, err)
	require.False(t, isEdge)
}

// A node that has acquired an outgoing edge must still report as a node:
// the bug this session fixed made IsNode infer its answer from the sign of
// from[i], which a node's own edge-list head pointer overwrites.
func TestNodeWithOutgoingEdgeStillIsNode(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n, err := g.InsertNode()
	require.NoError(t, err)
	m, err := g.InsertNode()
	require.NoError(t, err)
	_, err = g.InsertEdge(n, m)
	require.NoError(t, err)

	isNode, err := g.IsNode(n)
	require.NoError(t, err)
	require.True(t, isNode, "node must still report as a node once it owns an edge")
}

func TestInsertEdgeIsEdgeNotNode(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n, err := g.InsertNode()
	require.NoError(t, err)
	m, err := g.InsertNode()
	require.NoError(t, err)
	e, err := g.InsertEdge(n, m)
	require.NoError(t, err)
	require.Less(t, e, int64(0))

	isEdge, err := g.IsEdge(e)
	require.NoError(t, err)
	require.True(t, isEdge)

	isNode, err := g.IsNode(e)
	require.NoError(t, err)
	require.False(t, isNode)
}

// Bidirectional edge-count: spec.md §8 scenario 6.
func TestDegreeCounts(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	n3, err := g.InsertNode()
	require.NoError(t, err)

	_, err = g.InsertEdge(n1, n2)
	require.NoError(t, err)
	_, err = g.InsertEdge(n1, n3)
	require.NoError(t, err)
	_, err = g.InsertEdge(n2, n1)
	require.NoError(t, err)

	degree, err := g.Degree(n1)
	require.NoError(t, err)
	require.Equal(t, int64(3), degree)

	from, err := g.DegreeFrom(n1)
	require.NoError(t, err)
	require.Equal(t, int64(2), from)

	to, err := g.DegreeTo(n1)
	require.NoError(t, err)
	require.Equal(t, int64(1), to)
}

// Graph consistency (spec.md §8 property 3): every edge reachable exactly
// once from its origin's adjacency list and its destination's.
func TestEdgeReachableExactlyOnce(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n, err := g.InsertNode()
	require.NoError(t, err)
	m, err := g.InsertNode()
	require.NoError(t, err)

	var edges []int64
	for i := 0; i < 5; i++ {
		e, err := g.InsertEdge(n, m)
		require.NoError(t, err)
		edges = append(edges, e)
	}

	from, err := g.EdgesFrom(n)
	require.NoError(t, err)
	require.ElementsMatch(t, edges, from)

	to, err := g.EdgesTo(m)
	require.NoError(t, err)
	require.ElementsMatch(t, edges, to)
}

func TestRemoveEdgeUnlinksBothEnds(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n, err := g.InsertNode()
	require.NoError(t, err)
	m, err := g.InsertNode()
	require.NoError(t, err)
	e, err := g.InsertEdge(n, m)
	require.NoError(t, err)

	require.NoError(t, g.RemoveEdge(e))

	from, err := g.EdgesFrom(n)
	require.NoError(t, err)
	require.Empty(t, from)

	to, err := g.EdgesTo(m)
	require.NoError(t, err)
	require.Empty(t, to)

	isEdge, err := g.IsEdge(e)
	require.NoError(t, err)
	require.False(t, isEdge)
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	g, err := New(newTestStore(t))
	require.NoError(t, err)

	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	e1, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	e2, err := g.InsertEdge(n2, n1)
	require.NoError(t, err)

	require.NoError(t, g.RemoveNode(n1))

	isNode, err := g.IsNode(n1)
	require.NoError(t, err)
	require.False(t, isNode)

	for _, e := range []int64{e1, e2} {
		isEdge, err := g.IsEdge(e)
		require.NoError(t, err)
		require.False(t, isEdge, "removing an endpoint must remove its incident edges")
	}
}

func TestReopenPreservesGraph(t *testing.T) {
	store := newTestStore(t)
	g, err := New(store)
	require.NoError(t, err)
	n, err := g.InsertNode()
	require.NoError(t, err)
	m, err := g.InsertNode()
	require.NoError(t, err)
	e, err := g.InsertEdge(n, m)
	require.NoError(t, err)
	header := g.HeaderIndex()

	reopened, err := Open(store, header)
	require.NoError(t, err)

	isNode, err := reopened.IsNode(n)
	require.NoError(t, err)
	require.True(t, isNode)

	isEdge, err := reopened.IsEdge(e)
	require.NoError(t, err)
	require.True(t, isEdge)

	from, to, err := reopened.EdgeEndpoints(e)
	require.NoError(t, err)
	require.Equal(t, n, from)
	require.Equal(t, m, to)
}
