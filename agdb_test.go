package agdb

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/agdb-go/agdb/internal/query"
	"github.com/agdb-go/agdb/internal/value"
	"github.com/stretchr/testify/require"
)

// Scenario 1: persistence across reopen.
func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.agdb")

	db, err := Open(path, Options{})
	require.NoError(t, err)
	results, err := db.Exec(query.Query{InsertNodes: &query.InsertNodes{Count: 1, Aliases: []string{"alice"}}})
	require.NoError(t, err)
	id := results[0].Elements[0].Id
	require.NoError(t, db.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Exec(query.Query{Select: &query.Select{Kind: query.SelectIds, Ids: []query.DbId{query.Alias("alice")}}})
	require.NoError(t, err)
	require.Equal(t, id, got[0].Elements[0].Id)
}

// Scenario 2: removing a node cascades to its incident edges, and
// referencing the removed edge afterward fails with the documented
// "not found" message.
func TestRemoveNodeCascadesAndReportsUnknownId(t *testing.T) {
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	defer db.Close()

	results, err := db.Exec(
		query.Query{InsertNodes: &query.InsertNodes{Count: 2, Aliases: []string{"n1", "n2"}}},
		query.Query{InsertEdges: &query.InsertEdges{From: []query.DbId{query.Alias("n1")}, To: []query.DbId{query.Alias("n2")}}},
	)
	require.NoError(t, err)
	n1 := results[0].Elements[0].Id
	edge := results[1].Elements[0].Id

	_, err = db.Exec(query.Query{Remove: &query.Remove{Ids: []query.DbId{query.Id(n1)}}})
	require.NoError(t, err)

	_, err = db.Exec(query.Query{Select: &query.Select{Kind: query.SelectIds, Ids: []query.DbId{query.Id(edge)}}})
	require.Error(t, err)
	require.EqualError(t, err, "Id '"+strconv.FormatInt(edge, 10)+"' not found")
}

// Scenario 3: a batch that fails partway rolls back every effect, leaving
// the database exactly as it was before Exec was called.
func TestBatchFailureRollsBackWholeBatch(t *testing.T) {
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(query.Query{InsertNodes: &query.InsertNodes{Count: 1, Aliases: []string{"keep"}}})
	require.NoError(t, err)

	_, err = db.Exec(
		query.Query{InsertNodes: &query.InsertNodes{Count: 1, Aliases: []string{"doomed"}}},
		query.Query{Remove: &query.Remove{Ids: []query.DbId{query.Alias("nonexistent")}}},
	)
	require.Error(t, err)

	_, err = db.Exec(query.Query{Select: &query.Select{Kind: query.SelectIds, Ids: []query.DbId{query.Alias("doomed")}}})
	require.Error(t, err, "the insert from the rolled-back batch must not have survived")

	got, err := db.Exec(query.Query{Select: &query.Select{Kind: query.SelectIds, Ids: []query.DbId{query.Alias("keep")}}})
	require.NoError(t, err)
	require.Len(t, got[0].Elements, 1)
}

// Scenario 4: upsert by search result. Insert one node, open a secondary
// index on "key", then insert-or-replace using
// ids = search().index("key").value(1), values = [[("key", 1)]]. Since no
// element yet carries key=1, the index lookup comes back empty and the
// upsert must fall through to a fresh insert, not a no-op or an error.
func TestUpsertByIndexSearchInsertsFreshWhenNoMatch(t *testing.T) {
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	defer db.Close()

	keyAttr := value.String("key")
	byKeyEqualsOne := query.ByIndexSearch(keyAttr, value.I64(1))

	_, err = db.Exec(
		query.Query{InsertNodes: &query.InsertNodes{Count: 1}},
		query.Query{InsertIndex: &query.InsertIndex{Key: keyAttr}},
	)
	require.NoError(t, err)

	results, err := db.Exec(
		query.Query{Search: &byKeyEqualsOne},
		query.Query{InsertNodes: &query.InsertNodes{
			Ids:    []query.DbId{query.Alias(":1")},
			Values: [][]query.KeyValue{{{Key: keyAttr, Value: value.I64(1)}}},
		}},
	)
	require.NoError(t, err)

	require.Empty(t, results[0].Elements, "no element carries key=1 yet")
	require.Equal(t, int64(1), results[1].Result, "must be a single fresh insert, not a no-op")
	newID := results[1].Elements[0].Id

	again, err := db.Exec(query.Query{Search: &byKeyEqualsOne})
	require.NoError(t, err)
	require.Equal(t, []query.DbElement{{Id: newID}}, again[0].Elements, "the freshly inserted node now carries key=1")
}

// Scenario 5: ordered, paginated search.
func TestOrderedPaginatedSearch(t *testing.T) {
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	defer db.Close()

	rankKey := value.String("rank")
	results, err := db.Exec(query.Query{InsertNodes: &query.InsertNodes{
		Count:   4,
		Aliases: []string{"origin", "n1", "n2", "n3"},
		Values: [][]query.KeyValue{
			{},
			{{Key: rankKey, Value: value.I64(30)}},
			{{Key: rankKey, Value: value.I64(10)}},
			{{Key: rankKey, Value: value.I64(20)}},
		},
	}})
	require.NoError(t, err)
	ids := results[0].Elements

	_, err = db.Exec(query.Query{InsertEdges: &query.InsertEdges{
		From: []query.DbId{query.Id(ids[0].Id), query.Id(ids[0].Id), query.Id(ids[0].Id)},
		To:   []query.DbId{query.Id(ids[1].Id), query.Id(ids[2].Id), query.Id(ids[3].Id)},
	}})
	require.NoError(t, err)

	got, err := db.Exec(query.Query{Search: &query.Search{
		Origin:     query.Alias("origin"),
		Algorithm:  query.AlgorithmBFS,
		Conditions: query.And(query.NodeKind(), query.DistanceCond(query.CmpGreaterThan, 0)),
		OrderBy:    []query.Order{{Key: rankKey}},
		Limit:      2,
	}})
	require.NoError(t, err)
	require.Len(t, got[0].Elements, 2)
	require.Equal(t, ids[2].Id, got[0].Elements[0].Id, "n2 (rank 10) sorts first")
	require.Equal(t, ids[3].Id, got[0].Elements[1].Id, "n3 (rank 20) sorts second")
}

// Scenario 6: bidirectional edge-count queried through the Db/query layer.
func TestBidirectionalEdgeCountThroughQuery(t *testing.T) {
	db, err := OpenMemory(t.Name())
	require.NoError(t, err)
	defer db.Close()

	results, err := db.Exec(query.Query{InsertNodes: &query.InsertNodes{Count: 3, Aliases: []string{"n1", "n2", "n3"}}})
	require.NoError(t, err)
	n1 := results[0].Elements[0].Id

	_, err = db.Exec(
		query.Query{InsertEdges: &query.InsertEdges{From: []query.DbId{query.Alias("n1")}, To: []query.DbId{query.Alias("n2")}}},
		query.Query{InsertEdges: &query.InsertEdges{From: []query.DbId{query.Alias("n1")}, To: []query.DbId{query.Alias("n3")}}},
		query.Query{InsertEdges: &query.InsertEdges{From: []query.DbId{query.Alias("n2")}, To: []query.DbId{query.Alias("n1")}}},
	)
	require.NoError(t, err)

	got, err := db.Exec(query.Query{Select: &query.Select{Kind: query.SelectEdgeCount, Ids: []query.DbId{query.Id(n1)}}})
	require.NoError(t, err)
	require.Equal(t, n1, got[0].Elements[0].Id)
	require.True(t, value.I64(3).Equal(got[0].Elements[0].Values[0].Value))
}
