// Package query implements the closed set of query operations of spec.md
// §4.8: insert/remove/select/search, the id-resolution rules for batched
// execution, and the executor that wires the record store, graph, value
// catalogue, aliases and secondary indices into single transactions.
package query

import "github.com/agdb-go/agdb/internal/value"

// KeyValue is a single attribute on an element.
type KeyValue struct {
	Key   value.DbValue
	Value value.DbValue
}

// Algorithm selects the traversal strategy for a Search query (spec.md
// §4.6).
type Algorithm int

const (
	AlgorithmBFS Algorithm = iota
	AlgorithmDFS
	AlgorithmReverseDFS
)

// Order is one clause of a Search's order_by list (spec.md §4.8
// "Ordering").
type Order struct {
	Key        value.DbValue
	Descending bool
}

// DbId identifies an element either by its resolved integer id (positive
// node, negative edge) or by an unresolved alias/batch-reference string.
// Exactly one of Id/Alias is meaningful; IsAlias reports which.
type DbId struct {
	Id      int64
	Alias   string
	IsAlias bool
}

func Id(id int64) DbId           { return DbId{Id: id} }
func Alias(name string) DbId     { return DbId{Alias: name, IsAlias: true} }
func isBatchRef(s string) bool   { return len(s) >= 2 && s[0] == ':' }

// InsertNodes creates Count nodes (or as many as the longer of Aliases/
// Values when Count is 0), optionally assigning aliases and attaching
// values. Non-empty Ids turns this into an upsert on existing node ids
// (spec.md §4.8 "InsertNodes").
type InsertNodes struct {
	Count   int64
	Aliases []string
	Values  [][]KeyValue
	Ids     []DbId
}

// InsertEdges creates an edge for each pair from From x To: paired
// element-wise when the cardinalities match and Each is false, or as a
// full cross-product otherwise. Non-empty Ids upserts those existing edge
// ids instead (spec.md §4.8 "InsertEdges").
type InsertEdges struct {
	From   []DbId
	To     []DbId
	Each   bool
	Values [][]KeyValue
	Ids    []DbId
}

// InsertAliases binds Aliases[i] to Ids[i].
type InsertAliases struct {
	Ids     []DbId
	Aliases []string
}

// InsertValues writes or overwrites Values on each id. Values has either
// one entry per id (per-element mode) or a single shared entry (uniform
// mode).
type InsertValues struct {
	Ids    []DbId
	Values [][]KeyValue
}

// InsertIndex creates a secondary index over Key, back-filling from every
// existing element.
type InsertIndex struct{ Key value.DbValue }

// RemoveIndex drops the secondary index over Key. Missing is a no-op.
type RemoveIndex struct{ Key value.DbValue }

// RemoveAliases unbinds each named alias. Missing names are no-ops.
type RemoveAliases struct{ Names []string }

// Remove deletes each id (and, for nodes, cascades to incident edges).
// Missing ids are no-ops.
type Remove struct{ Ids []DbId }

// RemoveValues deletes Keys from each id. Missing ids/keys are no-ops.
type RemoveValues struct {
	Ids  []DbId
	Keys []value.DbValue
}

// SelectKind distinguishes the read-only Select variants of spec.md §4.8.
type SelectKind int

const (
	SelectIds SelectKind = iota
	SelectElements
	SelectKeys
	SelectValues
	SelectKeyCount
	SelectEdgeCount
	SelectEdgeCountFrom
	SelectEdgeCountTo
)

// Select fetches elements either by explicit Ids or by a nested Search.
// Keys restricts SelectValues to a subset of attributes; empty means all.
type Select struct {
	Kind   SelectKind
	Ids    []DbId
	Search *Search
	Keys   []value.DbValue
}

// Search traverses from Origin (optionally toward Destination for path
// search) and returns ordered, paginated ids (spec.md §4.6/§4.8). When
// ByIndex is set, Origin/Destination/Algorithm/Conditions are ignored and
// the id set instead comes straight from the secondary index over
// IndexKey, filtered to elements whose value there equals IndexValue
// (spec.md §8 scenario 4 "search().index(key).value(v)") — a single index
// lookup rather than a graph traversal.
type Search struct {
	Origin      DbId
	Destination DbId
	HasDest     bool
	Algorithm   Algorithm
	Limit       int64
	Offset      int64
	OrderBy     []Order
	Conditions  Condition

	ByIndex    bool
	IndexKey   value.DbValue
	IndexValue value.DbValue
}

// ByIndexSearch builds the "search().index(key).value(v)" form: resolve ids
// directly from the secondary index over key, rather than traversing from
// an origin. OrderBy/Limit/Offset still apply to the looked-up id set.
func ByIndexSearch(key, val value.DbValue) Search {
	return Search{ByIndex: true, IndexKey: key, IndexValue: val}
}

// Query is the closed sum of every executable operation (spec.md §4.8
// "Queries form a closed set of operations").
type Query struct {
	InsertNodes   *InsertNodes
	InsertEdges   *InsertEdges
	InsertAliases *InsertAliases
	InsertValues  *InsertValues
	InsertIndex   *InsertIndex
	RemoveIndex   *RemoveIndex
	RemoveAliases *RemoveAliases
	Remove        *Remove
	RemoveValues  *RemoveValues
	Select        *Select
	Search        *Search
}

// DbElement is one result row: an id plus its endpoints (edges only) and
// key-value pairs (spec.md §4.8 "Result shape").
type DbElement struct {
	Id     int64
	From   int64
	To     int64
	IsEdge bool
	Values []KeyValue
}

// QueryResult is the outcome of executing a single Query. Result is a
// signed affected-element count for mutating queries (positive for
// additions, negative for deletions); Elements carries rows for Select,
// and bare ids (empty Values) for Search.
type QueryResult struct {
	Result   int64
	Elements []DbElement
}
