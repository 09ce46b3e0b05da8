package cli

import (
	"github.com/agdb-go/agdb/internal/query"
	"github.com/agdb-go/agdb/internal/value"
)

// dbIdSpec is the JSON form of a query.DbId: either an integer id or an
// alias/batch-reference string, never both.
type dbIdSpec struct {
	Id    *int64 `json:"id,omitempty"`
	Alias string `json:"alias,omitempty"`
}

func (s dbIdSpec) toDbId() query.DbId {
	if s.Alias != "" {
		return query.Alias(s.Alias)
	}
	if s.Id != nil {
		return query.Id(*s.Id)
	}
	return query.DbId{}
}

func toDbIds(specs []dbIdSpec) []query.DbId {
	out := make([]query.DbId, len(specs))
	for i, s := range specs {
		out[i] = s.toDbId()
	}
	return out
}

// kvSpec is the JSON form of one attribute: a string key and one of the
// typed value fields.
type kvSpec struct {
	Key    string   `json:"key"`
	I64    *int64   `json:"i64,omitempty"`
	F64    *float64 `json:"f64,omitempty"`
	Str    *string  `json:"str,omitempty"`
	VecI64 []int64  `json:"vec_i64,omitempty"`
}

func (s kvSpec) toDbValue() value.DbValue {
	switch {
	case s.I64 != nil:
		return value.I64(*s.I64)
	case s.F64 != nil:
		return value.F64(*s.F64)
	case s.VecI64 != nil:
		return value.VecI64(s.VecI64)
	case s.Str != nil:
		return value.String(*s.Str)
	default:
		return value.DbValue{}
	}
}

func toKeyValues(specs []kvSpec) []query.KeyValue {
	out := make([]query.KeyValue, len(specs))
	for i, s := range specs {
		out[i] = query.KeyValue{Key: value.String(s.Key), Value: s.toDbValue()}
	}
	return out
}

// querySpec is one batch entry's JSON shape: exactly one of its fields is
// populated, selecting which query.Query variant it becomes.
type querySpec struct {
	InsertNodes *insertNodesSpec `json:"insert_nodes,omitempty"`
	InsertEdges *insertEdgesSpec `json:"insert_edges,omitempty"`
	Select      *selectSpec      `json:"select,omitempty"`
	Search      *searchSpec      `json:"search,omitempty"`
	Remove      *removeSpec      `json:"remove,omitempty"`
}

type insertNodesSpec struct {
	Count   int64      `json:"count,omitempty"`
	Aliases []string   `json:"aliases,omitempty"`
	Values  [][]kvSpec `json:"values,omitempty"`
}

type insertEdgesSpec struct {
	From   []dbIdSpec `json:"from"`
	To     []dbIdSpec `json:"to"`
	Each   bool       `json:"each,omitempty"`
	Values [][]kvSpec `json:"values,omitempty"`
}

type selectSpec struct {
	Ids []dbIdSpec `json:"ids"`
}

type searchSpec struct {
	Origin    dbIdSpec `json:"origin"`
	Algorithm string   `json:"algorithm,omitempty"`
	Limit     int64    `json:"limit,omitempty"`
	Offset    int64    `json:"offset,omitempty"`
}

type removeSpec struct {
	Ids []dbIdSpec `json:"ids"`
}

func (qs querySpec) toQuery() query.Query {
	switch {
	case qs.InsertNodes != nil:
		values := make([][]query.KeyValue, len(qs.InsertNodes.Values))
		for i, v := range qs.InsertNodes.Values {
			values[i] = toKeyValues(v)
		}
		return query.Query{InsertNodes: &query.InsertNodes{
			Count: qs.InsertNodes.Count, Aliases: qs.InsertNodes.Aliases, Values: values,
		}}
	case qs.InsertEdges != nil:
		values := make([][]query.KeyValue, len(qs.InsertEdges.Values))
		for i, v := range qs.InsertEdges.Values {
			values[i] = toKeyValues(v)
		}
		return query.Query{InsertEdges: &query.InsertEdges{
			From: toDbIds(qs.InsertEdges.From), To: toDbIds(qs.InsertEdges.To),
			Each: qs.InsertEdges.Each, Values: values,
		}}
	case qs.Select != nil:
		return query.Query{Select: &query.Select{Kind: query.SelectElements, Ids: toDbIds(qs.Select.Ids)}}
	case qs.Search != nil:
		return query.Query{Search: &query.Search{
			Origin: qs.Search.Origin.toDbId(), Algorithm: algorithmOf(qs.Search.Algorithm),
			Limit: qs.Search.Limit, Offset: qs.Search.Offset,
		}}
	case qs.Remove != nil:
		return query.Query{Remove: &query.Remove{Ids: toDbIds(qs.Remove.Ids)}}
	default:
		return query.Query{}
	}
}

func algorithmOf(name string) query.Algorithm {
	switch name {
	case "dfs":
		return query.AlgorithmDFS
	case "reverse_dfs":
		return query.AlgorithmReverseDFS
	default:
		return query.AlgorithmBFS
	}
}

// resultSpec is the JSON shape printed back for one QueryResult.
type resultSpec struct {
	Result   int64         `json:"result"`
	Elements []elementSpec `json:"elements,omitempty"`
}

type elementSpec struct {
	Id     int64    `json:"id"`
	From   int64    `json:"from,omitempty"`
	To     int64    `json:"to,omitempty"`
	IsEdge bool     `json:"is_edge,omitempty"`
	Values []kvSpec `json:"values,omitempty"`
}

func fromQueryResult(r query.QueryResult) resultSpec {
	elements := make([]elementSpec, len(r.Elements))
	for i, el := range r.Elements {
		values := make([]kvSpec, len(el.Values))
		for j, kv := range el.Values {
			values[j] = kvSpecOf(kv)
		}
		elements[i] = elementSpec{Id: el.Id, From: el.From, To: el.To, IsEdge: el.IsEdge, Values: values}
	}
	return resultSpec{Result: r.Result, Elements: elements}
}

func kvSpecOf(kv query.KeyValue) kvSpec {
	key, _ := kv.Key.AsString()
	spec := kvSpec{Key: key}
	switch kv.Value.Tag() {
	case value.TagI64:
		v, _ := kv.Value.AsI64()
		spec.I64 = &v
	case value.TagF64:
		v, _ := kv.Value.AsF64()
		spec.F64 = &v
	case value.TagString:
		v, _ := kv.Value.AsString()
		spec.Str = &v
	case value.TagVecI64:
		v, _ := kv.Value.AsVecI64()
		spec.VecI64 = v
	}
	return spec
}
