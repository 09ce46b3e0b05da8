package query

import "github.com/agdb-go/agdb/internal/value"

// ConditionKind is the closed set of predicate/modifier shapes a Condition
// may take (spec.md §4.8 "Conditions").
type ConditionKind int

const (
	CondAnd ConditionKind = iota
	CondOr
	CondNot
	CondNotBeyond

	CondDistance
	CondEdgeKind
	CondNodeKind
	CondEdgeCount
	CondEdgeCountFrom
	CondEdgeCountTo
	CondIds
	CondKeys
	CondKeyValue
)

// Comparator is the relational operator of a CondKeyValue leaf (spec.md
// §4.8 "Equal/Not/Lt/Le/Gt/Ge; string contains ...; element-of").
type Comparator int

const (
	CmpEqual Comparator = iota
	CmpNotEqual
	CmpLessThan
	CmpLessOrEqual
	CmpGreaterThan
	CmpGreaterOrEqual
	CmpContains
	CmpElementOf
)

// Condition is a node in the condition tree: either a boolean combinator
// over child Conditions, or a leaf predicate (spec.md §9 "tagged unions,
// no dispatch table").
type Condition struct {
	Kind     ConditionKind
	Children []Condition

	Distance   int64
	EdgeCount  int64
	Ids        []DbId
	Key        value.DbValue
	Value      value.DbValue
	Comparator Comparator
}

func And(children ...Condition) Condition { return Condition{Kind: CondAnd, Children: children} }
func Or(children ...Condition) Condition  { return Condition{Kind: CondOr, Children: children} }
func Not(c Condition) Condition           { return Condition{Kind: CondNot, Children: []Condition{c}} }
func NotBeyond(c Condition) Condition     { return Condition{Kind: CondNotBeyond, Children: []Condition{c}} }

func DistanceCond(cmp Comparator, d int64) Condition {
	return Condition{Kind: CondDistance, Comparator: cmp, Distance: d}
}
func EdgeKind() Condition { return Condition{Kind: CondEdgeKind} }
func NodeKind() Condition { return Condition{Kind: CondNodeKind} }
func EdgeCount(cmp Comparator, n int64) Condition {
	return Condition{Kind: CondEdgeCount, Comparator: cmp, EdgeCount: n}
}
func EdgeCountFrom(cmp Comparator, n int64) Condition {
	return Condition{Kind: CondEdgeCountFrom, Comparator: cmp, EdgeCount: n}
}
func EdgeCountTo(cmp Comparator, n int64) Condition {
	return Condition{Kind: CondEdgeCountTo, Comparator: cmp, EdgeCount: n}
}
func Ids(ids ...DbId) Condition { return Condition{Kind: CondIds, Ids: ids} }
func HasKey(key value.DbValue) Condition { return Condition{Kind: CondKeys, Key: key} }
func KeyValueCond(key value.DbValue, cmp Comparator, val value.DbValue) Condition {
	return Condition{Kind: CondKeyValue, Key: key, Comparator: cmp, Value: val}
}
