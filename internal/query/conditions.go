package query

import (
	"fmt"
	"strings"

	"github.com/agdb-go/agdb/internal/value"
)

// evalCtx carries the per-visit context a condition leaf needs: which
// element is under evaluation, and how far the search has travelled from
// its origin.
type evalCtx struct {
	ex       *Executor
	id       int64
	distance int64
}

// evaluate walks the condition tree, returning whether id matches and
// whether a NotBeyond anywhere in the tree failed (meaning expansion from
// id must not proceed, per spec.md §4.8 "NotBeyond additionally prunes
// expansion from the current index").
func evaluate(c Condition, ctx evalCtx) (matched bool, prune bool, err error) {
	switch c.Kind {
	case CondAnd:
		matched = true
		for _, child := range c.Children {
			m, p, err := evaluate(child, ctx)
			if err != nil {
				return false, false, err
			}
			matched = matched && m
			prune = prune || p
		}
		return matched, prune, nil
	case CondOr:
		for _, child := range c.Children {
			m, p, err := evaluate(child, ctx)
			if err != nil {
				return false, false, err
			}
			matched = matched || m
			prune = prune || p
		}
		return matched, prune, nil
	case CondNot:
		m, p, err := evaluate(c.Children[0], ctx)
		if err != nil {
			return false, false, err
		}
		return !m, p, nil
	case CondNotBeyond:
		m, _, err := evaluate(c.Children[0], ctx)
		if err != nil {
			return false, false, err
		}
		return m, !m, nil
	default:
		m, err := evaluateLeaf(c, ctx)
		return m, false, err
	}
}

func evaluateLeaf(c Condition, ctx evalCtx) (bool, error) {
	switch c.Kind {
	case CondDistance:
		return compareInt(ctx.distance, c.Comparator, c.Distance), nil
	case CondEdgeKind:
		return ctx.id < 0, nil
	case CondNodeKind:
		return ctx.id > 0, nil
	case CondEdgeCount:
		if ctx.id <= 0 {
			return false, nil
		}
		n, err := ctx.ex.g.Degree(ctx.id)
		if err != nil {
			return false, err
		}
		return compareInt(n, c.Comparator, c.EdgeCount), nil
	case CondEdgeCountFrom:
		if ctx.id <= 0 {
			return false, nil
		}
		n, err := ctx.ex.g.DegreeFrom(ctx.id)
		if err != nil {
			return false, err
		}
		return compareInt(n, c.Comparator, c.EdgeCount), nil
	case CondEdgeCountTo:
		if ctx.id <= 0 {
			return false, nil
		}
		n, err := ctx.ex.g.DegreeTo(ctx.id)
		if err != nil {
			return false, err
		}
		return compareInt(n, c.Comparator, c.EdgeCount), nil
	case CondIds:
		for _, want := range c.Ids {
			n, err := ctx.ex.resolveId(want)
			if err != nil {
				return false, err
			}
			if n == ctx.id {
				return true, nil
			}
		}
		return false, nil
	case CondKeys:
		handle, ok, err := ctx.ex.cat.Handle(c.Key)
		if err != nil || !ok {
			return false, err
		}
		entries, err := ctx.ex.vals.entriesOf(ctx.id)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e.keyHandle == handle {
				return true, nil
			}
		}
		return false, nil
	case CondKeyValue:
		return ctx.ex.evaluateKeyValue(ctx.id, c)
	default:
		return false, fmt.Errorf("query: unknown condition kind %d", c.Kind)
	}
}

func (ex *Executor) evaluateKeyValue(id int64, c Condition) (bool, error) {
	handle, ok, err := ex.cat.Handle(c.Key)
	if err != nil {
		return false, err
	}
	if !ok {
		return c.Comparator == CmpNotEqual, nil
	}
	entries, err := ex.vals.entriesOf(id)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.keyHandle != handle {
			continue
		}
		v, err := ex.cat.Value(e.valHandle)
		if err != nil {
			return false, err
		}
		return compareValue(v, c.Comparator, c.Value)
	}
	return c.Comparator == CmpNotEqual, nil
}

func compareInt(a int64, cmp Comparator, b int64) bool {
	switch cmp {
	case CmpEqual:
		return a == b
	case CmpNotEqual:
		return a != b
	case CmpLessThan:
		return a < b
	case CmpLessOrEqual:
		return a <= b
	case CmpGreaterThan:
		return a > b
	case CmpGreaterOrEqual:
		return a >= b
	default:
		return false
	}
}

func compareValue(v value.DbValue, cmp Comparator, want value.DbValue) (bool, error) {
	switch cmp {
	case CmpEqual:
		return v.Equal(want), nil
	case CmpNotEqual:
		return !v.Equal(want), nil
	case CmpLessThan:
		return v.Compare(want) < 0, nil
	case CmpLessOrEqual:
		return v.Compare(want) <= 0, nil
	case CmpGreaterThan:
		return v.Compare(want) > 0, nil
	case CmpGreaterOrEqual:
		return v.Compare(want) >= 0, nil
	case CmpContains:
		return containsSubstring(v, want)
	case CmpElementOf:
		return elementOf(v, want)
	default:
		return false, fmt.Errorf("query: unknown comparator %d", cmp)
	}
}

func containsSubstring(v, want value.DbValue) (bool, error) {
	if s, ok := v.AsString(); ok {
		if ws, ok := want.AsString(); ok {
			return strings.Contains(s, ws), nil
		}
	}
	if b, ok := v.AsBytes(); ok {
		if wb, ok := want.AsBytes(); ok {
			return strings.Contains(string(b), string(wb)), nil
		}
	}
	return false, errTypeMismatch("query: contains: operand is not a string or byte array")
}

func elementOf(v, want value.DbValue) (bool, error) {
	switch v.Tag() {
	case value.TagVecI64:
		items, _ := v.AsVecI64()
		w, ok := want.AsI64()
		if !ok {
			return false, nil
		}
		for _, it := range items {
			if it == w {
				return true, nil
			}
		}
		return false, nil
	case value.TagVecU64:
		items, _ := v.AsVecU64()
		w, ok := want.AsU64()
		if !ok {
			return false, nil
		}
		for _, it := range items {
			if it == w {
				return true, nil
			}
		}
		return false, nil
	case value.TagVecF64:
		items, _ := v.AsVecF64()
		w, ok := want.AsF64()
		if !ok {
			return false, nil
		}
		for _, it := range items {
			if it == w {
				return true, nil
			}
		}
		return false, nil
	case value.TagVecString:
		items, _ := v.AsVecString()
		w, ok := want.AsString()
		if !ok {
			return false, nil
		}
		for _, it := range items {
			if it == w {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, errTypeMismatch("query: element-of: left operand is not a vector")
	}
}
