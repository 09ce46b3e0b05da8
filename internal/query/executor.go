package query

import (
	"sort"

	"github.com/agdb-go/agdb/internal/graph"
	"github.com/agdb-go/agdb/internal/search"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/value"
)

// Executor wires the record store, graph, value catalogue, aliases and
// secondary indices together to run queries (spec.md §4.8 "Query
// Executor"). A Db (agdb.go) owns one Executor per open database.
type Executor struct {
	store   *record.Store
	g       *graph.Graph
	cat     *value.Catalogue
	aliases *value.Aliases
	idx     *value.Indexes
	vals    *ElementStore
}

// NewExecutor assembles an Executor over already-open components.
func NewExecutor(store *record.Store, g *graph.Graph, cat *value.Catalogue, aliases *value.Aliases, idx *value.Indexes, vals *ElementStore) *Executor {
	return &Executor{store: store, g: g, cat: cat, aliases: aliases, idx: idx, vals: vals}
}

// Exec runs a batch of queries as a single transaction (spec.md §4.8 "Each
// is executed as a single transaction"). Any error aborts the whole batch
// and rolls back every effect (spec.md §7 "Propagation policy").
func (ex *Executor) Exec(queries []Query) ([]QueryResult, error) {
	ex.store.Transaction()
	results := make([]QueryResult, 0, len(queries))
	for _, q := range queries {
		res, err := ex.execOne(q, results)
		if err != nil {
			_ = ex.store.Rollback()
			return nil, err
		}
		results = append(results, res)
	}
	if err := ex.store.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func (ex *Executor) execOne(q Query, prior []QueryResult) (QueryResult, error) {
	switch {
	case q.InsertNodes != nil:
		return ex.execInsertNodes(q.InsertNodes, prior)
	case q.InsertEdges != nil:
		return ex.execInsertEdges(q.InsertEdges, prior)
	case q.InsertAliases != nil:
		return ex.execInsertAliases(q.InsertAliases, prior)
	case q.InsertValues != nil:
		return ex.execInsertValues(q.InsertValues, prior)
	case q.InsertIndex != nil:
		return ex.execInsertIndex(q.InsertIndex)
	case q.RemoveIndex != nil:
		return ex.execRemoveIndex(q.RemoveIndex)
	case q.RemoveAliases != nil:
		return ex.execRemoveAliases(q.RemoveAliases)
	case q.Remove != nil:
		return ex.execRemove(q.Remove, prior)
	case q.RemoveValues != nil:
		return ex.execRemoveValues(q.RemoveValues, prior)
	case q.Select != nil:
		return ex.execSelect(q.Select, prior)
	case q.Search != nil:
		return ex.execSearchQuery(q.Search, prior)
	default:
		return QueryResult{}, errInvalidArgument("query: empty query")
	}
}

func valuesCount(ins *InsertNodes) int64 {
	if ins.Count > 0 {
		return ins.Count
	}
	n := int64(len(ins.Aliases))
	if v := int64(len(ins.Values)); v > n {
		n = v
	}
	return n
}

func (ex *Executor) execInsertNodes(ins *InsertNodes, prior []QueryResult) (QueryResult, error) {
	ids, err := resolveBatchRefs(ins.Ids, prior)
	if err != nil {
		return QueryResult{}, err
	}

	if len(ids) > 0 {
		resolved, err := ex.resolveIds(ids)
		if err != nil {
			return QueryResult{}, err
		}
		elements := make([]DbElement, len(resolved))
		for i, id := range resolved {
			if ok, err := ex.g.IsNode(id); err != nil {
				return QueryResult{}, err
			} else if !ok {
				return QueryResult{}, errUnknownId(id)
			}
			if i < len(ins.Aliases) && ins.Aliases[i] != "" {
				if err := ex.aliases.Set(ins.Aliases[i], id); err != nil {
					return QueryResult{}, err
				}
			}
			if kvs := valuesFor(ins.Values, i); kvs != nil {
				if err := ex.applyValues(id, kvs); err != nil {
					return QueryResult{}, err
				}
			}
			elements[i] = DbElement{Id: id}
		}
		return QueryResult{Result: int64(len(resolved)), Elements: elements}, nil
	}

	count := valuesCount(ins)
	elements := make([]DbElement, count)
	for i := int64(0); i < count; i++ {
		id, err := ex.g.InsertNode()
		if err != nil {
			return QueryResult{}, err
		}
		if int(i) < len(ins.Aliases) && ins.Aliases[i] != "" {
			if err := ex.aliases.Set(ins.Aliases[i], id); err != nil {
				return QueryResult{}, err
			}
		}
		if kvs := valuesFor(ins.Values, int(i)); kvs != nil {
			if err := ex.applyValues(id, kvs); err != nil {
				return QueryResult{}, err
			}
		}
		elements[i] = DbElement{Id: id}
	}
	return QueryResult{Result: count, Elements: elements}, nil
}

// valuesFor resolves the per-element or uniform values mode of spec.md
// §4.8 "InsertValues": a single shared list is reused for every index.
func valuesFor(values [][]KeyValue, i int) []KeyValue {
	if len(values) == 0 {
		return nil
	}
	if len(values) == 1 {
		return values[0]
	}
	if i < len(values) {
		return values[i]
	}
	return nil
}

func (ex *Executor) execInsertEdges(ins *InsertEdges, prior []QueryResult) (QueryResult, error) {
	idRefs, err := resolveBatchRefs(ins.Ids, prior)
	if err != nil {
		return QueryResult{}, err
	}
	if len(idRefs) > 0 {
		resolved, err := ex.resolveIds(idRefs)
		if err != nil {
			return QueryResult{}, err
		}
		elements := make([]DbElement, len(resolved))
		for i, id := range resolved {
			if ok, err := ex.g.IsEdge(id); err != nil {
				return QueryResult{}, err
			} else if !ok {
				return QueryResult{}, errUnknownId(id)
			}
			if kvs := valuesFor(ins.Values, i); kvs != nil {
				if err := ex.applyValues(id, kvs); err != nil {
					return QueryResult{}, err
				}
			}
			n, m, err := ex.g.EdgeEndpoints(id)
			if err != nil {
				return QueryResult{}, err
			}
			elements[i] = DbElement{Id: id, From: n, To: m, IsEdge: true}
		}
		return QueryResult{Result: int64(len(resolved)), Elements: elements}, nil
	}

	fromRefs, err := resolveBatchRefs(ins.From, prior)
	if err != nil {
		return QueryResult{}, err
	}
	toRefs, err := resolveBatchRefs(ins.To, prior)
	if err != nil {
		return QueryResult{}, err
	}
	from, err := ex.resolveIds(fromRefs)
	if err != nil {
		return QueryResult{}, err
	}
	to, err := ex.resolveIds(toRefs)
	if err != nil {
		return QueryResult{}, err
	}

	var pairsN, pairsM []int64
	if ins.Each || len(from) != len(to) {
		for _, n := range from {
			for _, m := range to {
				pairsN = append(pairsN, n)
				pairsM = append(pairsM, m)
			}
		}
	} else {
		pairsN, pairsM = from, to
	}

	elements := make([]DbElement, len(pairsN))
	for i := range pairsN {
		e, err := ex.g.InsertEdge(pairsN[i], pairsM[i])
		if err != nil {
			return QueryResult{}, err
		}
		if kvs := valuesFor(ins.Values, i); kvs != nil {
			if err := ex.applyValues(e, kvs); err != nil {
				return QueryResult{}, err
			}
		}
		elements[i] = DbElement{Id: e, From: pairsN[i], To: pairsM[i], IsEdge: true}
	}
	return QueryResult{Result: int64(len(elements)), Elements: elements}, nil
}

func (ex *Executor) execInsertAliases(ins *InsertAliases, prior []QueryResult) (QueryResult, error) {
	if len(ins.Ids) != len(ins.Aliases) {
		return QueryResult{}, errLengthMismatch("InsertAliases: ids and aliases must have equal length")
	}
	idRefs, err := resolveBatchRefs(ins.Ids, prior)
	if err != nil {
		return QueryResult{}, err
	}
	ids, err := ex.resolveIds(idRefs)
	if err != nil {
		return QueryResult{}, err
	}
	elements := make([]DbElement, len(ids))
	for i, id := range ids {
		if ok, err := ex.g.IsNode(id); err != nil {
			return QueryResult{}, err
		} else if !ok {
			return QueryResult{}, errUnknownId(id)
		}
		if err := ex.aliases.Set(ins.Aliases[i], id); err != nil {
			return QueryResult{}, err
		}
		elements[i] = DbElement{Id: id}
	}
	return QueryResult{Result: int64(len(ids)), Elements: elements}, nil
}

func (ex *Executor) execInsertValues(ins *InsertValues, prior []QueryResult) (QueryResult, error) {
	idRefs, err := resolveBatchRefs(ins.Ids, prior)
	if err != nil {
		return QueryResult{}, err
	}
	ids, err := ex.resolveIds(idRefs)
	if err != nil {
		return QueryResult{}, err
	}
	if len(ins.Values) > 1 && len(ins.Values) != len(ids) {
		return QueryResult{}, errLengthMismatch("InsertValues: values must match ids length or be a single uniform list")
	}
	elements := make([]DbElement, len(ids))
	for i, id := range ids {
		if !ex.elementExists(id) {
			return QueryResult{}, errUnknownId(id)
		}
		if kvs := valuesFor(ins.Values, i); kvs != nil {
			if err := ex.applyValues(id, kvs); err != nil {
				return QueryResult{}, err
			}
		}
		elements[i] = DbElement{Id: id}
	}
	return QueryResult{Result: int64(len(ids)), Elements: elements}, nil
}

func (ex *Executor) elementExists(id int64) bool {
	if id > 0 {
		ok, _ := ex.g.IsNode(id)
		return ok
	}
	ok, _ := ex.g.IsEdge(id)
	return ok
}

// indexLookup resolves the "search().index(key).value(v)" id set: every
// element currently carrying v under key's secondary index. A key that was
// never indexed, or a value nothing carries yet, both yield an empty id
// set rather than an error (spec.md §8 scenario 4 expects the ids list to
// come back empty, not fail, when nothing matches yet).
func (ex *Executor) indexLookup(key, val value.DbValue) ([]int64, error) {
	keyStr, err := indexKeyString(key)
	if err != nil {
		return nil, err
	}
	if has, err := ex.idx.HasIndex(keyStr); err != nil || !has {
		return nil, err
	}
	handle, ok, err := ex.cat.Handle(val)
	if err != nil || !ok {
		return nil, err
	}
	return ex.idx.Lookup(keyStr, handle)
}

func (ex *Executor) execInsertIndex(ins *InsertIndex) (QueryResult, error) {
	keyStr, err := indexKeyString(ins.Key)
	if err != nil {
		return QueryResult{}, err
	}
	if err := ex.idx.Create(keyStr); err != nil {
		return QueryResult{}, err
	}
	// Back-fill from every existing element (spec.md §4.8 "Creating scans
	// all elements and back-fills").
	nodes, err := ex.g.Nodes()
	if err != nil {
		return QueryResult{}, err
	}
	edges, err := ex.g.Edges()
	if err != nil {
		return QueryResult{}, err
	}
	count := int64(0)
	for _, id := range append(nodes, edges...) {
		entries, err := ex.vals.entriesOf(id)
		if err != nil {
			return QueryResult{}, err
		}
		for _, e := range entries {
			k, err := ex.cat.Value(e.keyHandle)
			if err != nil {
				return QueryResult{}, err
			}
			if !k.Equal(ins.Key) {
				continue
			}
			if err := ex.idx.Add(keyStr, e.valHandle, id); err != nil {
				return QueryResult{}, err
			}
			count++
		}
	}
	return QueryResult{Result: count}, nil
}

func (ex *Executor) execRemoveIndex(rm *RemoveIndex) (QueryResult, error) {
	keyStr, err := indexKeyString(rm.Key)
	if err != nil {
		return QueryResult{}, err
	}
	if err := ex.idx.Drop(keyStr); err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Result: -1}, nil
}

func (ex *Executor) execRemoveAliases(rm *RemoveAliases) (QueryResult, error) {
	for _, name := range rm.Names {
		if err := ex.aliases.Remove(name); err != nil {
			return QueryResult{}, err
		}
	}
	return QueryResult{Result: -int64(len(rm.Names))}, nil
}

func (ex *Executor) execRemove(rm *Remove, prior []QueryResult) (QueryResult, error) {
	idRefs, err := resolveBatchRefs(rm.Ids, prior)
	if err != nil {
		return QueryResult{}, err
	}
	ids, err := ex.resolveIds(idRefs)
	if err != nil {
		return QueryResult{}, err
	}
	removed := int64(0)
	for _, id := range ids {
		if id > 0 {
			if ok, err := ex.g.IsNode(id); err != nil {
				return QueryResult{}, err
			} else if !ok {
				continue
			}
			if err := ex.aliases.RemoveNode(id); err != nil {
				return QueryResult{}, err
			}
			incident, err := ex.incidentEdges(id)
			if err != nil {
				return QueryResult{}, err
			}
			for _, e := range incident {
				if err := ex.removeAllAttrs(e); err != nil {
					return QueryResult{}, err
				}
			}
			if err := ex.removeAllAttrs(id); err != nil {
				return QueryResult{}, err
			}
			if err := ex.g.RemoveNode(id); err != nil {
				return QueryResult{}, err
			}
			removed++
		} else {
			if ok, err := ex.g.IsEdge(id); err != nil {
				return QueryResult{}, err
			} else if !ok {
				continue
			}
			if err := ex.removeAllAttrs(id); err != nil {
				return QueryResult{}, err
			}
			if err := ex.g.RemoveEdge(id); err != nil {
				return QueryResult{}, err
			}
			removed++
		}
	}
	return QueryResult{Result: -removed}, nil
}

func (ex *Executor) incidentEdges(node int64) ([]int64, error) {
	from, err := ex.g.EdgesFrom(node)
	if err != nil {
		return nil, err
	}
	to, err := ex.g.EdgesTo(node)
	if err != nil {
		return nil, err
	}
	return append(from, to...), nil
}

func (ex *Executor) execRemoveValues(rm *RemoveValues, prior []QueryResult) (QueryResult, error) {
	idRefs, err := resolveBatchRefs(rm.Ids, prior)
	if err != nil {
		return QueryResult{}, err
	}
	ids, err := ex.resolveIds(idRefs)
	if err != nil {
		return QueryResult{}, err
	}
	removed := int64(0)
	for _, id := range ids {
		for _, key := range rm.Keys {
			if err := ex.removeAttr(id, key); err != nil {
				return QueryResult{}, err
			}
			removed++
		}
	}
	return QueryResult{Result: -removed}, nil
}

func (ex *Executor) execSelect(sel *Select, prior []QueryResult) (QueryResult, error) {
	var ids []int64
	if sel.Search != nil {
		searchRes, err := ex.execSearchQuery(sel.Search, prior)
		if err != nil {
			return QueryResult{}, err
		}
		ids = make([]int64, len(searchRes.Elements))
		for i, e := range searchRes.Elements {
			ids[i] = e.Id
		}
	} else {
		idRefs, err := resolveBatchRefs(sel.Ids, prior)
		if err != nil {
			return QueryResult{}, err
		}
		ids, err = ex.resolveIds(idRefs)
		if err != nil {
			return QueryResult{}, err
		}
	}

	switch sel.Kind {
	case SelectIds:
		elements := make([]DbElement, len(ids))
		for i, id := range ids {
			if !ex.elementExists(id) {
				return QueryResult{}, errUnknownId(id)
			}
			elements[i] = DbElement{Id: id}
		}
		return QueryResult{Elements: elements}, nil
	case SelectEdgeCount, SelectEdgeCountFrom, SelectEdgeCountTo, SelectKeyCount:
		elements := make([]DbElement, len(ids))
		for i, id := range ids {
			n, err := ex.countFor(sel.Kind, id)
			if err != nil {
				return QueryResult{}, err
			}
			elements[i] = DbElement{Id: id, Values: []KeyValue{{Value: value.I64(n)}}}
		}
		return QueryResult{Elements: elements}, nil
	default:
		elements := make([]DbElement, len(ids))
		for i, id := range ids {
			el, err := ex.selectElement(id, sel)
			if err != nil {
				return QueryResult{}, err
			}
			elements[i] = el
		}
		return QueryResult{Elements: elements}, nil
	}
}

func (ex *Executor) countFor(kind SelectKind, id int64) (int64, error) {
	switch kind {
	case SelectEdgeCount:
		return ex.g.Degree(id)
	case SelectEdgeCountFrom:
		return ex.g.DegreeFrom(id)
	case SelectEdgeCountTo:
		return ex.g.DegreeTo(id)
	case SelectKeyCount:
		entries, err := ex.vals.entriesOf(id)
		if err != nil {
			return 0, err
		}
		return int64(len(entries)), nil
	default:
		return 0, nil
	}
}

func (ex *Executor) selectElement(id int64, sel *Select) (DbElement, error) {
	if !ex.elementExists(id) {
		return DbElement{}, errUnknownId(id)
	}
	el := DbElement{Id: id}
	if id < 0 {
		n, m, err := ex.g.EdgeEndpoints(id)
		if err != nil {
			return DbElement{}, err
		}
		el.From, el.To, el.IsEdge = n, m, true
	}
	if sel.Kind == SelectElements || sel.Kind == SelectValues || sel.Kind == SelectKeys {
		all, err := ex.vals.decodeAll(ex.cat, id)
		if err != nil {
			return DbElement{}, err
		}
		if len(sel.Keys) == 0 {
			el.Values = all
		} else {
			el.Values = filterKeys(all, sel.Keys)
		}
		if sel.Kind == SelectKeys {
			for i := range el.Values {
				el.Values[i].Value = value.DbValue{}
			}
		}
	}
	return el, nil
}

func filterKeys(all []KeyValue, keys []value.DbValue) []KeyValue {
	var out []KeyValue
	for _, kv := range all {
		for _, k := range keys {
			if kv.Key.Equal(k) {
				out = append(out, kv)
				break
			}
		}
	}
	return out
}

func (ex *Executor) execSearchQuery(s *Search, prior []QueryResult) (QueryResult, error) {
	ids, err := ex.runSearch(s, prior)
	if err != nil {
		return QueryResult{}, err
	}
	elements := make([]DbElement, len(ids))
	for i, id := range ids {
		elements[i] = DbElement{Id: id}
	}
	return QueryResult{Elements: elements}, nil
}

// runSearch executes the traversal, applies order_by (if any, disabling
// the traversal's own limit/offset so the full reachable set can be
// sorted first), then paginates (spec.md §4.8 "Ordering").
func (ex *Executor) runSearch(s *Search, prior []QueryResult) ([]int64, error) {
	if s.ByIndex {
		ids, err := ex.indexLookup(s.IndexKey, s.IndexValue)
		if err != nil {
			return nil, err
		}
		if len(s.OrderBy) > 0 {
			if err := ex.sortByOrder(ids, s.OrderBy); err != nil {
				return nil, err
			}
		}
		return paginate(ids, s.Offset, s.Limit), nil
	}

	originRefs, err := resolveBatchRefs([]DbId{s.Origin}, prior)
	if err != nil {
		return nil, err
	}
	origins, err := ex.resolveIds(originRefs)
	if err != nil {
		return nil, err
	}
	if len(origins) == 0 {
		return nil, errInvalidArgument("query: search: missing origin")
	}
	origin := origins[0]

	if s.HasDest {
		destRefs, err := resolveBatchRefs([]DbId{s.Destination}, prior)
		if err != nil {
			return nil, err
		}
		dests, err := ex.resolveIds(destRefs)
		if err != nil {
			return nil, err
		}
		path, err := search.PathSearch(ex.g, origin, dests[0], &conditionCostHandler{ex: ex, cond: s.Conditions})
		if err != nil {
			return nil, err
		}
		return path, nil
	}

	unordered := len(s.OrderBy) > 0
	var h search.Handler = &conditionHandler{ex: ex, cond: s.Conditions}
	if !unordered {
		if s.Limit > 0 || s.Offset > 0 {
			h = search.NewLimitOffsetHandler(h, s.Limit, s.Offset)
		}
	}

	var ids []int64
	switch s.Algorithm {
	case AlgorithmDFS:
		ids, err = search.DFS(ex.g, origin, h)
	case AlgorithmReverseDFS:
		ids, err = search.DFSReverse(ex.g, origin, h)
	default:
		ids, err = search.BFS(ex.g, origin, h)
	}
	if err != nil {
		return nil, err
	}

	if unordered {
		if err := ex.sortByOrder(ids, s.OrderBy); err != nil {
			return nil, err
		}
		ids = paginate(ids, s.Offset, s.Limit)
	}
	return ids, nil
}

func paginate(ids []int64, offset, limit int64) []int64 {
	if offset > 0 {
		if offset >= int64(len(ids)) {
			return nil
		}
		ids = ids[offset:]
	}
	if limit > 0 && limit < int64(len(ids)) {
		ids = ids[:limit]
	}
	return ids
}

func (ex *Executor) sortByOrder(ids []int64, order []Order) error {
	var sortErr error
	sort.SliceStable(ids, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for _, o := range order {
			vi, err := ex.valueFor(ids[i], o.Key)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := ex.valueFor(ids[j], o.Key)
			if err != nil {
				sortErr = err
				return false
			}
			c := vi.Compare(vj)
			if c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

func (ex *Executor) valueFor(id int64, key value.DbValue) (value.DbValue, error) {
	handle, ok, err := ex.cat.Handle(key)
	if err != nil || !ok {
		return value.DbValue{}, err
	}
	entries, err := ex.vals.entriesOf(id)
	if err != nil {
		return value.DbValue{}, err
	}
	for _, e := range entries {
		if e.keyHandle == handle {
			return ex.cat.Value(e.valHandle)
		}
	}
	return value.DbValue{}, nil
}

// conditionHandler adapts the condition tree to search.Handler (spec.md
// §4.6 "Conditions(conds) evaluates user conditions").
type conditionHandler struct {
	ex   *Executor
	cond Condition
}

func (h *conditionHandler) Process(index, distance int64) (search.Verdict, error) {
	// A zero-value Condition is CondAnd with no children, which evaluate
	// treats as vacuously true: an empty condition tree matches everything.
	matched, prune, err := evaluate(h.cond, evalCtx{ex: h.ex, id: index, distance: distance})
	if err != nil {
		return search.Verdict{}, err
	}
	kind := search.Continue
	if prune {
		kind = search.Stop
	}
	return search.Verdict{Kind: kind, Add: matched}, nil
}

// conditionCostHandler costs every edge/node at 1 unless conditions reject
// it, in which case it is inadmissible (cost 0, spec.md §4.6 "Path
// search").
type conditionCostHandler struct {
	ex   *Executor
	cond Condition
}

func (h *conditionCostHandler) Cost(index int64) (uint64, error) {
	matched, _, err := evaluate(h.cond, evalCtx{ex: h.ex, id: index})
	if err != nil {
		return 0, err
	}
	if !matched {
		return 0, nil
	}
	return 1, nil
}
