package query

import (
	"strconv"

	"github.com/agdb-go/agdb/internal/value"
)

// resolveId turns a DbId into its integer id, looking up an alias through
// aliases if IsAlias is set. Batch references (":k") must already have been
// substituted by resolveBatchRefs before this is called.
func (ex *Executor) resolveId(id DbId) (int64, error) {
	if !id.IsAlias {
		return id.Id, nil
	}
	n, ok, err := ex.aliases.Node(id.Alias)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errUnknownAlias(id.Alias)
	}
	return n, nil
}

func (ex *Executor) resolveIds(ids []DbId) ([]int64, error) {
	out := make([]int64, len(ids))
	for i, id := range ids {
		n, err := ex.resolveId(id)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// resolveBatchRefs substitutes any ":k" alias in ids with the ids produced
// by the k-th previous result in results (spec.md §4.8 "ID resolution
// inside a batch"). k counts backward from the current query: ":1" is the
// immediately preceding result. A single ":k" entry may fan out to many ids.
func resolveBatchRefs(ids []DbId, results []QueryResult) ([]DbId, error) {
	var out []DbId
	for _, id := range ids {
		if !id.IsAlias || !isBatchRef(id.Alias) {
			out = append(out, id)
			continue
		}
		k, err := strconv.Atoi(id.Alias[1:])
		if err != nil || k <= 0 || k > len(results) {
			return nil, errBadBatchReference(id.Alias)
		}
		res := results[len(results)-k]
		for _, el := range res.Elements {
			out = append(out, Id(el.Id))
		}
	}
	return out, nil
}

func keyHandleOf(cat *value.Catalogue, key value.DbValue) (int64, bool, error) {
	return cat.Handle(key)
}
