package query

import (
	"github.com/agdb-go/agdb/internal/storage/container"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
	"github.com/agdb-go/agdb/internal/value"
)

// kvEntry is one element attribute as stored in elementValues: the value
// catalogue handles of its key and value, not the DbValues themselves, so
// the multi-map's per-slot stride stays a fixed 16 bytes regardless of
// attribute content (spec.md §4.7 "handles are dense small integers").
type kvEntry struct {
	keyHandle int64
	valHandle int64
}

func encodeKV(e kvEntry) []byte {
	b := make([]byte, 16)
	serialize.PutI64(b, e.keyHandle)
	serialize.PutI64(b[8:], e.valHandle)
	return b
}

func decodeKV(b []byte) kvEntry {
	return kvEntry{keyHandle: serialize.I64(b), valHandle: serialize.I64(b[8:])}
}

func equalKV(a, b kvEntry) bool { return a == b }

func encodeElemKey(v int64) []byte { return serialize.EncodeI64(v) }
func decodeElemKey(b []byte) int64 { return serialize.I64(b) }
func hashElemKey(v int64) uint64   { return container.StableHash(serialize.EncodeI64(v)) }
func equalElemKey(a, b int64) bool { return a == b }

const elementValuesHeaderSize = 8

// ElementStore is the persisted element_id -> attribute-list store: a
// multi-map from element id (positive node id or negative external edge id;
// nodes and edges share one slot space, so the two never collide) to
// (key_handle, value_handle) pairs.
type ElementStore struct {
	store  *record.Store
	header int64
	mm     *container.MultiMap[int64, kvEntry]
}

// NewElementStore creates a fresh, empty element attribute store.
func NewElementStore(store *record.Store) (*ElementStore, error) {
	mm, err := container.NewMultiMap[int64, kvEntry](store, 8, 16,
		encodeElemKey, decodeElemKey, encodeKV, decodeKV, hashElemKey, equalElemKey, equalKV)
	if err != nil {
		return nil, err
	}
	idx, err := store.Insert(make([]byte, elementValuesHeaderSize))
	if err != nil {
		return nil, err
	}
	if err := persistElementValuesHeader(store, idx, mm); err != nil {
		return nil, err
	}
	return &ElementStore{store: store, header: idx, mm: mm}, nil
}

// OpenElementStore attaches to an existing element attribute store by its
// header's logical index.
func OpenElementStore(store *record.Store, headerIndex int64) (*ElementStore, error) {
	raw, err := store.Value(headerIndex)
	if err != nil {
		return nil, err
	}
	mm, err := container.OpenMultiMap[int64, kvEntry](store, serialize.I64(raw), 8, 16,
		encodeElemKey, decodeElemKey, encodeKV, decodeKV, hashElemKey, equalElemKey, equalKV)
	if err != nil {
		return nil, err
	}
	return &ElementStore{store: store, header: headerIndex, mm: mm}, nil
}

// HeaderIndex returns the logical index of the element store's own header.
func (ev *ElementStore) HeaderIndex() int64 { return ev.header }

func persistElementValuesHeader(store *record.Store, headerIndex int64, mm *container.MultiMap[int64, kvEntry]) error {
	b := make([]byte, elementValuesHeaderSize)
	serialize.PutI64(b, mm.Index())
	_, err := store.Replace(headerIndex, b)
	return err
}

// entriesOf returns every (key_handle, value_handle) pair attached to id.
func (ev *ElementStore) entriesOf(id int64) ([]kvEntry, error) { return ev.mm.Values(id) }

// set writes or overwrites the attribute keyed by keyHandle, returning
// whether it was newly added (as opposed to replacing an existing one).
func (ev *ElementStore) set(id, keyHandle, valHandle int64) (bool, error) {
	entries, err := ev.mm.Values(id)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.keyHandle == keyHandle {
			if e.valHandle == valHandle {
				return false, nil
			}
			if err := ev.mm.RemoveValue(id, e); err != nil {
				return false, err
			}
			return false, ev.mm.Insert(id, kvEntry{keyHandle, valHandle})
		}
	}
	return true, ev.mm.Insert(id, kvEntry{keyHandle, valHandle})
}

// remove deletes the attribute keyed by keyHandle, if present, returning
// the value handle that was removed so the caller can release it from the
// catalogue.
func (ev *ElementStore) remove(id, keyHandle int64) (int64, bool, error) {
	entries, err := ev.mm.Values(id)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.keyHandle == keyHandle {
			if err := ev.mm.RemoveValue(id, e); err != nil {
				return 0, false, err
			}
			return e.valHandle, true, nil
		}
	}
	return 0, false, nil
}

// decodeAll resolves id's attributes through cat back into DbValue pairs.
func (ev *ElementStore) decodeAll(cat *value.Catalogue, id int64) ([]KeyValue, error) {
	entries, err := ev.entriesOf(id)
	if err != nil {
		return nil, err
	}
	out := make([]KeyValue, len(entries))
	for i, e := range entries {
		k, err := cat.Value(e.keyHandle)
		if err != nil {
			return nil, err
		}
		v, err := cat.Value(e.valHandle)
		if err != nil {
			return nil, err
		}
		out[i] = KeyValue{Key: k, Value: v}
	}
	return out, nil
}
