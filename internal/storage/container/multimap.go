package container

import (
	"github.com/agdb-go/agdb/internal/storage/record"
)

// MultiMap is the duplicate-key persisted multi-map of spec.md §4.4, used by
// the value catalogue's secondary indices (value_handle → posting bitmap of
// element indices, §4.7) and anywhere else multiple values share one key. Unlike HashMap,
// Insert never overwrites: it always places a new slot, so a probe chain
// for one key can interleave with other keys' chains and must be scanned
// fully (stopping only at a terminating Empty slot) to enumerate every
// match.
type MultiMap[K any, V any] struct {
	t        *table[K, V]
	equalVal func(V, V) bool
}

// NewMultiMap creates a fresh, empty persisted multi-map.
func NewMultiMap[K any, V any](store *record.Store, keyStride, valStride int,
	encodeKey func(K) []byte, decodeKey func([]byte) K,
	encodeVal func(V) []byte, decodeVal func([]byte) V,
	hashKey func(K) uint64, equalKey func(K, K) bool, equalVal func(V, V) bool,
) (*MultiMap[K, V], error) {
	t, err := newTable(store, keyStride, valStride, encodeKey, decodeKey, encodeVal, decodeVal, hashKey, equalKey)
	if err != nil {
		return nil, err
	}
	return &MultiMap[K, V]{t: t, equalVal: equalVal}, nil
}

// OpenMultiMap attaches to an existing multi-map record.
func OpenMultiMap[K any, V any](store *record.Store, index int64, keyStride, valStride int,
	encodeKey func(K) []byte, decodeKey func([]byte) K,
	encodeVal func(V) []byte, decodeVal func([]byte) V,
	hashKey func(K) uint64, equalKey func(K, K) bool, equalVal func(V, V) bool,
) (*MultiMap[K, V], error) {
	t, err := openTable(store, index, keyStride, valStride, encodeKey, decodeKey, encodeVal, decodeVal, hashKey, equalKey)
	if err != nil {
		return nil, err
	}
	return &MultiMap[K, V]{t: t, equalVal: equalVal}, nil
}

// Index returns the backing record.Store logical index.
func (m *MultiMap[K, V]) Index() int64 { return m.t.index }

// Len returns the total number of (key, value) entries.
func (m *MultiMap[K, V]) Len() int64 { return m.t.count }

// Insert adds (key, value) as a new entry, even if key already has other
// values.
func (m *MultiMap[K, V]) Insert(key K, value V) error {
	var slot int64 = -1
	err := m.t.probe(key, func(i int64, state slotState) (bool, error) {
		if state != slotValid {
			slot = i
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if slot == -1 {
		if err := m.grow(); err != nil {
			return err
		}
		return m.Insert(key, value)
	}
	if err := m.t.writeSlot(slot, slotValid, key, value); err != nil {
		return err
	}
	m.t.count++
	if err := m.t.writeHeader(); err != nil {
		return err
	}
	if newCap := m.t.growthCapacity(); newCap != m.t.capacity {
		return m.grow()
	}
	return nil
}

func (m *MultiMap[K, V]) grow() error {
	entries, err := m.t.allEntries()
	if err != nil {
		return err
	}
	return m.t.rehash(m.t.growthCapacity(), entries)
}

func (m *MultiMap[K, V]) shrink() error {
	entries, err := m.t.allEntries()
	if err != nil {
		return err
	}
	newCap := m.t.shrinkCapacity()
	if newCap == m.t.capacity {
		return nil
	}
	return m.t.rehash(newCap, entries)
}

func (m *MultiMap[K, V]) maybeShrink() error {
	if m.t.capacity > minCapacity && m.t.count <= m.t.capacity*7/16 {
		return m.shrink()
	}
	return nil
}

// Values returns every value stored under key.
func (m *MultiMap[K, V]) Values(key K) ([]V, error) {
	var out []V
	err := m.t.probe(key, func(i int64, state slotState) (bool, error) {
		if state != slotValid {
			return false, nil
		}
		k, err := m.t.readKey(i)
		if err != nil {
			return false, err
		}
		if !m.t.equalKey(k, key) {
			return false, nil
		}
		v, err := m.t.readVal(i)
		if err != nil {
			return false, err
		}
		out = append(out, v)
		return false, nil
	})
	return out, err
}

// RemoveKey deletes every entry stored under key (spec.md §4.4 "remove_key
// removes all entries for a key").
func (m *MultiMap[K, V]) RemoveKey(key K) error {
	var toClear []int64
	err := m.t.probe(key, func(i int64, state slotState) (bool, error) {
		if state != slotValid {
			return false, nil
		}
		k, err := m.t.readKey(i)
		if err != nil {
			return false, err
		}
		if m.t.equalKey(k, key) {
			toClear = append(toClear, i)
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	for _, i := range toClear {
		if err := m.t.clearSlot(i); err != nil {
			return err
		}
		m.t.count--
	}
	if len(toClear) == 0 {
		return nil
	}
	if err := m.t.writeHeader(); err != nil {
		return err
	}
	return m.maybeShrink()
}

// RemoveValue deletes the single entry matching (key, value) exactly
// (spec.md §4.4 "remove_value removes one specific (key, value)"). Removing
// a missing pair is a silent no-op.
func (m *MultiMap[K, V]) RemoveValue(key K, value V) error {
	var target int64 = -1
	err := m.t.probe(key, func(i int64, state slotState) (bool, error) {
		if state != slotValid {
			return false, nil
		}
		k, err := m.t.readKey(i)
		if err != nil {
			return false, err
		}
		if !m.t.equalKey(k, key) {
			return false, nil
		}
		v, err := m.t.readVal(i)
		if err != nil {
			return false, err
		}
		if m.equalVal(v, value) {
			target = i
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if target == -1 {
		return nil
	}
	if err := m.t.clearSlot(target); err != nil {
		return err
	}
	m.t.count--
	if err := m.t.writeHeader(); err != nil {
		return err
	}
	return m.maybeShrink()
}

// All returns every (key, value) entry.
func (m *MultiMap[K, V]) All() ([]struct {
	Key K
	Val V
}, error) {
	entries, err := m.t.allEntries()
	if err != nil {
		return nil, err
	}
	out := make([]struct {
		Key K
		Val V
	}, len(entries))
	for i, e := range entries {
		out[i] = struct {
			Key K
			Val V
		}{e.key, e.val}
	}
	return out, nil
}
