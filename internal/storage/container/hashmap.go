package container

import (
	"fmt"

	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

// slotState is the per-slot tag of spec.md §4.4's "(state, key, value)"
// triple. Insert reuses the first Deleted slot on a key's probe chain;
// rehash drops every Deleted slot (one of the Open Questions spec.md §9
// leaves for the implementer to freeze).
type slotState byte

const (
	slotEmpty   slotState = 0
	slotValid   slotState = 1
	slotDeleted slotState = 2
)

const tableHeaderSize = 16 // count (u64), capacity (u64)

const minCapacity = 64

// table is the shared open-addressing engine behind HashMap and MultiMap. A
// slot's on-disk layout is
//
//	state(1) keyLen(2) key[keyStride] valLen(2) val[valStride]
//
// a fixed stride per table instance rather than a literal fixed-size (K, V)
// pair, so that variable-length keys (aliases are plain strings, spec.md
// §4.7) still support O(1) slot addressing: the stride is sized to the
// largest key/value the caller says it will ever store and stays fixed for
// the table's lifetime. Rehash does not grow it; writeSlot rejects a key or
// value whose encoding is longer than its stride.
type table[K any, V any] struct {
	store *record.Store
	index int64

	keyStride int
	valStride int

	encodeKey func(K) []byte
	decodeKey func([]byte) K
	encodeVal func(V) []byte
	decodeVal func([]byte) V
	hashKey   func(K) uint64
	equalKey  func(K, K) bool

	count    int64
	capacity int64
}

func (t *table[K, V]) slotSize() int64 { return int64(1 + 2 + t.keyStride + 2 + t.valStride) }

func (t *table[K, V]) slotOffset(i int64) int64 {
	return tableHeaderSize + i*t.slotSize()
}

func newTable[K any, V any](store *record.Store, keyStride, valStride int,
	encodeKey func(K) []byte, decodeKey func([]byte) K,
	encodeVal func(V) []byte, decodeVal func([]byte) V,
	hashKey func(K) uint64, equalKey func(K, K) bool,
) (*table[K, V], error) {
	t := &table[K, V]{
		keyStride: keyStride, valStride: valStride,
		encodeKey: encodeKey, decodeKey: decodeKey,
		encodeVal: encodeVal, decodeVal: decodeVal,
		hashKey: hashKey, equalKey: equalKey,
		capacity: minCapacity,
		store:    store,
	}
	idx, err := store.Insert(make([]byte, tableHeaderSize+minCapacity*t.slotSize()))
	if err != nil {
		return nil, fmt.Errorf("container: new table: %w", err)
	}
	t.index = idx
	if err := t.writeHeader(); err != nil {
		return nil, err
	}
	return t, nil
}

func openTable[K any, V any](store *record.Store, index int64, keyStride, valStride int,
	encodeKey func(K) []byte, decodeKey func([]byte) K,
	encodeVal func(V) []byte, decodeVal func([]byte) V,
	hashKey func(K) uint64, equalKey func(K, K) bool,
) (*table[K, V], error) {
	t := &table[K, V]{
		store: store, index: index,
		keyStride: keyStride, valStride: valStride,
		encodeKey: encodeKey, decodeKey: decodeKey,
		encodeVal: encodeVal, decodeVal: decodeVal,
		hashKey: hashKey, equalKey: equalKey,
	}
	header, err := store.ValueAt(index, 0, tableHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("container: open table %d: %w", index, err)
	}
	t.count = int64(serialize.U64(header))
	t.capacity = int64(serialize.U64(header[8:]))
	return t, nil
}

func (t *table[K, V]) writeHeader() error {
	b := make([]byte, tableHeaderSize)
	serialize.PutU64(b, uint64(t.count))
	serialize.PutU64(b[8:], uint64(t.capacity))
	_, err := t.store.InsertAt(t.index, 0, b)
	return err
}

func (t *table[K, V]) readState(i int64) (slotState, error) {
	b, err := t.store.ValueAt(t.index, t.slotOffset(i), 1)
	if err != nil {
		return slotEmpty, err
	}
	return slotState(b[0]), nil
}

func (t *table[K, V]) readKey(i int64) (K, error) {
	var zero K
	b, err := t.store.ValueAt(t.index, t.slotOffset(i)+1, 2+int64(t.keyStride))
	if err != nil {
		return zero, err
	}
	keyLen := int(b[0]) | int(b[1])<<8
	return t.decodeKey(b[2 : 2+keyLen]), nil
}

func (t *table[K, V]) readVal(i int64) (V, error) {
	var zero V
	b, err := t.store.ValueAt(t.index, t.slotOffset(i)+3+int64(t.keyStride), 2+int64(t.valStride))
	if err != nil {
		return zero, err
	}
	valLen := int(b[0]) | int(b[1])<<8
	return t.decodeVal(b[2 : 2+valLen]), nil
}

func (t *table[K, V]) writeSlot(i int64, state slotState, key K, val V) error {
	kb := t.encodeKey(key)
	vb := t.encodeVal(val)
	if len(kb) > t.keyStride {
		return fmt.Errorf("container: encoded key length %d exceeds stride %d", len(kb), t.keyStride)
	}
	if len(vb) > t.valStride {
		return fmt.Errorf("container: encoded value length %d exceeds stride %d", len(vb), t.valStride)
	}
	buf := make([]byte, t.slotSize())
	buf[0] = byte(state)
	buf[1] = byte(len(kb))
	buf[2] = byte(len(kb) >> 8)
	copy(buf[3:], kb)
	valOff := 3 + t.keyStride
	buf[valOff] = byte(len(vb))
	buf[valOff+1] = byte(len(vb) >> 8)
	copy(buf[valOff+2:], vb)
	_, err := t.store.InsertAt(t.index, t.slotOffset(i), buf)
	return err
}

func (t *table[K, V]) clearSlot(i int64) error {
	_, err := t.store.InsertAt(t.index, t.slotOffset(i), []byte{byte(slotDeleted)})
	return err
}

// probe walks the open-addressing chain for key starting at its hash
// bucket, calling visit(slotIndex, state) for every slot until visit
// returns stop=true or an Empty slot is reached (spec.md §4.4 "Probe stop
// conditions").
func (t *table[K, V]) probe(key K, visit func(i int64, state slotState) (stop bool, err error)) error {
	start := int64(t.hashKey(key) % uint64(t.capacity))
	for n := int64(0); n < t.capacity; n++ {
		i := (start + n) % t.capacity
		state, err := t.readState(i)
		if err != nil {
			return err
		}
		stop, err := visit(i, state)
		if err != nil {
			return err
		}
		if stop || state == slotEmpty {
			return nil
		}
	}
	return nil
}

func (t *table[K, V]) growthCapacity() int64 {
	nc := t.capacity
	if nc < minCapacity {
		nc = minCapacity
	}
	for t.count+1 > nc*15/16 {
		nc *= 2
	}
	return nc
}

func (t *table[K, V]) shrinkCapacity() int64 {
	nc := t.capacity
	for nc > minCapacity && t.count <= nc*7/16 {
		nc /= 2
	}
	if nc < minCapacity {
		nc = minCapacity
	}
	return nc
}

// rehash copies every Valid (key, value) into a freshly sized table of
// newCapacity slots (spec.md §4.4 "Rehash"), relocating the backing record.
func (t *table[K, V]) rehash(newCapacity int64, entries []struct {
	key K
	val V
}) error {
	t.capacity = newCapacity
	newSize := tableHeaderSize + newCapacity*t.slotSize()
	zero := make([]byte, newSize)
	serialize.PutU64(zero, uint64(t.count))
	serialize.PutU64(zero[8:], uint64(newCapacity))
	if _, err := t.store.Replace(t.index, zero); err != nil {
		return fmt.Errorf("container: rehash table %d: clear: %w", t.index, err)
	}
	for _, e := range entries {
		placed := false
		err := t.probe(e.key, func(i int64, state slotState) (bool, error) {
			if state != slotValid {
				placed = true
				return true, t.writeSlot(i, slotValid, e.key, e.val)
			}
			return false, nil
		})
		if err != nil {
			return err
		}
		if !placed {
			return fmt.Errorf("container: rehash table %d: no free slot for key", t.index)
		}
	}
	return t.writeHeader()
}

func (t *table[K, V]) allEntries() ([]struct {
	key K
	val V
}, error) {
	var out []struct {
		key K
		val V
	}
	for i := int64(0); i < t.capacity; i++ {
		state, err := t.readState(i)
		if err != nil {
			return nil, err
		}
		if state != slotValid {
			continue
		}
		k, err := t.readKey(i)
		if err != nil {
			return nil, err
		}
		v, err := t.readVal(i)
		if err != nil {
			return nil, err
		}
		out = append(out, struct {
			key K
			val V
		}{k, v})
	}
	return out, nil
}

// HashMap is the unique-key persisted hash map of spec.md §4.4.
type HashMap[K any, V any] struct{ t *table[K, V] }

// NewHashMap creates a fresh, empty persisted hash map. keyStride/valStride
// bound the largest encoded key/value this table will ever hold.
func NewHashMap[K any, V any](store *record.Store, keyStride, valStride int,
	encodeKey func(K) []byte, decodeKey func([]byte) K,
	encodeVal func(V) []byte, decodeVal func([]byte) V,
	hashKey func(K) uint64, equalKey func(K, K) bool,
) (*HashMap[K, V], error) {
	t, err := newTable(store, keyStride, valStride, encodeKey, decodeKey, encodeVal, decodeVal, hashKey, equalKey)
	if err != nil {
		return nil, err
	}
	return &HashMap[K, V]{t: t}, nil
}

// OpenHashMap attaches to an existing hash map record.
func OpenHashMap[K any, V any](store *record.Store, index int64, keyStride, valStride int,
	encodeKey func(K) []byte, decodeKey func([]byte) K,
	encodeVal func(V) []byte, decodeVal func([]byte) V,
	hashKey func(K) uint64, equalKey func(K, K) bool,
) (*HashMap[K, V], error) {
	t, err := openTable(store, index, keyStride, valStride, encodeKey, decodeKey, encodeVal, decodeVal, hashKey, equalKey)
	if err != nil {
		return nil, err
	}
	return &HashMap[K, V]{t: t}, nil
}

// Index returns the backing record.Store logical index.
func (m *HashMap[K, V]) Index() int64 { return m.t.index }

// Len returns the number of entries.
func (m *HashMap[K, V]) Len() int64 { return m.t.count }

// Get looks up key, reporting whether it was present.
func (m *HashMap[K, V]) Get(key K) (V, bool, error) {
	var out V
	var found bool
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
		out, found = v, true
		return true, nil
	})
	return out, found, err
}

// Contains reports whether key is present.
func (m *HashMap[K, V]) Contains(key K) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// Insert sets key to value, replacing any existing value for that key
// (spec.md §4.7 "Inserting an alias that already exists replaces its target
// atomically" generalises to every unique map in this package).
func (m *HashMap[K, V]) Insert(key K, value V) error {
	var firstFree int64 = -1
	var existing int64 = -1
	err := m.t.probe(key, func(i int64, state slotState) (bool, error) {
		switch state {
		case slotEmpty:
			if firstFree == -1 {
				firstFree = i
			}
			return true, nil
		case slotDeleted:
			if firstFree == -1 {
				firstFree = i
			}
			return false, nil
		default: // slotValid
			k, err := m.t.readKey(i)
			if err != nil {
				return false, err
			}
			if m.t.equalKey(k, key) {
				existing = i
				return true, nil
			}
			return false, nil
		}
	})
	if err != nil {
		return err
	}

	if existing >= 0 {
		return m.t.writeSlot(existing, slotValid, key, value)
	}

	if firstFree == -1 {
		// Table was completely full of Valid/Deleted with no terminating
		// Empty slot reachable within capacity steps; force growth first.
		if err := m.grow(); err != nil {
			return err
		}
		return m.Insert(key, value)
	}
	if err := m.t.writeSlot(firstFree, slotValid, key, value); err != nil {
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

func (m *HashMap[K, V]) grow() error {
	entries, err := m.t.allEntries()
	if err != nil {
		return err
	}
	return m.t.rehash(m.t.growthCapacity(), entries)
}

func (m *HashMap[K, V]) shrink() error {
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

// Remove deletes key if present; a missing key is a silent no-op (spec.md
// §7 "idempotent no-ops").
func (m *HashMap[K, V]) Remove(key K) error {
	var target int64 = -1
	err := m.t.probe(key, func(i int64, state slotState) (bool, error) {
		if state != slotValid {
			return false, nil
		}
		k, err := m.t.readKey(i)
		if err != nil {
			return false, err
		}
		if m.t.equalKey(k, key) {
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
	if m.t.capacity > minCapacity && m.t.count <= m.t.capacity*7/16 {
		return m.shrink()
	}
	return nil
}

// All returns every (key, value) pair currently stored.
func (m *HashMap[K, V]) All() ([]struct {
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
