package value

import (
	"fmt"

	"github.com/agdb-go/agdb/internal/storage/container"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

// maxValueEncodingSize bounds the largest DbValue this catalogue's forward
// dictionary will key on (container.HashMap needs a fixed per-table stride;
// see internal/storage/container/hashmap.go's doc comment). Intern returns
// an error for a value whose encoding is longer than this (e.g. a very long
// string or byte array), so such a value cannot be stored as an element key
// or value either, since element attributes are always interned.
const maxValueEncodingSize = 512

const catalogueHeaderSize = 8

// Catalogue is the persisted dictionary of distinct DbValues, interned by
// handle with reference counts (spec.md §3 "Value catalogue", §4.7). Each
// handle is simply the logical index of the record.Store record holding
// (refcount, encoded value) — reusing the store's own free-list as the
// handle allocator, the same self-referential trick the record store uses
// for its own index table.
type Catalogue struct {
	store   *record.Store
	header  int64
	forward *container.HashMap[DbValue, int64]
}

func encodeValueKey(v DbValue) []byte {
	b, err := v.MarshalAgdb()
	if err != nil {
		return nil
	}
	return b
}

func decodeValueKey(b []byte) DbValue {
	var v DbValue
	_, _ = v.UnmarshalAgdb(b)
	return v
}

func hashValueKey(v DbValue) uint64   { return v.Hash() }
func equalValueKey(a, b DbValue) bool { return a.Equal(b) }

// New creates a fresh, empty catalogue.
func New(store *record.Store) (*Catalogue, error) {
	forward, err := container.NewHashMap[DbValue, int64](store, maxValueEncodingSize, 8,
		encodeValueKey, decodeValueKey, serialize.EncodeI64, serialize.I64, hashValueKey, equalValueKey)
	if err != nil {
		return nil, fmt.Errorf("value: new catalogue: %w", err)
	}
	c := &Catalogue{store: store, forward: forward}
	header, err := store.Insert(c.encodeHeader())
	if err != nil {
		return nil, fmt.Errorf("value: new catalogue: persist header: %w", err)
	}
	c.header = header
	return c, nil
}

// Open attaches to an existing catalogue by its header's logical index.
func Open(store *record.Store, headerIndex int64) (*Catalogue, error) {
	raw, err := store.Value(headerIndex)
	if err != nil {
		return nil, fmt.Errorf("value: open catalogue %d: %w", headerIndex, err)
	}
	forwardIdx := serialize.I64(raw)
	forward, err := container.OpenHashMap[DbValue, int64](store, forwardIdx, maxValueEncodingSize, 8,
		encodeValueKey, decodeValueKey, serialize.EncodeI64, serialize.I64, hashValueKey, equalValueKey)
	if err != nil {
		return nil, fmt.Errorf("value: open catalogue %d: %w", headerIndex, err)
	}
	return &Catalogue{store: store, header: headerIndex, forward: forward}, nil
}

// HeaderIndex returns the logical index of the catalogue's own header.
func (c *Catalogue) HeaderIndex() int64 { return c.header }

func (c *Catalogue) encodeHeader() []byte {
	b := make([]byte, catalogueHeaderSize)
	serialize.PutI64(b, c.forward.Index())
	return b
}

// Intern returns the handle for v, creating and refcounting it at 1 on
// first insertion or bumping the refcount of an existing handle (spec.md
// §3 "A value-catalogue handle is created on first insertion of a distinct
// value, its refcount tracks references").
func (c *Catalogue) Intern(v DbValue) (int64, error) {
	if handle, ok, err := c.forward.Get(v); err != nil {
		return 0, err
	} else if ok {
		return handle, c.bumpRefcount(handle)
	}

	enc, err := v.MarshalAgdb()
	if err != nil {
		return 0, fmt.Errorf("value: intern: %w", err)
	}
	payload := make([]byte, 8+len(enc))
	serialize.PutU64(payload, 1)
	copy(payload[8:], enc)

	handle, err := c.store.Insert(payload)
	if err != nil {
		return 0, fmt.Errorf("value: intern: %w", err)
	}
	if err := c.forward.Insert(v, handle); err != nil {
		return 0, err
	}
	return handle, nil
}

func (c *Catalogue) bumpRefcount(handle int64) error {
	raw, err := c.store.Value(handle)
	if err != nil {
		return err
	}
	rc := serialize.U64(raw) + 1
	serialize.PutU64(raw, rc)
	_, err = c.store.Replace(handle, raw)
	return err
}

// Release decrements handle's refcount, releasing the handle and its slot
// (and the forward dictionary entry) once it reaches zero (spec.md §3).
func (c *Catalogue) Release(handle int64) error {
	raw, err := c.store.Value(handle)
	if err != nil {
		return fmt.Errorf("value: release %d: %w", handle, err)
	}
	rc := serialize.U64(raw)
	if rc <= 1 {
		v := decodeValueKey(raw[8:])
		if err := c.forward.Remove(v); err != nil {
			return err
		}
		return c.store.Remove(handle)
	}
	serialize.PutU64(raw, rc-1)
	_, err = c.store.Replace(handle, raw)
	return err
}

// Value resolves handle back to its DbValue.
func (c *Catalogue) Value(handle int64) (DbValue, error) {
	raw, err := c.store.Value(handle)
	if err != nil {
		return DbValue{}, fmt.Errorf("value: value %d: %w", handle, err)
	}
	var v DbValue
	if _, err := v.UnmarshalAgdb(raw[8:]); err != nil {
		return DbValue{}, fmt.Errorf("value: decode %d: %w", handle, err)
	}
	return v, nil
}

// Handle looks up the handle for an already-interned value, if any.
func (c *Catalogue) Handle(v DbValue) (int64, bool, error) {
	return c.forward.Get(v)
}
