package value

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/agdb-go/agdb/internal/storage/container"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

const maxIndexKeyLength = 256

// Indexes is the directory of secondary indices of spec.md §4.7: one
// persisted multi-map per indexed attribute key, mapping value_handle to
// the set of element indices that carry it. The posting list per handle is
// a roaring.Bitmap rather than a raw multi-map value list — grounded on
// internal/graph/graph.go's fileToNodes map[string]*roaring.Bitmap in the
// teacher, applied here to value_handle -> element-index postings instead
// of file -> node-index postings.
type Indexes struct {
	store  *record.Store
	header int64

	dir  *container.HashMap[string, int64]
	open map[string]*container.MultiMap[int64, []byte]
}

func encodeBitmap(b *roaring.Bitmap) []byte {
	out, err := b.ToBytes()
	if err != nil {
		return nil
	}
	return out
}

func decodeBitmap(b []byte) *roaring.Bitmap {
	bm := roaring.New()
	_ = bm.UnmarshalBinary(b)
	return bm
}

const maxPostingListBytes = 4096

// NewIndexes creates a fresh, empty index directory.
func NewIndexes(store *record.Store) (*Indexes, error) {
	dir, err := container.NewHashMap[string, int64](store, maxIndexKeyLength, 8,
		func(s string) []byte { return []byte(s) },
		func(b []byte) string { return string(b) },
		serialize.EncodeI64, serialize.I64, hashString, equalString)
	if err != nil {
		return nil, fmt.Errorf("value: new indexes: %w", err)
	}
	idx := &Indexes{store: store, dir: dir, open: make(map[string]*container.MultiMap[int64, []byte])}
	header, err := store.Insert(idx.encodeHeader())
	if err != nil {
		return nil, fmt.Errorf("value: new indexes: persist header: %w", err)
	}
	idx.header = header
	return idx, nil
}

// OpenIndexes attaches to an existing index directory.
func OpenIndexes(store *record.Store, headerIndex int64) (*Indexes, error) {
	raw, err := store.Value(headerIndex)
	if err != nil {
		return nil, fmt.Errorf("value: open indexes %d: %w", headerIndex, err)
	}
	dirIdx := serialize.I64(raw)
	dir, err := container.OpenHashMap[string, int64](store, dirIdx, maxIndexKeyLength, 8,
		func(s string) []byte { return []byte(s) },
		func(b []byte) string { return string(b) },
		serialize.EncodeI64, serialize.I64, hashString, equalString)
	if err != nil {
		return nil, fmt.Errorf("value: open indexes %d: %w", headerIndex, err)
	}
	return &Indexes{store: store, header: headerIndex, dir: dir, open: make(map[string]*container.MultiMap[int64, []byte])}, nil
}

func (idx *Indexes) HeaderIndex() int64 { return idx.header }

func (idx *Indexes) encodeHeader() []byte {
	b := make([]byte, 8)
	serialize.PutI64(b, idx.dir.Index())
	return b
}

func equalPostingBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (idx *Indexes) resolve(key string) (*container.MultiMap[int64, []byte], bool, error) {
	if mm, ok := idx.open[key]; ok {
		return mm, true, nil
	}
	mmIdx, ok, err := idx.dir.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	mm, err := container.OpenMultiMap[int64, []byte](idx.store, mmIdx, 8, maxPostingListBytes,
		encodeI64Key, decodeI64Key,
		func(b []byte) []byte { return b },
		func(b []byte) []byte { return b },
		hashI64, equalI64, equalPostingBytes)
	if err != nil {
		return nil, false, err
	}
	idx.open[key] = mm
	return mm, true, nil
}

// HasIndex reports whether key currently has a secondary index.
func (idx *Indexes) HasIndex(key string) (bool, error) { return idx.dir.Contains(key) }

// Keys returns every currently indexed attribute key.
func (idx *Indexes) Keys() ([]string, error) {
	entries, err := idx.dir.All()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out, nil
}

// Create starts an (initially empty) secondary index over key. Back-filling
// existing elements is the query executor's job (it alone can enumerate
// every element's key-value pairs); spec.md §4.8 "Creating scans all
// elements and back-fills".
func (idx *Indexes) Create(key string) error {
	if has, err := idx.dir.Contains(key); err != nil {
		return err
	} else if has {
		return nil
	}
	mm, err := container.NewMultiMap[int64, []byte](idx.store, 8, maxPostingListBytes,
		encodeI64Key, decodeI64Key,
		func(b []byte) []byte { return b },
		func(b []byte) []byte { return b },
		hashI64, equalI64, equalPostingBytes)
	if err != nil {
		return fmt.Errorf("value: create index %q: %w", key, err)
	}
	if err := idx.dir.Insert(key, mm.Index()); err != nil {
		return err
	}
	idx.open[key] = mm
	return nil
}

// Drop removes the secondary index over key. A missing key is a no-op.
func (idx *Indexes) Drop(key string) error {
	mmIdx, ok, err := idx.dir.Get(key)
	if err != nil || !ok {
		return err
	}
	if err := idx.dir.Remove(key); err != nil {
		return err
	}
	delete(idx.open, key)
	return idx.store.Remove(mmIdx)
}

// Add records that element carries value_handle under key.
func (idx *Indexes) Add(key string, handle int64, element int64) error {
	mm, ok, err := idx.resolve(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	postings, err := mm.Values(handle)
	if err != nil {
		return err
	}
	var bm *roaring.Bitmap
	if len(postings) == 0 {
		bm = roaring.New()
	} else {
		bm = decodeBitmap(postings[0])
		if err := mm.RemoveValue(handle, postings[0]); err != nil {
			return err
		}
	}
	bm.Add(uint32(element))
	return mm.Insert(handle, encodeBitmap(bm))
}

// Remove records that element no longer carries value_handle under key.
func (idx *Indexes) Remove(key string, handle int64, element int64) error {
	mm, ok, err := idx.resolve(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	postings, err := mm.Values(handle)
	if err != nil || len(postings) == 0 {
		return err
	}
	bm := decodeBitmap(postings[0])
	if err := mm.RemoveValue(handle, postings[0]); err != nil {
		return err
	}
	bm.Remove(uint32(element))
	if bm.IsEmpty() {
		return nil
	}
	return mm.Insert(handle, encodeBitmap(bm))
}

// Lookup returns every element carrying value_handle under key.
func (idx *Indexes) Lookup(key string, handle int64) ([]int64, error) {
	mm, ok, err := idx.resolve(key)
	if err != nil || !ok {
		return nil, err
	}
	postings, err := mm.Values(handle)
	if err != nil || len(postings) == 0 {
		return nil, err
	}
	bm := decodeBitmap(postings[0])
	out := make([]int64, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		// Add stores negative edge ids as their uint32 bit pattern;
		// int32 restores the sign.
		out = append(out, int64(int32(it.Next())))
	}
	return out, nil
}
