// Package container implements the persisted generic containers of spec.md
// §4.4/§4.5: an indexed vector and an open-addressed hash map / multi-map,
// both backed by a single record.Store record and grown geometrically.
package container

import (
	"fmt"

	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
)

// vectorHeaderSize is the (length, capacity) prefix stored ahead of a
// Vector's elements inside its record payload.
const vectorHeaderSize = 16

// Vector is a persisted dense array of fixed-size elements (spec.md §2
// "Indexed vector"), used for the graph's four parallel arrays (from, to,
// from_meta, to_meta) among others. Growth doubles capacity (minimum 8)
// whenever a Push would overflow it; there is no automatic shrink, mirroring
// the record store's "relocate on grow, compact explicitly" policy (§9).
type Vector[T any] struct {
	store    *record.Store
	index    int64
	elemSize int
	encode   func(T) []byte
	decode   func([]byte) T

	length   int64
	capacity int64
}

// NewVector creates a fresh, empty vector backed by a new record.
func NewVector[T any](store *record.Store, elemSize int, encode func(T) []byte, decode func([]byte) T) (*Vector[T], error) {
	idx, err := store.Insert(make([]byte, vectorHeaderSize))
	if err != nil {
		return nil, fmt.Errorf("container: new vector: %w", err)
	}
	return &Vector[T]{store: store, index: idx, elemSize: elemSize, encode: encode, decode: decode}, nil
}

// OpenVector attaches to an existing vector record by its logical index.
func OpenVector[T any](store *record.Store, index int64, elemSize int, encode func(T) []byte, decode func([]byte) T) (*Vector[T], error) {
	v := &Vector[T]{store: store, index: index, elemSize: elemSize, encode: encode, decode: decode}
	header, err := store.ValueAt(index, 0, vectorHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("container: open vector %d: %w", index, err)
	}
	v.length = int64(serialize.U64(header))
	v.capacity = int64(serialize.U64(header[8:]))
	return v, nil
}

// Index returns the backing record.Store logical index, for callers that
// persist a handle to this vector inside another structure.
func (v *Vector[T]) Index() int64 { return v.index }

// Len returns the number of live elements.
func (v *Vector[T]) Len() int64 { return v.length }

func (v *Vector[T]) writeHeader() error {
	b := make([]byte, vectorHeaderSize)
	serialize.PutU64(b, uint64(v.length))
	serialize.PutU64(b[8:], uint64(v.capacity))
	_, err := v.store.InsertAt(v.index, 0, b)
	return err
}

// Get returns the element at i.
func (v *Vector[T]) Get(i int64) (T, error) {
	var zero T
	if i < 0 || i >= v.length {
		return zero, fmt.Errorf("container: vector %d: index %d out of range (len %d)", v.index, i, v.length)
	}
	b, err := v.store.ValueAt(v.index, vectorHeaderSize+i*int64(v.elemSize), int64(v.elemSize))
	if err != nil {
		return zero, fmt.Errorf("container: vector %d: get %d: %w", v.index, i, err)
	}
	return v.decode(b), nil
}

// Set overwrites the element at i. i must be < Len(); use Push to grow.
func (v *Vector[T]) Set(i int64, value T) error {
	if i < 0 || i >= v.length {
		return fmt.Errorf("container: vector %d: index %d out of range (len %d)", v.index, i, v.length)
	}
	_, err := v.store.InsertAt(v.index, vectorHeaderSize+i*int64(v.elemSize), v.encode(value))
	if err != nil {
		return fmt.Errorf("container: vector %d: set %d: %w", v.index, i, err)
	}
	return nil
}

func (v *Vector[T]) ensureCapacity(n int64) error {
	if n <= v.capacity {
		return nil
	}
	newCap := v.capacity
	if newCap == 0 {
		newCap = 8
	}
	for newCap < n {
		newCap *= 2
	}
	newSize := vectorHeaderSize + newCap*int64(v.elemSize)
	if _, err := v.store.ResizeValue(v.index, newSize); err != nil {
		return fmt.Errorf("container: vector %d: grow to %d: %w", v.index, newCap, err)
	}
	v.capacity = newCap
	return nil
}

// Push appends value, growing the backing record if necessary.
func (v *Vector[T]) Push(value T) error {
	if err := v.ensureCapacity(v.length + 1); err != nil {
		return err
	}
	if _, err := v.store.InsertAt(v.index, vectorHeaderSize+v.length*int64(v.elemSize), v.encode(value)); err != nil {
		return fmt.Errorf("container: vector %d: push: %w", v.index, err)
	}
	v.length++
	return v.writeHeader()
}

// Pop removes and returns the last element.
func (v *Vector[T]) Pop() (T, error) {
	var zero T
	if v.length == 0 {
		return zero, fmt.Errorf("container: vector %d: pop from empty vector", v.index)
	}
	last, err := v.Get(v.length - 1)
	if err != nil {
		return zero, err
	}
	v.length--
	if err := v.writeHeader(); err != nil {
		return zero, err
	}
	return last, nil
}

// All decodes and returns every live element in order.
func (v *Vector[T]) All() ([]T, error) {
	out := make([]T, v.length)
	for i := int64(0); i < v.length; i++ {
		e, err := v.Get(i)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
