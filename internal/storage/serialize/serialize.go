// Package serialize provides the stable little-endian wire format shared by
// every persisted structure in the store: scalars, length-prefixed strings
// and byte slices, vectors of fixed- or variable-size elements, and the
// fixed-size helpers the record store's bootstrap header relies on.
//
// The format never changes shape between versions of this module: a value
// written by an older build must still decode under a newer one. Tags and
// header sizes listed here are load-bearing constants, not implementation
// detail.
package serialize

import (
	"encoding/binary"
	"fmt"
)

// Serializable is implemented by types with a self-describing, variable-size
// encoding (used inside vectors-of-variable-size-elements, see EncodeVec).
type Serializable interface {
	MarshalAgdb() ([]byte, error)
	UnmarshalAgdb([]byte) (int, error) // returns bytes consumed
}

// PutUint64 / Uint64 etc. are thin wrappers kept local so every call site in
// this module agrees on byte order (little-endian, per spec) without having
// to repeat binary.LittleEndian at each use.

func PutU64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func U64(b []byte) uint64       { return binary.LittleEndian.Uint64(b) }

func PutI64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
func I64(b []byte) int64       { return int64(binary.LittleEndian.Uint64(b)) }

func PutU32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func U32(b []byte) uint32       { return binary.LittleEndian.Uint32(b) }

// EncodeU64 / EncodeI64 / EncodeF64 encode a single fixed-size scalar.
func EncodeU64(v uint64) []byte {
	b := make([]byte, 8)
	PutU64(b, v)
	return b
}

func EncodeI64(v int64) []byte {
	b := make([]byte, 8)
	PutI64(b, v)
	return b
}

// EncodeBytes length-prefixes an arbitrary byte slice: u64 length + bytes.
func EncodeBytes(v []byte) []byte {
	out := make([]byte, 8+len(v))
	PutU64(out, uint64(len(v)))
	copy(out[8:], v)
	return out
}

// DecodeBytes reads a length-prefixed byte slice starting at offset 0 of b,
// returning the slice and the number of bytes consumed.
func DecodeBytes(b []byte) ([]byte, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("serialize: truncated length prefix (have %d bytes)", len(b))
	}
	n := U64(b)
	end := 8 + n
	if uint64(len(b)) < end {
		return nil, 0, fmt.Errorf("serialize: truncated payload (want %d bytes, have %d)", n, len(b)-8)
	}
	return b[8:end], int(end), nil
}

// EncodeString is EncodeBytes over the UTF-8 representation of s.
func EncodeString(s string) []byte { return EncodeBytes([]byte(s)) }

// DecodeString is DecodeBytes interpreted as UTF-8.
func DecodeString(b []byte) (string, int, error) {
	raw, n, err := DecodeBytes(b)
	if err != nil {
		return "", 0, err
	}
	return string(raw), n, nil
}

// EncodeFixedVec encodes a vector of fixed-size elements: u64 length followed
// by the contiguous elements, each encoded by elemSize bytes via enc.
func EncodeFixedVec[T any](items []T, elemSize int, enc func(T) []byte) []byte {
	out := make([]byte, 8, 8+len(items)*elemSize)
	PutU64(out, uint64(len(items)))
	for _, it := range items {
		out = append(out, enc(it)...)
	}
	return out
}

// DecodeFixedVec is the inverse of EncodeFixedVec.
func DecodeFixedVec[T any](b []byte, elemSize int, dec func([]byte) T) ([]T, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("serialize: truncated vector length")
	}
	n := U64(b)
	items := make([]T, 0, n)
	off := 8
	for i := uint64(0); i < n; i++ {
		if len(b) < off+elemSize {
			return nil, 0, fmt.Errorf("serialize: truncated vector element %d", i)
		}
		items = append(items, dec(b[off:off+elemSize]))
		off += elemSize
	}
	return items, off, nil
}

// EncodeVarVec encodes a vector of variable-size, self-encoding elements:
// u64 length followed by the concatenation of each element's own encoding.
func EncodeVarVec[T Serializable](items []T) ([]byte, error) {
	out := make([]byte, 8)
	PutU64(out, uint64(len(items)))
	for _, it := range items {
		enc, err := it.MarshalAgdb()
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeVarVec is the inverse of EncodeVarVec. newT must return a fresh,
// zero-valued element ready for UnmarshalAgdb.
func DecodeVarVec[T Serializable](b []byte, newT func() T) ([]T, int, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("serialize: truncated vector length")
	}
	n := U64(b)
	items := make([]T, 0, n)
	off := 8
	for i := uint64(0); i < n; i++ {
		t := newT()
		consumed, err := t.UnmarshalAgdb(b[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("serialize: decode vector element %d: %w", i, err)
		}
		items = append(items, t)
		off += consumed
	}
	return items, off, nil
}

// Tag is a one-byte discriminant for a tagged sum (see value.DbValue).
type Tag = byte
