// Package value implements the typed value model of spec.md §3/§4.7:
// DbValue (a closed tagged sum with stable hash and total ordering), the
// value catalogue (interned handles with refcounts), the alias map, and
// per-attribute secondary indices.
package value

import (
	"fmt"
	"math"

	"github.com/agdb-go/agdb/internal/storage/serialize"
)

// Tag is the on-disk discriminant for DbValue, stable across versions
// (spec.md §6 "DbValue tag assignments").
type Tag = byte

const (
	TagI64       Tag = 0
	TagU64       Tag = 1
	TagF64       Tag = 2
	TagString    Tag = 3
	TagBytes     Tag = 4
	TagVecI64    Tag = 5
	TagVecU64    Tag = 6
	TagVecF64    Tag = 7
	TagVecString Tag = 8
)

// DbValue is the closed set of value types storable as a key or value on a
// graph element (spec.md §3).
type DbValue struct {
	tag Tag

	i64       int64
	u64       uint64
	f64       float64
	str       string
	bytes     []byte
	vecI64    []int64
	vecU64    []uint64
	vecF64    []float64
	vecString []string
}

func I64(v int64) DbValue       { return DbValue{tag: TagI64, i64: v} }
func U64(v uint64) DbValue      { return DbValue{tag: TagU64, u64: v} }
func F64(v float64) DbValue     { return DbValue{tag: TagF64, f64: v} }
func String(v string) DbValue   { return DbValue{tag: TagString, str: v} }
func Bytes(v []byte) DbValue    { return DbValue{tag: TagBytes, bytes: v} }
func VecI64(v []int64) DbValue  { return DbValue{tag: TagVecI64, vecI64: v} }
func VecU64(v []uint64) DbValue { return DbValue{tag: TagVecU64, vecU64: v} }
func VecF64(v []float64) DbValue { return DbValue{tag: TagVecF64, vecF64: v} }
func VecString(v []string) DbValue { return DbValue{tag: TagVecString, vecString: v} }

func (v DbValue) Tag() Tag { return v.tag }

func (v DbValue) AsI64() (int64, bool)          { return v.i64, v.tag == TagI64 }
func (v DbValue) AsU64() (uint64, bool)         { return v.u64, v.tag == TagU64 }
func (v DbValue) AsF64() (float64, bool)        { return v.f64, v.tag == TagF64 }
func (v DbValue) AsString() (string, bool)      { return v.str, v.tag == TagString }
func (v DbValue) AsBytes() ([]byte, bool)       { return v.bytes, v.tag == TagBytes }
func (v DbValue) AsVecI64() ([]int64, bool)     { return v.vecI64, v.tag == TagVecI64 }
func (v DbValue) AsVecU64() ([]uint64, bool)    { return v.vecU64, v.tag == TagVecU64 }
func (v DbValue) AsVecF64() ([]float64, bool)   { return v.vecF64, v.tag == TagVecF64 }
func (v DbValue) AsVecString() ([]string, bool) { return v.vecString, v.tag == TagVecString }

// MarshalAgdb encodes the tagged-sum wire format (spec.md §6: "tagged sums
// as u8 tag + variant payload").
func (v DbValue) MarshalAgdb() ([]byte, error) {
	switch v.tag {
	case TagI64:
		return append([]byte{v.tag}, serialize.EncodeI64(v.i64)...), nil
	case TagU64:
		return append([]byte{v.tag}, serialize.EncodeU64(v.u64)...), nil
	case TagF64:
		return append([]byte{v.tag}, serialize.EncodeU64(math.Float64bits(v.f64))...), nil
	case TagString:
		return append([]byte{v.tag}, serialize.EncodeString(v.str)...), nil
	case TagBytes:
		return append([]byte{v.tag}, serialize.EncodeBytes(v.bytes)...), nil
	case TagVecI64:
		return append([]byte{v.tag}, serialize.EncodeFixedVec(v.vecI64, 8, serialize.EncodeI64)...), nil
	case TagVecU64:
		return append([]byte{v.tag}, serialize.EncodeFixedVec(v.vecU64, 8, serialize.EncodeU64)...), nil
	case TagVecF64:
		return append([]byte{v.tag}, serialize.EncodeFixedVec(v.vecF64, 8, func(f float64) []byte {
			return serialize.EncodeU64(math.Float64bits(f))
		})...), nil
	case TagVecString:
		out := []byte{v.tag}
		body, err := serialize.EncodeVarVec(stringSlice(v.vecString))
		if err != nil {
			return nil, err
		}
		return append(out, body...), nil
	default:
		return nil, fmt.Errorf("value: marshal: unknown tag %d", v.tag)
	}
}

// UnmarshalAgdb decodes from b, returning bytes consumed.
func (v *DbValue) UnmarshalAgdb(b []byte) (int, error) {
	if len(b) < 1 {
		return 0, fmt.Errorf("value: unmarshal: empty input")
	}
	tag := b[0]
	rest := b[1:]
	switch tag {
	case TagI64:
		*v = DbValue{tag: tag, i64: serialize.I64(rest)}
		return 9, nil
	case TagU64:
		*v = DbValue{tag: tag, u64: serialize.U64(rest)}
		return 9, nil
	case TagF64:
		*v = DbValue{tag: tag, f64: math.Float64frombits(serialize.U64(rest))}
		return 9, nil
	case TagString:
		s, n, err := serialize.DecodeString(rest)
		if err != nil {
			return 0, err
		}
		*v = DbValue{tag: tag, str: s}
		return 1 + n, nil
	case TagBytes:
		bs, n, err := serialize.DecodeBytes(rest)
		if err != nil {
			return 0, err
		}
		cp := make([]byte, len(bs))
		copy(cp, bs)
		*v = DbValue{tag: tag, bytes: cp}
		return 1 + n, nil
	case TagVecI64:
		items, n, err := serialize.DecodeFixedVec(rest, 8, serialize.I64)
		if err != nil {
			return 0, err
		}
		*v = DbValue{tag: tag, vecI64: items}
		return 1 + n, nil
	case TagVecU64:
		items, n, err := serialize.DecodeFixedVec(rest, 8, serialize.U64)
		if err != nil {
			return 0, err
		}
		*v = DbValue{tag: tag, vecU64: items}
		return 1 + n, nil
	case TagVecF64:
		items, n, err := serialize.DecodeFixedVec(rest, 8, func(b []byte) float64 {
			return math.Float64frombits(serialize.U64(b))
		})
		if err != nil {
			return 0, err
		}
		*v = DbValue{tag: tag, vecF64: items}
		return 1 + n, nil
	case TagVecString:
		items, n, err := serialize.DecodeVarVec(rest, func() *stringElem { return &stringElem{} })
		if err != nil {
			return 0, err
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.s
		}
		*v = DbValue{tag: tag, vecString: out}
		return 1 + n, nil
	default:
		return 0, fmt.Errorf("value: unmarshal: unknown tag %d", tag)
	}
}

// stringElem is a Serializable adapter so []string can ride EncodeVarVec/
// DecodeVarVec (itself built for self-describing elements).
type stringElem struct{ s string }

func (s stringElem) MarshalAgdb() ([]byte, error) { return serialize.EncodeString(s.s), nil }
func (s *stringElem) UnmarshalAgdb(b []byte) (int, error) {
	str, n, err := serialize.DecodeString(b)
	if err != nil {
		return 0, err
	}
	s.s = str
	return n, nil
}

func stringSlice(ss []string) []*stringElem {
	out := make([]*stringElem, len(ss))
	for i, s := range ss {
		out[i] = &stringElem{s}
	}
	return out
}

// typeRank totally orders the tag space itself, so values of different
// types have a well-defined relative order (spec.md §4.7 "ordering is
// total").
func typeRank(tag Tag) int { return int(tag) }

// Equal reports value equality (ignoring provenance), agreeing with Hash
// (spec.md §6 "total ordering ... agreeing with stable hash on equality").
func (v DbValue) Equal(other DbValue) bool { return v.Compare(other) == 0 }

// Compare implements the DbValue total order. Floats use a total order
// where NaN compares as the single greatest F64 value of any sign (spec.md
// §9 Open Question, frozen here): this keeps Compare a strict weak order
// without tracking NaN payload bits.
func (v DbValue) Compare(other DbValue) int {
	if v.tag != other.tag {
		return sign(typeRank(v.tag) - typeRank(other.tag))
	}
	switch v.tag {
	case TagI64:
		if v.i64 < other.i64 {
			return -1
		} else if v.i64 > other.i64 {
			return 1
		}
		return 0
	case TagU64:
		if v.u64 < other.u64 {
			return -1
		} else if v.u64 > other.u64 {
			return 1
		}
		return 0
	case TagF64:
		return compareF64(v.f64, other.f64)
	case TagString:
		switch {
		case v.str < other.str:
			return -1
		case v.str > other.str:
			return 1
		default:
			return 0
		}
	case TagBytes:
		return compareBytes(v.bytes, other.bytes)
	case TagVecI64:
		return compareSlices(v.vecI64, other.vecI64, func(a, b int64) int {
			if a < b {
				return -1
			} else if a > b {
				return 1
			}
			return 0
		})
	case TagVecU64:
		return compareSlices(v.vecU64, other.vecU64, func(a, b uint64) int {
			if a < b {
				return -1
			} else if a > b {
				return 1
			}
			return 0
		})
	case TagVecF64:
		return compareSlices(v.vecF64, other.vecF64, compareF64)
	case TagVecString:
		return compareSlices(v.vecString, other.vecString, func(a, b string) int {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		})
	default:
		return 0
	}
}

func sign(i int) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	default:
		return 0
	}
}

func sign64(i int64) int {
	switch {
	case i < 0:
		return -1
	case i > 0:
		return 1
	default:
		return 0
	}
}

func compareF64(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN && bNaN {
		return 0
	}
	if aNaN {
		return 1
	}
	if bNaN {
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return sign(int(a[i]) - int(b[i]))
		}
	}
	return sign(len(a) - len(b))
}

func compareSlices[T any](a, b []T, cmp func(T, T) int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := cmp(a[i], b[i]); c != 0 {
			return c
		}
	}
	return sign(len(a) - len(b))
}

// Hash is the stable hash consumed by the persisted hash maps and the value
// catalogue's forward dictionary (spec.md §6). It hashes the canonical wire
// encoding, with NaN canonicalised to a fixed bit pattern and -0 to +0 first
// so that Hash agrees with Equal (all NaNs of a given tag hash identically,
// and so do both zeros).
func (v DbValue) Hash() uint64 {
	canon := v
	switch v.tag {
	case TagF64:
		if math.IsNaN(v.f64) {
			canon.f64 = math.NaN()
		} else if v.f64 == 0 {
			canon.f64 = 0
		}
	case TagVecF64:
		cp := make([]float64, len(v.vecF64))
		for i, f := range v.vecF64 {
			if math.IsNaN(f) {
				cp[i] = math.NaN()
			} else if f == 0 {
				cp[i] = 0
			} else {
				cp[i] = f
			}
		}
		canon.vecF64 = cp
	}
	b, err := canon.MarshalAgdb()
	if err != nil {
		return 0
	}
	return stableHashBytes(b)
}
