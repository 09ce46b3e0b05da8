package container

import (
	"math/rand"
	"testing"

	"github.com/agdb-go/agdb/internal/storage/backend"
	"github.com/agdb-go/agdb/internal/storage/record"
	"github.com/agdb-go/agdb/internal/storage/serialize"
	"github.com/stretchr/testify/require"
)

func encodeKeyI64(v int64) []byte { return serialize.EncodeI64(v) }
func decodeKeyI64(b []byte) int64 { return serialize.I64(b) }
func encodeValI64(v int64) []byte { return serialize.EncodeI64(v) }
func decodeValI64(b []byte) int64 { return serialize.I64(b) }
func equalI64Val(a, b int64) bool { return a == b }
func hashKeyI64(v int64) uint64   { return StableHash(serialize.EncodeI64(v)) }

// Hash-map roundtrip (spec.md §8 property 6): after any sequence of
// insert/remove, the map agrees with a plain map model.
func TestHashMapRoundtripAgainstModel(t *testing.T) {
	store, err := record.Open(backend.KindMemory, t.Name())
	require.NoError(t, err)

	m, err := NewHashMap[int64, int64](store, 8, 8, encodeKeyI64, decodeKeyI64, encodeValI64, decodeValI64, hashKeyI64, equalI64Val)
	require.NoError(t, err)

	model := make(map[int64]int64)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		key := rng.Int63n(80)
		if rng.Intn(3) == 0 {
			delete(model, key)
			require.NoError(t, m.Remove(key))
			continue
		}
		val := rng.Int63()
		model[key] = val
		require.NoError(t, m.Insert(key, val))
	}

	require.Equal(t, int64(len(model)), m.Len())
	for key, want := range model {
		got, ok, err := m.Get(key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	all, err := m.All()
	require.NoError(t, err)
	require.Len(t, all, len(model))
}

func TestMultiMapInsertAndRemoveValue(t *testing.T) {
	store, err := record.Open(backend.KindMemory, t.Name())
	require.NoError(t, err)

	m, err := NewMultiMap[int64, int64](store, 8, 8, encodeKeyI64, decodeKeyI64, encodeValI64, decodeValI64, hashKeyI64, equalI64Val, equalI64Val)
	require.NoError(t, err)

	require.NoError(t, m.Insert(1, 10))
	require.NoError(t, m.Insert(1, 20))
	require.NoError(t, m.Insert(1, 30))

	values, err := m.Values(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{10, 20, 30}, values)

	require.NoError(t, m.RemoveValue(1, 20))
	values, err = m.Values(1)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{10, 30}, values)

	require.NoError(t, m.RemoveKey(1))
	values, err = m.Values(1)
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestStableHashIsDeterministic(t *testing.T) {
	b := []byte("agdb")
	require.Equal(t, StableHash(b), StableHash([]byte("agdb")))
	require.NotEqual(t, StableHash(b), StableHash([]byte("agdb2")))
}
