package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// Round-trip (spec.md §8 property 1): for every supported DbValue v,
// deserialize(serialize(v)) = v.
func TestDbValueMarshalRoundtrip(t *testing.T) {
	cases := []DbValue{
		I64(-42),
		U64(42),
		F64(3.5),
		F64(math.NaN()),
		String("a long string"),
		Bytes([]byte{1, 2, 3}),
		VecI64([]int64{1, -2, 3}),
		VecU64([]uint64{1, 2, 3}),
		VecF64([]float64{1.5, 2.5}),
		VecString([]string{"a", "bb", "ccc"}),
	}
	for _, v := range cases {
		b, err := v.MarshalAgdb()
		require.NoError(t, err)

		var got DbValue
		n, err := got.UnmarshalAgdb(b)
		require.NoError(t, err)
		require.Equal(t, len(b), n)
		require.True(t, v.Equal(got), "roundtrip mismatch for tag %d", v.Tag())
	}
}

func TestDbValueOrderingTotalWithNaN(t *testing.T) {
	nan := F64(math.NaN())
	one := F64(1.0)
	inf := F64(math.Inf(1))

	require.Equal(t, 1, nan.Compare(inf), "NaN must sort as the greatest float")
	require.Equal(t, -1, one.Compare(nan))
	require.Equal(t, 0, nan.Compare(F64(math.NaN())))
}

func TestDbValueCrossTypeOrderingIsTotal(t *testing.T) {
	values := []DbValue{I64(1), U64(1), F64(1), String("1"), Bytes([]byte("1"))}
	for i := range values {
		for j := range values {
			a, b := values[i].Compare(values[j]), values[j].Compare(values[i])
			require.Equal(t, -a, b, "Compare must be antisymmetric for %d,%d", i, j)
		}
	}
}
