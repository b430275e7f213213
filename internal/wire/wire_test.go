package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_ScenarioOnePayload(t *testing.T) {
	// spec.md §8 scenario 1: {bool true, uint 42, str "Hello world!",
	// array[1,2,3], map{"one":1,"two":2,"three":3}}.
	items := NewBuilder().
		Append(Of(true)).
		Append(OfUint(42)).
		Append(OfString("Hello world!")).
		Append(OfArray([]Value{OfInt(1), OfInt(2), OfInt(3)})).
		Append(OfMap(map[string]Value{
			"one":   OfInt(1),
			"two":   OfInt(2),
			"three": OfInt(3),
		})).
		FinishArray()

	buf := Encode(nil, items)
	got, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	require.Equal(t, TagArray, got.Tag)
	require.Len(t, got.Array, 5)
	assert.Equal(t, true, got.Array[0].Bool)
	assert.EqualValues(t, 42, got.Array[1].Uint)
	assert.Equal(t, "Hello world!", got.Array[2].Str)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got.Array[3].Array[0].Int, got.Array[3].Array[1].Int, got.Array[3].Array[2].Int})
	assert.EqualValues(t, 2, got.Array[4].Map["two"].Int)
}

func TestRoundTrip_Primitives(t *testing.T) {
	cases := []Value{
		Of(false),
		OfInt(-7),
		OfUint(0xFFFFFFFFFFFFFFFF),
		OfFloat(3.14159),
		OfString(""),
		OfBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
	}
	for _, v := range cases {
		buf := Encode(nil, v)
		got, n, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		assert.Equal(t, v.Tag, got.Tag)
	}
}
