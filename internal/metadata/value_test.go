package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	t.Run("accepts the scalar kinds", func(t *testing.T) {
		v, err := FromAny("eu-west")
		require.NoError(t, err)
		assert.Equal(t, KindString, v.Kind())

		v, err = FromAny(42)
		require.NoError(t, err)
		assert.Equal(t, KindInt, v.Kind())

		v, err = FromAny(int64(42))
		require.NoError(t, err)
		assert.Equal(t, KindInt, v.Kind())

		v, err = FromAny(2.5)
		require.NoError(t, err)
		assert.Equal(t, KindFloat, v.Kind())

		v, err = FromAny(true)
		require.NoError(t, err)
		assert.Equal(t, KindBool, v.Kind())
	})

	t.Run("json numbers keep their kind", func(t *testing.T) {
		v, err := FromAny(json.Number("7"))
		require.NoError(t, err)
		n, ok := v.AsInt()
		require.True(t, ok)
		assert.Equal(t, int64(7), n)

		v, err = FromAny(json.Number("7.0"))
		require.NoError(t, err)
		f, ok := v.AsFloat()
		require.True(t, ok)
		assert.Equal(t, 7.0, f)

		v, err = FromAny(json.Number("1e3"))
		require.NoError(t, err)
		assert.Equal(t, KindFloat, v.Kind())
	})

	t.Run("rejects non-scalar values", func(t *testing.T) {
		_, err := FromAny([]string{"a"})
		assert.Error(t, err)

		_, err = FromAny(map[string]any{"nested": 1})
		assert.Error(t, err)

		_, err = FromAny(nil)
		assert.Error(t, err)
	})
}

func TestValueComparisons(t *testing.T) {
	t.Run("equal is kind aware", func(t *testing.T) {
		assert.True(t, Int(3).Equal(Int(3)))
		assert.False(t, Int(3).Equal(Float(3)))
		assert.False(t, String("3").Equal(Int(3)))
		assert.True(t, Bool(true).Equal(Bool(true)))
	})

	t.Run("ordering within a kind", func(t *testing.T) {
		assert.True(t, Int(1).Less(Int(2)))
		assert.True(t, Float(1.5).Less(Float(2.5)))
		assert.True(t, String("a").Less(String("b")))
		assert.True(t, Int(2).Greater(Int(1)))
	})

	t.Run("kind mismatches and booleans are unordered", func(t *testing.T) {
		assert.False(t, Int(1).Less(Float(2)))
		assert.False(t, Float(2).Greater(Int(1)))
		assert.False(t, Bool(false).Less(Bool(true)))
		assert.False(t, Bool(true).Greater(Bool(false)))
	})
}

func TestValueJSONRoundTrip(t *testing.T) {
	t.Run("int survives a round trip as int", func(t *testing.T) {
		data, err := json.Marshal(Int(5))
		require.NoError(t, err)
		assert.Equal(t, "5", string(data))

		var v Value
		require.NoError(t, json.Unmarshal(data, &v))
		assert.Equal(t, KindInt, v.Kind())
		assert.True(t, v.Equal(Int(5)))
	})

	t.Run("float keeps its fraction", func(t *testing.T) {
		data, err := json.Marshal(Float(2.5))
		require.NoError(t, err)

		var v Value
		require.NoError(t, json.Unmarshal(data, &v))
		assert.Equal(t, KindFloat, v.Kind())
		assert.True(t, v.Equal(Float(2.5)))
	})

	t.Run("map round trip", func(t *testing.T) {
		m := Map{
			"region":  String("eu-west"),
			"shard":   Int(4),
			"load":    Float(0.75),
			"healthy": Bool(true),
		}
		data, err := json.Marshal(m)
		require.NoError(t, err)

		var got Map
		require.NoError(t, json.Unmarshal(data, &got))
		require.Len(t, got, 4)
		for k, v := range m {
			gv, ok := got.Get(k)
			require.True(t, ok, k)
			assert.True(t, gv.Equal(v), k)
		}
	})
}

func TestMapClone(t *testing.T) {
	m := Map{"region": String("us-east")}
	c := m.Clone()
	c["region"] = String("eu-west")

	v, _ := m.Get("region")
	assert.True(t, v.Equal(String("us-east")))

	assert.Nil(t, Map(nil).Clone())
}

func TestMapFromAny(t *testing.T) {
	m, err := MapFromAny(map[string]any{"zone": "b", "weight": json.Number("3")})
	require.NoError(t, err)
	v, ok := m.Get("weight")
	require.True(t, ok)
	assert.Equal(t, KindInt, v.Kind())

	_, err = MapFromAny(map[string]any{"bad": []int{1}})
	assert.Error(t, err)

	got, err := MapFromAny(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
