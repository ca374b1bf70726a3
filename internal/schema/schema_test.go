package schema

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoetl/internal/geo"
)

func TestTypeUpdate(t *testing.T) {
	cases := []struct {
		name   string
		start  Type
		values []any
		want   Type
	}{
		{"null stays null", Null, []any{nil, nil}, Null},
		{"bools", Null, []any{true, nil, false}, Boolean},
		{"ints", Null, []any{json.Number("1"), json.Number("-7")}, Int64},
		{"int then float", Null, []any{json.Number("1"), json.Number("1.5")}, Float64},
		{"float then int", Null, []any{json.Number("1.5"), json.Number("2")}, Float64},
		{"bool then number", Null, []any{true, json.Number("2")}, Utf8},
		{"number then bool", Null, []any{json.Number("2"), true}, Utf8},
		{"string", Null, []any{"a"}, Utf8},
		{"array", Int64, []any{[]any{}}, Utf8},
		{"object", Null, []any{map[string]any{}}, Utf8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.start
			for _, v := range tc.values {
				got = got.Update(v)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestInferSortsAndAppendsGeometry(t *testing.T) {
	records := []geo.Record{
		{Properties: map[string]any{"name": "A", "value": json.Number("1")}},
		{Properties: map[string]any{"name": "B", "active": true, "value": json.Number("1.5")}},
	}

	s := Infer(records, "geometry")
	require.Len(t, s.Fields, 4)
	assert.Equal(t, "active", s.Fields[0].Name)
	assert.Equal(t, Boolean, s.Fields[0].Type)
	assert.Equal(t, "name", s.Fields[1].Name)
	assert.Equal(t, Utf8, s.Fields[1].Type)
	assert.Equal(t, Float64, s.Fields[2].Type)
	assert.Equal(t, "geometry", s.Fields[3].Name)
	assert.True(t, s.Fields[3].Geometry)

	g, ok := s.GeometryField()
	require.True(t, ok)
	assert.Equal(t, "geometry", g.Name)
	assert.Len(t, s.Properties(), 3)
}

func TestInferAllNullBecomesUtf8(t *testing.T) {
	s := Infer([]geo.Record{{Properties: map[string]any{"x": nil}}}, "geom")
	assert.Equal(t, Utf8, s.Fields[0].Type)
}

func TestParseType(t *testing.T) {
	for _, ty := range []Type{Null, Boolean, Int64, Float64, Utf8} {
		got, err := ParseType(ty.String())
		require.NoError(t, err)
		assert.Equal(t, ty, got)
	}
	_, err := ParseType("Decimal")
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	i, ok, err := Int("id", json.Number("42"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	_, _, err = Int("id", json.Number("4.2"))
	var te *TypeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "id", te.Field)

	_, ok, err = Float("v", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Bool("flag", "yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found string")

	s, ok := String(map[string]any{"a": json.Number("1")})
	assert.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, s)
}

func TestDetectAndMerge(t *testing.T) {
	assert.Equal(t, Int64, Detect("12"))
	assert.Equal(t, Float64, Detect("1.25"))
	assert.Equal(t, Boolean, Detect("true"))
	assert.Equal(t, Utf8, Detect("Alice"))
	assert.Equal(t, Null, Detect(""))

	assert.Equal(t, Float64, Merge(Int64, Float64))
	assert.Equal(t, Int64, Merge(Null, Int64))
	assert.Equal(t, Utf8, Merge(Boolean, Int64))

	v, err := Parse(Int64, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = Parse(Float64, "")
	require.NoError(t, err)
	assert.Nil(t, v)
}
