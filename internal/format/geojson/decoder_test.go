package geojson

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
)

const singleFeature = `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1.0,2.0]},"properties":{"name":"test"}}]}`

// decodeChunks feeds data in pieces of size n and finishes the decoder.
func decodeChunks(t *testing.T, data []byte, n int) []geo.Record {
	t.Helper()

	d := NewDecoder("test")
	var out []geo.Record
	for len(data) > 0 {
		size := min(n, len(data))
		recs, err := d.Decode(data[:size])
		require.NoError(t, err)
		out = append(out, recs...)
		data = data[size:]
	}
	recs, err := d.Finish()
	require.NoError(t, err)

	return append(out, recs...)
}

func testCollection() []byte {
	var b strings.Builder
	b.WriteString("{\n  \"type\": \"FeatureCollection\",\n  \"name\": \"cities\",\n  \"features\": [\n")
	names := []string{"Zürich", "東京", `brace } in "quotes"`, "plain", "emoji 🌍"}
	for i, name := range names {
		if i > 0 {
			b.WriteString(",\n")
		}
		nameJSON, _ := json.Marshal(name)
		fmt.Fprintf(&b,
			`    {"type":"Feature","geometry":{"type":"Point","coordinates":[%d.5,-%d.25]},"properties":{"id":%d,"name":%s,"tags":{"nested":{"x":"{"}},"ok":true}}`,
			i, i, i, nameJSON)
	}
	b.WriteString(",\n    {\"type\":\"Feature\",\"geometry\":null,\"properties\":null}")
	b.WriteString("\n  ]\n}\n")

	return []byte(b.String())
}

func TestDecodeSingleChunk(t *testing.T) {
	d := NewDecoder("single")
	recs, err := d.Decode([]byte(singleFeature))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "test", recs[0].Properties["name"])
	assert.Equal(t, orb.Point{1, 2}, recs[0].Geometry)
	assert.True(t, d.Done())
	assert.Equal(t, 1, d.Decoded())
}

func TestDecodeThreeChunks(t *testing.T) {
	data := []byte(singleFeature)
	midKey := strings.Index(singleFeature, `"features"`) + 5
	midNumber := strings.Index(singleFeature, "1.0") + 2

	d := NewDecoder("chunks")
	recs, err := d.Decode(data[:midKey])
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = d.Decode(data[midKey:midNumber])
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = d.Decode(data[midNumber:])
	require.NoError(t, err)

	want, err := NewDecoder("whole").Decode(data)
	require.NoError(t, err)
	assert.Equal(t, want, recs)
	assert.True(t, d.Done())
}

func TestDecodeChunkingIdempotent(t *testing.T) {
	data := testCollection()
	whole := decodeChunks(t, data, len(data))
	require.Len(t, whole, 6)
	assert.Equal(t, `brace } in "quotes"`, whole[2].Properties["name"])
	assert.Equal(t, json.Number("4"), whole[4].Properties["id"])
	assert.Nil(t, whole[5].Geometry)
	assert.Empty(t, whole[5].Properties)

	for _, n := range []int{1, 2, 3, 5, 7, 64, 4096} {
		t.Run(fmt.Sprintf("chunk_%d", n), func(t *testing.T) {
			assert.Equal(t, whole, decodeChunks(t, data, n))
		})
	}
}

func TestDecodeSplitRune(t *testing.T) {
	data := []byte(`{"features":[{"type":"Feature","geometry":null,"properties":{"city":"東京"}}]}`)
	cut := bytes.Index(data, []byte("東")) + 1

	d := NewDecoder("utf8")
	recs, err := d.Decode(data[:cut])
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = d.Decode(data[cut:])
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "東京", recs[0].Properties["city"])
}

func TestDecodeEmptyArray(t *testing.T) {
	d := NewDecoder("empty")
	recs, err := d.Decode([]byte(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.True(t, d.Done())

	recs, err = d.Decode([]byte(`garbage after done`))
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Zero(t, d.Buffered())
}

func TestFinishIncompleteObject(t *testing.T) {
	d := NewDecoder("incomplete")
	recs, err := d.Decode([]byte(`{"type":"FeatureCollection","features":[{"a":1`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = d.Finish()
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.False(t, d.Done())
}

func TestHeaderWhitespaceForms(t *testing.T) {
	feature := `{"type":"Feature","geometry":null,"properties":{"k":1}}]}`
	for _, header := range []string{
		`{"type":"FeatureCollection","features":[`,
		`{"type":"FeatureCollection", "features" : [ `,
	} {
		d := NewDecoder("header")
		recs, err := d.Decode([]byte(header))
		require.NoError(t, err)
		assert.Empty(t, recs)
		assert.Equal(t, stateExpectingFeature, d.state, header)

		recs, err = d.Decode([]byte(feature))
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	}
}

func TestHeaderNotFoundCap(t *testing.T) {
	d := NewDecoder("big.json")
	chunk := bytes.Repeat([]byte("x"), 64*1024)

	recs, err := d.Decode([]byte(`{"type":"FeatureCollection","padding":"`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	for d.Buffered() <= MaxBufferSize {
		_, err = d.Decode(chunk)
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, etlerr.ErrHeaderNotFound))
	assert.Contains(t, err.Error(), fmt.Sprintf("first %d bytes", MaxBufferSize))
	assert.Contains(t, err.Error(), "big.json")
}

func TestMalformedFeatureWaitsForCap(t *testing.T) {
	d := NewDecoder("shape")
	recs, err := d.Decode([]byte(`{"features":[{"type":"Polygon"}`))
	require.NoError(t, err, "a complete object that is not a feature waits below the cap")
	assert.Empty(t, recs)

	_, err = d.Decode(bytes.Repeat([]byte(" "), MaxBufferSize))
	require.Error(t, err)
	assert.True(t, errors.Is(err, etlerr.ErrMalformedFeature))
	assert.Contains(t, err.Error(), "Failed to parse GeoJSON feature")
}

func TestBadGeometryIsFatal(t *testing.T) {
	d := NewDecoder("geom")
	_, err := d.Decode([]byte(`{"features":[{"type":"Feature","geometry":{"type":"Circle","radius":1},"properties":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, etlerr.ErrMalformedFeature))
}

func TestCommaOrCloseCap(t *testing.T) {
	d := NewDecoder("sep")
	recs, err := d.Decode([]byte(`{"features":[{"type":"Feature","geometry":null,"properties":{}} x`))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = d.Decode(bytes.Repeat([]byte("x"), MaxBufferSize))
	require.Error(t, err)
	assert.True(t, errors.Is(err, etlerr.ErrMalformedFeature))
	assert.Contains(t, err.Error(), "after feature 1")
}

func BenchmarkDecodeLargeFeature(b *testing.B) {
	payload := strings.Repeat("a", 256*1024)
	data := []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","geometry":null,"properties":{"blob":"` +
		payload + `"}}]}`)

	for _, size := range []int{512, 8 * 1024, 64 * 1024} {
		b.Run(fmt.Sprintf("chunk_%d", size), func(b *testing.B) {
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				d := NewDecoder("bench")
				for off := 0; off < len(data); off += size {
					if _, err := d.Decode(data[off:min(off+size, len(data))]); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
