package geoparquet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
)

func roadSchema() schema.Schema {
	return schema.Schema{Fields: []schema.Field{
		{Name: "lanes", Type: schema.Int64, Nullable: true},
		{Name: "name", Type: schema.Utf8, Nullable: true},
		{Name: "paved", Type: schema.Boolean, Nullable: true},
		{Name: "speed", Type: schema.Float64, Nullable: true},
		{Name: "geometry", Nullable: true, Geometry: true, GeometryType: "geometry"},
	}}
}

func roads(n int) geo.Batch {
	out := make(geo.Batch, n)
	for i := range out {
		out[i] = geo.Record{
			Properties: map[string]any{
				"lanes": int64(i + 1),
				"name":  fmt.Sprintf("road-%d", i),
				"paved": i%2 == 0,
				"speed": 30.5 + float64(i),
			},
			Geometry: orb.LineString{{float64(i), 0}, {float64(i), 10}},
		}
	}
	out[0].Geometry = orb.Point{-5, -1}
	out[n-1].Properties["name"] = nil
	out[n-1].Geometry = nil

	return out
}

func writeRoads(t *testing.T, opts driver.GeoParquetOptions, batches ...geo.Batch) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "roads.parquet")
	w, err := CreateWriter(path, roadSchema(), opts)
	require.NoError(t, err)
	for _, b := range batches {
		require.NoError(t, w.WriteBatch(b))
	}
	require.NoError(t, w.Close())

	return path
}

func readAll(t *testing.T, location string, opts driver.GeoParquetOptions) ([]geo.Record, *Reader) {
	t.Helper()

	r, err := OpenReader(context.Background(), location, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	var all []geo.Record
	require.NoError(t, r.ReadBatches(context.Background(), func(b geo.Batch) error {
		assert.LessOrEqual(t, len(b), opts.BatchSize)
		all = append(all, b...)
		return nil
	}))

	return all, r
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, codec := range []string{"zstd", "snappy", "uncompressed"} {
		t.Run(codec, func(t *testing.T) {
			opts := driver.DefaultGeoParquetOptions()
			opts.Compression = codec
			opts.BatchSize = 2

			path := writeRoads(t, opts, roads(5), nil, roads(5))
			all, r := readAll(t, path, opts)
			require.Len(t, all, 10)
			assert.Equal(t, int64(10), r.NumRows())

			s := r.Schema()
			require.Len(t, s.Fields, 5)
			assert.Equal(t, schema.Int64, s.Fields[0].Type)
			assert.Equal(t, schema.Utf8, s.Fields[1].Type)
			assert.Equal(t, schema.Boolean, s.Fields[2].Type)
			assert.Equal(t, schema.Float64, s.Fields[3].Type)
			assert.True(t, s.Fields[4].Geometry)

			assert.Equal(t, orb.Point{-5, -1}, all[0].Geometry)
			assert.Equal(t, orb.LineString{{2, 0}, {2, 10}}, all[2].Geometry)
			assert.Equal(t, int64(3), all[2].Properties["lanes"])
			assert.Equal(t, "road-2", all[2].Properties["name"])
			assert.Equal(t, true, all[2].Properties["paved"])
			assert.Equal(t, 32.5, all[2].Properties["speed"])
			assert.Nil(t, all[4].Geometry)
			assert.Nil(t, all[4].Properties["name"])
			assert.Positive(t, r.Stats().BytesRead)
		})
	}
}

func TestGeoMetadata(t *testing.T) {
	path := writeRoads(t, driver.DefaultGeoParquetOptions(), roads(4))
	_, r := readAll(t, path, driver.DefaultGeoParquetOptions())

	md := r.Metadata()
	require.NotNil(t, md)
	assert.Equal(t, Version, md.Version)
	assert.Equal(t, "geometry", md.PrimaryColumn)

	col := md.Columns["geometry"]
	assert.Equal(t, EncodingWKB, col.Encoding)
	assert.Equal(t, []string{"LineString", "Point"}, col.GeometryTypes)
	assert.Equal(t, []float64{-5, -1, 2, 10}, col.BBox)
}

func TestWriterAddsGeometryColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.parquet")
	s := schema.Schema{Fields: []schema.Field{{Name: "id", Type: schema.Int64, Nullable: true}}}

	opts := driver.DefaultGeoParquetOptions()
	opts.GeometryColumn = "geom"
	w, err := CreateWriter(path, s, opts)
	require.NoError(t, err)
	require.NoError(t, w.WriteBatch(geo.Batch{{Properties: map[string]any{"id": int64(1)}}}))
	require.NoError(t, w.Close())

	all, r := readAll(t, path, driver.DefaultGeoParquetOptions())
	require.Len(t, all, 1)
	assert.Equal(t, "geom", r.Metadata().PrimaryColumn)
	assert.Empty(t, r.Metadata().Columns["geom"].GeometryTypes)
	assert.Nil(t, r.Metadata().Columns["geom"].BBox)
}

func TestWriterRejectsMistypedProperty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.parquet")
	w, err := CreateWriter(path, roadSchema(), driver.DefaultGeoParquetOptions())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	err = w.WriteBatch(geo.Batch{{Properties: map[string]any{"lanes": "two"}}})
	var te *schema.TypeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "lanes", te.Field)
	assert.Contains(t, err.Error(), "record 1")
}

func TestCodec(t *testing.T) {
	_, err := Codec("ZSTD")
	assert.NoError(t, err)

	_, err = Codec("brotli")
	var ce *etlerr.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestReadRemote(t *testing.T) {
	path := writeRoads(t, driver.DefaultGeoParquetOptions(), roads(3))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	opts := driver.DefaultGeoParquetOptions()
	all, r := readAll(t, srv.URL+"/roads.parquet", opts)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(len(data)), r.Stats().BytesRead)
	assert.Len(t, r.Stats().Digest, 16)
}

func TestOpenNotParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.parquet")
	require.NoError(t, os.WriteFile(path, []byte("not a parquet file at all"), 0644))

	_, err := OpenReader(context.Background(), path, driver.DefaultGeoParquetOptions())
	var re *etlerr.ReadError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, etlerr.KindParse, re.Kind)
}

func TestParseMetadata(t *testing.T) {
	_, err := ParseMetadata(`{"version":"1.0.0","primary_column":"g","columns":{"g":{"encoding":"point"}}}`)
	assert.ErrorContains(t, err, "unsupported geometry encoding")

	_, err = ParseMetadata(`{"version":"1.0.0","primary_column":"g","columns":{}}`)
	assert.ErrorContains(t, err, "has no metadata")

	md, err := ParseMetadata(`{"version":"1.0.0","primary_column":"g","columns":{"g":{"encoding":"WKB","geometry_types":["Polygon"]}}}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Polygon"}, md.Columns["g"].GeometryTypes)
}

func TestFactory(t *testing.T) {
	f := Factory{}
	assert.True(t, f.Driver().MatchesPath("x/roads.parquet"))

	_, err := f.CreateWriter("x.parquet", roadSchema(), driver.DefaultCSVOptions())
	var ce *etlerr.ConfigError
	assert.True(t, errors.As(err, &ce))
}
