package driver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/schema"
)

func testRegistry() *Registry {
	return NewRegistry().MustRegister(
		Catalog{D: Driver{
			ShortName:    "GeoJSON",
			LongName:     "GeoJSON",
			Extensions:   []string{"geojson", "json"},
			Capabilities: Capabilities{Info: Supported, Read: Supported, Write: Supported},
		}},
		Catalog{D: Driver{
			ShortName:    "CSV",
			LongName:     "Comma Separated Value (.csv)",
			Extensions:   []string{"csv"},
			Capabilities: Capabilities{Info: Supported, Read: Supported, Write: Supported},
		}},
		Catalog{D: Driver{
			ShortName:    "FlatGeobuf",
			LongName:     "FlatGeobuf",
			Extensions:   []string{"fgb"},
			Capabilities: Capabilities{Info: Planned, Read: Planned, Write: Planned},
		}},
	)
}

func TestSupportStatus(t *testing.T) {
	assert.True(t, Supported.IsSupported())
	assert.False(t, NotSupported.IsSupported())
	assert.False(t, Planned.IsSupported())

	assert.True(t, Supported.IsAvailable())
	assert.False(t, NotSupported.IsAvailable())
	assert.True(t, Planned.IsAvailable())

	assert.Equal(t, "Not Supported", NotSupported.String())
}

func TestFindIsCaseInsensitive(t *testing.T) {
	r := testRegistry()

	f, err := r.Find("geojson")
	require.NoError(t, err)
	assert.Equal(t, "GeoJSON", f.Driver().ShortName)

	_, err = r.Find("InvalidDriver")
	var de *etlerr.DriverError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []string{"CSV", "FlatGeobuf", "GeoJSON"}, de.Available)
	assert.Contains(t, err.Error(), "Available drivers: CSV, FlatGeobuf, GeoJSON")
}

func TestRegisterDuplicate(t *testing.T) {
	r := testRegistry()
	err := r.Register(Catalog{D: Driver{ShortName: "csv"}})
	assert.Error(t, err)

	assert.Panics(t, func() { r.MustRegister(Catalog{D: Driver{ShortName: "CSV"}}) })
}

func TestRequireCapability(t *testing.T) {
	r := testRegistry()

	_, err := r.Require("flatgeobuf", OpRead)
	var de *etlerr.DriverError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "read", de.Operation)

	_, err = r.Require("csv", OpWrite)
	assert.NoError(t, err)
}

func TestListings(t *testing.T) {
	r := testRegistry()
	assert.Equal(t, []string{"CSV", "FlatGeobuf", "GeoJSON"}, r.Names())
	assert.Len(t, r.Available(), 2)
	assert.Len(t, r.WithCapability(true, true, false), 2)
	assert.Len(t, r.WithCapability(false, false, false), 3)
}

func TestDetectByPath(t *testing.T) {
	r := testRegistry()

	f, err := r.DetectByPath("data/Cities.GeoJSON")
	require.NoError(t, err)
	assert.Equal(t, "GeoJSON", f.Driver().ShortName)

	f, err = r.DetectByPath("https://example.com/places.csv.gz?sig=abc")
	require.NoError(t, err)
	assert.Equal(t, "CSV", f.Driver().ShortName)

	f, err = r.DetectByPath("x.fgb")
	require.NoError(t, err)
	assert.Equal(t, "FlatGeobuf", f.Driver().ShortName)

	_, err = r.DetectByPath("x.shp")
	var ce *etlerr.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestCatalogFactoryRefusesWork(t *testing.T) {
	c := Catalog{D: Driver{ShortName: "Shapefile"}}
	_, err := c.OpenReader(context.Background(), "a.shp", nil)
	assert.Contains(t, err.Error(), "does not support read")
	_, err = c.CreateWriter("a.shp", schema.Schema{}, nil)
	assert.Contains(t, err.Error(), "does not support write")
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "cities", TableName("/data/cities.geojson.gz"))
	assert.Equal(t, "roads", TableName("https://example.com/x/roads.parquet?sig=1"))
	assert.Equal(t, "dataset", TableName(""))
}

func TestOptionsNarrowing(t *testing.T) {
	o, err := AsCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, ',', o.Delimiter)
	assert.True(t, o.HasHeader)

	_, err = AsGeoJSON(DefaultCSVOptions())
	var ce *etlerr.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Error(), "driver.CSVOptions")

	pq, err := AsGeoParquet(DefaultGeoParquetOptions())
	require.NoError(t, err)
	assert.Equal(t, "zstd", pq.Compression)

	assert.Equal(t, config.DefaultBatchSize, CommonOf(nil).BatchSize)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CSV.Delimiter = ";"
	cfg.CSV.GeometryColumn = "wkt"
	cfg.BatchSize = 10

	o, err := AsCSV(FromConfig("CSV", cfg))
	require.NoError(t, err)
	assert.Equal(t, ';', o.Delimiter)
	assert.Equal(t, "wkt", o.GeometryColumn)
	assert.Equal(t, 10, o.BatchSize)

	g, err := AsGeoJSON(FromConfig("GeoJSON", cfg))
	require.NoError(t, err)
	assert.Equal(t, "geometry", g.GeometryColumn)

	assert.Nil(t, FromConfig("FlatGeobuf", cfg))

	client := &http.Client{}
	withClient, err := AsGeoJSON(WithClient(g, client))
	require.NoError(t, err)
	assert.Same(t, client, withClient.Client)
}
