package driver

import (
	"fmt"
	"net/http"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/etlerr"
)

// Options is one of CSVOptions, GeoJSONOptions or GeoParquetOptions. The set
// is closed: the interface cannot be implemented outside this package.
type Options interface {
	common() Common
}

// Common holds the settings every driver understands.
type Common struct {
	// Client fetches http(s) locations; a default client is used when nil.
	Client         *http.Client
	GeometryColumn string
	BatchSize      int
	ChunkSize      int
}

// CSVOptions configure the CSV driver.
type CSVOptions struct {
	Common
	// GeometryType is a hint from geo.GeometryTypes, "" for any.
	GeometryType          string
	SchemaInferMaxRecords int
	Delimiter             rune
	HasHeader             bool
}

// GeoJSONLayout selects how the GeoJSON writer frames features.
type GeoJSONLayout int

// Layouts.
const (
	FeatureCollection GeoJSONLayout = iota
	NewlineDelimited
)

// GeoJSONOptions configure the GeoJSON driver.
type GeoJSONOptions struct {
	Common
	SchemaInferMaxBytes    int64
	SchemaInferMaxFeatures int
	Layout                 GeoJSONLayout
	Pretty                 bool
}

// GeoParquetOptions configure the GeoParquet driver.
type GeoParquetOptions struct {
	Common
	// Compression is zstd, snappy, gzip, lz4 or uncompressed.
	Compression  string
	RowGroupSize int64
}

func (o CSVOptions) common() Common        { return o.Common }
func (o GeoJSONOptions) common() Common    { return o.Common }
func (o GeoParquetOptions) common() Common { return o.Common }

// CommonOf returns the shared settings of any variant, defaults for nil.
func CommonOf(o Options) Common {
	if o == nil {
		return defaultCommon()
	}

	return o.common()
}

func defaultCommon() Common {
	return Common{
		GeometryColumn: config.DefaultGeometryColumn,
		BatchSize:      config.DefaultBatchSize,
		ChunkSize:      config.DefaultChunkSize,
	}
}

// DefaultCSVOptions returns CSV options with a header row and comma delimiter.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Common:                defaultCommon(),
		SchemaInferMaxRecords: config.DefaultSchemaInferMaxFeatures,
		Delimiter:             ',',
		HasHeader:             true,
	}
}

// DefaultGeoJSONOptions returns FeatureCollection output and the default
// inference window.
func DefaultGeoJSONOptions() GeoJSONOptions {
	return GeoJSONOptions{
		Common:                 defaultCommon(),
		SchemaInferMaxBytes:    config.DefaultSchemaInferMaxBytes,
		SchemaInferMaxFeatures: config.DefaultSchemaInferMaxFeatures,
	}
}

// DefaultGeoParquetOptions returns zstd compressed output.
func DefaultGeoParquetOptions() GeoParquetOptions {
	return GeoParquetOptions{
		Common:      defaultCommon(),
		Compression: config.DefaultCompression,
	}
}

// FromConfig builds the options variant for driverName from the loaded
// configuration. Unknown drivers get nil.
func FromConfig(driverName string, cfg *config.Config) Options {
	c := Common{
		GeometryColumn: cfg.GeometryColumn,
		BatchSize:      cfg.BatchSize,
		ChunkSize:      cfg.ChunkSize,
	}

	switch driverName {
	case "CSV":
		o := DefaultCSVOptions()
		o.Common = c
		o.SchemaInferMaxRecords = cfg.SchemaInferMaxFeatures
		o.Delimiter = []rune(cfg.CSV.Delimiter)[0]
		o.HasHeader = !cfg.CSV.NoHeader
		o.GeometryType = cfg.CSV.GeometryType
		if cfg.CSV.GeometryColumn != "" {
			o.GeometryColumn = cfg.CSV.GeometryColumn
		}
		return o

	case "GeoJSON":
		o := DefaultGeoJSONOptions()
		o.Common = c
		o.SchemaInferMaxBytes = cfg.SchemaInferMaxBytes
		o.SchemaInferMaxFeatures = cfg.SchemaInferMaxFeatures
		return o

	case "GeoParquet":
		o := DefaultGeoParquetOptions()
		o.Common = c
		o.Compression = cfg.GeoParquet.Compression
		o.RowGroupSize = cfg.GeoParquet.RowGroupSize
		return o

	default:
		return nil
	}
}

// WithClient returns o with the HTTP client set.
func WithClient(o Options, client *http.Client) Options {
	switch v := o.(type) {
	case CSVOptions:
		v.Client = client
		return v
	case GeoJSONOptions:
		v.Client = client
		return v
	case GeoParquetOptions:
		v.Client = client
		return v
	default:
		return o
	}
}

// AsCSV narrows o to CSV options. nil yields the defaults.
func AsCSV(o Options) (CSVOptions, error) {
	switch v := o.(type) {
	case nil:
		return DefaultCSVOptions(), nil
	case CSVOptions:
		return v, nil
	default:
		return CSVOptions{}, mismatch("CSV", o)
	}
}

// AsGeoJSON narrows o to GeoJSON options. nil yields the defaults.
func AsGeoJSON(o Options) (GeoJSONOptions, error) {
	switch v := o.(type) {
	case nil:
		return DefaultGeoJSONOptions(), nil
	case GeoJSONOptions:
		return v, nil
	default:
		return GeoJSONOptions{}, mismatch("GeoJSON", o)
	}
}

// AsGeoParquet narrows o to GeoParquet options. nil yields the defaults.
func AsGeoParquet(o Options) (GeoParquetOptions, error) {
	switch v := o.(type) {
	case nil:
		return DefaultGeoParquetOptions(), nil
	case GeoParquetOptions:
		return v, nil
	default:
		return GeoParquetOptions{}, mismatch("GeoParquet", o)
	}
}

func mismatch(driverName string, o Options) error {
	return &etlerr.ConfigError{
		Option:  driverName,
		Message: fmt.Sprintf("got %T options", o),
	}
}
