package geojson

import (
	"context"

	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/schema"
)

// Factory is the GeoJSON driver.
type Factory struct{}

// Driver implements driver.Factory.
func (Factory) Driver() driver.Driver {
	return driver.Driver{
		ShortName:  "GeoJSON",
		LongName:   "GeoJSON",
		Extensions: []string{"geojson", "json", "geojsonl", "geojsonseq", "geojsons", "ndjson", "jsonl"},
		Capabilities: driver.Capabilities{
			Info:  driver.Supported,
			Read:  driver.Supported,
			Write: driver.Supported,
		},
	}
}

// InferSchema implements driver.Factory.
func (Factory) InferSchema(ctx context.Context, location string, opts driver.Options) (schema.Schema, error) {
	o, err := driver.AsGeoJSON(opts)
	if err != nil {
		return schema.Schema{}, err
	}

	return InferSchema(ctx, location, o)
}

// OpenReader implements driver.Factory.
func (Factory) OpenReader(ctx context.Context, location string, opts driver.Options) (driver.RecordReader, error) {
	o, err := driver.AsGeoJSON(opts)
	if err != nil {
		return nil, err
	}

	return OpenReader(ctx, location, o)
}

// CreateWriter implements driver.Factory.
func (Factory) CreateWriter(location string, s schema.Schema, opts driver.Options) (driver.RecordWriter, error) {
	o, err := driver.AsGeoJSON(opts)
	if err != nil {
		return nil, err
	}

	return CreateWriter(location, s, o)
}
