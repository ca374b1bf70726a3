// Package format assembles the driver registry from the format packages.
package format

import (
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/format/csvwkt"
	"github.com/woozymasta/geoetl/internal/format/geojson"
	"github.com/woozymasta/geoetl/internal/format/geoparquet"
)

var planned = driver.Capabilities{Info: driver.Planned, Read: driver.Planned, Write: driver.Planned}

// Default returns a registry with every implemented driver plus the formats
// that are listed but not implemented yet.
func Default() *driver.Registry {
	return driver.NewRegistry().MustRegister(
		csvwkt.Factory{},
		geojson.Factory{},
		geoparquet.Factory{},
		driver.Catalog{D: driver.Driver{
			ShortName:    "FlatGeobuf",
			LongName:     "FlatGeobuf",
			Extensions:   []string{"fgb"},
			Capabilities: planned,
		}},
		driver.Catalog{D: driver.Driver{
			ShortName:    "GPKG",
			LongName:     "GeoPackage",
			Extensions:   []string{"gpkg"},
			Capabilities: planned,
		}},
		driver.Catalog{D: driver.Driver{
			ShortName:    "ESRI Shapefile",
			LongName:     "ESRI Shapefile",
			Extensions:   []string{"shp"},
			Capabilities: driver.Capabilities{Info: driver.Planned, Read: driver.Planned},
		}},
	)
}
