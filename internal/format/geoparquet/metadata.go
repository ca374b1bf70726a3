// Package geoparquet reads and writes GeoParquet files: Parquet with a WKB
// geometry column described by the "geo" key-value metadata.
package geoparquet

import (
	"fmt"

	"github.com/goccy/go-json"
)

const (
	// MetadataKey is the Parquet key-value metadata key of the geo document.
	MetadataKey = "geo"
	// Version of the GeoParquet metadata written.
	Version = "1.1.0"
	// EncodingWKB is the only geometry encoding written and read.
	EncodingWKB = "WKB"
)

// Metadata is the file-level geo document.
type Metadata struct {
	Version       string                    `json:"version"`
	PrimaryColumn string                    `json:"primary_column"`
	Columns       map[string]ColumnMetadata `json:"columns"`
}

// ColumnMetadata describes one geometry column.
type ColumnMetadata struct {
	Encoding      string    `json:"encoding"`
	GeometryTypes []string  `json:"geometry_types"`
	BBox          []float64 `json:"bbox,omitempty"`
	CRS           any       `json:"crs,omitempty"`
}

// ParseMetadata decodes and checks the geo document.
func ParseMetadata(value string) (*Metadata, error) {
	md := &Metadata{}
	if err := json.Unmarshal([]byte(value), md); err != nil {
		return nil, fmt.Errorf("invalid %q metadata: %w", MetadataKey, err)
	}

	col, ok := md.Columns[md.PrimaryColumn]
	if !ok {
		return nil, fmt.Errorf("primary column %q has no metadata", md.PrimaryColumn)
	}
	if col.Encoding != EncodingWKB {
		return nil, fmt.Errorf("unsupported geometry encoding %q for column %q", col.Encoding, md.PrimaryColumn)
	}

	return md, nil
}
