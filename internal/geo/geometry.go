package geo

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeometryTypes lists the geometry type hints accepted by drivers, lowercased.
var GeometryTypes = []string{
	"geometry", "point", "linestring", "polygon",
	"multipoint", "multilinestring", "multipolygon",
}

// ParseGeometryType validates a geometry type hint. An empty hint means "geometry".
func ParseGeometryType(hint string) (string, error) {
	if hint == "" {
		return "geometry", nil
	}
	lower := strings.ToLower(hint)
	for _, t := range GeometryTypes {
		if t == lower {
			return t, nil
		}
	}

	return "", fmt.Errorf("unsupported geometry type: %s", hint)
}

// MatchesType reports whether g satisfies a hint from ParseGeometryType.
func MatchesType(g orb.Geometry, hint string) bool {
	if g == nil || hint == "" || hint == "geometry" {
		return true
	}

	return strings.EqualFold(g.GeoJSONType(), hint)
}

// DecodeGeoJSONGeometry converts a raw GeoJSON geometry object. A missing or
// null geometry yields nil without error.
func DecodeGeoJSONGeometry(raw []byte) (orb.Geometry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	g, err := geojson.UnmarshalGeometry(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to convert GeoJSON geometry: %w", err)
	}

	return g.Geometry(), nil
}

// EncodeGeoJSONGeometry renders g as a GeoJSON geometry object, "null" for nil.
func EncodeGeoJSONGeometry(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return []byte("null"), nil
	}

	return geojson.NewGeometry(g).MarshalJSON()
}
