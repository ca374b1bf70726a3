package geojson

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/woozymasta/geoetl/internal/geo"
)

var errNotFeature = errors.New("not a GeoJSON Feature")

// rawFeature is the wire shape of a Feature with geometry and properties left
// undecoded so that shape errors and conversion errors can be told apart.
type rawFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

// decodeFeature checks that obj is a JSON object of type "Feature".
func decodeFeature(obj []byte) (rawFeature, error) {
	var f rawFeature
	if err := json.Unmarshal(obj, &f); err != nil {
		return f, err
	}
	if f.Type != "Feature" {
		return f, fmt.Errorf("%w: type=%q", errNotFeature, f.Type)
	}

	return f, nil
}

// toRecord converts the geometry and properties of a decoded feature.
func (f rawFeature) toRecord() (geo.Record, error) {
	g, err := geo.DecodeGeoJSONGeometry(f.Geometry)
	if err != nil {
		return geo.Record{}, err
	}

	props, err := decodeProperties(f.Properties)
	if err != nil {
		return geo.Record{}, err
	}

	return geo.Record{Properties: props, Geometry: g}, nil
}

// decodeProperties keeps numbers as json.Number so integer and float
// columns can be told apart during inference.
func decodeProperties(raw json.RawMessage) (map[string]any, error) {
	props := make(map[string]any)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return props, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("invalid feature properties: %w", err)
	}

	return props, nil
}

// parseFeature decodes and converts one Feature object.
func parseFeature(obj []byte) (geo.Record, error) {
	f, err := decodeFeature(obj)
	if err != nil {
		return geo.Record{}, err
	}

	return f.toRecord()
}
