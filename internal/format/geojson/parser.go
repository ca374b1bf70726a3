package geojson

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
)

// repairBoundary marks the end of a feature object followed by its sibling
// separator in pretty-printed output: the properties object closes, then
// the feature closes, then a comma.
const repairBoundary = "} },"

const emptyCollection = `{"type":"FeatureCollection","features":[]}`

// document is the union of the GeoJSON top-level shapes we accept.
type document struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// ParseBytes parses a complete GeoJSON document: a FeatureCollection, a
// single Feature or a bare Geometry. Input that is not one document is
// retried as newline-delimited GeoJSON. limit <= 0 means no limit.
func ParseBytes(data []byte, limit int, source string) ([]geo.Record, error) {
	records, primary := parseDocument(data)
	if primary == nil {
		return truncate(records, limit), nil
	}

	records, seqErr := parseSequence(data, limit, source)
	if seqErr == nil {
		return records, nil
	}

	return nil, etlerr.Parse(source, fmt.Sprintf(
		"Failed to parse GeoJSON as FeatureCollection (%v); also failed to parse as GeoJSON sequence: %v",
		primary, seqErr), seqErr)
}

// ParsePartial parses the first bytes of a possibly larger document, as read
// for schema inference. When strict parsing fails the text is cut after the
// last "} }," boundary and the features array and collection are closed
// again. Elements that still fail to parse are skipped.
//
// The repair only understands pretty-printed output with a space between
// the two closing braces; minified truncations are not recovered.
func ParsePartial(data []byte, limit int, source string) ([]geo.Record, error) {
	if records, err := ParseBytes(data, limit, source); err == nil {
		return records, nil
	}

	if !utf8.Valid(data) {
		return nil, etlerr.Parse(source, "Invalid UTF-8 in GeoJSON input", etlerr.ErrInvalidUTF8)
	}

	fixed, found := repairTruncated(data)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(fixed, &obj); err != nil {
		if json.Valid(fixed) {
			return nil, etlerr.Parse(source, "Expected object with 'features' array", err)
		}
		return nil, etlerr.Parse(source, "Failed to parse JSON: "+err.Error(), err)
	}

	var elements []json.RawMessage
	raw, ok := obj["features"]
	if !ok || json.Unmarshal(raw, &elements) != nil {
		return nil, etlerr.Parse(source, "No 'features' array found in object", nil)
	}

	records := make([]geo.Record, 0, len(elements))
	for _, el := range elements {
		rec, err := parseFeature(el)
		if err != nil {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}

	if len(records) == 0 {
		if !found {
			return nil, etlerr.Parse(source, "No feature boundary found in truncated GeoJSON", etlerr.ErrRepairExhausted)
		}
		return nil, etlerr.Parse(source, "No valid features found in partial GeoJSON", etlerr.ErrRepairExhausted)
	}

	return records, nil
}

// repairTruncated closes a collection truncated after a complete feature.
func repairTruncated(data []byte) ([]byte, bool) {
	idx := bytes.LastIndex(data, []byte(repairBoundary))
	if idx < 0 {
		return []byte(emptyCollection), false
	}

	fixed := make([]byte, 0, idx+8)
	fixed = append(fixed, data[:idx+len(repairBoundary)-1]...)
	fixed = append(fixed, " ] }"...)

	return fixed, true
}

// parseDocument parses data as exactly one GeoJSON object.
func parseDocument(data []byte) ([]geo.Record, error) {
	text := bytes.TrimSpace(data)
	if len(text) == 0 {
		return nil, errors.New("empty input")
	}
	if text[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object, found %q", text[0])
	}

	obj, n, ok := extractObject(text)
	if !ok {
		return nil, errors.New("unexpected end of JSON input")
	}
	if n != len(text) {
		return nil, fmt.Errorf("trailing data after top-level object at byte %d", n)
	}

	var doc document
	if err := json.Unmarshal(obj, &doc); err != nil {
		return nil, err
	}

	switch doc.Type {
	case "FeatureCollection":
		records := make([]geo.Record, 0, len(doc.Features))
		for i, raw := range doc.Features {
			rec, err := parseFeature(raw)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			records = append(records, rec)
		}
		return records, nil

	case "Feature":
		rec, err := parseFeature(obj)
		if err != nil {
			return nil, err
		}
		return []geo.Record{rec}, nil

	case "Point", "MultiPoint", "LineString", "MultiLineString",
		"Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geo.DecodeGeoJSONGeometry(obj)
		if err != nil {
			return nil, err
		}
		return []geo.Record{{Properties: map[string]any{}, Geometry: g}}, nil

	default:
		return nil, fmt.Errorf("unsupported GeoJSON type %q", doc.Type)
	}
}

// parseSequence parses one GeoJSON document per line.
func parseSequence(data []byte, limit int, source string) ([]geo.Record, error) {
	var records []geo.Record

	for idx, raw := range bytes.Split(data, []byte{'\n'}) {
		pos := etlerr.SourcePosition{Line: uint64(idx + 1)}
		if !utf8.Valid(raw) {
			return nil, etlerr.ParseAt(source, pos, "GeoJSON line is not valid UTF-8", etlerr.ErrInvalidUTF8)
		}

		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}

		parsed, err := parseDocument(line)
		if err != nil {
			return nil, etlerr.ParseAt(source, pos, "Failed to parse GeoJSON feature: "+err.Error(), err)
		}
		records = append(records, parsed...)

		if limit > 0 && len(records) >= limit {
			return records[:limit], nil
		}
	}

	if len(records) == 0 {
		return nil, etlerr.Parse(source, "No GeoJSON features found", nil)
	}

	return records, nil
}

func truncate(records []geo.Record, limit int) []geo.Record {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}

	return records
}
