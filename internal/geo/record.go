// Package geo holds the feature record model shared by all format drivers.
package geo

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
)

// Record is one parsed feature: a property mapping plus an optional geometry.
// Property values are JSON-like: nil, bool, json.Number, int64, float64,
// string, []any or map[string]any.
type Record struct {
	Properties map[string]any
	Geometry   orb.Geometry
}

// Batch is a group of records handed from a reader to a writer.
type Batch []Record

func (r Record) String() string {
	geom := "None"
	if r.Geometry != nil {
		geom = "Some(Geometry)"
	}

	return fmt.Sprintf("FeatureRecord(properties=%d keys, geometry=%s)", len(r.Properties), geom)
}

// DescribeValue names the JSON kind of a property value for error messages.
func DescribeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number, float64, float32, int, int64, int32, uint64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
