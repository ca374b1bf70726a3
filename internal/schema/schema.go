// Package schema infers column types from sampled feature properties.
package schema

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/woozymasta/geoetl/internal/geo"
)

// Type is an inferred scalar column type.
type Type int

const (
	Null Type = iota
	Boolean
	Int64
	Float64
	Utf8
)

func (t Type) String() string {
	switch t {
	case Boolean:
		return "Boolean"
	case Int64:
		return "Int64"
	case Float64:
		return "Float64"
	case Utf8:
		return "Utf8"
	default:
		return "Null"
	}
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for _, t := range []Type{Null, Boolean, Int64, Float64, Utf8} {
		if t.String() == s {
			return t, nil
		}
	}

	return Null, fmt.Errorf("unknown column type %q", s)
}

// Update promotes t after observing v.
func (t Type) Update(v any) Type {
	switch n := v.(type) {
	case nil:
		return t
	case bool:
		if t == Null || t == Boolean {
			return Boolean
		}
		return Utf8
	case json.Number, float64, float32, int, int64, int32, uint64:
		isInt := isInteger(n)
		switch t {
		case Null, Int64:
			if isInt {
				return Int64
			}
			return Float64
		case Float64:
			return Float64
		default:
			return Utf8
		}
	default:
		return Utf8
	}
}

// Resolved maps Null to Utf8, the type a column with only nulls is written as.
func (t Type) Resolved() Type {
	if t == Null {
		return Utf8
	}

	return t
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case json.Number:
		_, err := strconv.ParseInt(n.String(), 10, 64)
		return err == nil
	case int, int64, int32, uint64:
		return true
	default:
		return false
	}
}

// Field is one column of a dataset schema.
type Field struct {
	Name     string
	Type     Type
	Nullable bool
	// Geometry marks the geometry column; Type is meaningless for it.
	Geometry bool
	// GeometryType is the geometry type hint for the geometry column.
	GeometryType string
}

// Schema is an ordered list of fields.
type Schema struct {
	Fields []Field
}

// GeometryField returns the geometry column, if any.
func (s Schema) GeometryField() (Field, bool) {
	for _, f := range s.Fields {
		if f.Geometry {
			return f, true
		}
	}

	return Field{}, false
}

// Properties returns the non-geometry fields in order.
func (s Schema) Properties() []Field {
	out := make([]Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.Geometry {
			out = append(out, f)
		}
	}

	return out
}

// Infer builds a schema from records: properties sorted by name, then the
// geometry column.
func Infer(records []geo.Record, geometryColumn string) Schema {
	inferred := make(map[string]Type)
	for _, r := range records {
		for k, v := range r.Properties {
			inferred[k] = inferred[k].Update(v)
		}
	}

	names := make([]string, 0, len(inferred))
	for k := range inferred {
		if k == geometryColumn {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(names)+1)
	for _, n := range names {
		fields = append(fields, Field{Name: n, Type: inferred[n].Resolved(), Nullable: true})
	}
	fields = append(fields, Field{Name: geometryColumn, Nullable: true, Geometry: true, GeometryType: "geometry"})

	return Schema{Fields: fields}
}
