package schema

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/woozymasta/geoetl/internal/geo"
)

// TypeError reports a property value that does not fit its column.
type TypeError struct {
	Field    string
	Expected string
	Found    string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("property '%s' expected %s, found %s", e.Field, e.Expected, e.Found)
}

// Bool coerces v for a Boolean column. ok is false for null.
func Bool(field string, v any) (value, ok bool, err error) {
	switch b := v.(type) {
	case nil:
		return false, false, nil
	case bool:
		return b, true, nil
	default:
		return false, false, &TypeError{Field: field, Expected: "bool", Found: geo.DescribeValue(v)}
	}
}

// Int coerces v for an Int64 column.
func Int(field string, v any) (int64, bool, error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil {
			return 0, false, &TypeError{Field: field, Expected: "integer", Found: "number " + n.String()}
		}
		return i, true, nil
	case int64:
		return n, true, nil
	case int:
		return int64(n), true, nil
	case int32:
		return int64(n), true, nil
	default:
		return 0, false, &TypeError{Field: field, Expected: "integer", Found: geo.DescribeValue(v)}
	}
}

// Float coerces v for a Float64 column.
func Float(field string, v any) (float64, bool, error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, &TypeError{Field: field, Expected: "float", Found: "number " + n.String()}
		}
		return f, true, nil
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	default:
		return 0, false, &TypeError{Field: field, Expected: "float", Found: geo.DescribeValue(v)}
	}
}

// String renders v for a Utf8 column. Compound values are JSON-encoded.
func String(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case bool:
		return strconv.FormatBool(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64), true
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(out), true
	}
}

// Parse converts a textual cell (CSV) to a typed property value. Empty text is null.
func Parse(t Type, text string) (any, error) {
	if text == "" {
		return nil, nil
	}
	switch t {
	case Boolean:
		return strconv.ParseBool(text)
	case Int64:
		return strconv.ParseInt(text, 10, 64)
	case Float64:
		return strconv.ParseFloat(text, 64)
	default:
		return text, nil
	}
}

// Detect returns the narrowest type a textual cell parses as.
func Detect(text string) Type {
	if text == "" {
		return Null
	}
	if _, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int64
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return Float64
	}
	if text == "true" || text == "false" {
		return Boolean
	}

	return Utf8
}

// Merge widens a to cover b, as Update does for decoded values.
func Merge(a, b Type) Type {
	switch {
	case a == b:
		return a
	case a == Null:
		return b
	case b == Null:
		return a
	case (a == Int64 && b == Float64) || (a == Float64 && b == Int64):
		return Float64
	default:
		return Utf8
	}
}
