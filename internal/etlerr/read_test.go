package etlerr

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcePositionString(t *testing.T) {
	assert.Equal(t, "line 10, column 3", SourcePosition{Line: 10, Column: 3}.String())
	assert.Equal(t, "unknown position", SourcePosition{}.String())
	assert.True(t, SourcePosition{}.IsEmpty())

	all := SourcePosition{Line: 10, Column: 3, ByteOffset: 100, Record: 5, Field: 2}.String()
	for _, part := range []string{"line 10", "column 3", "record 5", "byte 100", "field 2"} {
		assert.Contains(t, all, part)
	}
}

func TestParseErrorDisplay(t *testing.T) {
	err := ParseAt("s3://example/data.csv", SourcePosition{Line: 5, Column: 7}, "unexpected delimiter", nil)
	assert.Equal(t,
		"Parse error while reading s3://example/data.csv at line 5, column 7: unexpected delimiter",
		err.Error())

	noCtx := Parse("", "invalid format", nil)
	assert.Equal(t, "Parse error: invalid format", noCtx.Error())
}

func TestIOErrorUnwraps(t *testing.T) {
	err := IO("test.csv", fs.ErrNotExist)
	assert.Contains(t, err.Error(), "I/O error while reading test.csv")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestSentinelsMatch(t *testing.T) {
	var err error = Parse("x.geojson", "header missing", ErrHeaderNotFound)
	require.ErrorIs(t, err, ErrHeaderNotFound)
	assert.NotErrorIs(t, err, ErrMalformedFeature)

	var re *ReadError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, KindParse, re.Kind)
}

func TestWithContext(t *testing.T) {
	err := Parse("original", "test", nil).WithContext("additional")
	assert.Contains(t, err.Error(), "original; additional")

	fresh := SchemaInference("", "inconsistent types").WithContext("new context")
	assert.Contains(t, fresh.Error(), "while reading new context")

	other := (&ReadError{Kind: KindOther, Message: "test"}).WithContext("additional")
	assert.Equal(t, "test (additional)", other.Error())
}

func TestUserMessageAndSuggestion(t *testing.T) {
	notFound := &DriverError{Driver: "KML", Available: []string{"CSV", "GeoJSON"}}
	assert.Equal(t, "Driver error: driver 'KML' not found. Available drivers: CSV, GeoJSON", UserMessage(notFound))
	assert.Contains(t, Suggestion(notFound), "geoetl drivers")

	unsupported := &DriverError{Driver: "Shapefile", Operation: "reading"}
	assert.Contains(t, unsupported.Error(), "does not support reading")

	missing := &ConfigError{Option: "geometry-column"}
	assert.Equal(t, "Configuration error: missing required option: geometry-column", UserMessage(missing))

	hdr := Parse("a.geojson", "no header", ErrHeaderNotFound)
	assert.NotEmpty(t, Suggestion(hdr))
	assert.Empty(t, Suggestion(errors.New("boom")))
}
