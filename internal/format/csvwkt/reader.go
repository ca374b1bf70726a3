// Package csvwkt implements the CSV driver: delimited text with one column
// holding WKT geometries.
package csvwkt

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

func newCSVReader(r io.Reader, opts driver.CSVOptions) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	return cr
}

// columnNames returns the header names, or column_1..n without a header.
func columnNames(first []string, hasHeader bool) []string {
	names := make([]string, len(first))
	for i, v := range first {
		if hasHeader {
			names[i] = strings.TrimSpace(strings.TrimPrefix(v, "\ufeff"))
		} else {
			names[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	return names
}

// InferSchema reads the header and up to SchemaInferMaxRecords rows. Columns
// keep their file order and the geometry column is moved last.
func InferSchema(ctx context.Context, location string, opts driver.CSVOptions) (schema.Schema, error) {
	if opts.GeometryColumn == "" {
		return schema.Schema{}, &etlerr.ConfigError{Option: "geometry-column (required for CSV files)"}
	}
	geomType, err := geo.ParseGeometryType(opts.GeometryType)
	if err != nil {
		return schema.Schema{}, &etlerr.FormatError{Format: "CSV", Message: err.Error()}
	}

	window := int64(config.DefaultSchemaInferMaxBytes)
	data, err := source.ReadPrefix(ctx, location, window, source.Options{Client: opts.Client})
	if err != nil {
		return schema.Schema{}, err
	}
	if int64(len(data)) == window {
		if i := bytes.LastIndexByte(data, '\n'); i > 0 {
			data = data[:i+1]
		}
	}

	cr := newCSVReader(bytes.NewReader(data), opts)
	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return schema.Schema{}, etlerr.SchemaInference(location, "CSV input is empty")
	}
	if err != nil {
		return schema.Schema{}, csvError(location, err)
	}
	names := columnNames(first, opts.HasHeader)

	geomIdx := indexOf(names, opts.GeometryColumn)
	if geomIdx < 0 {
		return schema.Schema{}, &etlerr.FormatError{
			Format:  "CSV",
			Message: fmt.Sprintf("geometry column '%s' not found in columns: %s", opts.GeometryColumn, strings.Join(names, ", ")),
		}
	}

	types := make([]schema.Type, len(names))
	observe := func(row []string) {
		for i := range types {
			if i < len(row) && i != geomIdx {
				types[i] = schema.Merge(types[i], schema.Detect(row[i]))
			}
		}
	}
	if !opts.HasHeader {
		observe(first)
	}

	for n := 0; opts.SchemaInferMaxRecords <= 0 || n < opts.SchemaInferMaxRecords; n++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return schema.Schema{}, csvError(location, err)
		}
		observe(row)
	}

	fields := make([]schema.Field, 0, len(names))
	for i, name := range names {
		if i == geomIdx {
			continue
		}
		fields = append(fields, schema.Field{Name: name, Type: types[i].Resolved(), Nullable: true})
	}
	fields = append(fields, schema.Field{
		Name:         names[geomIdx],
		Nullable:     true,
		Geometry:     true,
		GeometryType: geomType,
	})

	return schema.Schema{Fields: fields}, nil
}

// Reader streams CSV rows as records.
type Reader struct {
	src    *source.Source
	schema schema.Schema
	opts   driver.CSVOptions
}

// OpenReader infers the schema and opens the full stream.
func OpenReader(ctx context.Context, location string, opts driver.CSVOptions) (*Reader, error) {
	s, err := InferSchema(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	src, err := source.Open(ctx, location, source.Options{Client: opts.Client})
	if err != nil {
		return nil, err
	}

	return &Reader{src: src, schema: s, opts: opts}, nil
}

// Schema implements driver.RecordReader.
func (r *Reader) Schema() schema.Schema { return r.schema }

// Stats implements driver.RecordReader.
func (r *Reader) Stats() driver.ReadStats {
	return driver.ReadStats{BytesRead: r.src.BytesRead(), Digest: r.src.DigestHex()}
}

// Close implements driver.RecordReader.
func (r *Reader) Close() error { return r.src.Close() }

// column maps a CSV column to a schema field.
type column struct {
	name  string
	typ   schema.Type
	index int
}

// ReadBatches implements driver.RecordReader.
func (r *Reader) ReadBatches(ctx context.Context, fn func(geo.Batch) error) error {
	location := r.src.Location()
	cr := newCSVReader(r.src, r.opts)

	size := r.opts.BatchSize
	if size <= 0 {
		size = config.DefaultBatchSize
	}

	geomField, _ := r.schema.GeometryField()
	var (
		cols    []column
		geomIdx = -1
		batch   = make(geo.Batch, 0, size)
		rows    uint64
		batches int
	)

	for {
		if rows%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return csvError(location, err)
		}

		if cols == nil {
			names := columnNames(row, r.opts.HasHeader)
			cols, geomIdx = r.bind(names, geomField.Name)
			if r.opts.HasHeader {
				continue
			}
		}
		rows++

		line, _ := cr.FieldPos(0)
		rec, rowErr := r.decodeRow(row, cols, geomIdx, geomField.GeometryType, etlerr.SourcePosition{
			Line:   uint64(line),
			Record: rows,
		})
		if rowErr != nil {
			return etlerr.ParseAt(location, *rowErr.pos, rowErr.msg, rowErr.cause)
		}

		batch = append(batch, rec)
		if len(batch) >= size {
			batches++
			if err := fn(batch); err != nil {
				return err
			}
			batch = make(geo.Batch, 0, size)
		}
	}

	if len(batch) > 0 {
		batches++
		if err := fn(batch); err != nil {
			return err
		}
	}

	log.Debug().
		Str("source", location).
		Uint64("rows", rows).
		Int("batches", batches).
		Msg("CSV read finished")

	return nil
}

// bind resolves schema fields against the actual header.
func (r *Reader) bind(names []string, geometryColumn string) ([]column, int) {
	cols := make([]column, 0, len(names))
	for _, f := range r.schema.Properties() {
		if i := indexOf(names, f.Name); i >= 0 {
			cols = append(cols, column{name: f.Name, typ: f.Type, index: i})
		}
	}

	return cols, indexOf(names, geometryColumn)
}

type rowError struct {
	pos   *etlerr.SourcePosition
	cause error
	msg   string
}

func (r *Reader) decodeRow(row []string, cols []column, geomIdx int, geomType string, pos etlerr.SourcePosition) (geo.Record, *rowError) {
	props := make(map[string]any, len(cols))
	for _, c := range cols {
		if c.index >= len(row) {
			props[c.name] = nil
			continue
		}
		v, err := schema.Parse(c.typ, row[c.index])
		if err != nil {
			pos.Field = uint64(c.index + 1)
			return geo.Record{}, &rowError{
				pos:   &pos,
				cause: err,
				msg:   fmt.Sprintf("column '%s': cannot parse %q as %s", c.name, row[c.index], c.typ),
			}
		}
		props[c.name] = v
	}

	rec := geo.Record{Properties: props}
	if geomIdx < 0 || geomIdx >= len(row) || strings.TrimSpace(row[geomIdx]) == "" {
		return rec, nil
	}

	g, err := wkt.Unmarshal(row[geomIdx])
	if err != nil {
		pos.Field = uint64(geomIdx + 1)
		return geo.Record{}, &rowError{pos: &pos, cause: err, msg: "invalid WKT geometry: " + err.Error()}
	}
	if !geo.MatchesType(g, geomType) {
		pos.Field = uint64(geomIdx + 1)
		return geo.Record{}, &rowError{
			pos: &pos,
			msg: fmt.Sprintf("geometry type mismatch: expected %s, found %s", geomType, g.GeoJSONType()),
		}
	}
	rec.Geometry = orb.Clone(g)

	return rec, nil
}

func csvError(location string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return etlerr.ParseAt(location, etlerr.SourcePosition{
			Line:   uint64(pe.Line),
			Column: uint64(pe.Column),
		}, pe.Err.Error(), err)
	}

	return etlerr.IO(location, err)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}

	return -1
}
