package geoparquet

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

// codecs maps configuration names to Parquet codecs.
var codecs = map[string]compress.Compression{
	"zstd":         compress.Codecs.Zstd,
	"snappy":       compress.Codecs.Snappy,
	"gzip":         compress.Codecs.Gzip,
	"lz4":          compress.Codecs.Lz4,
	"uncompressed": compress.Codecs.Uncompressed,
}

// Codec resolves a compression name, "" meaning zstd.
func Codec(name string) (compress.Compression, error) {
	if name == "" {
		return compress.Codecs.Zstd, nil
	}
	c, ok := codecs[strings.ToLower(name)]
	if !ok {
		return compress.Codecs.Uncompressed, &etlerr.ConfigError{
			Option:  "compression",
			Message: fmt.Sprintf("unsupported GeoParquet compression %q", name),
		}
	}

	return c, nil
}

// ArrowSchema maps s to Arrow. The geometry column becomes binary WKB.
func ArrowSchema(s schema.Schema) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(s.Fields))
	for _, f := range s.Fields {
		af := arrow.Field{Name: f.Name, Nullable: true}
		switch {
		case f.Geometry:
			af.Type = arrow.BinaryTypes.Binary
		case f.Type == schema.Boolean:
			af.Type = arrow.FixedWidthTypes.Boolean
		case f.Type == schema.Int64:
			af.Type = arrow.PrimitiveTypes.Int64
		case f.Type == schema.Float64:
			af.Type = arrow.PrimitiveTypes.Float64
		default:
			af.Type = arrow.BinaryTypes.String
		}
		fields = append(fields, af)
	}

	return arrow.NewSchema(fields, nil)
}

// writerOnly hides Close so the Parquet writer leaves the sink to us.
type writerOnly struct{ io.Writer }

// Writer encodes batches as Parquet row groups and records the geo
// metadata on Close.
type Writer struct {
	dst     io.WriteCloser
	fw      *pqarrow.FileWriter
	builder *array.RecordBuilder
	schema  schema.Schema
	geomCol string
	extent  geo.Extent
	written int64
}

// CreateWriter creates path and returns a writer for it.
func CreateWriter(path string, s schema.Schema, opts driver.GeoParquetOptions) (*Writer, error) {
	sink, err := source.Create(path)
	if err != nil {
		return nil, err
	}

	w, err := NewWriter(sink, s, opts)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}

	return w, nil
}

// NewWriter writes to dst, which is closed by Close.
func NewWriter(dst io.WriteCloser, s schema.Schema, opts driver.GeoParquetOptions) (*Writer, error) {
	codec, err := Codec(opts.Compression)
	if err != nil {
		return nil, err
	}

	if _, ok := s.GeometryField(); !ok {
		name := opts.GeometryColumn
		if name == "" {
			name = "geometry"
		}
		s = schema.Schema{Fields: append(append([]schema.Field(nil), s.Fields...),
			schema.Field{Name: name, Nullable: true, Geometry: true, GeometryType: "geometry"})}
	}
	geomField, _ := s.GeometryField()

	props := []parquet.WriterProperty{parquet.WithCompression(codec)}
	if opts.RowGroupSize > 0 {
		props = append(props, parquet.WithMaxRowGroupLength(opts.RowGroupSize))
	}

	as := ArrowSchema(s)
	fw, err := pqarrow.NewFileWriter(as, writerOnly{dst},
		parquet.NewWriterProperties(props...), pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}

	return &Writer{
		dst:     dst,
		fw:      fw,
		builder: array.NewRecordBuilder(memory.DefaultAllocator, as),
		schema:  s,
		geomCol: geomField.Name,
	}, nil
}

// WriteBatch implements driver.RecordWriter. Each batch becomes at least one
// row group.
func (w *Writer) WriteBatch(batch geo.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	for n, rec := range batch {
		if err := w.append(rec); err != nil {
			return fmt.Errorf("record %d: %w", w.written+int64(n)+1, err)
		}
	}

	rec := w.builder.NewRecord()
	defer rec.Release()

	if err := w.fw.Write(rec); err != nil {
		return fmt.Errorf("write row group: %w", err)
	}
	w.written += int64(len(batch))

	return nil
}

func (w *Writer) append(rec geo.Record) error {
	for i, f := range w.schema.Fields {
		if f.Geometry {
			b := w.builder.Field(i).(*array.BinaryBuilder)
			if rec.Geometry == nil {
				b.AppendNull()
				continue
			}
			data, err := wkb.Marshal(rec.Geometry)
			if err != nil {
				return fmt.Errorf("encode WKB: %w", err)
			}
			b.Append(data)
			w.extent.Add(rec.Geometry)
			continue
		}

		v := rec.Properties[f.Name]
		switch b := w.builder.Field(i).(type) {
		case *array.BooleanBuilder:
			val, ok, err := schema.Bool(f.Name, v)
			if err != nil {
				return err
			}
			appendOrNull(b, ok, func() { b.Append(val) })
		case *array.Int64Builder:
			val, ok, err := schema.Int(f.Name, v)
			if err != nil {
				return err
			}
			appendOrNull(b, ok, func() { b.Append(val) })
		case *array.Float64Builder:
			val, ok, err := schema.Float(f.Name, v)
			if err != nil {
				return err
			}
			appendOrNull(b, ok, func() { b.Append(val) })
		case *array.StringBuilder:
			val, ok := schema.String(v)
			appendOrNull(b, ok, func() { b.Append(val) })
		}
	}

	return nil
}

func appendOrNull(b array.Builder, ok bool, appendValue func()) {
	if !ok {
		b.AppendNull()
		return
	}
	appendValue()
}

// Metadata returns the geo document for what was written so far.
func (w *Writer) Metadata() Metadata {
	types := w.extent.Types()
	if types == nil {
		types = []string{}
	}

	return Metadata{
		Version:       Version,
		PrimaryColumn: w.geomCol,
		Columns: map[string]ColumnMetadata{
			w.geomCol: {
				Encoding:      EncodingWKB,
				GeometryTypes: types,
				BBox:          w.extent.BBox(),
			},
		},
	}
}

// Close writes the geo metadata and the Parquet footer, then closes the
// destination.
func (w *Writer) Close() error {
	defer w.builder.Release()

	md, err := json.Marshal(w.Metadata())
	if err == nil {
		err = w.fw.AppendKeyValueMetadata(MetadataKey, string(md))
	}
	if closeErr := w.fw.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := w.dst.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	log.Debug().
		Int64("rows", w.written).
		Str("geometry_column", w.geomCol).
		Msg("GeoParquet writer closed")

	return err
}
