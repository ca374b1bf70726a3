package geoparquet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

// Reader streams records from a GeoParquet file.
type Reader struct {
	location string
	pf       *file.Reader
	fr       *pqarrow.FileReader
	schema   schema.Schema
	meta     *Metadata
	opts     driver.GeoParquetOptions
	stats    driver.ReadStats
}

// OpenReader opens location. Parquet needs random access, so remote files
// are downloaded into memory first.
func OpenReader(ctx context.Context, location string, opts driver.GeoParquetOptions) (*Reader, error) {
	r := &Reader{location: location, opts: opts}

	var err error
	if source.IsRemote(location) {
		err = r.openRemote(ctx)
	} else {
		err = r.openLocal()
	}
	if err != nil {
		return nil, err
	}

	size := opts.BatchSize
	if size <= 0 {
		size = config.DefaultBatchSize
	}
	r.fr, err = pqarrow.NewFileReader(r.pf, pqarrow.ArrowReadProperties{BatchSize: int64(size)}, memory.DefaultAllocator)
	if err != nil {
		_ = r.pf.Close()
		return nil, etlerr.Parse(location, "Failed to read Parquet schema: "+err.Error(), err)
	}

	as, err := r.fr.Schema()
	if err != nil {
		_ = r.pf.Close()
		return nil, etlerr.Parse(location, "Failed to read Parquet schema: "+err.Error(), err)
	}

	if value := r.pf.MetaData().KeyValueMetadata().FindValue(MetadataKey); value != nil {
		r.meta, err = ParseMetadata(*value)
		if err != nil {
			_ = r.pf.Close()
			return nil, etlerr.Parse(location, err.Error(), err)
		}
	}

	r.schema, err = schemaFromArrow(as, r.geometryColumn())
	if err != nil {
		_ = r.pf.Close()
		return nil, etlerr.SchemaInference(location, err.Error())
	}

	log.Debug().
		Str("source", location).
		Int64("rows", r.pf.NumRows()).
		Int("row_groups", r.pf.NumRowGroups()).
		Str("geometry_column", r.geometryColumn()).
		Msg("GeoParquet file opened")

	return r, nil
}

func (r *Reader) openLocal() error {
	fi, err := os.Stat(r.location)
	if err != nil {
		return etlerr.IO(r.location, err)
	}

	r.pf, err = file.OpenParquetFile(r.location, false)
	if err != nil {
		return etlerr.Parse(r.location, "Failed to open Parquet file: "+err.Error(), err)
	}
	r.stats.BytesRead = fi.Size()

	return nil
}

func (r *Reader) openRemote(ctx context.Context) error {
	src, err := source.Open(ctx, r.location, source.Options{Client: r.opts.Client})
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(src)
	if err != nil {
		return etlerr.IO(r.location, err)
	}

	r.pf, err = file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return etlerr.Parse(r.location, "Failed to open Parquet file: "+err.Error(), err)
	}
	r.stats = driver.ReadStats{BytesRead: src.BytesRead(), Digest: src.DigestHex()}

	return nil
}

// geometryColumn is the primary column from the geo metadata, else the
// configured geometry column.
func (r *Reader) geometryColumn() string {
	if r.meta != nil {
		return r.meta.PrimaryColumn
	}

	return r.opts.GeometryColumn
}

// Metadata returns the geo document, nil for plain Parquet.
func (r *Reader) Metadata() *Metadata { return r.meta }

// NumRows is the row count from the file footer.
func (r *Reader) NumRows() int64 { return r.pf.NumRows() }

// Schema implements driver.RecordReader.
func (r *Reader) Schema() schema.Schema { return r.schema }

// Stats implements driver.RecordReader.
func (r *Reader) Stats() driver.ReadStats { return r.stats }

// Close implements driver.RecordReader.
func (r *Reader) Close() error { return r.pf.Close() }

// ReadBatches implements driver.RecordReader. Batches follow the Arrow
// record batches of BatchSize rows.
func (r *Reader) ReadBatches(ctx context.Context, fn func(geo.Batch) error) error {
	rr, err := r.fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return etlerr.Parse(r.location, "Failed to read Parquet row groups: "+err.Error(), err)
	}
	defer rr.Release()

	var rows uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := rr.Read()
		if errors.Is(err, io.EOF) || (err == nil && rec == nil) {
			break
		}
		if err != nil {
			return etlerr.Parse(r.location, "Failed to read Parquet record batch: "+err.Error(), err)
		}

		batch, err := r.toBatch(rec, rows)
		if err != nil {
			return err
		}
		rows += uint64(len(batch))

		if err := fn(batch); err != nil {
			return err
		}
	}

	log.Debug().
		Str("source", r.location).
		Uint64("rows", rows).
		Msg("GeoParquet read finished")

	return nil
}

func (r *Reader) toBatch(rec arrow.Record, offset uint64) (geo.Batch, error) {
	n := int(rec.NumRows())
	batch := make(geo.Batch, n)
	for i := range batch {
		batch[i].Properties = make(map[string]any, rec.NumCols())
	}

	geomCol := r.geometryColumn()
	for c, field := range rec.Schema().Fields() {
		col := rec.Column(c)
		if field.Name == geomCol {
			if err := r.decodeGeometry(field.Name, col, batch, offset, c); err != nil {
				return nil, err
			}
			continue
		}
		for i := range batch {
			batch[i].Properties[field.Name] = value(col, i)
		}
	}

	return batch, nil
}

func (r *Reader) decodeGeometry(name string, col arrow.Array, batch geo.Batch, offset uint64, c int) error {
	var raw func(i int) []byte
	switch a := col.(type) {
	case *array.Binary:
		raw = a.Value
	case *array.LargeBinary:
		raw = a.Value
	default:
		return etlerr.Parse(r.location,
			fmt.Sprintf("geometry column '%s' has type %s, expected binary WKB", name, col.DataType()), nil)
	}

	for i := range batch {
		if col.IsNull(i) {
			continue
		}
		g, err := wkb.Unmarshal(raw(i))
		if err != nil {
			return etlerr.ParseAt(r.location,
				etlerr.SourcePosition{Record: offset + uint64(i) + 1, Field: uint64(c + 1)},
				"invalid WKB geometry: "+err.Error(), err)
		}
		batch[i].Geometry = g
	}

	return nil
}

// value converts one Arrow cell to a property value.
func value(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}

	switch a := col.(type) {
	case *array.Boolean:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.String:
		return strings.Clone(a.Value(i))
	case *array.LargeString:
		return strings.Clone(a.Value(i))
	default:
		return col.GetOneForMarshal(i)
	}
}

// schemaFromArrow maps Arrow fields to column types. The geometry column is
// moved last.
func schemaFromArrow(as *arrow.Schema, geomCol string) (schema.Schema, error) {
	var (
		out   schema.Schema
		geom  *schema.Field
		names = make([]string, 0, len(as.Fields()))
	)

	for _, f := range as.Fields() {
		names = append(names, f.Name)
		if f.Name == geomCol {
			geom = &schema.Field{Name: f.Name, Nullable: f.Nullable, Geometry: true, GeometryType: "geometry"}
			continue
		}
		out.Fields = append(out.Fields, schema.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: f.Nullable})
	}

	if geom == nil {
		return schema.Schema{}, fmt.Errorf("geometry column '%s' not found in columns: %s", geomCol, strings.Join(names, ", "))
	}
	out.Fields = append(out.Fields, *geom)

	return out, nil
}

func arrowType(t arrow.DataType) schema.Type {
	switch t.ID() {
	case arrow.BOOL:
		return schema.Boolean
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return schema.Int64
	case arrow.FLOAT32, arrow.FLOAT64:
		return schema.Float64
	default:
		return schema.Utf8
	}
}

// InferSchema reads the schema from the file footer.
func InferSchema(ctx context.Context, location string, opts driver.GeoParquetOptions) (schema.Schema, error) {
	r, err := OpenReader(ctx, location, opts)
	if err != nil {
		return schema.Schema{}, err
	}
	defer func() { _ = r.Close() }()

	return r.Schema(), nil
}
