package csvwkt

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

// Writer encodes records as CSV rows with the geometry as WKT in the last
// column.
type Writer struct {
	dst      io.WriteCloser
	w        *csv.Writer
	props    []schema.Field
	geomName string
	row      []string
	header   bool
	written  int
}

// CreateWriter creates path and returns a writer for it.
func CreateWriter(path string, s schema.Schema, opts driver.CSVOptions) (*Writer, error) {
	sink, err := source.Create(path)
	if err != nil {
		return nil, err
	}

	return NewWriter(sink, s, opts), nil
}

// NewWriter writes to dst, which is closed by Close.
func NewWriter(dst io.WriteCloser, s schema.Schema, opts driver.CSVOptions) *Writer {
	w := &Writer{
		dst:    dst,
		w:      csv.NewWriter(dst),
		props:  s.Properties(),
		header: opts.HasHeader,
	}
	if opts.Delimiter != 0 {
		w.w.Comma = opts.Delimiter
	}

	w.geomName = opts.GeometryColumn
	if f, ok := s.GeometryField(); ok {
		w.geomName = f.Name
	}
	if w.geomName == "" {
		w.geomName = "geometry"
	}
	w.row = make([]string, len(w.props)+1)

	return w
}

// WriteBatch implements driver.RecordWriter.
func (w *Writer) WriteBatch(batch geo.Batch) error {
	if err := w.writeHeader(); err != nil {
		return err
	}

	for _, rec := range batch {
		for i, f := range w.props {
			w.row[i], _ = schema.String(rec.Properties[f.Name])
		}

		w.row[len(w.props)] = ""
		if rec.Geometry != nil {
			w.row[len(w.props)] = wkt.MarshalString(rec.Geometry)
		}

		if err := w.w.Write(w.row); err != nil {
			return fmt.Errorf("write CSV row %d: %w", w.written+1, err)
		}
		w.written++
	}

	return nil
}

func (w *Writer) writeHeader() error {
	if !w.header {
		return nil
	}
	w.header = false

	names := make([]string, 0, len(w.props)+1)
	for _, f := range w.props {
		names = append(names, f.Name)
	}

	return w.w.Write(append(names, w.geomName))
}

// Close flushes buffered rows and closes the destination.
func (w *Writer) Close() error {
	err := w.writeHeader()
	if err == nil {
		w.w.Flush()
		err = w.w.Error()
	}

	if closeErr := w.dst.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	log.Debug().Int("rows", w.written).Msg("CSV writer closed")

	return err
}
