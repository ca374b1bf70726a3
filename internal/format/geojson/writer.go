package geojson

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

// Writer encodes records as a FeatureCollection or as one feature per line.
// Properties follow the schema order; keys missing from the schema come
// last, sorted.
type Writer struct {
	dst     io.WriteCloser
	w       *bufio.Writer
	names   []string
	known   map[string]struct{}
	buf     bytes.Buffer
	layout  driver.GeoJSONLayout
	pretty  bool
	written int
	started bool
}

// CreateWriter creates path and returns a writer for it. Compression follows
// the extension.
func CreateWriter(path string, s schema.Schema, opts driver.GeoJSONOptions) (*Writer, error) {
	sink, err := source.Create(path)
	if err != nil {
		return nil, err
	}

	if LayoutFor(path) == driver.NewlineDelimited {
		opts.Layout = driver.NewlineDelimited
	}

	return NewWriter(sink, s, opts), nil
}

// NewWriter writes to dst, which is closed by Close.
func NewWriter(dst io.WriteCloser, s schema.Schema, opts driver.GeoJSONOptions) *Writer {
	props := s.Properties()
	w := &Writer{
		dst:    dst,
		w:      bufio.NewWriterSize(dst, 256*1024),
		names:  make([]string, 0, len(props)),
		known:  make(map[string]struct{}, len(props)),
		layout: opts.Layout,
		pretty: opts.Pretty,
	}
	for _, f := range props {
		w.names = append(w.names, f.Name)
		w.known[f.Name] = struct{}{}
	}

	return w
}

// WriteBatch implements driver.RecordWriter.
func (w *Writer) WriteBatch(batch geo.Batch) error {
	if !w.started {
		if err := w.header(); err != nil {
			return err
		}
	}

	for _, rec := range batch {
		if err := w.writeFeature(rec); err != nil {
			return err
		}
	}

	return nil
}

// Close writes the collection footer, flushes and closes the destination.
func (w *Writer) Close() error {
	var err error
	if !w.started {
		err = w.header()
	}
	if err == nil && w.layout == driver.FeatureCollection {
		if w.pretty && w.written > 0 {
			_, err = w.w.WriteString("\n  ]\n}\n")
		} else {
			_, err = w.w.WriteString("]}\n")
		}
	}
	if err == nil {
		err = w.w.Flush()
	}

	if closeErr := w.dst.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	log.Debug().Int("features", w.written).Msg("GeoJSON writer closed")

	return err
}

func (w *Writer) header() error {
	w.started = true
	if w.layout != driver.FeatureCollection {
		return nil
	}

	header := `{"type":"FeatureCollection","features":[`
	if w.pretty {
		header = "{\n  \"type\": \"FeatureCollection\",\n  \"features\": ["
	}
	_, err := w.w.WriteString(header)

	return err
}

func (w *Writer) writeFeature(rec geo.Record) error {
	data, err := w.encodeFeature(rec)
	if err != nil {
		return err
	}

	if w.layout == driver.NewlineDelimited {
		if _, err := w.w.Write(data); err != nil {
			return err
		}
		w.written++
		return w.w.WriteByte('\n')
	}

	sep := ""
	switch {
	case w.pretty && w.written > 0:
		sep = ",\n    "
	case w.pretty:
		sep = "\n    "
	case w.written > 0:
		sep = ","
	}
	if _, err := w.w.WriteString(sep); err != nil {
		return err
	}
	if w.pretty {
		w.buf.Reset()
		if err := json.Indent(&w.buf, data, "    ", "  "); err != nil {
			return err
		}
		data = w.buf.Bytes()
	}
	if _, err := w.w.Write(data); err != nil {
		return err
	}
	w.written++

	return nil
}

// encodeFeature renders one compact Feature object.
func (w *Writer) encodeFeature(rec geo.Record) ([]byte, error) {
	geom, err := geo.EncodeGeoJSONGeometry(rec.Geometry)
	if err != nil {
		return nil, fmt.Errorf("encode geometry of feature %d: %w", w.written, err)
	}

	var b bytes.Buffer
	b.WriteString(`{"type":"Feature","geometry":`)
	b.Write(geom)
	b.WriteString(`,"properties":{`)

	first := true
	writeProp := func(name string, value any) error {
		if !first {
			b.WriteByte(',')
		}
		first = false

		key, _ := json.Marshal(name)
		val, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode property %q: %w", name, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
		return nil
	}

	for _, name := range w.names {
		if err := writeProp(name, rec.Properties[name]); err != nil {
			return nil, err
		}
	}

	var extra []string
	for name := range rec.Properties {
		if _, ok := w.known[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		if err := writeProp(name, rec.Properties[name]); err != nil {
			return nil, err
		}
	}

	b.WriteString("}}")

	return b.Bytes(), nil
}
