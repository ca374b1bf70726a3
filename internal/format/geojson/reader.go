package geojson

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

// maxLineSize bounds one newline-delimited feature.
const maxLineSize = 64 * 1024 * 1024

var sequenceExtensions = []string{".geojsonl", ".geojsonseq", ".geojsons", ".ndjson", ".jsonl"}

// LayoutFor guesses the layout of location from its extension.
func LayoutFor(location string) driver.GeoJSONLayout {
	lower := strings.ToLower(source.TrimCompressionExt(location))
	for _, ext := range sequenceExtensions {
		if strings.HasSuffix(lower, ext) {
			return driver.NewlineDelimited
		}
	}

	return driver.FeatureCollection
}

// Reader streams records from a GeoJSON source in batches.
type Reader struct {
	src    *source.Source
	schema schema.Schema
	opts   driver.GeoJSONOptions
	layout driver.GeoJSONLayout
}

// OpenReader infers the schema from the head of location and opens the
// full stream.
func OpenReader(ctx context.Context, location string, opts driver.GeoJSONOptions) (*Reader, error) {
	s, err := InferSchema(ctx, location, opts)
	if err != nil {
		return nil, err
	}

	src, err := source.Open(ctx, location, source.Options{Client: opts.Client})
	if err != nil {
		return nil, err
	}

	return &Reader{src: src, schema: s, opts: opts, layout: LayoutFor(location)}, nil
}

// Schema implements driver.RecordReader.
func (r *Reader) Schema() schema.Schema { return r.schema }

// Stats implements driver.RecordReader.
func (r *Reader) Stats() driver.ReadStats {
	return driver.ReadStats{BytesRead: r.src.BytesRead(), Digest: r.src.DigestHex()}
}

// Close implements driver.RecordReader.
func (r *Reader) Close() error { return r.src.Close() }

// ReadBatches implements driver.RecordReader. A batch is flushed when it
// reaches the configured size and once more at the end of input.
func (r *Reader) ReadBatches(ctx context.Context, fn func(geo.Batch) error) error {
	size := r.opts.BatchSize
	if size <= 0 {
		size = 8192
	}

	b := &batcher{size: size, fn: fn, batch: make(geo.Batch, 0, size)}

	var err error
	if r.layout == driver.NewlineDelimited {
		err = r.readSequence(ctx, b)
	} else {
		err = r.readCollection(ctx, b)
	}
	if err != nil {
		return err
	}

	if err := b.flush(); err != nil {
		return err
	}

	log.Debug().
		Str("source", r.src.Location()).
		Int("features", b.total).
		Int("batches", b.batches).
		Int64("bytes", r.src.BytesRead()).
		Msg("GeoJSON read finished")

	return nil
}

func (r *Reader) readCollection(ctx context.Context, b *batcher) error {
	location := r.src.Location()
	dec := NewDecoder(location)

	err := r.src.Chunks(ctx, r.opts.ChunkSize, func(chunk []byte) error {
		records, err := dec.Decode(chunk)
		if addErr := b.add(records...); addErr != nil {
			return addErr
		}
		return err
	})
	if err != nil {
		return err
	}

	tail, err := dec.Finish()
	if err != nil {
		return err
	}
	if err := b.add(tail...); err != nil {
		return err
	}

	switch {
	case dec.Done():
	case dec.state == stateExpectingHeader:
		// Small documents without a features array: a bare Feature or
		// Geometry, or a sequence with the wrong extension.
		records, err := ParseBytes(dec.buf, 0, location)
		if err != nil {
			return err
		}
		return b.add(records...)
	default:
		log.Warn().
			Str("source", location).
			Int("features", dec.Decoded()).
			Int("pending_bytes", dec.Buffered()).
			Msg("Input ended before the features array was closed")
	}

	return nil
}

func (r *Reader) readSequence(ctx context.Context, b *batcher) error {
	location := r.src.Location()
	scanner := bufio.NewScanner(r.src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var line uint64
	for scanner.Scan() {
		line++
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		records, err := parseDocument(text)
		if err != nil {
			return etlerr.ParseAt(location, etlerr.SourcePosition{Line: line},
				"Failed to parse GeoJSON feature: "+err.Error(), err)
		}
		if err := b.add(records...); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return etlerr.IO(location, err)
	}

	return nil
}

// InferSchema parses up to SchemaInferMaxFeatures records from the first
// SchemaInferMaxBytes of location, repairing a cut-off window.
func InferSchema(ctx context.Context, location string, opts driver.GeoJSONOptions) (schema.Schema, error) {
	window := opts.SchemaInferMaxBytes
	if window <= 0 {
		window = int64(MaxBufferSize) * 10
	}

	data, err := source.ReadPrefix(ctx, location, window, source.Options{Client: opts.Client})
	if err != nil {
		return schema.Schema{}, err
	}

	var records []geo.Record
	if LayoutFor(location) == driver.NewlineDelimited {
		records, err = sampleLines(data, opts.SchemaInferMaxFeatures, location)
	} else {
		records, err = ParsePartial(data, opts.SchemaInferMaxFeatures, location)
	}
	if errors.Is(err, etlerr.ErrRepairExhausted) {
		// Minified collections have no "} }," boundary; the streaming
		// decoder still recovers every complete feature of the window.
		if sampled := sampleWindow(data, opts.SchemaInferMaxFeatures, location); len(sampled) > 0 {
			records, err = sampled, nil
		}
	}
	if err != nil {
		return schema.Schema{}, err
	}

	s := schema.Infer(records, opts.GeometryColumn)

	log.Debug().
		Str("source", location).
		Int("sampled", len(records)).
		Int("fields", len(s.Fields)).
		Msg("GeoJSON schema inferred")

	return s, nil
}

// sampleLines parses the lines of a sequence window, skipping lines that do
// not parse; the last one is usually cut off.
func sampleLines(data []byte, limit int, location string) ([]geo.Record, error) {
	var records []geo.Record
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if limit > 0 && len(records) >= limit {
			break
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if parsed, err := parseDocument(line); err == nil {
			records = append(records, parsed...)
		}
	}

	if len(records) == 0 {
		return nil, etlerr.Parse(location, "No valid features found in GeoJSON sequence", etlerr.ErrRepairExhausted)
	}

	return truncate(records, limit), nil
}

// sampleWindow decodes the complete features at the start of data.
func sampleWindow(data []byte, limit int, location string) []geo.Record {
	dec := NewDecoder(location)

	var records []geo.Record
	for len(data) > 0 && (limit <= 0 || len(records) < limit) {
		n := min(source.DefaultChunkSize, len(data))
		recs, err := dec.Decode(data[:n])
		records = append(records, recs...)
		if err != nil || dec.Done() {
			break
		}
		data = data[n:]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records
}

// batcher groups records into fixed-size batches.
type batcher struct {
	fn      func(geo.Batch) error
	batch   geo.Batch
	size    int
	total   int
	batches int
}

func (b *batcher) add(records ...geo.Record) error {
	for _, rec := range records {
		b.batch = append(b.batch, rec)
		if len(b.batch) >= b.size {
			if err := b.flush(); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *batcher) flush() error {
	if len(b.batch) == 0 {
		return nil
	}

	b.total += len(b.batch)
	b.batches++
	out := b.batch
	b.batch = make(geo.Batch, 0, b.size)

	return b.fn(out)
}
