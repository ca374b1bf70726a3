// Package etl implements the dataset operations: convert, info and export.
package etl

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/format/geojson"
	"github.com/woozymasta/geoetl/internal/geo"
)

// ConvertRequest describes one conversion.
type ConvertRequest struct {
	Input  string
	Output string
	// Drivers are detected from the paths when empty.
	InputDriver  string
	OutputDriver string

	Config *config.Config
	Client *http.Client

	// WritePartitions above 1 is rejected with a warning by the single-file
	// CSV and GeoJSON writers.
	WritePartitions int
	// Pretty indents GeoJSON output.
	Pretty bool
}

// Stats summarizes a finished run.
type Stats struct {
	RunID        uuid.UUID     `json:"run_id"`
	InputDriver  string        `json:"input_driver"`
	OutputDriver string        `json:"output_driver"`
	Features     int64         `json:"features"`
	Batches      int           `json:"batches"`
	BytesRead    int64         `json:"bytes_read"`
	Digest       string        `json:"digest,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Convert streams every record of Input into Output.
func Convert(ctx context.Context, reg *driver.Registry, req ConvertRequest) (Stats, error) {
	stats := Stats{RunID: uuid.New()}
	logger := log.With().Str("run_id", stats.RunID.String()).Logger()
	start := time.Now()

	in, err := resolve(reg, req.InputDriver, req.Input, driver.OpRead)
	if err != nil {
		return stats, err
	}
	out, err := resolve(reg, req.OutputDriver, req.Output, driver.OpWrite)
	if err != nil {
		return stats, err
	}
	stats.InputDriver = in.Driver().ShortName
	stats.OutputDriver = out.Driver().ShortName

	if req.WritePartitions > 1 && (stats.OutputDriver == "CSV" || stats.OutputDriver == "GeoJSON") {
		logger.Warn().
			Str("driver", stats.OutputDriver).
			Int("requested", req.WritePartitions).
			Msg("Format only supports single-partition writes, using 1")
	}

	logger.Info().
		Str("input", req.Input).
		Str("input_driver", stats.InputDriver).
		Str("output", req.Output).
		Str("output_driver", stats.OutputDriver).
		Msg("Starting conversion")

	cfg := orDefault(req.Config)
	reader, err := in.OpenReader(ctx, req.Input, optionsFor(stats.InputDriver, cfg, req.Client, false))
	if err != nil {
		return stats, err
	}
	defer func() { _ = reader.Close() }()

	writer, err := out.CreateWriter(req.Output, reader.Schema(), optionsFor(stats.OutputDriver, cfg, req.Client, req.Pretty))
	if err != nil {
		return stats, err
	}

	err = copyRecords(ctx, reader, writer, &stats, logger)
	if closeErr := writer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	rs := reader.Stats()
	stats.BytesRead = rs.BytesRead
	stats.Digest = rs.Digest
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	logger.Info().
		Int64("features", stats.Features).
		Int("batches", stats.Batches).
		Int64("bytes_read", stats.BytesRead).
		Str("digest", stats.Digest).
		Dur("duration", stats.Duration).
		Msg("Conversion completed")

	return stats, nil
}

// ExportRequest streams a dataset as GeoJSON.
type ExportRequest struct {
	Input  string
	Driver string

	Config *config.Config
	Client *http.Client

	Layout driver.GeoJSONLayout
}

// Export writes the records of Input to dst as GeoJSON. dst is not closed.
func Export(ctx context.Context, reg *driver.Registry, req ExportRequest, dst io.Writer) (Stats, error) {
	stats := Stats{RunID: uuid.New(), OutputDriver: "GeoJSON"}
	logger := log.With().Str("run_id", stats.RunID.String()).Logger()
	start := time.Now()

	in, err := resolve(reg, req.Driver, req.Input, driver.OpRead)
	if err != nil {
		return stats, err
	}
	stats.InputDriver = in.Driver().ShortName

	cfg := orDefault(req.Config)
	reader, err := in.OpenReader(ctx, req.Input, optionsFor(stats.InputDriver, cfg, req.Client, false))
	if err != nil {
		return stats, err
	}
	defer func() { _ = reader.Close() }()

	opts := driver.DefaultGeoJSONOptions()
	opts.Layout = req.Layout
	writer := geojson.NewWriter(nopCloser{dst}, reader.Schema(), opts)

	// The footer is written only on success.
	if err := copyRecords(ctx, reader, writer, &stats, logger); err != nil {
		return stats, err
	}
	if err := writer.Close(); err != nil {
		return stats, err
	}

	rs := reader.Stats()
	stats.BytesRead = rs.BytesRead
	stats.Digest = rs.Digest
	stats.Duration = time.Since(start)

	return stats, nil
}

func copyRecords(ctx context.Context, r driver.RecordReader, w driver.RecordWriter, stats *Stats, logger zerolog.Logger) error {
	return r.ReadBatches(ctx, func(batch geo.Batch) error {
		if err := w.WriteBatch(batch); err != nil {
			return err
		}
		stats.Features += int64(len(batch))
		stats.Batches++

		logger.Debug().
			Int("batch", stats.Batches).
			Int("size", len(batch)).
			Int64("features", stats.Features).
			Msg("Batch written")

		return nil
	})
}

// resolve finds the factory for name, or detects it from location, and
// checks it supports op.
func resolve(reg *driver.Registry, name, location, op string) (driver.Factory, error) {
	if name == "" {
		f, err := reg.DetectByPath(location)
		if err != nil {
			return nil, err
		}
		name = f.Driver().ShortName
	}

	return reg.Require(name, op)
}

// optionsFor builds the options variant of driverName from cfg.
func optionsFor(driverName string, cfg *config.Config, client *http.Client, pretty bool) driver.Options {
	opts := driver.FromConfig(driverName, cfg)
	if o, ok := opts.(driver.GeoJSONOptions); ok {
		o.Pretty = pretty
		opts = o
	}
	if client == nil {
		return opts
	}

	return driver.WithClient(opts, client)
}

func orDefault(cfg *config.Config) *config.Config {
	if cfg == nil {
		return config.Default()
	}

	return cfg
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
