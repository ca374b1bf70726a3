// Package driver describes format drivers, their capabilities and the
// registry the ETL operations resolve them from.
package driver

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
	"github.com/woozymasta/geoetl/internal/source"
)

// SupportStatus is how far an operation is implemented for a driver.
type SupportStatus int

// Support levels.
const (
	NotSupported SupportStatus = iota
	Planned
	Supported
)

func (s SupportStatus) String() string {
	switch s {
	case Supported:
		return "Supported"
	case Planned:
		return "Planned"
	default:
		return "Not Supported"
	}
}

// IsSupported reports full support.
func (s SupportStatus) IsSupported() bool { return s == Supported }

// IsAvailable is true for supported and planned operations.
func (s SupportStatus) IsAvailable() bool { return s != NotSupported }

// Capabilities lists the support level of every operation.
type Capabilities struct {
	Info  SupportStatus `json:"info"`
	Read  SupportStatus `json:"read"`
	Write SupportStatus `json:"write"`
}

// HasSupportedOperation is true when at least one operation works.
func (c Capabilities) HasSupportedOperation() bool {
	return c.Info.IsSupported() || c.Read.IsSupported() || c.Write.IsSupported()
}

// Operation names used in capability errors.
const (
	OpInfo  = "info"
	OpRead  = "read"
	OpWrite = "write"
)

// Status returns the support level of op.
func (c Capabilities) Status(op string) SupportStatus {
	switch op {
	case OpInfo:
		return c.Info
	case OpRead:
		return c.Read
	case OpWrite:
		return c.Write
	default:
		return NotSupported
	}
}

// Driver is the metadata of one format.
type Driver struct {
	ShortName    string       `json:"short_name"`
	LongName     string       `json:"long_name"`
	Extensions   []string     `json:"extensions,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// MatchesPath reports whether path ends in one of the driver extensions.
func (d Driver) MatchesPath(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 && source.IsRemote(path) {
		path = path[:i]
	}
	lower := strings.ToLower(source.TrimCompressionExt(path))
	for _, ext := range d.Extensions {
		if strings.HasSuffix(lower, "."+ext) {
			return true
		}
	}

	return false
}

// TableName derives a dataset name from a path or URL: the base name
// without extensions.
func TableName(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	name := filepath.Base(location)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if name == "" || name == "." || name == "/" {
		return "dataset"
	}

	return name
}

// RecordReader streams the records of one dataset in batches.
type RecordReader interface {
	// Schema is the schema inferred or read when the reader was opened.
	Schema() schema.Schema
	// ReadBatches calls fn for every batch in order. Returning an error
	// from fn stops reading and is returned unchanged.
	ReadBatches(ctx context.Context, fn func(geo.Batch) error) error
	// Stats reports the bytes consumed so far and their checksum.
	Stats() ReadStats
	Close() error
}

// ReadStats describes the bytes a reader consumed.
type ReadStats struct {
	BytesRead int64
	Digest    string
}

// RecordWriter writes batches in order; Close finalizes the output.
type RecordWriter interface {
	WriteBatch(batch geo.Batch) error
	Close() error
}

// Factory creates readers and writers for one driver. Operations a driver
// does not support return an *etlerr.DriverError.
type Factory interface {
	Driver() Driver
	InferSchema(ctx context.Context, location string, opts Options) (schema.Schema, error)
	OpenReader(ctx context.Context, location string, opts Options) (RecordReader, error)
	CreateWriter(location string, s schema.Schema, opts Options) (RecordWriter, error)
}
