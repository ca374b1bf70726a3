package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog/log"
)

// Compression is a stream compression codec.
type Compression int

// Supported codecs. Auto picks one from the file extension.
const (
	Auto Compression = iota
	None
	Gzip
	Zstd
	LZ4
)

func (c Compression) String() string {
	switch c {
	case Auto:
		return "auto"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return "none"
	}
}

// DetectCompression maps .gz, .zst/.zstd and .lz4 suffixes to a codec.
// Query strings of URLs are ignored.
func DetectCompression(location string) Compression {
	if i := strings.IndexAny(location, "?#"); i >= 0 && IsRemote(location) {
		location = location[:i]
	}

	switch strings.ToLower(filepath.Ext(location)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	default:
		return None
	}
}

// TrimCompressionExt strips a compression suffix so the inner format can be
// detected: "roads.geojson.gz" -> "roads.geojson".
func TrimCompressionExt(location string) string {
	if DetectCompression(location) == None {
		return location
	}

	return strings.TrimSuffix(location, filepath.Ext(location))
}

func decompress(r io.Reader, c Compression) (io.Reader, func() error, error) {
	noop := func() error { return nil }

	switch c {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil

	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() error { zr.Close(); return nil }, nil

	case LZ4:
		return lz4.NewReader(r), noop, nil

	default:
		return r, noop, nil
	}
}

// Sink is an output file, compressed by extension.
type Sink struct {
	path string
	f    *os.File
	w    io.Writer
	enc  io.Closer
}

// Create creates path (and its directory) for writing. A .gz, .zst or .lz4
// suffix wraps the file in the matching encoder.
func Create(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	s := &Sink{path: path, f: f, w: f}
	switch DetectCompression(path) {
	case Gzip:
		zw := gzip.NewWriter(f)
		s.w, s.enc = zw, zw
	case Zstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		s.w, s.enc = zw, zw
	case LZ4:
		zw := lz4.NewWriter(f)
		s.w, s.enc = zw, zw
	}

	return s, nil
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) { return s.w.Write(p) }

// Close flushes the encoder and closes the file.
func (s *Sink) Close() error {
	var err error
	if s.enc != nil {
		err = s.enc.Close()
	}
	if cerr := s.f.Close(); cerr != nil {
		log.Error().Err(cerr).Str("path", s.path).Msg("Failed to close file")
		if err == nil {
			err = cerr
		}
	}

	return err
}
