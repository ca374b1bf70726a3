// Package source opens datasets as byte streams: local files or http(s)
// URLs, optionally gzip, zstd or lz4 compressed, with a running checksum of
// the bytes delivered.
package source

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/etlerr"
)

// DefaultChunkSize is used by Chunks when size <= 0.
const DefaultChunkSize = 64 * 1024

// Options configure how a location is opened.
type Options struct {
	// Client is used for http(s) locations. NewClient(15s) when nil.
	Client *http.Client
	// Compression overrides detection by extension.
	Compression Compression
}

// NewClient builds the HTTP client used for remote datasets.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 16,
		},
		Timeout: timeout,
	}
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}

	return NewClient(15 * time.Second)
}

// IsRemote reports whether location is an http(s) URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Source is an open dataset. Reads return decompressed bytes.
type Source struct {
	location string
	raw      io.ReadCloser
	r        io.Reader
	closeDec func() error
	digest   *xxhash.Digest
	read     int64
}

// Open opens a local path or an http(s) URL.
func Open(ctx context.Context, location string, opts Options) (*Source, error) {
	raw, err := openRaw(ctx, location, opts, -1)
	if err != nil {
		return nil, etlerr.IO(location, err)
	}

	comp := opts.Compression
	if comp == Auto {
		comp = DetectCompression(location)
	}

	r, closeDec, err := decompress(raw, comp)
	if err != nil {
		_ = raw.Close()
		return nil, etlerr.IO(location, fmt.Errorf("open %s stream: %w", comp, err))
	}

	log.Debug().
		Str("source", location).
		Str("compression", comp.String()).
		Msg("Source opened")

	return &Source{
		location: location,
		raw:      raw,
		r:        r,
		closeDec: closeDec,
		digest:   xxhash.New(),
	}, nil
}

// Location returns the path or URL the source was opened from.
func (s *Source) Location() string { return s.location }

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if n > 0 {
		_, _ = s.digest.Write(p[:n])
		s.read += int64(n)
	}

	return n, err
}

// Chunks reads the whole source and hands it to fn in pieces of at most
// size bytes. The slice passed to fn is reused between calls. Cancellation
// is checked before every read.
func (s *Source) Chunks(ctx context.Context, size int, fn func([]byte) error) error {
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return etlerr.IO(s.location, err)
		}
	}
}

// BytesRead returns the number of decompressed bytes delivered so far.
func (s *Source) BytesRead() int64 { return s.read }

// Digest returns the xxhash64 of the bytes delivered so far.
func (s *Source) Digest() uint64 { return s.digest.Sum64() }

// DigestHex is Digest as 16 hex digits.
func (s *Source) DigestHex() string { return fmt.Sprintf("%016x", s.Digest()) }

// Close releases the decompressor and the underlying file or response.
func (s *Source) Close() error {
	var err error
	if s.closeDec != nil {
		err = s.closeDec()
	}
	if cerr := s.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}

	return err
}

// ReadPrefix returns at most maxBytes decompressed bytes from the start of
// location. Uncompressed remote sources are fetched with a Range request.
func ReadPrefix(ctx context.Context, location string, maxBytes int64, opts Options) ([]byte, error) {
	comp := opts.Compression
	if comp == Auto {
		comp = DetectCompression(location)
	}

	limit := int64(-1)
	if comp == None {
		limit = maxBytes
	}

	raw, err := openRaw(ctx, location, opts, limit)
	if err != nil {
		return nil, etlerr.IO(location, err)
	}
	defer func() { _ = raw.Close() }()

	r, closeDec, err := decompress(raw, comp)
	if err != nil {
		return nil, etlerr.IO(location, err)
	}
	defer func() { _ = closeDec() }()

	data, err := io.ReadAll(io.LimitReader(r, maxBytes))
	if err != nil {
		return nil, etlerr.IO(location, err)
	}

	log.Trace().
		Str("source", location).
		Int("bytes", len(data)).
		Msg("Read inference window")

	return data, nil
}

// openRaw opens the undecoded stream. rangeLimit > 0 asks an HTTP server for
// only that many leading bytes.
func openRaw(ctx context.Context, location string, opts Options, rangeLimit int64) (io.ReadCloser, error) {
	if !IsRemote(location) {
		return os.Open(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	if rangeLimit > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", rangeLimit-1))
	}

	resp, err := opts.client().Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return resp.Body, nil
}
