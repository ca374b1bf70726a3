package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woozymasta/geoetl/internal/etlerr"
)

var testModTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var payload = []byte(strings.Repeat(`{"type":"Feature","geometry":null,"properties":{"k":"v"}}`+"\n", 500))

func writeCompressed(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	s, err := Create(path)
	require.NoError(t, err)
	_, err = s.Write(payload)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	return path
}

func readAll(t *testing.T, location string, chunk int) ([]byte, *Source) {
	t.Helper()

	s, err := Open(context.Background(), location, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var out bytes.Buffer
	require.NoError(t, s.Chunks(context.Background(), chunk, func(b []byte) error {
		assert.LessOrEqual(t, len(b), chunk)
		out.Write(b)
		return nil
	}))

	return out.Bytes(), s
}

func TestOpenCompressedFiles(t *testing.T) {
	for _, name := range []string{"data.ndjson", "data.ndjson.gz", "data.ndjson.zst", "data.ndjson.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := writeCompressed(t, name)
			got, s := readAll(t, path, 1000)

			assert.Equal(t, payload, got)
			assert.Equal(t, int64(len(payload)), s.BytesRead())
			assert.Equal(t, xxhash.Sum64(payload), s.Digest())
			assert.Len(t, s.DigestHex(), 16)
		})
	}
}

func TestCompressedOnDiskIsSmaller(t *testing.T) {
	path := writeCompressed(t, "data.ndjson.gz")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(payload)))
}

func TestDetectCompression(t *testing.T) {
	assert.Equal(t, Gzip, DetectCompression("a/b.geojson.GZ"))
	assert.Equal(t, Zstd, DetectCompression("b.parquet.zstd"))
	assert.Equal(t, LZ4, DetectCompression("c.csv.lz4"))
	assert.Equal(t, None, DetectCompression("d.csv"))
	assert.Equal(t, Gzip, DetectCompression("https://example.com/e.geojson.gz?sig=abc"))

	assert.Equal(t, "roads.geojson", TrimCompressionExt("roads.geojson.gz"))
	assert.Equal(t, "roads.geojson", TrimCompressionExt("roads.geojson"))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.geojson"), Options{})
	require.Error(t, err)

	var re *etlerr.ReadError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, etlerr.KindIO, re.Kind)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestChunksStopsOnCallbackError(t *testing.T) {
	path := writeCompressed(t, "data.ndjson")
	s, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	stop := errors.New("stop")
	calls := 0
	err = s.Chunks(context.Background(), 100, func([]byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestChunksHonoursCancel(t *testing.T) {
	path := writeCompressed(t, "data.ndjson")
	s, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Chunks(ctx, 100, func([]byte) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.geojson" {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "data.ndjson", testModTime, bytes.NewReader(payload))
	}))
	defer srv.Close()

	got, s := readAll(t, srv.URL+"/data.ndjson", 4096)
	assert.Equal(t, payload, got)
	assert.Equal(t, srv.URL+"/data.ndjson", s.Location())

	_, err := Open(context.Background(), srv.URL+"/missing.geojson", Options{Client: srv.Client()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestReadPrefix(t *testing.T) {
	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Range"))
		http.ServeContent(w, r, "data.ndjson", testModTime, bytes.NewReader(payload))
	}))
	defer srv.Close()

	got, err := ReadPrefix(context.Background(), srv.URL+"/data.ndjson", 100, Options{Client: srv.Client()})
	require.NoError(t, err)
	assert.Equal(t, payload[:100], got)
	assert.Equal(t, []string{"bytes=0-99"}, ranges)

	path := writeCompressed(t, "data.ndjson.zst")
	got, err = ReadPrefix(context.Background(), path, 250, Options{})
	require.NoError(t, err)
	assert.Equal(t, payload[:250], got)

	got, err = ReadPrefix(context.Background(), path, int64(len(payload))*2, Options{})
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSinkWritesPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.geojson")
	s, err := Create(path)
	require.NoError(t, err)
	_, err = io.Copy(s, bytes.NewReader(payload))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}
