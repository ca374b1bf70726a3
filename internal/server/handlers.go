// Package server publishes configured datasets over HTTP.
package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etl"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/source"
)

const etagCap = 64

// DriverInfo is the JSON form of a driver.
type DriverInfo struct {
	ShortName  string   `json:"short_name"`
	LongName   string   `json:"long_name"`
	Extensions []string `json:"extensions"`
	Info       string   `json:"info"`
	Read       string   `json:"read"`
	Write      string   `json:"write"`
}

// NewDriverInfo converts d for JSON output.
func NewDriverInfo(d driver.Driver) DriverInfo {
	return DriverInfo{
		ShortName:  d.ShortName,
		LongName:   d.LongName,
		Extensions: d.Extensions,
		Info:       d.Capabilities.Info.String(),
		Read:       d.Capabilities.Read.String(),
		Write:      d.Capabilities.Write.String(),
	}
}

// HandleDrivers serves the registered drivers.
func (s *ServerContext) HandleDrivers(w http.ResponseWriter, r *http.Request) {
	drivers := s.Registry.Drivers()
	out := make([]DriverInfo, len(drivers))
	for i, d := range drivers {
		out[i] = NewDriverInfo(d)
	}

	writeJSON(w, http.StatusOK, out)
}

// HandleDatasetsList serves the published datasets.
func (s *ServerContext) HandleDatasetsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Config.Datasets)
}

// HandleInfo describes a dataset: /api/info/{name}[?count=true].
func (s *ServerContext) HandleInfo(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/info/"), "/")
	ds, ok := s.DatasetResolver[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	count, _ := strconv.ParseBool(r.URL.Query().Get("count"))
	info, err := etl.Info(r.Context(), s.Registry, etl.InfoRequest{
		Input:  ds.Location,
		Driver: ds.Driver,
		Config: s.Config,
		Client: s.Client,
		Count:  count,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	info.Table = ds.Name

	writeJSON(w, http.StatusOK, info)
}

// HandleDataset streams a dataset as GeoJSON:
// /datasets/{name}.geojson or /datasets/{name}.geojsonl.
func (s *ServerContext) HandleDataset(w http.ResponseWriter, r *http.Request) {
	// Path: /datasets/{name}.{ext}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}

	var (
		name        string
		layout      driver.GeoJSONLayout
		contentType string
	)
	switch file := parts[1]; {
	case strings.HasSuffix(file, ".geojsonl"):
		name = strings.TrimSuffix(file, ".geojsonl")
		layout = driver.NewlineDelimited
		contentType = "application/geo+json-seq"
	case strings.HasSuffix(file, ".geojson"):
		name = strings.TrimSuffix(file, ".geojson")
		layout = driver.FeatureCollection
		contentType = "application/geo+json"
	default:
		http.NotFound(w, r)
		return
	}

	ds, ok := s.DatasetResolver[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if etag := fileETag(ds); etag != "" {
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, no-cache")
	}
	w.Header().Set("Content-Type", contentType)

	stats, err := etl.Export(r.Context(), s.Registry, etl.ExportRequest{
		Input:  ds.Location,
		Driver: ds.Driver,
		Config: s.Config,
		Client: s.Client,
		Layout: layout,
	}, w)
	if err != nil {
		// The status line is gone once the first batch was written.
		log.Error().
			Err(err).
			Str("dataset", ds.Name).
			Int64("features", stats.Features).
			Msg("Failed to stream dataset")
		if stats.Features == 0 {
			writeError(w, err)
		}
		return
	}

	log.Debug().
		Str("dataset", ds.Name).
		Str("run_id", stats.RunID.String()).
		Int64("features", stats.Features).
		Dur("duration", stats.Duration).
		Msg("Dataset streamed")
}

// fileETag derives an ETag from the size and modification time of a local
// dataset. Remote datasets get none.
func fileETag(ds config.Dataset) string {
	if source.IsRemote(ds.Location) {
		return ""
	}
	info, err := os.Stat(ds.Location)
	if err != nil || info.IsDir() {
		return ""
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')

	return string(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		de *etlerr.DriverError
		ce *etlerr.ConfigError
		fe *etlerr.FormatError
		re *etlerr.ReadError
	)
	switch {
	case errors.As(err, &de), errors.As(err, &ce):
		status = http.StatusBadRequest
	case errors.As(err, &fe):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &re) && re.Kind == etlerr.KindIO:
		status = http.StatusBadGateway
	case errors.As(err, &re):
		status = http.StatusUnprocessableEntity
	}

	body := map[string]string{"error": etlerr.UserMessage(err)}
	if hint := etlerr.Suggestion(err); hint != "" {
		body["suggestion"] = hint
	}

	writeJSON(w, status, body)
}
