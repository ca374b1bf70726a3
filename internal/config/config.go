// Package config handles configuration loading and the defaults shared by
// drivers and the ETL pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/woozymasta/geoetl/internal/etlerr"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultBatchSize              = 8192
	DefaultSchemaInferMaxFeatures = 1024
	DefaultSchemaInferMaxBytes    = 10 * 1024 * 1024
	DefaultGeometryColumn         = "geometry"
	DefaultChunkSize              = 64 * 1024
	DefaultHTTPTimeout            = 15 * time.Second
	DefaultCompression            = "zstd"
	DefaultWorkers                = 4
)

// Config represents the root configuration file structure.
type Config struct {
	GeometryColumn string `yaml:"geometry_column,omitempty" json:"geometry_column"`

	CSV        CSV        `yaml:"csv,omitempty" json:"csv"`
	GeoParquet GeoParquet `yaml:"geoparquet,omitempty" json:"geoparquet"`

	HTTPTimeout time.Duration `yaml:"http_timeout,omitempty" json:"http_timeout"`

	BatchSize              int   `yaml:"batch_size,omitempty" json:"batch_size"`
	SchemaInferMaxFeatures int   `yaml:"schema_infer_max_features,omitempty" json:"schema_infer_max_features"`
	SchemaInferMaxBytes    int64 `yaml:"schema_infer_max_bytes,omitempty" json:"schema_infer_max_bytes"`
	ChunkSize              int   `yaml:"chunk_size,omitempty" json:"chunk_size"`
	Workers                int   `yaml:"workers,omitempty" json:"workers"` // parallel info jobs

	Datasets []Dataset `yaml:"datasets,omitempty" json:"datasets,omitempty"`
}

// Dataset is a named input published by the HTTP server.
type Dataset struct {
	Name     string   `yaml:"name" json:"name"`
	Location string   `yaml:"location" json:"location"` // path or http(s) URL
	Driver   string   `yaml:"driver,omitempty" json:"driver,omitempty"`
	Aliases  []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// CSV holds CSV driver defaults.
type CSV struct {
	Delimiter      string `yaml:"delimiter,omitempty" json:"delimiter"`
	GeometryColumn string `yaml:"geometry_column,omitempty" json:"geometry_column,omitempty"`
	GeometryType   string `yaml:"geometry_type,omitempty" json:"geometry_type,omitempty"`
	NoHeader       bool   `yaml:"no_header,omitempty" json:"no_header,omitempty"`
}

// GeoParquet holds GeoParquet writer defaults.
type GeoParquet struct {
	Compression  string `yaml:"compression,omitempty" json:"compression"`
	RowGroupSize int64  `yaml:"row_group_size,omitempty" json:"row_group_size,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()

	return cfg
}

// Load reads and parses the YAML configuration file from the specified path.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	return &cfg, cfg.Validate()
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.GeometryColumn == "" {
		c.GeometryColumn = DefaultGeometryColumn
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SchemaInferMaxFeatures == 0 {
		c.SchemaInferMaxFeatures = DefaultSchemaInferMaxFeatures
	}
	if c.SchemaInferMaxBytes == 0 {
		c.SchemaInferMaxBytes = DefaultSchemaInferMaxBytes
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.CSV.Delimiter == "" {
		c.CSV.Delimiter = ","
	}
	if c.GeoParquet.Compression == "" {
		c.GeoParquet.Compression = DefaultCompression
	}
}

// Validate checks value ranges after defaults were applied.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize < 0:
		return &etlerr.ConfigError{Option: "batch_size", Message: "must be positive"}
	case c.SchemaInferMaxFeatures < 0:
		return &etlerr.ConfigError{Option: "schema_infer_max_features", Message: "must be positive"}
	case c.SchemaInferMaxBytes < 0:
		return &etlerr.ConfigError{Option: "schema_infer_max_bytes", Message: "must be positive"}
	case c.ChunkSize < 0:
		return &etlerr.ConfigError{Option: "chunk_size", Message: "must be positive"}
	case c.Workers < 0:
		return &etlerr.ConfigError{Option: "workers", Message: "must be positive"}
	case len([]rune(c.CSV.Delimiter)) != 1:
		return &etlerr.ConfigError{Option: "csv.delimiter", Message: "must be a single character"}
	}

	seen := make(map[string]bool, len(c.Datasets))
	for i, d := range c.Datasets {
		if d.Name == "" || d.Location == "" {
			return &etlerr.ConfigError{
				Option:  fmt.Sprintf("datasets[%d]", i),
				Message: "name and location are required",
			}
		}
		for _, name := range append([]string{d.Name}, d.Aliases...) {
			if seen[name] {
				return &etlerr.ConfigError{
					Option:  fmt.Sprintf("datasets[%d]", i),
					Message: fmt.Sprintf("duplicate dataset name %q", name),
				}
			}
			seen[name] = true
		}
	}

	switch c.GeoParquet.Compression {
	case "zstd", "snappy", "gzip", "lz4", "uncompressed":
	default:
		return &etlerr.ConfigError{
			Option:  "geoparquet.compression",
			Message: "expected one of zstd, snappy, gzip, lz4, uncompressed",
		}
	}

	return nil
}
