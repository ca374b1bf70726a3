package main

import (
	"os"

	"github.com/goccy/go-json"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/etl"
	"github.com/woozymasta/geoetl/internal/etlerr"
)

type ConvertCommand struct {
	InputDriver     string `short:"i" long:"input-driver"     description:"Input driver, detected from the input path when empty"`
	OutputDriver    string `short:"o" long:"output-driver"    description:"Output driver, detected from the output path when empty"`
	GeometryColumn  string `short:"g" long:"geometry-column"  description:"Geometry column name (WKT column for CSV input)"`
	GeometryType    string `short:"t" long:"geometry-type"    description:"Expected geometry type of CSV input"`
	BatchSize       int    `short:"b" long:"batch-size"       description:"Records per batch"`
	WritePartitions int    `short:"p" long:"write-partitions" description:"Output partitions" default:"1"`
	Pretty          bool   `long:"pretty"                     description:"Indent GeoJSON output"`
	Delimiter       string `short:"d" long:"delimiter"        description:"CSV field delimiter"`
	NoHeader        bool   `long:"no-header"                  description:"CSV input has no header row"`
	Compression     string `long:"compression"                description:"GeoParquet compression" choice:"zstd" choice:"snappy" choice:"gzip" choice:"lz4" choice:"uncompressed"`
	Stats           bool   `long:"stats"                      description:"Print run statistics as JSON to stdout"`

	Args struct {
		Input  string `positional-arg-name:"input"  description:"Input path or http(s) URL"`
		Output string `positional-arg-name:"output" description:"Output path"`
	} `positional-args:"yes" required:"yes"`
}

func (c *ConvertCommand) Execute([]string) error {
	cfg := *app.cfg
	if err := c.apply(&cfg); err != nil {
		return err
	}

	stats, err := etl.Convert(app.ctx, app.reg, etl.ConvertRequest{
		Input:           c.Args.Input,
		Output:          c.Args.Output,
		InputDriver:     c.InputDriver,
		OutputDriver:    c.OutputDriver,
		Config:          &cfg,
		Client:          app.client,
		WritePartitions: c.WritePartitions,
		Pretty:          c.Pretty,
	})
	if err != nil {
		return err
	}

	if c.Stats {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	return nil
}

// apply overrides cfg with the flags that were set.
func (c *ConvertCommand) apply(cfg *config.Config) error {
	if c.GeometryColumn != "" {
		cfg.GeometryColumn = c.GeometryColumn
		cfg.CSV.GeometryColumn = c.GeometryColumn
	}
	if c.GeometryType != "" {
		cfg.CSV.GeometryType = c.GeometryType
	}
	if c.BatchSize != 0 {
		cfg.BatchSize = c.BatchSize
	}
	if c.Delimiter != "" {
		cfg.CSV.Delimiter = c.Delimiter
	}
	if c.NoHeader {
		cfg.CSV.NoHeader = true
	}
	if c.Compression != "" {
		cfg.GeoParquet.Compression = c.Compression
	}
	if c.WritePartitions < 1 {
		return &etlerr.ConfigError{Option: "write-partitions", Message: "must be at least 1"}
	}

	return cfg.Validate()
}
