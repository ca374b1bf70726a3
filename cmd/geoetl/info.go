package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/etl"
)

type InfoCommand struct {
	Driver  string `long:"driver"      description:"Input driver, detected from each path when empty"`
	Count   bool   `long:"count"       description:"Scan the datasets to count features and compute the extent"`
	JSON    bool   `long:"json"        description:"Print JSON instead of a table"`
	Workers int    `short:"w" long:"workers" description:"Datasets described in parallel, from the configuration when 0"`

	Args struct {
		Inputs []string `positional-arg-name:"input" description:"Input paths or http(s) URLs"`
	} `positional-args:"yes" required:"yes"`
}

func (c *InfoCommand) Execute([]string) error {
	reqs := make([]etl.InfoRequest, len(c.Args.Inputs))
	for i, input := range c.Args.Inputs {
		reqs[i] = etl.InfoRequest{
			Input:  input,
			Driver: c.Driver,
			Config: app.cfg,
			Client: app.client,
			Count:  c.Count,
		}
	}

	workers := c.Workers
	if workers <= 0 {
		workers = app.cfg.Workers
	}
	results := etl.InfoMany(app.ctx, app.reg, reqs, workers)

	var (
		infos    = make([]etl.DatasetInfo, 0, len(results))
		firstErr error
		failed   int
	)
	for _, res := range results {
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			if len(results) > 1 {
				log.Error().Err(res.Err).Str("input", res.Input).Msg("Failed to describe dataset")
			}
			continue
		}
		infos = append(infos, res.Info)
	}

	if err := c.print(os.Stdout, infos); err != nil {
		return err
	}

	switch {
	case failed == 0:
		return nil
	case len(results) == 1:
		return firstErr
	default:
		return fmt.Errorf("%d of %d datasets could not be described: %w", failed, len(results), firstErr)
	}
}

func (c *InfoCommand) print(w io.Writer, infos []etl.DatasetInfo) error {
	if c.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(infos) == 1 && len(c.Args.Inputs) == 1 {
			return enc.Encode(infos[0])
		}
		return enc.Encode(infos)
	}

	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := printInfo(w, info); err != nil {
			return err
		}
	}

	return nil
}

func printInfo(w io.Writer, info etl.DatasetInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Dataset:\t%s\n", info.Dataset)
	fmt.Fprintf(tw, "Table:\t%s\n", info.Table)
	fmt.Fprintf(tw, "Driver:\t%s (%s)\n", info.Driver, info.DriverLongName)
	for _, g := range info.GeometryColumns {
		geomType := g.GeometryType
		if geomType == "" {
			geomType = "Geometry"
		}
		fmt.Fprintf(tw, "Geometry column:\t%s (%s, %s)\n", g.Name, g.Encoding, geomType)
	}
	if info.FeatureCount != nil {
		fmt.Fprintf(tw, "Features:\t%d\n", *info.FeatureCount)
	}
	if len(info.Extent) == 4 {
		fmt.Fprintf(tw, "Extent:\t(%s, %s) - (%s, %s)\n",
			formatCoord(info.Extent[0]), formatCoord(info.Extent[1]),
			formatCoord(info.Extent[2]), formatCoord(info.Extent[3]))
	}
	if len(info.GeometryTypes) > 0 {
		fmt.Fprintf(tw, "Geometry types:\t%s\n", strings.Join(info.GeometryTypes, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tNULLABLE")
	for _, f := range info.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Name, f.DataType, f.Nullable)
	}

	return tw.Flush()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
