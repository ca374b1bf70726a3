package etl

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/geo"
	"github.com/woozymasta/geoetl/internal/schema"
)

// InfoRequest selects a dataset to describe.
type InfoRequest struct {
	Input  string
	Driver string

	Config *config.Config
	Client *http.Client

	// Count scans every record for the feature count and extent.
	Count bool
}

// FieldInfo describes one property column.
type FieldInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// GeometryColumnInfo describes the geometry column.
type GeometryColumnInfo struct {
	Name         string `json:"name"`
	Encoding     string `json:"encoding"`
	GeometryType string `json:"geometry_type"`
}

// DatasetInfo is the result of Info.
type DatasetInfo struct {
	Dataset         string               `json:"dataset"`
	Table           string               `json:"table"`
	Driver          string               `json:"driver"`
	DriverLongName  string               `json:"driver_long_name"`
	GeometryColumns []GeometryColumnInfo `json:"geometry_columns"`
	Fields          []FieldInfo          `json:"fields"`

	FeatureCount  *int64    `json:"feature_count,omitempty"`
	Extent        []float64 `json:"extent,omitempty"`
	GeometryTypes []string  `json:"geometry_types,omitempty"`
}

// geometryEncodings maps drivers to how they store geometries.
var geometryEncodings = map[string]string{
	"CSV":        "WKT",
	"GeoJSON":    "GeoJSON",
	"GeoParquet": "WKB",
}

// Info describes a dataset from its inferred schema, optionally scanning it.
func Info(ctx context.Context, reg *driver.Registry, req InfoRequest) (DatasetInfo, error) {
	f, err := resolve(reg, req.Driver, req.Input, driver.OpInfo)
	if err != nil {
		return DatasetInfo{}, err
	}
	d := f.Driver()

	log.Info().
		Str("input", req.Input).
		Str("driver", d.ShortName).
		Bool("count", req.Count).
		Msg("Reading dataset information")

	opts := optionsFor(d.ShortName, orDefault(req.Config), req.Client, false)

	var (
		s      schema.Schema
		count  int64
		extent geo.Extent
	)
	if req.Count {
		if _, err := reg.Require(d.ShortName, driver.OpRead); err != nil {
			return DatasetInfo{}, err
		}
		r, err := f.OpenReader(ctx, req.Input, opts)
		if err != nil {
			return DatasetInfo{}, err
		}
		defer func() { _ = r.Close() }()

		err = r.ReadBatches(ctx, func(batch geo.Batch) error {
			count += int64(len(batch))
			for _, rec := range batch {
				extent.Add(rec.Geometry)
			}
			return nil
		})
		if err != nil {
			return DatasetInfo{}, err
		}
		s = r.Schema()
	} else {
		s, err = f.InferSchema(ctx, req.Input, opts)
		if err != nil {
			return DatasetInfo{}, err
		}
	}

	info := DatasetInfo{
		Dataset:         req.Input,
		Table:           driver.TableName(req.Input),
		Driver:          d.ShortName,
		DriverLongName:  d.LongName,
		GeometryColumns: []GeometryColumnInfo{},
		Fields:          make([]FieldInfo, 0, len(s.Fields)),
	}
	for _, field := range s.Fields {
		if field.Geometry {
			info.GeometryColumns = append(info.GeometryColumns, GeometryColumnInfo{
				Name:         field.Name,
				Encoding:     geometryEncodings[d.ShortName],
				GeometryType: field.GeometryType,
			})
			continue
		}
		info.Fields = append(info.Fields, FieldInfo{
			Name:     field.Name,
			DataType: field.Type.String(),
			Nullable: field.Nullable,
		})
	}

	if req.Count {
		info.FeatureCount = &count
		info.Extent = extent.BBox()
		info.GeometryTypes = extent.Types()
	}

	return info, nil
}

// InfoResult pairs a dataset with its Info outcome.
type InfoResult struct {
	Input string
	Info  DatasetInfo
	Err   error
}

type infoJob struct {
	index int
	req   InfoRequest
}

// InfoMany runs Info on up to workers datasets at once. Results keep the
// order of reqs.
func InfoMany(ctx context.Context, reg *driver.Registry, reqs []InfoRequest, workers int) []InfoResult {
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	workers = min(workers, len(reqs))

	jobs := make(chan infoJob, len(reqs))
	results := make([]InfoResult, len(reqs))

	go func() {
		for i, req := range reqs {
			jobs <- infoJob{index: i, req: req}
		}
		close(jobs)
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				info, err := Info(ctx, reg, j.req)
				if err != nil {
					log.Debug().
						Err(err).
						Str("input", j.req.Input).
						Msg("Failed to read dataset information")
				}
				results[j.index] = InfoResult{Input: j.req.Input, Info: info, Err: err}
			}
		}()
	}
	wg.Wait()

	return results
}
