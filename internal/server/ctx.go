package server

import (
	"net/http"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/source"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config   *config.Config
	Registry *driver.Registry
	Client   *http.Client
	// DatasetResolver maps dataset names and aliases to datasets.
	DatasetResolver map[string]config.Dataset
}

// NewServerContext validates the configured datasets and sets up the name
// resolver. Datasets without a readable driver or with a missing local file
// are skipped.
func NewServerContext(cfg *config.Config, reg *driver.Registry, client *http.Client) *ServerContext {
	log.Info().Int("config_datasets_count", len(cfg.Datasets)).Msg("Initializing server context")

	resolver := make(map[string]config.Dataset)
	valid := make([]config.Dataset, 0, len(cfg.Datasets))

	for _, ds := range cfg.Datasets {
		var (
			f   driver.Factory
			err error
		)
		if ds.Driver != "" {
			f, err = reg.Require(ds.Driver, driver.OpRead)
		} else if f, err = reg.DetectByPath(ds.Location); err == nil {
			f, err = reg.Require(f.Driver().ShortName, driver.OpRead)
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("dataset", ds.Name).
				Msg("Skipping dataset: no driver can read it")
			continue
		}
		ds.Driver = f.Driver().ShortName

		if !source.IsRemote(ds.Location) {
			if _, err := os.Stat(ds.Location); err != nil {
				log.Warn().
					Str("dataset", ds.Name).
					Str("path", ds.Location).
					Msg("Skipping dataset: file not found")
				continue
			}
		}

		resolver[ds.Name] = ds
		for _, alias := range ds.Aliases {
			resolver[alias] = ds
		}

		log.Debug().
			Str("dataset", ds.Name).
			Str("driver", ds.Driver).
			Msg("Dataset validated and added to context")

		valid = append(valid, ds)
	}

	sort.Slice(valid, func(i, j int) bool { return valid[i].Name < valid[j].Name })
	cfg.Datasets = valid

	log.Info().
		Int("valid_datasets_count", len(valid)).
		Msg("Server context initialized successfully")

	return &ServerContext{
		Config:          cfg,
		Registry:        reg,
		Client:          client,
		DatasetResolver: resolver,
	}
}

// Routes registers the handlers on a new mux wrapped in RequestLogger.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/drivers", s.HandleDrivers)
	mux.HandleFunc("/api/datasets", s.HandleDatasetsList)
	mux.HandleFunc("/api/info/", s.HandleInfo)
	mux.HandleFunc("/datasets/", s.HandleDataset)

	return RequestLogger(mux)
}
