package driver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/schema"
)

// Registry maps driver short names to factories. Build one at startup and
// pass it to the operations that need it.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f. Short names are unique regardless of case.
func (r *Registry) Register(f Factory) error {
	name := f.Driver().ShortName
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[key]; ok {
		return fmt.Errorf("driver '%s' is already registered", name)
	}
	r.factories[key] = f

	return nil
}

// MustRegister is Register that panics on duplicates, for static setup.
func (r *Registry) MustRegister(factories ...Factory) *Registry {
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}

	return r
}

// Find looks a factory up by short name, ignoring case.
func (r *Registry) Find(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, &etlerr.DriverError{Driver: name, Available: r.Names()}
	}

	return f, nil
}

// Require finds name and checks that op is supported.
func (r *Registry) Require(name, op string) (Factory, error) {
	f, err := r.Find(name)
	if err != nil {
		return nil, err
	}

	d := f.Driver()
	if !d.Capabilities.Status(op).IsSupported() {
		return nil, &etlerr.DriverError{Driver: d.ShortName, Operation: op}
	}

	return f, nil
}

// DetectByPath picks the driver whose extension matches path, ignoring a
// compression suffix.
func (r *Registry) DetectByPath(path string) (Factory, error) {
	for _, d := range r.Drivers() {
		if d.MatchesPath(path) {
			return r.Find(d.ShortName)
		}
	}

	return nil, &etlerr.ConfigError{
		Option:  "driver",
		Message: fmt.Sprintf("cannot detect driver from %q, pass it explicitly", path),
	}
}

// Drivers returns all registered drivers sorted by short name.
func (r *Registry) Drivers() []Driver {
	r.mu.RLock()
	out := make([]Driver, 0, len(r.factories))
	for _, f := range r.factories {
		out = append(out, f.Driver())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ShortName < out[j].ShortName })

	return out
}

// Available returns the drivers with at least one supported operation.
func (r *Registry) Available() []Driver {
	var out []Driver
	for _, d := range r.Drivers() {
		if d.Capabilities.HasSupportedOperation() {
			out = append(out, d)
		}
	}

	return out
}

// WithCapability filters drivers; a false argument does not constrain.
func (r *Registry) WithCapability(read, write, info bool) []Driver {
	var out []Driver
	for _, d := range r.Drivers() {
		c := d.Capabilities
		if (!read || c.Read.IsSupported()) && (!write || c.Write.IsSupported()) && (!info || c.Info.IsSupported()) {
			out = append(out, d)
		}
	}

	return out
}

// Names returns the sorted short names.
func (r *Registry) Names() []string {
	drivers := r.Drivers()
	names := make([]string, len(drivers))
	for i, d := range drivers {
		names[i] = d.ShortName
	}

	return names
}

// Catalog is a factory for a listed driver with no implementation yet.
type Catalog struct {
	D Driver
}

// Driver implements Factory.
func (c Catalog) Driver() Driver { return c.D }

// InferSchema implements Factory.
func (c Catalog) InferSchema(context.Context, string, Options) (schema.Schema, error) {
	return schema.Schema{}, &etlerr.DriverError{Driver: c.D.ShortName, Operation: OpInfo}
}

// OpenReader implements Factory.
func (c Catalog) OpenReader(context.Context, string, Options) (RecordReader, error) {
	return nil, &etlerr.DriverError{Driver: c.D.ShortName, Operation: OpRead}
}

// CreateWriter implements Factory.
func (c Catalog) CreateWriter(string, schema.Schema, Options) (RecordWriter, error) {
	return nil, &etlerr.DriverError{Driver: c.D.ShortName, Operation: OpWrite}
}
