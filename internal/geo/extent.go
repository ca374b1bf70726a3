package geo

import (
	"sort"

	"github.com/paulmach/orb"
)

// Extent accumulates the bounding box and geometry types of a record stream.
type Extent struct {
	bound orb.Bound
	valid bool
	types map[string]struct{}
}

// Add folds a geometry into the extent. Nil geometries are ignored.
func (e *Extent) Add(g orb.Geometry) {
	if g == nil {
		return
	}
	if e.types == nil {
		e.types = make(map[string]struct{})
	}
	e.types[g.GeoJSONType()] = struct{}{}

	b := g.Bound()
	if !e.valid {
		e.bound = b
		e.valid = true
		return
	}
	e.bound = e.bound.Union(b)
}

// Bound returns the extent and whether any geometry was seen.
func (e *Extent) Bound() (orb.Bound, bool) {
	return e.bound, e.valid
}

// BBox returns [minx, miny, maxx, maxy], or nil when empty.
func (e *Extent) BBox() []float64 {
	if !e.valid {
		return nil
	}

	return []float64{e.bound.Min[0], e.bound.Min[1], e.bound.Max[0], e.bound.Max[1]}
}

// Types returns the sorted GeoJSON geometry type names seen.
func (e *Extent) Types() []string {
	out := make([]string, 0, len(e.types))
	for t := range e.types {
		out = append(out, t)
	}
	sort.Strings(out)

	return out
}
