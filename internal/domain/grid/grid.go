// Package grid holds the fixed planning unit grid and the watersheds used to
// route land-based stressors to the coast.
package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// PlanningUnit is one cell of the reference grid.
type PlanningUnit struct {
	ID         int64
	Area       float64
	MarineArea float64
	Geometry   geom.Polygonal
}

// Grid is the immutable set of planning units, ordered by id.
type Grid struct {
	units []PlanningUnit
	index map[int64]int
}

// New validates units and builds the grid. A missing Area is taken from the
// geometry; a missing MarineArea defaults to Area. Duplicate ids are rejected.
func New(units []PlanningUnit) (*Grid, error) {
	g := &Grid{
		units: make([]PlanningUnit, len(units)),
		index: make(map[int64]int, len(units)),
	}
	copy(g.units, units)
	sort.Slice(g.units, func(i, j int) bool { return g.units[i].ID < g.units[j].ID })
	for i := range g.units {
		u := &g.units[i]
		if _, dup := g.index[u.ID]; dup {
			return nil, errors.Validation(fmt.Sprintf("grid: duplicate unit_id %d", u.ID))
		}
		if u.Area <= 0 && u.Geometry != nil {
			u.Area = math.Abs(u.Geometry.Area())
		}
		if u.MarineArea <= 0 {
			u.MarineArea = u.Area
		}
		g.index[u.ID] = i
	}
	return g, nil
}

// Len returns the number of units.
func (g *Grid) Len() int { return len(g.units) }

// IDs returns all unit ids in ascending order.
func (g *Grid) IDs() []int64 {
	out := make([]int64, len(g.units))
	for i, u := range g.units {
		out[i] = u.ID
	}
	return out
}

// Unit returns the unit with the given id.
func (g *Grid) Unit(id int64) (PlanningUnit, bool) {
	i, ok := g.index[id]
	if !ok {
		return PlanningUnit{}, false
	}
	return g.units[i], true
}

// Units returns all units in id order.
func (g *Grid) Units() []PlanningUnit {
	return append([]PlanningUnit(nil), g.units...)
}

// Zones returns the units as overlay zones weighted by their full area.
func (g *Grid) Zones() []spatial.Zone {
	out := make([]spatial.Zone, len(g.units))
	for i, u := range g.units {
		out[i] = spatial.Zone{ID: u.ID, Area: u.Area, Geometry: u.Geometry}
	}
	return out
}

// Watershed is a drainage basin with an optional outlet (pour point).
type Watershed struct {
	ID       int64
	Area     float64
	Geometry geom.Polygonal
	Outlet   *geom.Point
}

// OutletPoint returns the outlet, falling back to the basin centroid.
func (w Watershed) OutletPoint() geom.Point {
	if w.Outlet != nil {
		return *w.Outlet
	}
	return w.Geometry.Centroid()
}

// Watersheds is the immutable set of watersheds, ordered by id.
type Watersheds struct {
	items []Watershed
	index map[int64]int
}

// NewWatersheds validates and indexes watersheds. A missing Area is taken
// from the geometry.
func NewWatersheds(items []Watershed) (*Watersheds, error) {
	w := &Watersheds{items: make([]Watershed, len(items)), index: make(map[int64]int, len(items))}
	copy(w.items, items)
	sort.Slice(w.items, func(i, j int) bool { return w.items[i].ID < w.items[j].ID })
	for i := range w.items {
		it := &w.items[i]
		if _, dup := w.index[it.ID]; dup {
			return nil, errors.Validation(fmt.Sprintf("watersheds: duplicate id %d", it.ID))
		}
		if it.Geometry == nil && it.Outlet == nil {
			return nil, errors.Validation(fmt.Sprintf("watersheds: %d has neither geometry nor outlet", it.ID))
		}
		if it.Area <= 0 && it.Geometry != nil {
			it.Area = math.Abs(it.Geometry.Area())
		}
		w.index[it.ID] = i
	}
	return w, nil
}

// Len returns the number of watersheds; nil-safe.
func (w *Watersheds) Len() int {
	if w == nil {
		return 0
	}
	return len(w.items)
}

// Get returns the watershed with the given id.
func (w *Watersheds) Get(id int64) (Watershed, bool) {
	if w == nil {
		return Watershed{}, false
	}
	i, ok := w.index[id]
	if !ok {
		return Watershed{}, false
	}
	return w.items[i], true
}

// All returns the watersheds in id order.
func (w *Watersheds) All() []Watershed {
	if w == nil {
		return nil
	}
	return append([]Watershed(nil), w.items...)
}

// Zones returns the watersheds with a geometry as overlay zones.
func (w *Watersheds) Zones() []spatial.Zone {
	var out []spatial.Zone
	for _, it := range w.All() {
		if it.Geometry != nil {
			out = append(out, spatial.Zone{ID: it.ID, Area: it.Area, Geometry: it.Geometry})
		}
	}
	return out
}
