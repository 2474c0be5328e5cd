// Package spatial defines the geometry contracts the pipeline relies on:
// geometry classification, overlay fragments, decay rasters and
// natural-breaks classification. Implementations live in
// internal/infrastructure/geoprocessing.
package spatial

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// GeometryKind is the dimensionality class of a geometry.
type GeometryKind int

const (
	KindPoint GeometryKind = iota + 1
	KindLine
	KindPolygon
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindPolygon:
		return "polygon"
	}
	return "unknown"
}

// KindOf classifies g. Geometry collections and nil geometries are rejected.
func KindOf(g geom.Geom) (GeometryKind, error) {
	switch g.(type) {
	case geom.Point, *geom.Point, geom.MultiPoint:
		return KindPoint, nil
	case geom.Linear:
		return KindLine, nil
	case geom.Polygonal:
		return KindPolygon, nil
	}
	return 0, errors.New(errors.ErrCodeUnsupportedGeometry, fmt.Sprintf("unsupported geometry type %T", g))
}

// Measure returns the size of g in its own dimension: the number of points,
// the length in map units, or the area in squared map units.
func Measure(g geom.Geom) (float64, error) {
	switch v := g.(type) {
	case geom.Point, *geom.Point:
		return 1, nil
	case geom.MultiPoint:
		return float64(len(v)), nil
	case geom.Linear:
		return v.Length(), nil
	case geom.Polygonal:
		return math.Abs(v.Area()), nil
	}
	return 0, errors.New(errors.ErrCodeUnsupportedGeometry, fmt.Sprintf("unsupported geometry type %T", g))
}

// Points flattens a point-like geometry.
func Points(g geom.Geom) []geom.Point {
	switch v := g.(type) {
	case geom.Point:
		return []geom.Point{v}
	case *geom.Point:
		return []geom.Point{*v}
	case geom.MultiPoint:
		return append([]geom.Point(nil), v...)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Overlay
// ─────────────────────────────────────────────────────────────────────────────

// Shape is an input geometry to an overlay, identified by its position in
// the caller's slice.
type Shape struct {
	ID       int64
	Geometry geom.Geom
}

// Zone is a polygon receiving fragments: a planning unit or a watershed.
// Area overrides the geometric area when positive.
type Zone struct {
	ID       int64
	Area     float64
	Geometry geom.Polygonal
}

// EffectiveArea returns Area or, when unset, the geometric area.
func (z Zone) EffectiveArea() float64 {
	if z.Area > 0 {
		return z.Area
	}
	if z.Geometry == nil {
		return 0
	}
	return math.Abs(z.Geometry.Area())
}

// Fragment is the part of one shape that falls in one zone.
type Fragment struct {
	ShapeIndex   int
	ShapeID      int64
	ZoneID       int64
	Measure      float64
	ShapeMeasure float64
}

// Share returns the fraction of the shape represented by the fragment.
func (f Fragment) Share() float64 {
	if f.ShapeMeasure <= 0 {
		return 0
	}
	return f.Measure / f.ShapeMeasure
}

// Overlay intersects shapes with zones. Points yield a count of 1 per point
// inside a zone, lines the clipped length and polygons the clipped area.
// Fragments with a zero measure are omitted.
type Overlay interface {
	Intersect(ctx context.Context, shapes []Shape, zones []Zone) ([]Fragment, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Decay and classification
// ─────────────────────────────────────────────────────────────────────────────

// Source is a geometry emitting a population that decays with distance.
type Source struct {
	Geometry   geom.Geom
	Population float64
}

// Decay builds a distance-decay surface from sources. The surface is
// monotonically decreasing with distance and zero beyond radius.
type Decay interface {
	Density(ctx context.Context, sources []Source, radius, cellSize float64) (*Raster, error)
}

// ZonalReducer projects a raster onto zones, returning the area-weighted
// mean value of each zone that received a non-zero contribution.
type ZonalReducer interface {
	Zonal(ctx context.Context, r *Raster, zones []Zone) (map[int64]float64, error)
}

// Classifier computes natural-breaks class upper bounds.
type Classifier interface {
	Breaks(values []float64, classes int) ([]float64, error)
}

// ClassOf returns the 1-based class of v given ascending upper bounds.
// Values above the last bound fall in the last class.
func ClassOf(v float64, breaks []float64) int {
	for i, b := range breaks {
		if v <= b {
			return i + 1
		}
	}
	return len(breaks)
}
