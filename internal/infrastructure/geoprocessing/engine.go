// Package geoprocessing implements the spatial contracts of
// internal/domain/spatial on top of github.com/ctessum/geom: polygon, line
// and point overlay through an R-tree, kernel distance decay on a regular
// raster, zonal reduction of rasters onto polygons, and Jenks natural breaks.
package geoprocessing

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50

	// pointEpsilon pads point bounds so that R-tree searches with a
	// degenerate box still hit zones whose edge passes through the point.
	pointEpsilon = 1e-9
)

// Engine implements spatial.Overlay, spatial.Decay, spatial.ZonalReducer and
// spatial.Classifier.
type Engine struct {
	logger logging.Logger

	// maxBreakSample bounds the number of values fed to the O(k·n²) Jenks
	// optimisation; larger inputs are sampled at evenly spaced ranks.
	maxBreakSample int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxBreakSample overrides the Jenks sample size.
func WithMaxBreakSample(n int) Option {
	return func(e *Engine) {
		if n > 1 {
			e.maxBreakSample = n
		}
	}
}

// New creates an Engine.
func New(logger logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Engine{logger: logger, maxBreakSample: 4000}
	for _, o := range opts {
		o(e)
	}
	return e
}

var (
	_ spatial.Overlay      = (*Engine)(nil)
	_ spatial.Decay        = (*Engine)(nil)
	_ spatial.ZonalReducer = (*Engine)(nil)
	_ spatial.Classifier   = (*Engine)(nil)
)

// indexedZone is a zone stored in the R-tree. The embedded polygon makes it a
// geom.Geom; the tree indexes it by its bounds.
type indexedZone struct {
	geom.Polygonal
	spatial.Zone
}

// zoneIndex is an R-tree over zones.
type zoneIndex struct {
	tree *rtree.Rtree
}

func newZoneIndex(zones []spatial.Zone) *zoneIndex {
	tree := rtree.NewTree(rtreeMinChildren, rtreeMaxChildren)
	for _, z := range zones {
		if z.Geometry == nil {
			continue
		}
		tree.Insert(&indexedZone{Polygonal: z.Geometry, Zone: z})
	}
	return &zoneIndex{tree: tree}
}

// search returns the zones whose bounds intersect b, ordered by id so that
// ties on shared edges always resolve to the same zone.
func (ix *zoneIndex) search(b *geom.Bounds) []*indexedZone {
	hits := ix.tree.SearchIntersect(b)
	out := make([]*indexedZone, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexedZone))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// locate returns the first zone (by id) containing p, or nil.
func (ix *zoneIndex) locate(p geom.Point) *indexedZone {
	for _, z := range ix.search(pointBounds(p)) {
		if p.Within(z.Geometry) != geom.Outside {
			return z
		}
	}
	return nil
}

func pointBounds(p geom.Point) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: p.X - pointEpsilon, Y: p.Y - pointEpsilon},
		Max: geom.Point{X: p.X + pointEpsilon, Y: p.Y + pointEpsilon},
	}
}
