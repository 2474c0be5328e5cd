package geoprocessing

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Intersect overlays shapes with zones. Each point is assigned to exactly
// one zone; lines and polygons are clipped against every candidate zone.
func (e *Engine) Intersect(ctx context.Context, shapes []spatial.Shape, zones []spatial.Zone) ([]spatial.Fragment, error) {
	ix := newZoneIndex(zones)
	var out []spatial.Fragment

	for i, s := range shapes {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		kind, err := spatial.KindOf(s.Geometry)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "overlay").WithDetailf("shape %d", s.ID)
		}
		total, err := spatial.Measure(s.Geometry)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "overlay").WithDetailf("shape %d", s.ID)
		}
		if total <= 0 {
			e.logger.Debug("skipping empty shape", logging.Int64("shape_id", s.ID))
			continue
		}

		var frags []spatial.Fragment
		switch kind {
		case spatial.KindPoint:
			frags = e.overlayPoints(ix, s, total)
		case spatial.KindLine:
			frags, err = e.overlayLine(ix, s, total)
		case spatial.KindPolygon:
			frags, err = e.overlayPolygon(ix, s, total)
		}
		if err != nil {
			return nil, err
		}
		for k := range frags {
			frags[k].ShapeIndex = i
		}
		out = append(out, frags...)
	}
	return out, nil
}

func (e *Engine) overlayPoints(ix *zoneIndex, s spatial.Shape, total float64) []spatial.Fragment {
	counts := make(map[int64]float64)
	var order []int64
	for _, p := range spatial.Points(s.Geometry) {
		z := ix.locate(p)
		if z == nil {
			continue
		}
		if _, seen := counts[z.ID]; !seen {
			order = append(order, z.ID)
		}
		counts[z.ID]++
	}
	out := make([]spatial.Fragment, 0, len(order))
	for _, id := range order {
		out = append(out, spatial.Fragment{ShapeID: s.ID, ZoneID: id, Measure: counts[id], ShapeMeasure: total})
	}
	return out
}

func (e *Engine) overlayLine(ix *zoneIndex, s spatial.Shape, total float64) (frags []spatial.Fragment, err error) {
	line, ok := s.Geometry.(geom.Linear)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedGeometry, fmt.Sprintf("shape %d is not linear", s.ID))
	}
	defer recoverOverlay(s.ID, &err)
	for _, z := range ix.search(s.Geometry.Bounds()) {
		clipped := line.Clip(z.Geometry)
		if clipped == nil {
			continue
		}
		if l := clipped.Length(); l > 0 {
			frags = append(frags, spatial.Fragment{ShapeID: s.ID, ZoneID: z.ID, Measure: l, ShapeMeasure: total})
		}
	}
	return frags, nil
}

func (e *Engine) overlayPolygon(ix *zoneIndex, s spatial.Shape, total float64) (frags []spatial.Fragment, err error) {
	poly, ok := s.Geometry.(geom.Polygonal)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedGeometry, fmt.Sprintf("shape %d is not polygonal", s.ID))
	}
	defer recoverOverlay(s.ID, &err)
	for _, z := range ix.search(s.Geometry.Bounds()) {
		isect := poly.Intersection(z.Geometry)
		if isect == nil {
			continue
		}
		if a := math.Abs(isect.Area()); a > 0 {
			frags = append(frags, spatial.Fragment{ShapeID: s.ID, ZoneID: z.ID, Measure: a, ShapeMeasure: total})
		}
	}
	return frags, nil
}

// recoverOverlay turns a panic from the polygon clipper (degenerate rings)
// into an overlay error naming the shape.
func recoverOverlay(shapeID int64, err *error) {
	if r := recover(); r != nil {
		*err = errors.New(errors.ErrCodeOverlayFailed, fmt.Sprintf("clipping shape %d: %v", shapeID, r))
	}
}
