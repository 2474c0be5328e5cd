package geoprocessing

import (
	"context"
	"math"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// weightedPoint is one kernel centre.
type weightedPoint struct {
	geom.Point
	w float64
}

// Density spreads every source population with a quartic kernel
// w(d) = (1 - (d/radius)²)², which equals the population at the source,
// decreases monotonically and is zero at and beyond radius. Lines are
// densified into points every half cell carrying a share of the population
// proportional to length; polygons emit from their centroid. A radius
// smaller than half a cell deposits the whole population in the source cell.
// Density returns nil when no source has a positive population.
func (e *Engine) Density(ctx context.Context, sources []spatial.Source, radius, cellSize float64) (*spatial.Raster, error) {
	if cellSize <= 0 {
		return nil, errors.New(errors.ErrCodeDecayFailed, "cell size must be positive")
	}
	if radius < 0 {
		return nil, errors.New(errors.ErrCodeDecayFailed, "radius must not be negative")
	}

	var pts []weightedPoint
	for _, s := range sources {
		if s.Population <= 0 || s.Geometry == nil {
			continue
		}
		p, err := kernelCentres(s, cellSize/2)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p...)
	}
	if len(pts) == 0 {
		return nil, nil
	}

	b := geom.NewBounds()
	for _, p := range pts {
		b.Extend(p.Point.Bounds())
	}
	pad := math.Max(radius, cellSize/2)
	b.Min.X -= pad
	b.Min.Y -= pad
	b.Max.X += pad
	b.Max.Y += pad

	r, err := spatial.NewRaster(b, cellSize)
	if err != nil {
		return nil, err
	}

	pointMass := radius < cellSize/2
	r2 := radius * radius
	for n, p := range pts {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if pointMass {
			i, j := r.CellOf(p.Point)
			r.Add(i, j, p.w)
			continue
		}
		i0, j0 := r.CellOf(geom.Point{X: p.X - radius, Y: p.Y - radius})
		i1, j1 := r.CellOf(geom.Point{X: p.X + radius, Y: p.Y + radius})
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				c := r.Center(i, j)
				dx, dy := c.X-p.X, c.Y-p.Y
				d2 := dx*dx + dy*dy
				if d2 >= r2 {
					continue
				}
				k := 1 - d2/r2
				r.Add(i, j, p.w*k*k)
			}
		}
	}
	return r, nil
}

func kernelCentres(s spatial.Source, step float64) ([]weightedPoint, error) {
	kind, err := spatial.KindOf(s.Geometry)
	if err != nil {
		return nil, err
	}
	switch kind {
	case spatial.KindPoint:
		pts := spatial.Points(s.Geometry)
		out := make([]weightedPoint, len(pts))
		for i, p := range pts {
			out[i] = weightedPoint{Point: p, w: s.Population / float64(len(pts))}
		}
		return out, nil
	case spatial.KindLine:
		return densify(s.Geometry, s.Population, step), nil
	default:
		c := s.Geometry.(geom.Polygonal).Centroid()
		return []weightedPoint{{Point: c, w: s.Population}}, nil
	}
}

// densify samples a line at the midpoints of sub-segments no longer than
// step, weighting each sample by its share of the total length.
func densify(g geom.Geom, population, step float64) []weightedPoint {
	var lines []geom.LineString
	switch v := g.(type) {
	case geom.LineString:
		lines = []geom.LineString{v}
	case geom.MultiLineString:
		lines = v
	}
	total := 0.0
	for _, l := range lines {
		total += l.Length()
	}
	if total == 0 {
		if len(lines) > 0 && len(lines[0]) > 0 {
			return []weightedPoint{{Point: lines[0][0], w: population}}
		}
		return nil
	}

	var out []weightedPoint
	for _, l := range lines {
		for k := 1; k < len(l); k++ {
			a, b := l[k-1], l[k]
			seg := math.Hypot(b.X-a.X, b.Y-a.Y)
			if seg == 0 {
				continue
			}
			n := int(math.Ceil(seg / step))
			sub := seg / float64(n)
			for m := 0; m < n; m++ {
				f := (float64(m) + 0.5) / float64(n)
				out = append(out, weightedPoint{
					Point: geom.Point{X: a.X + f*(b.X-a.X), Y: a.Y + f*(b.Y-a.Y)},
					w:     population * sub / total,
				})
			}
		}
	}
	return out
}
