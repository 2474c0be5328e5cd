package spatial

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Raster is a regular grid of cell values. X0, Y0 is the lower-left corner;
// Data is row-major from the bottom row. Rasters built by this package sit
// on a global lattice (corners at multiples of CellSize), so rasters with the
// same cell size combine without resampling.
type Raster struct {
	X0, Y0   float64
	CellSize float64
	NX, NY   int
	Data     []float64
}

// NewRaster allocates a zero raster covering b, snapped outward to the
// lattice of cellSize.
func NewRaster(b *geom.Bounds, cellSize float64) (*Raster, error) {
	if cellSize <= 0 {
		return nil, errors.New(errors.ErrCodeRasterMismatch, fmt.Sprintf("cell size must be positive, got %g", cellSize))
	}
	x0 := math.Floor(b.Min.X/cellSize) * cellSize
	y0 := math.Floor(b.Min.Y/cellSize) * cellSize
	nx := int(math.Ceil((b.Max.X-x0)/cellSize - 1e-9))
	ny := int(math.Ceil((b.Max.Y-y0)/cellSize - 1e-9))
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	return &Raster{X0: x0, Y0: y0, CellSize: cellSize, NX: nx, NY: ny, Data: make([]float64, nx*ny)}, nil
}

// Bounds returns the raster extent.
func (r *Raster) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: r.X0, Y: r.Y0},
		Max: geom.Point{X: r.X0 + float64(r.NX)*r.CellSize, Y: r.Y0 + float64(r.NY)*r.CellSize},
	}
}

// CellArea returns the area of one cell.
func (r *Raster) CellArea() float64 { return r.CellSize * r.CellSize }

// At returns the value of cell (i, j). Cells outside the raster are zero.
func (r *Raster) At(i, j int) float64 {
	if i < 0 || j < 0 || i >= r.NX || j >= r.NY {
		return 0
	}
	return r.Data[j*r.NX+i]
}

// Add adds v to cell (i, j). Out-of-range cells are ignored.
func (r *Raster) Add(i, j int, v float64) {
	if i < 0 || j < 0 || i >= r.NX || j >= r.NY {
		return
	}
	r.Data[j*r.NX+i] += v
}

// Center returns the centre of cell (i, j).
func (r *Raster) Center(i, j int) geom.Point {
	return geom.Point{
		X: r.X0 + (float64(i)+0.5)*r.CellSize,
		Y: r.Y0 + (float64(j)+0.5)*r.CellSize,
	}
}

// CellOf returns the cell containing p.
func (r *Raster) CellOf(p geom.Point) (int, int) {
	return int(math.Floor((p.X - r.X0) / r.CellSize)), int(math.Floor((p.Y - r.Y0) / r.CellSize))
}

// Max returns the largest cell value, or 0 for an empty raster.
func (r *Raster) Max() float64 {
	m := 0.0
	for _, v := range r.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// NonZero returns the values of all non-zero cells.
func (r *Raster) NonZero() []float64 {
	out := make([]float64, 0)
	for _, v := range r.Data {
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}

// Reclassify replaces every non-zero value with its 1-based class given
// ascending upper bounds. Zero cells stay zero.
func (r *Raster) Reclassify(breaks []float64) *Raster {
	out := &Raster{X0: r.X0, Y0: r.Y0, CellSize: r.CellSize, NX: r.NX, NY: r.NY, Data: make([]float64, len(r.Data))}
	for k, v := range r.Data {
		if v != 0 {
			out.Data[k] = float64(ClassOf(v, breaks))
		}
	}
	return out
}

// Sum adds rasters cell by cell over the union of their extents. Cells
// outside a raster's extent contribute zero. All rasters must share the cell
// size and the lattice.
func Sum(rasters ...*Raster) (*Raster, error) {
	var present []*Raster
	for _, r := range rasters {
		if r != nil {
			present = append(present, r)
		}
	}
	if len(present) == 0 {
		return nil, nil
	}
	cs := present[0].CellSize
	union := present[0].Bounds()
	for _, r := range present[1:] {
		if math.Abs(r.CellSize-cs) > 1e-9*cs {
			return nil, errors.New(errors.ErrCodeRasterMismatch,
				fmt.Sprintf("cell sizes differ: %g and %g", cs, r.CellSize))
		}
		union.Extend(r.Bounds())
	}
	out, err := NewRaster(union, cs)
	if err != nil {
		return nil, err
	}
	for _, r := range present {
		di, dj, err := offset(out, r)
		if err != nil {
			return nil, err
		}
		for j := 0; j < r.NY; j++ {
			for i := 0; i < r.NX; i++ {
				if v := r.Data[j*r.NX+i]; v != 0 {
					out.Add(i+di, j+dj, v)
				}
			}
		}
	}
	return out, nil
}

func offset(dst, src *Raster) (int, int, error) {
	fi := (src.X0 - dst.X0) / dst.CellSize
	fj := (src.Y0 - dst.Y0) / dst.CellSize
	di, dj := math.Round(fi), math.Round(fj)
	if math.Abs(fi-di) > 1e-6 || math.Abs(fj-dj) > 1e-6 {
		return 0, 0, errors.New(errors.ErrCodeRasterMismatch, "rasters are not aligned to the same lattice")
	}
	return int(di), int(dj), nil
}
