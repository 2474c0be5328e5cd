package spatial

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func bounds(x0, y0, x1, y1 float64) *geom.Bounds {
	return &geom.Bounds{Min: geom.Point{X: x0, Y: y0}, Max: geom.Point{X: x1, Y: y1}}
}

func TestNewRaster_SnapsToLattice(t *testing.T) {
	r, err := NewRaster(bounds(150, 250, 1150, 950), 100)
	require.NoError(t, err)

	assert.Equal(t, 100.0, r.X0)
	assert.Equal(t, 200.0, r.Y0)
	assert.Equal(t, 11, r.NX)
	assert.Equal(t, 8, r.NY)
	assert.Len(t, r.Data, 88)
	assert.Equal(t, 10000.0, r.CellArea())

	_, err = NewRaster(bounds(0, 0, 1, 1), 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRasterMismatch))
}

func TestRaster_CellAccess(t *testing.T) {
	r, err := NewRaster(bounds(0, 0, 300, 200), 100)
	require.NoError(t, err)

	r.Add(2, 1, 5)
	r.Add(9, 9, 1)
	assert.Equal(t, 5.0, r.At(2, 1))
	assert.Equal(t, 0.0, r.At(-1, 0))
	assert.Equal(t, geom.Point{X: 250, Y: 150}, r.Center(2, 1))

	i, j := r.CellOf(geom.Point{X: 250, Y: 150})
	assert.Equal(t, 2, i)
	assert.Equal(t, 1, j)
	assert.Equal(t, 5.0, r.Max())
	assert.Equal(t, []float64{5}, r.NonZero())
}

func TestSum_UnionOfExtents(t *testing.T) {
	a, err := NewRaster(bounds(0, 0, 200, 100), 100)
	require.NoError(t, err)
	a.Add(0, 0, 1)
	a.Add(1, 0, 2)

	b, err := NewRaster(bounds(100, 0, 400, 100), 100)
	require.NoError(t, err)
	b.Add(0, 0, 10) // x 100..200, overlaps a's second cell
	b.Add(2, 0, 7)  // x 300..400, only in b

	sum, err := Sum(a, nil, b)
	require.NoError(t, err)

	assert.Equal(t, 0.0, sum.X0)
	assert.Equal(t, 4, sum.NX)
	assert.Equal(t, 1, sum.NY)
	assert.Equal(t, []float64{1, 12, 0, 7}, sum.Data)
}

func TestSum_Mismatch(t *testing.T) {
	a, _ := NewRaster(bounds(0, 0, 100, 100), 100)
	b, _ := NewRaster(bounds(0, 0, 100, 100), 50)
	_, err := Sum(a, b)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRasterMismatch))

	c := &Raster{X0: 25, Y0: 0, CellSize: 100, NX: 1, NY: 1, Data: []float64{1}}
	_, err = Sum(a, c)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRasterMismatch))
}

func TestSum_Empty(t *testing.T) {
	r, err := Sum()
	assert.NoError(t, err)
	assert.Nil(t, r)
}

func TestReclassify(t *testing.T) {
	r := &Raster{CellSize: 1, NX: 4, NY: 1, Data: []float64{0, 0.2, 0.6, 0.9}}
	out := r.Reclassify([]float64{0.3, 0.7, 1})
	assert.Equal(t, []float64{0, 1, 2, 3}, out.Data)
	assert.Equal(t, []float64{0, 0.2, 0.6, 0.9}, r.Data)
}
