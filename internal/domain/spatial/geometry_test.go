package spatial

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/testutil"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		g    geom.Geom
		want GeometryKind
	}{
		{testutil.Pt(1, 1), KindPoint},
		{geom.MultiPoint{testutil.Pt(0, 0), testutil.Pt(1, 1)}, KindPoint},
		{testutil.Line(0, 0, 10, 0), KindLine},
		{geom.MultiLineString{testutil.Line(0, 0, 1, 0)}, KindLine},
		{testutil.Square(0, 0, 10), KindPolygon},
		{geom.MultiPolygon{testutil.Square(0, 0, 10)}, KindPolygon},
	}
	for _, c := range cases {
		got, err := KindOf(c.g)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%T", c.g)
	}

	_, err := KindOf(nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedGeometry))
	assert.Equal(t, "polygon", KindPolygon.String())
	assert.Equal(t, "unknown", GeometryKind(0).String())
}

func TestMeasure(t *testing.T) {
	m, err := Measure(testutil.Pt(3, 4))
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)

	m, err = Measure(geom.MultiPoint{testutil.Pt(0, 0), testutil.Pt(1, 1), testutil.Pt(2, 2)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, m)

	m, err = Measure(testutil.Line(0, 0, 30, 40))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, m, 1e-9)

	m, err = Measure(testutil.Square(0, 0, 1000))
	require.NoError(t, err)
	assert.InDelta(t, 1e6, m, 1e-6)

	_, err = Measure(nil)
	assert.Error(t, err)
}

func TestPoints(t *testing.T) {
	assert.Len(t, Points(testutil.Pt(1, 1)), 1)
	assert.Len(t, Points(geom.MultiPoint{testutil.Pt(0, 0), testutil.Pt(1, 1)}), 2)
	assert.Nil(t, Points(testutil.Line(0, 0, 1, 1)))
}

func TestZoneEffectiveArea(t *testing.T) {
	assert.Equal(t, 42.0, Zone{Area: 42, Geometry: testutil.Square(0, 0, 10)}.EffectiveArea())
	assert.InDelta(t, 100.0, Zone{Geometry: testutil.Square(0, 0, 10)}.EffectiveArea(), 1e-9)
	assert.Equal(t, 0.0, Zone{}.EffectiveArea())
}

func TestFragmentShare(t *testing.T) {
	assert.Equal(t, 0.25, Fragment{Measure: 1, ShapeMeasure: 4}.Share())
	assert.Equal(t, 0.0, Fragment{Measure: 1}.Share())
}

func TestClassOf(t *testing.T) {
	breaks := []float64{3, 12, 22}
	assert.Equal(t, 1, ClassOf(1, breaks))
	assert.Equal(t, 1, ClassOf(3, breaks))
	assert.Equal(t, 2, ClassOf(3.5, breaks))
	assert.Equal(t, 3, ClassOf(22, breaks))
	assert.Equal(t, 3, ClassOf(99, breaks))
}
