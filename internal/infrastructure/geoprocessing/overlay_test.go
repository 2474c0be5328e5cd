package geoprocessing

import (
	"context"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/testutil"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func twoZones() []spatial.Zone {
	return []spatial.Zone{
		{ID: 2, Geometry: testutil.Square(10, 0, 10)},
		{ID: 1, Geometry: testutil.Square(0, 0, 10)},
	}
}

func byZone(frags []spatial.Fragment) map[int64]spatial.Fragment {
	out := make(map[int64]spatial.Fragment, len(frags))
	for _, f := range frags {
		out[f.ZoneID] = f
	}
	return out
}

func TestIntersect_PolygonSplitsByArea(t *testing.T) {
	e := New(nil)
	frags, err := e.Intersect(context.Background(), []spatial.Shape{
		{ID: 7, Geometry: testutil.Rect(5, 2, 15, 8)},
	}, twoZones())
	require.NoError(t, err)
	require.Len(t, frags, 2)

	m := byZone(frags)
	assert.InDelta(t, 30, m[1].Measure, 1e-9)
	assert.InDelta(t, 30, m[2].Measure, 1e-9)
	assert.InDelta(t, 60, m[1].ShapeMeasure, 1e-9)
	assert.InDelta(t, 0.5, m[2].Share(), 1e-9)
	assert.Equal(t, int64(7), m[1].ShapeID)
	assert.Equal(t, 0, m[1].ShapeIndex)
}

func TestIntersect_LineSplitsByLength(t *testing.T) {
	e := New(nil)
	frags, err := e.Intersect(context.Background(), []spatial.Shape{
		{ID: 1, Geometry: testutil.Line(2, 5, 18, 5)},
	}, twoZones())
	require.NoError(t, err)

	m := byZone(frags)
	require.Len(t, m, 2)
	assert.InDelta(t, 8, m[1].Measure, 1e-9)
	assert.InDelta(t, 8, m[2].Measure, 1e-9)
	assert.InDelta(t, 16, m[1].ShapeMeasure, 1e-9)
}

func TestIntersect_PointsAreCounted(t *testing.T) {
	e := New(nil)
	frags, err := e.Intersect(context.Background(), []spatial.Shape{
		{ID: 1, Geometry: geom.MultiPoint{testutil.Pt(1, 1), testutil.Pt(2, 2), testutil.Pt(15, 5)}},
		{ID: 2, Geometry: testutil.Pt(50, 50)},
	}, twoZones())
	require.NoError(t, err)
	require.Len(t, frags, 2)

	m := byZone(frags)
	assert.Equal(t, 2.0, m[1].Measure)
	assert.Equal(t, 1.0, m[2].Measure)
	assert.Equal(t, 3.0, m[1].ShapeMeasure)
}

func TestIntersect_ShapeOutsideAllZones(t *testing.T) {
	e := New(nil)
	frags, err := e.Intersect(context.Background(), []spatial.Shape{
		{ID: 1, Geometry: testutil.Square(100, 100, 5)},
	}, twoZones())
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestIntersect_UnsupportedGeometry(t *testing.T) {
	e := New(nil)
	_, err := e.Intersect(context.Background(), []spatial.Shape{{ID: 9}}, twoZones())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnsupportedGeometry))
}

func TestIntersect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(nil).Intersect(ctx, []spatial.Shape{{ID: 1, Geometry: testutil.Pt(1, 1)}}, twoZones())
	assert.ErrorIs(t, err, context.Canceled)
}
