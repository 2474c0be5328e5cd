package composition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/habitat"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/testutil"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

type MockOverlay struct{ mock.Mock }

func (m *MockOverlay) Intersect(ctx context.Context, shapes []spatial.Shape, zones []spatial.Zone) ([]spatial.Fragment, error) {
	args := m.Called(ctx, shapes, zones)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]spatial.Fragment), args.Error(1)
}

type fixture struct {
	grid  *grid.Grid
	layer habitat.Layer
	cov   habitat.Coverage
	vuln  *habitat.VulnerabilityTable
	gear  *habitat.GearSeverityTable
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	g, err := grid.New([]grid.PlanningUnit{
		{ID: 100, Area: 1e6, MarineArea: 1e6, Geometry: testutil.Square(0, 0, 1000)},
		{ID: 101, Area: 1e6, MarineArea: 4e5, Geometry: testutil.Square(1000, 0, 1000)},
	})
	require.NoError(t, err)
	vuln, err := habitat.NewVulnerabilityTable([]habitat.VulnerabilityScore{
		{Activity: "cf_trawl", Stressor: "bycatch", Code: "bh", Score: 0.8},
		{Activity: "cf_trawl", Stressor: "bycatch", Code: "bs", Score: 0.4},
		{Activity: "shipping", Stressor: "noise", Code: "bh", Score: 2},
	})
	require.NoError(t, err)
	gear, err := habitat.NewGearSeverityTable([]habitat.GearScore{
		{Activity: "cf_trawl", Stressor: "bycatch", Score: 3.0},
		{Activity: "cf_trawl", Stressor: "seabed", Score: 0},
	})
	require.NoError(t, err)
	layer := habitat.Layer{Type: "benthic", Features: []habitat.Feature{
		{Code: "bh", Geometry: testutil.Rect(0, 0, 500, 1000)},
		{Code: "bs", Geometry: testutil.Rect(500, 0, 1000, 1000)},
	}}
	cov := habitat.Coverage{}
	cov.Add(100, "bh", 500000)
	cov.Add(100, "bs", 500000)
	cov.Add(101, "bh", 2e5)
	return fixture{grid: g, layer: layer, cov: cov, vuln: vuln, gear: gear}
}

func (f fixture) input(act string, intensity impact.StressorIntensity) *ComposeInput {
	return &ComposeInput{
		Activity:      activity.Activity{Code: act, Kind: activity.Marine},
		Scenario:      activity.Current,
		Intensity:     intensity,
		Layer:         f.layer,
		Coverage:      f.cov,
		Grid:          f.grid,
		Vulnerability: f.vuln,
		Gear:          f.gear,
	}
}

func byCode(frags []impact.Fragment, unit int64, code string) (impact.Fragment, bool) {
	for _, f := range frags {
		if f.UnitID == unit && f.HabitatCode == code {
			return f, true
		}
	}
	return impact.Fragment{}, false
}

func TestCompose_FishingConcreteScenario(t *testing.T) {
	f := newFixture(t)
	svc := NewService(nil, Options{}, nil)

	intensity := impact.StressorIntensity{}
	intensity.Add(100, "bycatch", 1.0)

	comp, err := svc.Compose(context.Background(), f.input("cf_trawl", intensity))
	require.NoError(t, err)

	bh, ok := byCode(comp.Fragments, 100, "bh")
	require.True(t, ok)
	assert.InDelta(t, 2.4, bh.Impact, 1e-12)
	assert.InDelta(t, 0.5, bh.AreaWeight, 1e-12)
	assert.InDelta(t, 1.2, bh.WtdImpact, 1e-12)
	assert.Equal(t, 3.0, bh.GearScore)
	assert.Equal(t, 0.8, bh.Vscore)
	assert.Equal(t, "benthic", bh.Habitat)

	bs, ok := byCode(comp.Fragments, 100, "bs")
	require.True(t, ok)
	assert.InDelta(t, 0.6, bs.WtdImpact, 1e-12)

	assert.Equal(t, []string{"bh", "bs"}, comp.Codes)
	assert.Equal(t, 0, comp.Gaps.Len())
}

func TestCompose_NonFishingUsesMarineArea(t *testing.T) {
	f := newFixture(t)
	svc := NewService(nil, Options{}, nil)

	intensity := impact.StressorIntensity{}
	intensity.Add(101, "noise", 0.5)

	comp, err := svc.Compose(context.Background(), f.input("shipping", intensity))
	require.NoError(t, err)
	require.Len(t, comp.Fragments, 1)
	got := comp.Fragments[0]
	assert.Equal(t, 1.0, got.Impact)
	assert.InDelta(t, 0.5, got.AreaWeight, 1e-12)
	assert.InDelta(t, 0.5, got.WtdImpact, 1e-12)
	assert.Zero(t, got.GearScore)
}

func TestCompose_MissingVscoreIsGap(t *testing.T) {
	f := newFixture(t)
	svc := NewService(nil, Options{}, nil)

	intensity := impact.StressorIntensity{}
	intensity.Add(100, "noise", 1)
	intensity.Add(101, "noise", 1)

	comp, err := svc.Compose(context.Background(), f.input("shipping", intensity))
	require.NoError(t, err)

	_, ok := byCode(comp.Fragments, 100, "bs")
	assert.False(t, ok)
	assert.Len(t, comp.Fragments, 2)
	assert.Equal(t, []impact.Gap{
		{Kind: impact.GapNoVscore, Activity: "shipping", Stressor: "noise", HabitatCode: "bs"},
	}, comp.Gaps.Gaps())
}

func TestCompose_MissingGearScore(t *testing.T) {
	f := newFixture(t)

	for _, stressorCode := range []string{"habitat_loss", "seabed"} {
		intensity := impact.StressorIntensity{}
		intensity.Add(100, stressorCode, 1)

		t.Run(stressorCode+" fatal", func(t *testing.T) {
			svc := NewService(nil, Options{}, nil)
			_, err := svc.Compose(context.Background(), f.input("cf_trawl", intensity))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeMissingGearScore))
			assert.Contains(t, err.Error(), "stressor="+stressorCode)
		})

		t.Run(stressorCode+" lenient", func(t *testing.T) {
			svc := NewService(nil, Options{LenientGearScores: true}, nil)
			comp, err := svc.Compose(context.Background(), f.input("cf_trawl", intensity))
			require.NoError(t, err)
			assert.Empty(t, comp.Fragments)
			assert.Equal(t, []impact.Gap{
				{Kind: impact.GapNoFishingScore, Activity: "cf_trawl", Stressor: stressorCode},
			}, comp.Gaps.ByKind(impact.GapNoFishingScore))
		})
	}
}

func TestCompose_SportFishingPrefix(t *testing.T) {
	f := newFixture(t)
	svc := NewService(nil, Options{}, nil)

	intensity := impact.StressorIntensity{}
	intensity.Add(100, "bycatch", 1)
	_, err := svc.Compose(context.Background(), f.input("sportf_hook", intensity))
	assert.True(t, errors.IsCode(err, errors.ErrCodeMissingGearScore))

	custom := NewService(nil, Options{FishingPrefixes: []string{"fish_"}}, nil)
	comp, err := custom.Compose(context.Background(), f.input("sportf_hook", intensity))
	require.NoError(t, err)
	assert.Len(t, comp.Gaps.ByKind(impact.GapNoVscore), 2)
}

func TestCompose_NoHabitatCodes(t *testing.T) {
	f := newFixture(t)
	svc := NewService(nil, Options{}, nil)
	in := f.input("shipping", impact.StressorIntensity{})
	in.Layer = habitat.Layer{Type: "kelp"}
	_, err := svc.Compose(context.Background(), in)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoHabitatCodes))
}

func TestCoverage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	overlay := new(MockOverlay)
	overlay.On("Intersect", ctx, mock.Anything, mock.Anything).Return([]spatial.Fragment{
		{ShapeIndex: 0, ShapeID: 0, ZoneID: 100, Measure: 300000},
		{ShapeIndex: 0, ShapeID: 0, ZoneID: 101, Measure: 100000},
		{ShapeIndex: 1, ShapeID: 1, ZoneID: 100, Measure: 200000},
		{ShapeIndex: 2, ShapeID: 3, ZoneID: 100, Measure: 50000},
	}, nil)

	layer := habitat.Layer{Type: "benthic", Features: []habitat.Feature{
		{Code: "bh", Geometry: testutil.Square(0, 0, 10)},
		{Code: "bs", Geometry: testutil.Square(10, 0, 10)},
		{Code: "", Geometry: testutil.Square(20, 0, 10)},
		{Code: "bh", Geometry: testutil.Square(30, 0, 10)},
	}}
	svc := NewService(overlay, Options{}, testutil.NewMockLogger())
	cov, err := svc.Coverage(ctx, f.grid, layer)
	require.NoError(t, err)

	assert.ElementsMatch(t, []habitat.CoverageFragment{{Code: "bh", Area: 350000}, {Code: "bs", Area: 200000}}, cov[100])
	assert.Equal(t, []habitat.CoverageFragment{{Code: "bh", Area: 100000}}, cov[101])

	shapes := overlay.Calls[0].Arguments.Get(1).([]spatial.Shape)
	require.Len(t, shapes, 3)
	assert.Equal(t, int64(3), shapes[2].ID)
}

func TestCoverage_NoCodes(t *testing.T) {
	f := newFixture(t)
	svc := NewService(new(MockOverlay), Options{}, nil)
	_, err := svc.Coverage(context.Background(), f.grid, habitat.Layer{Type: "kelp"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeNoHabitatCodes))
}
