package cumulative

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/testutil"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

type AggregatorTestSuite struct {
	suite.Suite
	ctx   context.Context
	store *table.MemoryStore
	log   *testutil.MockLogger
	svc   Service
	units []int64
}

func (s *AggregatorTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = table.NewMemoryStore()
	s.log = testutil.NewMockLogger()
	s.svc = NewService(s.store, s.log)
	s.units = []int64{100, 101, 102}
}

func frag(act, st, hab, code string, unit int64, wtd float64) impact.Fragment {
	return impact.Fragment{Activity: act, Stressor: st, Habitat: hab, HabitatCode: code, UnitID: unit, WtdImpact: wtd}
}

func (s *AggregatorTestSuite) aggregate(act, hab string, codes []string, frags ...impact.Fragment) *ActivityResult {
	res, err := s.svc.ActivityHabitat(s.ctx, &ActivityInput{
		Scenario:  activity.Current,
		Activity:  act,
		Habitat:   hab,
		Codes:     codes,
		Fragments: frags,
		Units:     s.units,
		RunID:     "run-1",
	})
	s.Require().NoError(err)
	return res
}

func (s *AggregatorTestSuite) TestActivityHabitat_ConcreteScenario() {
	res := s.aggregate("cf_trawl", "benthic", []string{"bh", "bs"},
		frag("cf_trawl", "bycatch", "benthic", "bh", 100, 1.2),
		frag("cf_trawl", "bycatch", "benthic", "bs", 100, 0.6),
	)

	s.Equal([]string{
		"WtdImpact_c_cf_trawl_benthic_bh",
		"WtdImpact_c_cf_trawl_benthic_bs",
		"CumulImpact_c_cf_trawl_benthic",
	}, res.Tables)

	v, ok := res.Cumulative.Get(100, "Cumul_Impact_cf_trawl")
	s.True(ok)
	s.InDelta(1.8, v, 1e-12)

	bh, err := s.store.Get(s.ctx, "WtdImpact_c_cf_trawl_benthic_bh")
	s.Require().NoError(err)
	sum, _ := bh.Get(100, "Sum_Impact_cf_trawl")
	s.InDelta(1.2, sum, 1e-12)
	s.Equal("bh", bh.Attr(table.AttrHabitatCode))
	s.Equal("run-1", bh.Attr(table.AttrRunID))
}

func (s *AggregatorTestSuite) TestActivityHabitat_SumsStressorsAndPrunes() {
	res := s.aggregate("shipping", "benthic", []string{"bh"},
		frag("shipping", "noise", "benthic", "bh", 100, 0.5),
		frag("shipping", "noise", "benthic", "bh", 100, 0.25),
		frag("shipping", "oil", "benthic", "bh", 100, 1),
		frag("shipping", "oil", "benthic", "bh", 102, 0),
	)

	bh, err := s.store.Get(s.ctx, "WtdImpact_c_shipping_benthic_bh")
	s.Require().NoError(err)
	noise, _ := bh.Get(100, "noise")
	s.Equal(0.75, noise)
	total, _ := bh.Get(100, "Sum_Impact_shipping")
	s.Equal(1.75, total)

	// Unit 101 had no contribution and is pruned; unit 102 had a zero
	// contribution and is kept.
	s.Equal([]int64{100, 102}, res.Cumulative.Keys())
	zero, ok := res.Cumulative.Get(102, "Cumul_Impact_shipping")
	s.True(ok)
	s.Zero(zero)
}

func (s *AggregatorTestSuite) TestActivityHabitat_EmptyCodeStillPersisted() {
	res := s.aggregate("shipping", "kelp", []string{"kf", "kg"},
		frag("shipping", "noise", "kelp", "kf", 101, 2))
	s.Len(res.Tables, 3)

	kg, err := s.store.Get(s.ctx, "WtdImpact_c_shipping_kelp_kg")
	s.Require().NoError(err)
	s.Zero(kg.Len())
}

func (s *AggregatorTestSuite) TestActivityHabitat_NoCodes() {
	_, err := s.svc.ActivityHabitat(s.ctx, &ActivityInput{Scenario: activity.Current, Activity: "a", Habitat: "kelp"})
	s.True(errors.IsCode(err, errors.ErrCodeNoHabitatCodes))
}

func (s *AggregatorTestSuite) TestSector_SumInvariant() {
	s.aggregate("cf_trawl", "benthic", []string{"bh", "bs"},
		frag("cf_trawl", "bycatch", "benthic", "bh", 100, 1.2),
		frag("cf_trawl", "bycatch", "benthic", "bs", 100, 0.6),
		frag("cf_trawl", "seabed", "benthic", "bs", 101, 0.4))
	s.aggregate("shipping", "benthic", []string{"bh"},
		frag("shipping", "noise", "benthic", "bh", 100, 0.2))
	s.aggregate("shipping", "kelp", []string{"kf"},
		frag("shipping", "noise", "kelp", "kf", 102, 3))

	res, err := s.svc.Sector(s.ctx, &SectorInput{
		Scenario:   activity.Current,
		Sector:     table.AllSector,
		Activities: []string{"cf_trawl", "shipping"},
		Habitats:   []string{"benthic", "kelp"},
		Units:      s.units,
	})
	s.Require().NoError(err)
	s.Equal([]string{"Sector_c_ALL_benthic", "Sector_c_ALL_kelp", "CumulImpact_c_ALL_ALL"}, res.Tables)
	s.Equal([]string{"CumulImpact_c_cf_trawl_kelp"}, res.Missing)
	s.Len(s.log.ByLevel("warn"), 1)

	all := res.Cumulative
	want := map[int64]float64{100: 2.0, 101: 0.4, 102: 3}
	for unit, v := range want {
		got, ok := all.Get(unit, "Cumul_Impact_ALL")
		s.True(ok, "unit %d", unit)
		s.InDelta(v, got, 1e-12, "unit %d", unit)
	}

	// Cumul_Impact_ALL equals the sum of every per-activity total present.
	for _, unit := range all.Keys() {
		expected := 0.0
		for _, name := range []string{"CumulImpact_c_cf_trawl_benthic", "CumulImpact_c_shipping_benthic", "CumulImpact_c_shipping_kelp"} {
			t, err := s.store.Get(s.ctx, name)
			s.Require().NoError(err)
			for _, col := range t.Columns() {
				if col == t.Attr(table.AttrTotal) {
					if v, ok := t.Get(unit, col); ok {
						expected += v
					}
				}
			}
		}
		got, _ := all.Get(unit, "Cumul_Impact_ALL")
		s.InDelta(expected, got, 1e-12)
	}

	benthic, err := s.store.Get(s.ctx, "Sector_c_ALL_benthic")
	s.Require().NoError(err)
	s.Equal([]string{"Cumul_Impact_cf_trawl", "Cumul_Impact_shipping", "Cumul_Impact_benthic"}, benthic.Columns())
	s.Equal(table.AllSector, benthic.Attr(table.AttrSector))
}

func (s *AggregatorTestSuite) TestSector_Idempotent() {
	s.aggregate("shipping", "benthic", []string{"bh"},
		frag("shipping", "noise", "benthic", "bh", 100, 0.2))
	input := &SectorInput{
		Scenario:   activity.Current,
		Sector:     "transport",
		Activities: []string{"shipping"},
		Habitats:   []string{"benthic"},
		Units:      s.units,
	}
	first, err := s.svc.Sector(s.ctx, input)
	s.Require().NoError(err)
	second, err := s.svc.Sector(s.ctx, input)
	s.Require().NoError(err)
	s.Equal(first.Cumulative.Column("Cumul_Impact_ALL"), second.Cumulative.Column("Cumul_Impact_ALL"))

	names, err := s.store.List(s.ctx, "CumulImpact_c_transport")
	s.Require().NoError(err)
	s.Equal([]string{"CumulImpact_c_transport_ALL"}, names)
}

func TestAggregatorTestSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}

func TestSector_RequiresName(t *testing.T) {
	svc := NewService(table.NewMemoryStore(), nil)
	_, err := svc.Sector(context.Background(), &SectorInput{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}
