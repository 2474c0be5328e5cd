// Package cumulative sums weighted impacts up the habitat and activity
// hierarchy into the cumulative impact of every planning unit. Every level
// is one ReduceAndPrune over the grid's unit ids.
package cumulative

import (
	"context"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Service defines the interface for cumulative aggregation.
type Service interface {
	// ActivityHabitat aggregates one activity's fragments on one habitat
	// type: per habitat code across stressors, then across habitat codes.
	ActivityHabitat(ctx context.Context, input *ActivityInput) (*ActivityResult, error)
	// Sector aggregates the per-activity tables of a sector: across
	// activities per habitat type, then across habitat types.
	Sector(ctx context.Context, input *SectorInput) (*SectorResult, error)
}

// ActivityInput contains the fragments of one activity on one habitat type.
type ActivityInput struct {
	Scenario  activity.Scenario
	Activity  string
	Habitat   string
	Codes     []string
	Fragments []impact.Fragment
	// Units is the grid's key domain.
	Units []int64
	RunID string
}

// ActivityResult holds the per-activity cumulative table.
type ActivityResult struct {
	Cumulative *table.Table
	Tables     []string
}

// SectorInput names the activities and habitat types of one sector.
type SectorInput struct {
	Scenario   activity.Scenario
	Sector     string
	Activities []string
	Habitats   []string
	Units      []int64
	RunID      string
}

// SectorResult holds the terminal cumulative table of a sector.
type SectorResult struct {
	Cumulative *table.Table
	Tables     []string
	// Missing lists activity/habitat tables that were not found.
	Missing []string
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	store  table.Store
	logger logging.Logger
}

// NewService creates a new cumulative aggregation service.
func NewService(store table.Store, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{store: store, logger: logger}
}

// sumByUnit groups Σ Wtd_Impact by unit for every (stressor, habitat code).
func sumByUnit(frags []impact.Fragment) map[string]map[string]map[int64]float64 {
	out := make(map[string]map[string]map[int64]float64)
	for _, f := range frags {
		byCode, ok := out[f.Stressor]
		if !ok {
			byCode = make(map[string]map[int64]float64)
			out[f.Stressor] = byCode
		}
		byUnit, ok := byCode[f.HabitatCode]
		if !ok {
			byUnit = make(map[int64]float64)
			byCode[f.HabitatCode] = byUnit
		}
		byUnit[f.UnitID] += f.WtdImpact
	}
	return out
}

func (s *serviceImpl) ActivityHabitat(ctx context.Context, input *ActivityInput) (*ActivityResult, error) {
	if input == nil || input.Activity == "" || input.Habitat == "" {
		return nil, errors.InvalidParam("activity and habitat are required")
	}
	if len(input.Codes) == 0 {
		return nil, errors.New(errors.ErrCodeNoHabitatCodes, "no habitat codes resolved").
			WithDetailf("habitat=%s", input.Habitat)
	}
	scn := input.Scenario.String()
	sums := sumByUnit(input.Fragments)
	stressors := make([]string, 0, len(sums))
	for code := range sums {
		stressors = append(stressors, code)
	}
	sort.Strings(stressors)

	res := &ActivityResult{}
	sumCol := table.SumImpactColumn(input.Activity)
	perCode := make([]Source, 0, len(input.Codes))
	for _, code := range input.Codes {
		sources := make([]Source, 0, len(stressors))
		for _, st := range stressors {
			if values, ok := sums[st][code]; ok {
				sources = append(sources, Source{Column: st, Values: values})
			}
		}
		t := ReduceAndPrune(Reduction{
			Name:    table.Name(table.KindWtdImpact, scn, input.Activity, input.Habitat, code),
			KeyName: table.KeyUnit,
			Keys:    input.Units,
			Sources: sources,
			Total:   sumCol,
			Policy:  PruneEmpty,
		})
		t.SetAttr(table.AttrKind, table.KindWtdImpact)
		t.SetAttr(table.AttrHabitatCode, code)
		if err := s.put(ctx, t, input.Scenario, input.Activity, input.Habitat, input.RunID); err != nil {
			return nil, err
		}
		res.Tables = append(res.Tables, t.Name)
		perCode = append(perCode, Source{Column: code, Values: t.Column(sumCol)})
	}

	cumul := ReduceAndPrune(Reduction{
		Name:    table.Name(table.KindCumulative, scn, input.Activity, input.Habitat),
		KeyName: table.KeyUnit,
		Keys:    input.Units,
		Sources: perCode,
		Total:   table.CumulImpactColumn(input.Activity),
		Policy:  PruneEmpty,
	})
	cumul.SetAttr(table.AttrKind, table.KindCumulative)
	if err := s.put(ctx, cumul, input.Scenario, input.Activity, input.Habitat, input.RunID); err != nil {
		return nil, err
	}
	res.Tables = append(res.Tables, cumul.Name)
	res.Cumulative = cumul

	s.logger.Info("activity impact aggregated",
		logging.Activity(input.Activity),
		logging.Scenario(scn),
		logging.Habitat(input.Habitat),
		logging.Table(cumul.Name),
		logging.Rows(cumul.Len()))
	return res, nil
}

func (s *serviceImpl) Sector(ctx context.Context, input *SectorInput) (*SectorResult, error) {
	if input == nil || input.Sector == "" {
		return nil, errors.InvalidParam("sector is required")
	}
	scn := input.Scenario.String()
	res := &SectorResult{}

	perHabitat := make([]Source, 0, len(input.Habitats))
	for _, hab := range input.Habitats {
		sources := make([]Source, 0, len(input.Activities))
		for _, act := range input.Activities {
			name := table.Name(table.KindCumulative, scn, act, hab)
			t, err := s.store.Get(ctx, name)
			if errors.IsNotFound(err) {
				res.Missing = append(res.Missing, name)
				s.logger.Warn("activity table missing from sector",
					logging.String("sector", input.Sector), logging.Table(name))
				continue
			}
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeUnknown, "failed to read activity impact table").WithDetail(name)
			}
			col := table.CumulImpactColumn(act)
			sources = append(sources, Source{Column: col, Values: t.Column(col)})
		}
		st := ReduceAndPrune(Reduction{
			Name:    table.Name(table.KindSector, scn, input.Sector, hab),
			KeyName: table.KeyUnit,
			Keys:    input.Units,
			Sources: sources,
			Total:   table.CumulImpactColumn(hab),
			Policy:  PruneEmpty,
		})
		st.SetAttr(table.AttrKind, table.KindSector)
		st.SetAttr(table.AttrHabitat, hab)
		if err := s.putSector(ctx, st, input); err != nil {
			return nil, err
		}
		res.Tables = append(res.Tables, st.Name)
		perHabitat = append(perHabitat, Source{Column: table.CumulImpactColumn(hab), Values: st.Column(table.CumulImpactColumn(hab))})
	}

	all := ReduceAndPrune(Reduction{
		Name:    table.Name(table.KindCumulative, scn, input.Sector, table.AllSector),
		KeyName: table.KeyUnit,
		Keys:    input.Units,
		Sources: perHabitat,
		Total:   table.CumulImpactColumn(table.AllSector),
		Policy:  PruneEmpty,
	})
	all.SetAttr(table.AttrKind, table.KindCumulative)
	if err := s.putSector(ctx, all, input); err != nil {
		return nil, err
	}
	res.Tables = append(res.Tables, all.Name)
	res.Cumulative = all

	s.logger.Info("sector impact aggregated",
		logging.String("sector", input.Sector),
		logging.Scenario(scn),
		logging.Int("activities", len(input.Activities)),
		logging.Table(all.Name),
		logging.Rows(all.Len()))
	return res, nil
}

func (s *serviceImpl) put(ctx context.Context, t *table.Table, scn activity.Scenario, act, hab, runID string) error {
	t.SetAttr(table.AttrScenario, scn.String())
	t.SetAttr(table.AttrActivity, act)
	t.SetAttr(table.AttrHabitat, hab)
	if runID != "" {
		t.SetAttr(table.AttrRunID, runID)
	}
	if err := s.store.Put(ctx, t); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "failed to persist impact table").WithDetail(t.Name)
	}
	return nil
}

func (s *serviceImpl) putSector(ctx context.Context, t *table.Table, input *SectorInput) error {
	t.SetAttr(table.AttrScenario, input.Scenario.String())
	t.SetAttr(table.AttrSector, input.Sector)
	if input.RunID != "" {
		t.SetAttr(table.AttrRunID, input.RunID)
	}
	if err := s.store.Put(ctx, t); err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "failed to persist sector table").WithDetail(t.Name)
	}
	return nil
}
