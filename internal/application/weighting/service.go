// Package weighting expands relative intensity records into per-stressor
// weighted intensities (RI_s) and, for land activities, into the watershed
// land index (LI_s).
package weighting

import (
	"context"
	"fmt"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/stressor"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// DefaultLandIndexScale keeps land index values in a readable range.
const DefaultLandIndexScale = 100000

// Service defines the interface for stressor weighting.
type Service interface {
	Weight(ctx context.Context, input *WeightInput) (*WeightResult, error)
	LandIndex(ctx context.Context, input *LandIndexInput) (*LandIndexResult, error)
}

// Options holds the weighting policy.
type Options struct {
	// DefaultStressorWeight gives every stressor of the activity weight 1
	// when a feature's (activity, sub_activity) pair has no stressor rows.
	DefaultStressorWeight bool
	LandIndexScale        float64
}

// WeightInput contains the RI records of one activity in one scenario.
type WeightInput struct {
	Activity  activity.Activity
	Scenario  activity.Scenario
	Records   []impact.IntensityRecord
	Stressors *stressor.Table
	RunID     string
}

// WeightResult holds the weighted records.
type WeightResult struct {
	Records   []impact.WeightedRecord
	Stressors []string
	// Defaulted lists the (activity/sub_activity) pairs weighted with 1.
	Defaulted []string
	Table     string
}

// LandIndexInput contains the weighted records of one land activity and
// the watersheds they drain into.
type LandIndexInput struct {
	Activity   activity.Activity
	Scenario   activity.Scenario
	Features   *activity.FeatureCollection
	Records    []impact.WeightedRecord
	Watersheds *grid.Watersheds
	RunID      string
}

// LandIndexResult holds one index per (stressor, impact distance) group.
type LandIndexResult struct {
	Indexes []impact.LandIndex
	// Skipped lists watersheds ignored because their area is zero.
	Skipped []int64
	Table   string
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	overlay spatial.Overlay
	store   table.Store
	opts    Options
	logger  logging.Logger
}

// NewService creates a new weighting service.
func NewService(overlay spatial.Overlay, store table.Store, opts Options, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.LandIndexScale <= 0 {
		opts.LandIndexScale = DefaultLandIndexScale
	}
	return &serviceImpl{overlay: overlay, store: store, opts: opts, logger: logger}
}

// Weight computes RI_s = RI × weight(activity, sub_activity, s) for every
// stressor row of each record's (activity, sub_activity) pair.
func (s *serviceImpl) Weight(ctx context.Context, input *WeightInput) (*WeightResult, error) {
	if input == nil || input.Stressors == nil {
		return nil, errors.InvalidParam("stressor table is required")
	}
	act := input.Activity
	codes := input.Stressors.Stressors(act.Code)
	if len(codes) == 0 {
		return nil, errors.New(errors.ErrCodeNoStressors, fmt.Sprintf("no stressors found for activity %q", act.Code))
	}

	result := &WeightResult{Stressors: codes, Records: make([]impact.WeightedRecord, 0, len(input.Records))}
	defaulted := make(map[string]struct{})
	for _, rec := range input.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sub := activity.NormalizeSubActivity(rec.SubActivity)
		rows := input.Stressors.PairRows(act.Code, sub)
		if len(rows) == 0 {
			if !s.opts.DefaultStressorWeight {
				return nil, errors.New(errors.ErrCodeMissingStressorWeight, "no stressor weight for activity/sub-activity").
					WithDetailf("activity=%s sub_activity=%s feature=%d", act.Code, sub, rec.FeatureID)
			}
			rows = defaultRows(input.Stressors, act.Code, sub, codes)
			key := act.Code + "/" + sub
			if _, seen := defaulted[key]; !seen {
				defaulted[key] = struct{}{}
				result.Defaulted = append(result.Defaulted, key)
				s.logger.Warn("stressor weight defaulted to 1",
					logging.Activity(act.Code), logging.String("sub_activity", sub))
			}
		}
		w := impact.WeightedRecord{
			IntensityRecord: rec,
			Stressors:       make(map[string]float64, len(rows)),
			Distances:       make(map[string]float64, len(rows)),
		}
		w.SubActivity = sub
		for _, row := range rows {
			w.Stressors[row.Stressor] = rec.RI * row.Weight
			w.Distances[row.Stressor] = row.ImpactDistance
		}
		result.Records = append(result.Records, w)
	}
	sort.Strings(result.Defaulted)

	name := table.Name(table.KindWeighted, input.Scenario.String(), act.Code)
	t := table.New(name, table.KeyFeature, codes...)
	tag(t, table.KindWeighted, input.Scenario, act.Code, input.RunID)
	for _, w := range result.Records {
		t.EnsureRow(w.FeatureID)
		for code, v := range w.Stressors {
			t.Set(w.FeatureID, code, v)
		}
	}
	if err := s.store.Put(ctx, t); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to persist weighted table").WithDetail(name)
	}
	result.Table = name

	s.logger.Info("stressors weighted",
		logging.Activity(act.Code),
		logging.Scenario(input.Scenario.String()),
		logging.Strings("stressors", codes),
		logging.Rows(len(result.Records)))
	return result, nil
}

// defaultRows gives every activity-level stressor weight 1 and the largest
// impact distance declared for it.
func defaultRows(t *stressor.Table, act, sub string, codes []string) []stressor.Row {
	rows := make([]stressor.Row, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, stressor.Row{
			Activity:       act,
			SubActivity:    sub,
			Stressor:       c,
			Weight:         1,
			ImpactDistance: t.MaxDistance(act, c),
		})
	}
	return rows
}

type groupKey struct {
	stressor string
	distance float64
}

// LandIndex sums RI_s per watershed for every (stressor, impact distance)
// group and scales it by watershed area:
// LI_s = scale × ΣRI_s / watershed_area.
func (s *serviceImpl) LandIndex(ctx context.Context, input *LandIndexInput) (*LandIndexResult, error) {
	if input == nil || input.Watersheds == nil || input.Watersheds.Len() == 0 {
		return nil, errors.New(errors.ErrCodeInputUnreadable, "land activities require a watershed layer")
	}
	if s.overlay == nil {
		return nil, errors.Internal("land index requires an overlay service")
	}
	act := input.Activity

	byID := input.Features.ByID()
	shapes := make([]spatial.Shape, 0, len(input.Records))
	records := make([]impact.WeightedRecord, 0, len(input.Records))
	for _, rec := range input.Records {
		f, ok := byID[rec.FeatureID]
		if !ok {
			return nil, errors.Internal("weighted record without feature").WithDetailf("activity=%s feature=%d", act.Code, rec.FeatureID)
		}
		shapes = append(shapes, spatial.Shape{ID: f.ID, Geometry: f.Geometry})
		records = append(records, rec)
	}

	zones := input.Watersheds.Zones()
	fragments, err := s.overlay.Intersect(ctx, shapes, zones)
	if err != nil {
		return nil, err
	}

	area := make(map[int64]float64, len(zones))
	for _, z := range zones {
		area[z.ID] = z.EffectiveArea()
	}

	sums := make(map[groupKey]map[int64]float64)
	for _, frag := range fragments {
		rec := records[frag.ShapeIndex]
		share := 1.0
		if rec.ShapeProxy {
			share = frag.Share()
		}
		for code, v := range rec.Stressors {
			k := groupKey{stressor: code, distance: rec.Distances[code]}
			if sums[k] == nil {
				sums[k] = make(map[int64]float64)
			}
			sums[k][frag.ZoneID] += v * share
		}
	}

	result := &LandIndexResult{}
	skipped := make(map[int64]struct{})
	keys := make([]groupKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].stressor != keys[j].stressor {
			return keys[i].stressor < keys[j].stressor
		}
		return keys[i].distance < keys[j].distance
	})
	for _, k := range keys {
		li := impact.LandIndex{Stressor: k.stressor, Distance: k.distance, Values: make(map[int64]float64)}
		for ws, sum := range sums[k] {
			a := area[ws]
			if a <= 0 {
				if _, seen := skipped[ws]; !seen {
					skipped[ws] = struct{}{}
					s.logger.Warn("watershed has zero area, skipped",
						logging.Activity(act.Code), logging.Int64("watershed_id", ws))
				}
				continue
			}
			li.Values[ws] = s.opts.LandIndexScale * sum / a
		}
		result.Indexes = append(result.Indexes, li)
	}
	for ws := range skipped {
		result.Skipped = append(result.Skipped, ws)
	}
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i] < result.Skipped[j] })

	name := table.Name(table.KindLandIndex, input.Scenario.String(), act.Code)
	t := table.New(name, table.KeyWatershed)
	tag(t, table.KindLandIndex, input.Scenario, act.Code, input.RunID)
	for _, li := range result.Indexes {
		col := table.DistanceColumn(li.Stressor, li.Distance)
		t.AddColumn(col)
		for ws, v := range li.Values {
			t.Set(ws, col, v)
		}
	}
	if err := s.store.Put(ctx, t); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to persist land index table").WithDetail(name)
	}
	result.Table = name

	s.logger.Info("land index computed",
		logging.Activity(act.Code),
		logging.Scenario(input.Scenario.String()),
		logging.Int("groups", len(result.Indexes)),
		logging.Rows(t.Len()))
	return result, nil
}

func tag(t *table.Table, kind string, scn activity.Scenario, act, runID string) {
	t.SetAttr(table.AttrKind, kind)
	t.SetAttr(table.AttrScenario, scn.String())
	t.SetAttr(table.AttrActivity, act)
	if runID != "" {
		t.SetAttr(table.AttrRunID, runID)
	}
}
