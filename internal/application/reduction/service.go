// Package reduction sums stressor-weighted intensities onto the planning unit
// grid, by direct overlay for marine activities and through distance decay
// rasters for coastal and land activities.
package reduction

import (
	"context"
	"fmt"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// DefaultCellSize is the decay raster resolution in map units.
const DefaultCellSize = 1000

// Service defines the interface for spatial reduction.
type Service interface {
	Reduce(ctx context.Context, input *ReduceInput) (*ReduceResult, error)
}

// Options holds the decay raster settings.
type Options struct {
	CellSize float64
	// Classes slices summed decay rasters into natural-breaks classes before
	// zonal reduction. Zero keeps the continuous surface.
	Classes int
}

// ReduceInput contains one activity's weighted records in one scenario.
type ReduceInput struct {
	Activity activity.Activity
	Scenario activity.Scenario
	Features *activity.FeatureCollection
	Records  []impact.WeightedRecord
	// LandIndex is required for land activities.
	LandIndex  []impact.LandIndex
	Grid       *grid.Grid
	Watersheds *grid.Watersheds
	RunID      string
}

// ReduceResult holds the summed intensity per unit and stressor.
type ReduceResult struct {
	Intensity impact.StressorIntensity
	Table     string
}

// Ports groups the spatial services used by the reducer.
type Ports struct {
	Overlay    spatial.Overlay
	Decay      spatial.Decay
	Zonal      spatial.ZonalReducer
	Classifier spatial.Classifier
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	ports  Ports
	store  table.Store
	opts   Options
	logger logging.Logger
}

// NewService creates a new reduction service.
func NewService(ports Ports, store table.Store, opts Options, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.CellSize <= 0 {
		opts.CellSize = DefaultCellSize
	}
	return &serviceImpl{ports: ports, store: store, opts: opts, logger: logger}
}

// Reduce dispatches on the activity kind and persists SRI_<scn>_<act>.
func (s *serviceImpl) Reduce(ctx context.Context, input *ReduceInput) (*ReduceResult, error) {
	if input == nil || input.Grid == nil {
		return nil, errors.InvalidParam("planning unit grid is required")
	}
	act := input.Activity

	var (
		out impact.StressorIntensity
		err error
	)
	switch act.Kind {
	case activity.Marine, "":
		out, err = s.overlay(ctx, input)
	case activity.Coastal:
		out, err = s.coastal(ctx, input)
	case activity.Land:
		out, err = s.land(ctx, input)
	default:
		return nil, errors.InvalidParam(fmt.Sprintf("unknown activity kind %q", act.Kind))
	}
	if err != nil {
		return nil, err
	}

	name := table.Name(table.KindReduced, input.Scenario.String(), act.Code)
	t := out.ToTable(name)
	t.SetAttr(table.AttrKind, table.KindReduced)
	t.SetAttr(table.AttrScenario, input.Scenario.String())
	t.SetAttr(table.AttrActivity, act.Code)
	if input.RunID != "" {
		t.SetAttr(table.AttrRunID, input.RunID)
	}
	if err := s.store.Put(ctx, t); err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "failed to persist reduced table").WithDetail(name)
	}

	s.logger.Info("intensity reduced to grid",
		logging.Activity(act.Code),
		logging.Scenario(input.Scenario.String()),
		logging.String("kind", string(act.Kind)),
		logging.Rows(len(out)))
	return &ReduceResult{Intensity: out, Table: name}, nil
}

// overlay intersects weighted features with the grid and sums RI_s per
// unit. A shape-proxy RI is apportioned by the fragment's share of the
// feature so that it is not counted once per overlapped unit.
func (s *serviceImpl) overlay(ctx context.Context, input *ReduceInput) (impact.StressorIntensity, error) {
	if s.ports.Overlay == nil {
		return nil, errors.Internal("overlay service is not configured")
	}
	shapes, records, err := pair(input)
	if err != nil {
		return nil, err
	}
	fragments, err := s.ports.Overlay.Intersect(ctx, shapes, input.Grid.Zones())
	if err != nil {
		return nil, err
	}
	out := make(impact.StressorIntensity)
	for _, frag := range fragments {
		rec := records[frag.ShapeIndex]
		share := 1.0
		if rec.ShapeProxy {
			share = frag.Share()
		}
		for code, v := range rec.Stressors {
			out.Add(frag.ZoneID, code, v*share)
		}
	}
	return out, nil
}

// coastal decays every stressor from the activity features, one raster per
// distinct impact distance.
func (s *serviceImpl) coastal(ctx context.Context, input *ReduceInput) (impact.StressorIntensity, error) {
	shapes, records, err := pair(input)
	if err != nil {
		return nil, err
	}
	groups := make(map[string]map[float64][]spatial.Source)
	for i, rec := range records {
		for code, v := range rec.Stressors {
			if v <= 0 {
				continue
			}
			addSource(groups, code, rec.Distances[code], spatial.Source{Geometry: shapes[i].Geometry, Population: v})
		}
	}
	return s.decay(ctx, input, groups)
}

// land decays each land index group from the watershed outlets.
func (s *serviceImpl) land(ctx context.Context, input *ReduceInput) (impact.StressorIntensity, error) {
	if input.Watersheds.Len() == 0 {
		return nil, errors.New(errors.ErrCodeInputUnreadable, "land activities require a watershed layer")
	}
	groups := make(map[string]map[float64][]spatial.Source)
	for _, li := range input.LandIndex {
		ids := make([]int64, 0, len(li.Values))
		for id := range li.Values {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			v := li.Values[id]
			ws, ok := input.Watersheds.Get(id)
			if !ok || v <= 0 {
				continue
			}
			addSource(groups, li.Stressor, li.Distance, spatial.Source{Geometry: ws.OutletPoint(), Population: v})
		}
	}
	return s.decay(ctx, input, groups)
}

func addSource(groups map[string]map[float64][]spatial.Source, code string, d float64, src spatial.Source) {
	byDist, ok := groups[code]
	if !ok {
		byDist = make(map[float64][]spatial.Source)
		groups[code] = byDist
	}
	byDist[d] = append(byDist[d], src)
}

// decay builds one raster per (stressor, distance), sums the rasters of a
// stressor over the union of their extents, optionally slices the sum into
// classes and projects it onto the grid.
func (s *serviceImpl) decay(ctx context.Context, input *ReduceInput, groups map[string]map[float64][]spatial.Source) (impact.StressorIntensity, error) {
	if s.ports.Decay == nil || s.ports.Zonal == nil {
		return nil, errors.Internal("decay services are not configured")
	}
	zones := input.Grid.Zones()
	out := make(impact.StressorIntensity)

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	for _, code := range codes {
		dists := make([]float64, 0, len(groups[code]))
		for d := range groups[code] {
			dists = append(dists, d)
		}
		sort.Float64s(dists)

		rasters := make([]*spatial.Raster, 0, len(dists))
		for _, d := range dists {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := s.ports.Decay.Density(ctx, groups[code][d], d, s.opts.CellSize)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeDecayFailed, "decay failed").
					WithDetailf("activity=%s stressor=%s distance=%g", input.Activity.Code, code, d)
			}
			rasters = append(rasters, r)
			s.logger.Debug("decay raster built",
				logging.Activity(input.Activity.Code),
				logging.Stressor(code),
				logging.Float64("distance", d))
		}
		sum, err := spatial.Sum(rasters...)
		if err != nil {
			return nil, err
		}
		if sum == nil {
			continue
		}
		if s.opts.Classes > 0 {
			if s.ports.Classifier == nil {
				return nil, errors.Internal("decay classes require a classifier")
			}
			breaks, err := s.ports.Classifier.Breaks(sum.NonZero(), s.opts.Classes)
			if err != nil {
				return nil, err
			}
			sum = sum.Reclassify(breaks)
		}
		values, err := s.ports.Zonal.Zonal(ctx, sum, zones)
		if err != nil {
			return nil, err
		}
		for unit, v := range values {
			out.Add(unit, code, v)
		}
	}
	return out, nil
}

// pair lines weighted records up with their feature geometries.
func pair(input *ReduceInput) ([]spatial.Shape, []impact.WeightedRecord, error) {
	byID := input.Features.ByID()
	shapes := make([]spatial.Shape, 0, len(input.Records))
	records := make([]impact.WeightedRecord, 0, len(input.Records))
	for _, rec := range input.Records {
		f, ok := byID[rec.FeatureID]
		if !ok {
			return nil, nil, errors.Internal("weighted record without feature").
				WithDetailf("activity=%s feature=%d", input.Activity.Code, rec.FeatureID)
		}
		shapes = append(shapes, spatial.Shape{ID: f.ID, Geometry: f.Geometry})
		records = append(records, rec)
	}
	return shapes, records, nil
}
