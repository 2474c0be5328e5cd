// Package intensity provides the application service that turns raw activity
// intensities into relative intensity (RI), standardized across every
// scenario of an activity.
package intensity

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Column names of the persisted RI table.
const (
	ColumnRaw = "raw"
	ColumnRI  = "RI"
)

// Service defines the interface for intensity normalization.
type Service interface {
	Normalize(ctx context.Context, input *NormalizeInput) (*NormalizeResult, error)
}

// Options holds the run-wide standardization settings.
type Options struct {
	// Method applies to activities that do not declare their own.
	Method           activity.Method
	ReclassClasses   int
	ReclassSlope     float64
	ReclassIntercept float64
}

// DefaultOptions returns rescale with three reclass classes mapped to
// {0.5, 1.0, 1.5}.
func DefaultOptions() Options {
	return Options{
		Method:         activity.MethodRescale,
		ReclassClasses: 3,
		ReclassSlope:   0.5,
	}
}

// NormalizeInput contains the features of one activity in every scenario
// being compared.
type NormalizeInput struct {
	Activity    activity.Activity
	Collections map[activity.Scenario]*activity.FeatureCollection
	// Persist limits which scenarios get an RI table. Every collection still
	// contributes to the maximum and the breaks. Empty persists all of them.
	Persist []activity.Scenario
	RunID   string
}

// NormalizeResult holds the RI records per scenario.
type NormalizeResult struct {
	Method  activity.Method
	Records map[activity.Scenario][]impact.IntensityRecord
	// Max is the cross-scenario maximum raw value (rescale).
	Max float64
	// Breaks are the natural-breaks upper bounds (reclass).
	Breaks []float64
	Tables []string
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	classifier spatial.Classifier
	store      table.Store
	opts       Options
	logger     logging.Logger
}

// NewService creates a new intensity service.
func NewService(classifier spatial.Classifier, store table.Store, opts Options, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Method == "" {
		opts.Method = activity.MethodRescale
	}
	if opts.ReclassClasses <= 0 {
		opts.ReclassClasses = 3
	}
	return &serviceImpl{
		classifier: classifier,
		store:      store,
		opts:       opts,
		logger:     logger,
	}
}

// Normalize computes RI for every feature of every scenario. Raw values of
// all scenarios are collected before any of them is standardized so that the
// rescale maximum and the reclass breaks are shared.
func (s *serviceImpl) Normalize(ctx context.Context, input *NormalizeInput) (*NormalizeResult, error) {
	if input == nil || input.Activity.Code == "" {
		return nil, errors.InvalidParam("activity is required")
	}
	act := input.Activity
	method := act.Method
	if method == "" {
		method = s.opts.Method
	}

	scenarios := make([]activity.Scenario, 0, len(input.Collections))
	for scn := range input.Collections {
		scenarios = append(scenarios, scn)
	}
	activity.SortScenarios(scenarios)

	raw := make(map[activity.Scenario][]impact.IntensityRecord, len(scenarios))
	var all []float64
	for _, scn := range scenarios {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := rawRecords(act, scn, input.Collections[scn])
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			all = append(all, r.Raw)
		}
		raw[scn] = recs
	}

	result := &NormalizeResult{Method: method, Records: raw}
	switch method {
	case activity.MethodRescale:
		if len(all) > 0 {
			result.Max = floats.Max(all)
		}
		for _, recs := range raw {
			for i := range recs {
				if result.Max > 0 {
					recs[i].RI = recs[i].Raw / result.Max
				}
			}
		}
	case activity.MethodReclass:
		breaks, err := s.breaks(all)
		if err != nil {
			return nil, err
		}
		result.Breaks = breaks
		for _, recs := range raw {
			for i := range recs {
				class := spatial.ClassOf(recs[i].Raw, breaks)
				recs[i].RI = s.opts.ReclassSlope*float64(class) + s.opts.ReclassIntercept
			}
		}
	case activity.MethodNone:
		for _, recs := range raw {
			for i := range recs {
				recs[i].RI = recs[i].Raw
			}
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidMethod, fmt.Sprintf("unknown intensity method %q", method))
	}

	keep := make(map[activity.Scenario]bool, len(input.Persist))
	for _, scn := range input.Persist {
		keep[scn] = true
	}
	for _, scn := range scenarios {
		if len(keep) > 0 && !keep[scn] {
			continue
		}
		name, err := s.persist(ctx, act, scn, raw[scn], input.RunID)
		if err != nil {
			return nil, err
		}
		result.Tables = append(result.Tables, name)
		s.logger.Info("intensity normalized",
			logging.Activity(act.Code),
			logging.Scenario(scn.String()),
			logging.String("method", string(method)),
			logging.Rows(len(raw[scn])))
	}
	return result, nil
}

func (s *serviceImpl) breaks(values []float64) ([]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if s.classifier == nil {
		return nil, errors.Internal("reclass requires a classifier")
	}
	return s.classifier.Breaks(values, s.opts.ReclassClasses)
}

// rawRecords reads the raw value of every feature, or derives it from the
// geometry when the activity has no intensity attribute.
func rawRecords(act activity.Activity, scn activity.Scenario, fc *activity.FeatureCollection) ([]impact.IntensityRecord, error) {
	if fc == nil {
		return nil, nil
	}
	proxy := act.UsesShapeProxy()
	out := make([]impact.IntensityRecord, 0, len(fc.Features))
	for _, f := range fc.Features {
		rec := impact.IntensityRecord{
			FeatureID:   f.ID,
			Activity:    act.Code,
			Scenario:    scn,
			SubActivity: activity.NormalizeSubActivity(f.SubActivity),
			ShapeProxy:  proxy,
		}
		if proxy {
			if _, err := spatial.KindOf(f.Geometry); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeUnsupportedGeometry,
					fmt.Sprintf("cannot derive intensity of %s feature %d", act.Code, f.ID))
			}
			m, err := spatial.Measure(f.Geometry)
			if err != nil {
				return nil, err
			}
			rec.Raw = m
		} else {
			if f.Intensity == nil {
				return nil, errors.New(errors.ErrCodeNullIntensity, "null intensity value").
					WithDetailf("activity=%s scenario=%s feature=%d field=%s", act.Code, scn, f.ID, act.IntensityField)
			}
			if *f.Intensity < 0 {
				return nil, errors.New(errors.ErrCodeNegativeIntensity, "negative intensity value").
					WithDetailf("activity=%s scenario=%s feature=%d value=%g", act.Code, scn, f.ID, *f.Intensity)
			}
			rec.Raw = *f.Intensity
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *serviceImpl) persist(ctx context.Context, act activity.Activity, scn activity.Scenario, recs []impact.IntensityRecord, runID string) (string, error) {
	name := table.Name(table.KindIntensity, scn.String(), act.Code)
	t := table.New(name, table.KeyFeature, ColumnRaw, ColumnRI)
	t.SetAttr(table.AttrKind, table.KindIntensity)
	t.SetAttr(table.AttrScenario, scn.String())
	t.SetAttr(table.AttrActivity, act.Code)
	if runID != "" {
		t.SetAttr(table.AttrRunID, runID)
	}
	for _, r := range recs {
		t.Set(r.FeatureID, ColumnRaw, r.Raw)
		t.Set(r.FeatureID, ColumnRI, r.RI)
	}
	if err := s.store.Put(ctx, t); err != nil {
		return "", errors.Wrap(err, errors.CodeUnknown, "failed to persist intensity table").WithDetail(name)
	}
	return name, nil
}
