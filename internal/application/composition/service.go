// Package composition combines reduced stressor intensity with habitat
// vulnerability, fishing gear severity and habitat area fractions into
// per-fragment weighted impacts.
package composition

import (
	"context"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/habitat"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// DefaultFishingPrefixes identify commercial and sport fishing activities.
var DefaultFishingPrefixes = []string{"cf", "sportf"}

// Service defines the interface for impact composition.
type Service interface {
	// Coverage intersects the grid with a habitat layer.
	Coverage(ctx context.Context, g *grid.Grid, layer habitat.Layer) (habitat.Coverage, error)
	Compose(ctx context.Context, input *ComposeInput) (*Composition, error)
}

// Options holds the composition policy.
type Options struct {
	FishingPrefixes []string
	// LenientGearScores records a missing or zero gear score as a gap and
	// skips the stressor instead of failing.
	LenientGearScores bool
}

// ComposeInput contains one activity's reduced intensity and one habitat
// layer with its precomputed coverage.
type ComposeInput struct {
	Activity      activity.Activity
	Scenario      activity.Scenario
	Intensity     impact.StressorIntensity
	Layer         habitat.Layer
	Coverage      habitat.Coverage
	Grid          *grid.Grid
	Vulnerability *habitat.VulnerabilityTable
	Gear          *habitat.GearSeverityTable
}

// Composition is the impact of one activity on one habitat layer.
type Composition struct {
	Activity  string
	Habitat   string
	Codes     []string
	Fragments []impact.Fragment
	Gaps      *impact.GapReport
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	overlay spatial.Overlay
	opts    Options
	logger  logging.Logger
}

// NewService creates a new composition service.
func NewService(overlay spatial.Overlay, opts Options, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.FishingPrefixes == nil {
		opts.FishingPrefixes = DefaultFishingPrefixes
	}
	return &serviceImpl{overlay: overlay, opts: opts, logger: logger}
}

func (s *serviceImpl) Coverage(ctx context.Context, g *grid.Grid, layer habitat.Layer) (habitat.Coverage, error) {
	if err := layer.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.InvalidParam("planning unit grid is required")
	}
	if s.overlay == nil {
		return nil, errors.Internal("overlay service is not configured")
	}
	shapes := make([]spatial.Shape, 0, len(layer.Features))
	codes := make([]string, 0, len(layer.Features))
	for i, f := range layer.Features {
		if f.Code == "" || f.Geometry == nil {
			continue
		}
		shapes = append(shapes, spatial.Shape{ID: int64(i), Geometry: f.Geometry})
		codes = append(codes, f.Code)
	}
	fragments, err := s.overlay.Intersect(ctx, shapes, g.Zones())
	if err != nil {
		return nil, err
	}
	cov := make(habitat.Coverage)
	for _, frag := range fragments {
		cov.Add(frag.ZoneID, codes[frag.ShapeIndex], frag.Measure)
	}
	s.logger.Info("habitat coverage computed",
		logging.Habitat(layer.Type),
		logging.Int("codes", len(layer.Codes())),
		logging.Int("units", len(cov)))
	return cov, nil
}

// Compose computes, for every unit with intensity, every stressor and every
// habitat fragment of the unit:
//
//	Impact     = RI_s × Vscore            (× GearScore for fishing)
//	AreaWeight = fragment area / unit marine area
//	Wtd_Impact = AreaWeight × Impact
//
// A missing vulnerability score is a gap. A missing or zero gear score of a
// fishing activity is fatal unless gear scoring is lenient.
func (s *serviceImpl) Compose(ctx context.Context, input *ComposeInput) (*Composition, error) {
	if input == nil || input.Grid == nil || input.Vulnerability == nil {
		return nil, errors.InvalidParam("grid and vulnerability table are required")
	}
	if err := input.Layer.Validate(); err != nil {
		return nil, err
	}
	act := input.Activity
	out := &Composition{
		Activity: act.Code,
		Habitat:  input.Layer.Type,
		Codes:    input.Layer.Codes(),
		Gaps:     impact.NewGapReport(),
	}

	stressors := input.Intensity.Stressors()
	fishing := act.IsFishing(s.opts.FishingPrefixes)
	gear := make(map[string]float64, len(stressors))
	if fishing {
		for _, code := range stressors {
			g, ok := input.Gear.Get(act.Code, code)
			if !ok || g == 0 {
				if !s.opts.LenientGearScores {
					return nil, errors.New(errors.ErrCodeMissingGearScore, "fishing activity has no gear severity score").
						WithDetailf("activity=%s stressor=%s", act.Code, code)
				}
				out.Gaps.Add(impact.Gap{Kind: impact.GapNoFishingScore, Activity: act.Code, Stressor: code})
				continue
			}
			gear[code] = g
		}
	}

	for _, unit := range input.Intensity.Units() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frags := input.Coverage[unit]
		if len(frags) == 0 {
			continue
		}
		pu, ok := input.Grid.Unit(unit)
		if !ok || pu.MarineArea <= 0 {
			continue
		}
		row := input.Intensity[unit]
		codes := make([]string, 0, len(row))
		for code := range row {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		for _, code := range codes {
			g := 1.0
			if fishing {
				var ok bool
				if g, ok = gear[code]; !ok {
					continue
				}
			}
			ri := row[code]
			for _, hf := range frags {
				v, ok := input.Vulnerability.Get(act.Code, code, hf.Code)
				if !ok {
					out.Gaps.Add(impact.Gap{Kind: impact.GapNoVscore, Activity: act.Code, Stressor: code, HabitatCode: hf.Code})
					continue
				}
				f := impact.Fragment{
					Activity:    act.Code,
					Stressor:    code,
					Habitat:     input.Layer.Type,
					HabitatCode: hf.Code,
					UnitID:      unit,
					Intensity:   ri,
					Vscore:      v,
					AreaWeight:  hf.Area / pu.MarineArea,
				}
				if fishing {
					f.GearScore = g
					f.Impact = g * v * ri
				} else {
					f.Impact = ri * v
				}
				f.WtdImpact = f.AreaWeight * f.Impact
				out.Fragments = append(out.Fragments, f)
			}
		}
	}

	s.logger.Info("impact composed",
		logging.Activity(act.Code),
		logging.Scenario(input.Scenario.String()),
		logging.Habitat(input.Layer.Type),
		logging.Rows(len(out.Fragments)),
		logging.Int("gaps", out.Gaps.Len()))
	return out, nil
}
