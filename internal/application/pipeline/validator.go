package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/composition"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/catalog"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Severity grades a validation finding.
type Severity string

const (
	// SeverityError findings would abort a run.
	SeverityError Severity = "error"
	// SeverityWarning findings would be reported as gaps or defaults.
	SeverityWarning Severity = "warning"
)

// Finding is one problem in the inputs.
type Finding struct {
	Severity Severity         `json:"severity"`
	Code     errors.ErrorCode `json:"code"`
	Activity string           `json:"activity,omitempty"`
	Message  string           `json:"message"`
}

// Validation collects every finding of a pre-flight check.
type Validation struct {
	Findings []Finding `json:"findings"`
}

// OK reports whether no finding would abort a run.
func (v *Validation) OK() bool {
	return len(v.Errors()) == 0
}

// Errors returns the error findings.
func (v *Validation) Errors() []Finding {
	var out []Finding
	for _, f := range v.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

func (v *Validation) add(sev Severity, code errors.ErrorCode, act, format string, args ...interface{}) {
	v.Findings = append(v.Findings, Finding{Severity: sev, Code: code, Activity: act, Message: fmt.Sprintf(format, args...)})
}

// Validator checks the catalog against the lookup tables without running
// any stage.
type Validator struct {
	catalog catalog.Catalog
	opts    Options
	logger  logging.Logger
}

// NewValidator creates a Validator.
func NewValidator(c catalog.Catalog, opts Options, logger logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Composition.FishingPrefixes == nil {
		opts.Composition.FishingPrefixes = composition.DefaultFishingPrefixes
	}
	return &Validator{catalog: c, opts: opts, logger: logger}
}

// Validate returns every finding. The error is non-nil only when the
// reference data cannot be read at all.
func (v *Validator) Validate(ctx context.Context, sectors map[string][]string) (*Validation, error) {
	ref, err := v.catalog.LoadReference(ctx)
	if err != nil {
		return nil, err
	}
	out := &Validation{}
	if ref.Stressors == nil {
		out.add(SeverityError, errors.ErrCodeInputUnreadable, "", "stressor table is missing")
		return out, nil
	}

	for _, layer := range ref.Habitats {
		if err := layer.Validate(); err != nil {
			out.add(SeverityError, errors.ErrCodeNoHabitatCodes, "", "habitat layer %q has no habitat codes", layer.Type)
		}
	}

	acts := v.catalog.Activities()
	sort.Slice(acts, func(i, j int) bool { return acts[i].Code < acts[j].Code })
	declared := make(map[string]bool, len(acts))
	for _, act := range acts {
		declared[act.Code] = true
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stressors := ref.Stressors.Stressors(act.Code)
		if len(stressors) == 0 {
			out.add(SeverityError, errors.ErrCodeNoStressors, act.Code, "activity has no stressors")
			continue
		}
		if act.Kind == activity.Land && ref.Watersheds.Len() == 0 {
			out.add(SeverityError, errors.ErrCodeInputUnreadable, act.Code, "land activity requires a watershed layer")
		}
		if act.IsFishing(v.opts.Composition.FishingPrefixes) {
			for _, st := range stressors {
				if g, ok := ref.Gear.Get(act.Code, st); !ok || g == 0 {
					sev := SeverityError
					if v.opts.Composition.LenientGearScores {
						sev = SeverityWarning
					}
					out.add(sev, errors.ErrCodeMissingGearScore, act.Code, "no fishing gear score for stressor %s", st)
				}
			}
		}
		for _, layer := range ref.Habitats {
			for _, st := range stressors {
				for _, code := range layer.Codes() {
					if _, ok := ref.Vulnerability.Get(act.Code, st, code); !ok {
						out.add(SeverityWarning, errors.ErrCodeMissingVulnerability, act.Code,
							"no vulnerability score for stressor %s on habitat code %s", st, code)
					}
				}
			}
		}
		if err := v.features(ctx, act, ref, out); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(sectors))
	for name := range sectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, code := range sectors[name] {
			if !declared[code] {
				out.add(SeverityWarning, errors.ErrCodeUnknownActivity, code, "sector %s names an undeclared activity", name)
			}
		}
	}

	v.logger.Info("inputs validated",
		logging.Int("activities", len(acts)),
		logging.Int("findings", len(out.Findings)),
		logging.Int("errors", len(out.Errors())))
	return out, nil
}

// features checks intensities, geometries and (activity, sub_activity)
// pairs, reporting each distinct problem once per activity.
func (v *Validator) features(ctx context.Context, act activity.Activity, ref *catalog.Reference, out *Validation) error {
	collections, err := v.catalog.LoadFeatures(ctx, act)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeUnknownActivity) || errors.IsCode(err, errors.ErrCodeInputUnreadable) {
			out.add(SeverityError, errors.GetCode(err), act.Code, "features cannot be read: %v", err)
			return nil
		}
		return err
	}
	scns := make([]activity.Scenario, 0, len(collections))
	for s := range collections {
		scns = append(scns, s)
	}
	activity.SortScenarios(scns)

	pairs := make(map[string]bool)
	var nulls, negatives, badGeometry int
	for _, scn := range scns {
		for _, f := range collections[scn].Features {
			if _, err := spatial.KindOf(f.Geometry); err != nil {
				badGeometry++
			}
			if !act.UsesShapeProxy() {
				switch {
				case f.Intensity == nil:
					nulls++
				case *f.Intensity < 0:
					negatives++
				}
			}
			sub := activity.NormalizeSubActivity(f.SubActivity)
			if _, seen := pairs[sub]; !seen {
				pairs[sub] = ref.Stressors.HasPair(act.Code, sub)
			}
		}
	}

	if badGeometry > 0 {
		out.add(SeverityError, errors.ErrCodeUnsupportedGeometry, act.Code, "%d features have an unsupported geometry", badGeometry)
	}
	if nulls > 0 {
		out.add(SeverityError, errors.ErrCodeNullIntensity, act.Code, "%d features have no %s value", nulls, act.IntensityField)
	}
	if negatives > 0 {
		out.add(SeverityError, errors.ErrCodeNegativeIntensity, act.Code, "%d features have a negative %s value", negatives, act.IntensityField)
	}
	subs := make([]string, 0, len(pairs))
	for sub := range pairs {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	for _, sub := range subs {
		if pairs[sub] {
			continue
		}
		sev := SeverityError
		if v.opts.Weighting.DefaultStressorWeight {
			sev = SeverityWarning
		}
		out.add(sev, errors.ErrCodeMissingStressorWeight, act.Code, "sub-activity %s has no stressor rows", sub)
	}
	return nil
}
