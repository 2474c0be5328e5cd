// Package pipeline runs the cumulative impact stages in order over every
// selected activity and scenario, and aggregates the results per sector.
package pipeline

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/composition"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/cumulative"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/intensity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/reduction"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/application/weighting"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/catalog"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/habitat"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/impact"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/run"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Request selects what a run computes.
type Request struct {
	// RunID is generated when empty.
	RunID string
	// Scenarios defaults to every scenario.
	Scenarios []activity.Scenario
	// Activities filters the declared activities by code; empty runs all.
	Activities []string
	// Sectors maps a sector name to its member activities. The ALL sector
	// is always computed over every declared activity.
	Sectors map[string][]string
}

// Report summarizes a finished run.
type Report struct {
	RunID      string        `json:"run_id"`
	Status     string        `json:"status"`
	Scenarios  []string      `json:"scenarios"`
	Activities []string      `json:"activities"`
	Tables     []string      `json:"tables"`
	Gaps       []impact.Gap  `json:"gaps"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
}

// RunContext carries the state of one run between stages.
type RunContext struct {
	RunID      string
	Reference  *catalog.Reference
	Units      []int64
	Scenarios  []activity.Scenario
	Activities []activity.Activity
	Coverage   map[string]habitat.Coverage
	Logger     logging.Logger
	Gaps       *impact.GapReport
	Tables     []string
}

// Dependencies are the collaborators of a Runner. Nil run ports fall back
// to their no-op variants.
type Dependencies struct {
	Catalog  catalog.Catalog
	Store    table.Store
	Services Services
	Locker   run.Locker
	Notifier run.Notifier
	Recorder run.Recorder
}

// Runner executes pipeline runs.
type Runner struct {
	deps   Dependencies
	opts   Options
	logger logging.Logger
}

// NewRunner creates a Runner.
func NewRunner(deps Dependencies, opts Options, logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if deps.Locker == nil {
		deps.Locker = run.NopLocker{}
	}
	if deps.Notifier == nil {
		deps.Notifier = run.NopNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = run.NopRecorder{}
	}
	return &Runner{deps: deps, opts: opts, logger: logger}
}

// Run executes every stage for the requested activities and scenarios. A
// fatal error stops the run at once; tables already written are left in
// the store. The returned Report is never nil.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	return r.execute(ctx, req, r.pipeline)
}

// Aggregate recomputes only the sector tables from per-activity tables
// already in the store.
func (r *Runner) Aggregate(ctx context.Context, req Request) (*Report, error) {
	return r.execute(ctx, req, r.aggregateOnly)
}

type body func(ctx context.Context, rc *RunContext, req Request) error

func (r *Runner) execute(ctx context.Context, req Request, fn body) (*Report, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	start := time.Now()
	rc := &RunContext{
		RunID:     runID,
		Scenarios: scenarios(req.Scenarios),
		Coverage:  make(map[string]habitat.Coverage),
		Logger:    r.logger.With(logging.RunID(runID)),
		Gaps:      impact.NewGapReport(),
	}
	report := &Report{RunID: runID, StartedAt: start.UTC()}
	for _, s := range rc.Scenarios {
		report.Scenarios = append(report.Scenarios, s.String())
	}

	key := r.opts.LockKey
	if key == "" {
		key = DefaultLockKey
	}
	release, err := r.deps.Locker.Acquire(ctx, key)
	if err != nil {
		report.Status = run.StatusFailed
		report.Error = err.Error()
		rc.Logger.Error("output lock not acquired", logging.String("key", key), logging.Err(err))
		return report, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			rc.Logger.Warn("output lock release failed", logging.String("key", key), logging.Err(err))
		}
	}()

	rc.Logger.Info("run started", logging.Strings("scenarios", report.Scenarios))
	r.notify(ctx, rc, run.Event{Type: run.EventRunStarted})

	err = fn(ctx, rc, req)
	if err != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
		err = errors.Wrap(err, errors.ErrCodeRunAborted, "run aborted")
	}
	return r.finish(ctx, rc, report, start, err), err
}

func (r *Runner) finish(ctx context.Context, rc *RunContext, report *Report, start time.Time, err error) *Report {
	ctx = context.WithoutCancel(ctx)
	elapsed := time.Since(start)

	report.Duration = elapsed
	report.Tables = rc.Tables
	report.Gaps = rc.Gaps.Gaps()
	for _, a := range rc.Activities {
		report.Activities = append(report.Activities, a.Code)
	}

	for _, g := range report.Gaps {
		rc.Logger.Warn("lookup gap",
			logging.String("kind", string(g.Kind)),
			logging.Activity(g.Activity),
			logging.Stressor(g.Stressor),
			logging.String("habitat_code", g.HabitatCode))
	}
	for _, kind := range []impact.GapKind{impact.GapNoVscore, impact.GapNoFishingScore} {
		r.deps.Recorder.GapsRecorded(string(kind), len(rc.Gaps.ByKind(kind)))
	}

	ev := run.Event{Tables: rc.Tables, Gaps: len(report.Gaps), Duration: elapsed}
	if err != nil {
		report.Status = run.StatusFailed
		report.Error = err.Error()
		ev.Type = run.EventRunFailed
		ev.Error = err.Error()
		rc.Logger.Error("run failed",
			logging.String("code", errors.GetCode(err).String()),
			logging.Duration("elapsed", elapsed),
			logging.Err(err))
	} else {
		report.Status = run.StatusSucceeded
		ev.Type = run.EventRunCompleted
		rc.Logger.Info("run completed",
			logging.Int("tables", len(rc.Tables)),
			logging.Int("gaps", len(report.Gaps)),
			logging.Duration("elapsed", elapsed))
	}
	r.deps.Recorder.RunFinished(report.Status, elapsed)
	if ferr := r.deps.Recorder.Flush(ctx, rc.RunID); ferr != nil {
		rc.Logger.Warn("metrics flush failed", logging.Err(ferr))
	}
	r.notify(ctx, rc, ev)
	return report
}

// pipeline is the full run: load, coverage, per-activity stages, sectors.
func (r *Runner) pipeline(ctx context.Context, rc *RunContext, req Request) error {
	if err := r.load(ctx, rc, req); err != nil {
		return err
	}
	for _, act := range rc.Activities {
		if len(rc.Reference.Stressors.Stressors(act.Code)) == 0 {
			return errors.New(errors.ErrCodeNoStressors, "activity has no stressors").
				WithDetailf("activity=%s", act.Code)
		}
	}
	for _, layer := range rc.Reference.Habitats {
		layer := layer
		err := r.stage(ctx, rc, run.StageCoverage, "", "", func() ([]string, error) {
			if err := layer.Validate(); err != nil {
				return nil, err
			}
			cov, err := r.deps.Services.Composition.Coverage(ctx, rc.Reference.Grid, layer)
			if err != nil {
				return nil, err
			}
			rc.Coverage[layer.Type] = cov
			return nil, nil
		})
		if err != nil {
			return err
		}
	}
	for _, act := range rc.Activities {
		if err := r.activity(ctx, rc, act); err != nil {
			return err
		}
	}
	return r.sectors(ctx, rc, req)
}

func (r *Runner) aggregateOnly(ctx context.Context, rc *RunContext, req Request) error {
	if err := r.load(ctx, rc, req); err != nil {
		return err
	}
	return r.sectors(ctx, rc, req)
}

// load reads the reference data and resolves the activity filter.
func (r *Runner) load(ctx context.Context, rc *RunContext, req Request) error {
	return r.stage(ctx, rc, run.StageLoad, "", "", func() ([]string, error) {
		ref, err := r.deps.Catalog.LoadReference(ctx)
		if err != nil {
			return nil, err
		}
		if ref.Grid == nil || ref.Grid.Len() == 0 {
			return nil, errors.New(errors.ErrCodeInputUnreadable, "planning unit grid is empty")
		}
		if ref.Stressors == nil {
			return nil, errors.New(errors.ErrCodeInputUnreadable, "stressor table is missing")
		}
		rc.Reference = ref
		rc.Units = ref.Grid.IDs()

		if len(req.Activities) == 0 {
			rc.Activities = r.deps.Catalog.Activities()
		} else {
			for _, code := range req.Activities {
				act, err := catalog.Lookup(r.deps.Catalog, code)
				if err != nil {
					return nil, err
				}
				rc.Activities = append(rc.Activities, act)
			}
		}
		sort.Slice(rc.Activities, func(i, j int) bool { return rc.Activities[i].Code < rc.Activities[j].Code })
		rc.Logger.Info("reference data loaded",
			logging.Int("units", len(rc.Units)),
			logging.Int("activities", len(rc.Activities)),
			logging.Int("habitat_layers", len(ref.Habitats)))
		return nil, nil
	})
}

// activity runs normalize once over all scenarios, then weight, reduce,
// compose and the per-activity aggregation for each scenario.
func (r *Runner) activity(ctx context.Context, rc *RunContext, act activity.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	all, err := r.deps.Catalog.LoadFeatures(ctx, act)
	if err != nil {
		return err
	}
	collections := make(map[activity.Scenario]*activity.FeatureCollection, len(all))
	for scn, fc := range all {
		if fc != nil {
			collections[scn] = fc
		}
	}
	selected := make([]activity.Scenario, 0, len(rc.Scenarios))
	for _, scn := range rc.Scenarios {
		if _, ok := collections[scn]; ok {
			selected = append(selected, scn)
			continue
		}
		rc.Logger.Warn("activity has no features in scenario", logging.Activity(act.Code), logging.Scenario(scn.String()))
		if err := r.clearScenario(ctx, rc, act, scn); err != nil {
			return err
		}
	}
	if len(selected) == 0 {
		return nil
	}

	// The maximum and the breaks span every scenario the activity has, so an
	// RI table does not depend on which scenarios were selected.
	var norm *intensity.NormalizeResult
	err = r.stage(ctx, rc, run.StageNormalize, "", act.Code, func() ([]string, error) {
		res, err := r.deps.Services.Intensity.Normalize(ctx, &intensity.NormalizeInput{
			Activity:    act,
			Collections: collections,
			Persist:     selected,
			RunID:       rc.RunID,
		})
		if err != nil {
			return nil, err
		}
		norm = res
		return res.Tables, nil
	})
	if err != nil {
		return err
	}

	for _, scn := range selected {
		if err := r.scenario(ctx, rc, act, scn, collections[scn], norm.Records[scn]); err != nil {
			return err
		}
	}
	return nil
}

// clearScenario deletes the tables an earlier run left for an activity that
// has no features in scn, so the sector sums stop counting them.
func (r *Runner) clearScenario(ctx context.Context, rc *RunContext, act activity.Activity, scn activity.Scenario) error {
	s := scn.String()
	names := []string{
		table.Name(table.KindIntensity, s, act.Code),
		table.Name(table.KindWeighted, s, act.Code),
		table.Name(table.KindLandIndex, s, act.Code),
		table.Name(table.KindReduced, s, act.Code),
	}
	for _, layer := range rc.Reference.Habitats {
		names = append(names, table.Name(table.KindCumulative, s, act.Code, layer.Type))
		wtd, err := r.deps.Store.List(ctx, table.Name(table.KindWtdImpact, s, act.Code, layer.Type)+"_")
		if err != nil {
			return err
		}
		names = append(names, wtd...)
	}
	for _, name := range names {
		if err := r.deps.Store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) scenario(ctx context.Context, rc *RunContext, act activity.Activity, scn activity.Scenario, fc *activity.FeatureCollection, records []impact.IntensityRecord) error {
	ref := rc.Reference

	var weighted *weighting.WeightResult
	err := r.stage(ctx, rc, run.StageWeight, scn, act.Code, func() ([]string, error) {
		res, err := r.deps.Services.Weighting.Weight(ctx, &weighting.WeightInput{
			Activity:  act,
			Scenario:  scn,
			Records:   records,
			Stressors: ref.Stressors,
			RunID:     rc.RunID,
		})
		if err != nil {
			return nil, err
		}
		weighted = res
		return []string{res.Table}, nil
	})
	if err != nil {
		return err
	}

	var landIndex []impact.LandIndex
	if act.Kind == activity.Land {
		err := r.stage(ctx, rc, run.StageLandIndex, scn, act.Code, func() ([]string, error) {
			res, err := r.deps.Services.Weighting.LandIndex(ctx, &weighting.LandIndexInput{
				Activity:   act,
				Scenario:   scn,
				Features:   fc,
				Records:    weighted.Records,
				Watersheds: ref.Watersheds,
				RunID:      rc.RunID,
			})
			if err != nil {
				return nil, err
			}
			landIndex = res.Indexes
			return []string{res.Table}, nil
		})
		if err != nil {
			return err
		}
	}

	var reduced impact.StressorIntensity
	err = r.stage(ctx, rc, run.StageReduce, scn, act.Code, func() ([]string, error) {
		res, err := r.deps.Services.Reduction.Reduce(ctx, &reduction.ReduceInput{
			Activity:   act,
			Scenario:   scn,
			Features:   fc,
			Records:    weighted.Records,
			LandIndex:  landIndex,
			Grid:       ref.Grid,
			Watersheds: ref.Watersheds,
			RunID:      rc.RunID,
		})
		if err != nil {
			return nil, err
		}
		reduced = res.Intensity
		return []string{res.Table}, nil
	})
	if err != nil {
		return err
	}

	for _, layer := range ref.Habitats {
		layer := layer
		err := r.stage(ctx, rc, run.StageCompose, scn, act.Code, func() ([]string, error) {
			comp, err := r.deps.Services.Composition.Compose(ctx, &composition.ComposeInput{
				Activity:      act,
				Scenario:      scn,
				Intensity:     reduced,
				Layer:         layer,
				Coverage:      rc.Coverage[layer.Type],
				Grid:          ref.Grid,
				Vulnerability: ref.Vulnerability,
				Gear:          ref.Gear,
			})
			if err != nil {
				return nil, err
			}
			rc.Gaps.Merge(comp.Gaps)
			res, err := r.deps.Services.Cumulative.ActivityHabitat(ctx, &cumulative.ActivityInput{
				Scenario:  scn,
				Activity:  act.Code,
				Habitat:   layer.Type,
				Codes:     comp.Codes,
				Fragments: comp.Fragments,
				Units:     rc.Units,
				RunID:     rc.RunID,
			})
			if err != nil {
				return nil, err
			}
			return res.Tables, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// sectors aggregates the ALL sector, then every configured sector in name
// order, for each scenario.
func (r *Runner) sectors(ctx context.Context, rc *RunContext, req Request) error {
	habitats := make([]string, 0, len(rc.Reference.Habitats))
	for _, l := range rc.Reference.Habitats {
		habitats = append(habitats, l.Type)
	}
	declared := r.deps.Catalog.Activities()
	everyone := make([]string, 0, len(declared))
	for _, a := range declared {
		everyone = append(everyone, a.Code)
	}
	sort.Strings(everyone)

	names := make([]string, 0, len(req.Sectors))
	for name := range req.Sectors {
		if name != table.AllSector {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, scn := range rc.Scenarios {
		members := map[string][]string{table.AllSector: everyone}
		order := append([]string{table.AllSector}, names...)
		for _, name := range names {
			members[name] = req.Sectors[name]
		}
		for _, name := range order {
			name := name
			err := r.stage(ctx, rc, run.StageAggregate, scn, "", func() ([]string, error) {
				res, err := r.deps.Services.Cumulative.Sector(ctx, &cumulative.SectorInput{
					Scenario:   scn,
					Sector:     name,
					Activities: members[name],
					Habitats:   habitats,
					Units:      rc.Units,
					RunID:      rc.RunID,
				})
				if err != nil {
					return nil, err
				}
				return res.Tables, nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// stage times fn, records its metrics, publishes its event and keeps the
// names of the tables it wrote.
func (r *Runner) stage(ctx context.Context, rc *RunContext, name string, scn activity.Scenario, act string, fn func() ([]string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	tables, err := fn()
	elapsed := time.Since(start)
	r.deps.Recorder.ObserveStage(name, act, elapsed, err)

	ev := run.Event{Stage: name, Scenario: scn.String(), Activity: act, Tables: tables, Duration: elapsed}
	if err != nil {
		ev.Type = run.EventStageFailed
		ev.Error = err.Error()
		r.notify(ctx, rc, ev)
		return err
	}
	rc.Tables = append(rc.Tables, tables...)
	r.deps.Recorder.TablesWritten(name, len(tables))
	ev.Type = run.EventStageCompleted
	r.notify(ctx, rc, ev)

	fields := []logging.Field{logging.Int("tables", len(tables))}
	if scn != "" {
		fields = append(fields, logging.Scenario(scn.String()))
	}
	if act != "" {
		fields = append(fields, logging.Activity(act))
	}
	logging.LogStageDuration(rc.Logger, name, start, r.opts.SlowStage, fields...)
	return nil
}

func (r *Runner) notify(ctx context.Context, rc *RunContext, ev run.Event) {
	ev.RunID = rc.RunID
	ev.At = time.Now().UTC()
	if err := r.deps.Notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		rc.Logger.Warn("event not published", logging.String("type", string(ev.Type)), logging.Err(err))
	}
}

func scenarios(in []activity.Scenario) []activity.Scenario {
	if len(in) == 0 {
		return []activity.Scenario{activity.Current, activity.Future, activity.Protected}
	}
	seen := make(map[activity.Scenario]bool, len(in))
	out := make([]activity.Scenario, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	activity.SortScenarios(out)
	return out
}
