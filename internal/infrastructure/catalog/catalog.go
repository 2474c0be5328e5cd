// Package catalog loads reference data and activity features from
// shapefiles and CSV lookup tables.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"golang.org/x/sync/errgroup"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/config"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	domaincatalog "github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/catalog"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/habitat"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/spatial"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// FileCatalog implements catalog.Catalog over files named in the
// configuration.
type FileCatalog struct {
	inputs config.InputsConfig
	acts   []activity.Activity
	layers map[string]map[activity.Scenario]string
	logger logging.Logger
}

var _ domaincatalog.Catalog = (*FileCatalog)(nil)

// New builds a FileCatalog from cfg. Activity kinds and methods are parsed
// here so that a bad declaration fails before any file is opened.
func New(cfg *config.Config, logger logging.Logger) (*FileCatalog, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &FileCatalog{
		inputs: cfg.Inputs,
		layers: make(map[string]map[activity.Scenario]string, len(cfg.Activities)),
		logger: logger.Named("catalog"),
	}
	for _, ac := range cfg.Activities {
		kind, err := activity.ParseKind(ac.Kind)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "activity "+ac.Code)
		}
		methodName := ac.Method
		if methodName == "" {
			methodName = cfg.Pipeline.Method
		}
		method, err := activity.ParseMethod(methodName)
		if err != nil {
			return nil, err
		}
		layers := make(map[activity.Scenario]string, len(ac.Layers))
		for s, path := range ac.Layers {
			scn, err := activity.ParseScenario(s)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeValidation, "activity "+ac.Code)
			}
			layers[scn] = path
		}
		c.acts = append(c.acts, activity.Activity{
			Code:             ac.Code,
			Kind:             kind,
			IntensityField:   ac.IntensityField,
			SubActivityField: ac.SubActivityField,
			Method:           method,
		})
		c.layers[ac.Code] = layers
	}
	return c, nil
}

// Activities implements catalog.Catalog.
func (c *FileCatalog) Activities() []activity.Activity {
	return append([]activity.Activity(nil), c.acts...)
}

// LoadReference reads all reference inputs concurrently.
func (c *FileCatalog) LoadReference(ctx context.Context) (*domaincatalog.Reference, error) {
	start := time.Now()
	ref := &domaincatalog.Reference{}
	layers := make([]habitat.Layer, len(c.inputs.Habitats))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ref.Grid, err = c.loadGrid(gctx)
		return err
	})
	if c.inputs.Watersheds.Path != "" {
		g.Go(func() (err error) {
			ref.Watersheds, err = c.loadWatersheds(gctx)
			return err
		})
	}
	g.Go(func() (err error) {
		ref.Stressors, err = LoadStressorTable(gctx, c.inputs.StressorTable)
		return err
	})
	g.Go(func() (err error) {
		ref.Vulnerability, err = LoadVulnerabilityTable(gctx, c.inputs.VulnerabilityTable)
		return err
	})
	if c.inputs.GearTable != "" {
		g.Go(func() (err error) {
			ref.Gear, err = LoadGearSeverityTable(gctx, c.inputs.GearTable)
			return err
		})
	}
	for i, h := range c.inputs.Habitats {
		i, h := i, h
		g.Go(func() (err error) {
			layers[i], err = c.loadHabitat(gctx, h)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	ref.Habitats = layers

	c.logger.Info("reference data loaded",
		logging.Int("units", ref.Grid.Len()),
		logging.Int("watersheds", ref.Watersheds.Len()),
		logging.Int("stressor_rows", ref.Stressors.Len()),
		logging.Int("habitat_layers", len(layers)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return ref, nil
}

// LoadFeatures reads every scenario layer of act. Feature ids are the
// zero-based record numbers of the layer.
func (c *FileCatalog) LoadFeatures(ctx context.Context, act activity.Activity) (map[activity.Scenario]*activity.FeatureCollection, error) {
	layers, ok := c.layers[act.Code]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownActivity, fmt.Sprintf("activity %q is not declared", act.Code))
	}
	scenarios := make([]activity.Scenario, 0, len(layers))
	for s := range layers {
		scenarios = append(scenarios, s)
	}
	activity.SortScenarios(scenarios)

	out := make(map[activity.Scenario]*activity.FeatureCollection, len(layers))
	for _, scn := range scenarios {
		path := layers[scn]
		rows, err := readShapefile(ctx, path, []string{act.IntensityField}, act.SubActivityField)
		if err != nil {
			return nil, err
		}
		fc := &activity.FeatureCollection{Activity: act.Code, Scenario: scn, Features: make([]activity.Feature, len(rows))}
		for i, r := range rows {
			fc.Features[i] = activity.Feature{
				ID:          int64(i),
				SubActivity: activity.NormalizeSubActivity(r.Fields[act.SubActivityField]),
				Intensity:   optionalFloat(r.Fields, act.IntensityField),
				Geometry:    r.Geometry,
			}
		}
		c.logger.Debug("features loaded",
			logging.Activity(act.Code), logging.Scenario(string(scn)), logging.Rows(len(rows)))
		out[scn] = fc
	}
	return out, nil
}

func (c *FileCatalog) loadGrid(ctx context.Context) (*grid.Grid, error) {
	cfg := c.inputs.Grid
	rows, err := readShapefile(ctx, cfg.Path, []string{cfg.IDField}, cfg.AreaField, cfg.MarineAreaField)
	if err != nil {
		return nil, err
	}
	units := make([]grid.PlanningUnit, 0, len(rows))
	for i, r := range rows {
		id, err := requiredID(r.Fields, cfg.IDField, cfg.Path, i)
		if err != nil {
			return nil, err
		}
		poly, err := polygonal(r.Geometry, cfg.Path, i)
		if err != nil {
			return nil, err
		}
		u := grid.PlanningUnit{ID: id, Geometry: poly}
		if v := optionalFloat(r.Fields, cfg.AreaField); v != nil {
			u.Area = *v
		}
		if v := optionalFloat(r.Fields, cfg.MarineAreaField); v != nil {
			u.MarineArea = *v
		}
		units = append(units, u)
	}
	return grid.New(units)
}

func (c *FileCatalog) loadWatersheds(ctx context.Context) (*grid.Watersheds, error) {
	cfg := c.inputs.Watersheds
	rows, err := readShapefile(ctx, cfg.Path, []string{cfg.IDField}, cfg.AreaField)
	if err != nil {
		return nil, err
	}
	outlets, err := c.loadOutlets(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]grid.Watershed, 0, len(rows))
	for i, r := range rows {
		id, err := requiredID(r.Fields, cfg.IDField, cfg.Path, i)
		if err != nil {
			return nil, err
		}
		poly, err := polygonal(r.Geometry, cfg.Path, i)
		if err != nil {
			return nil, err
		}
		w := grid.Watershed{ID: id, Geometry: poly}
		if v := optionalFloat(r.Fields, cfg.AreaField); v != nil {
			w.Area = *v
		}
		if o, ok := outlets[id]; ok {
			o := o
			w.Outlet = &o
		}
		items = append(items, w)
	}
	return grid.NewWatersheds(items)
}

func (c *FileCatalog) loadOutlets(ctx context.Context) (map[int64]geom.Point, error) {
	cfg := c.inputs.Watersheds
	out := make(map[int64]geom.Point)
	if cfg.OutletsPath == "" {
		return out, nil
	}
	rows, err := readShapefile(ctx, cfg.OutletsPath, []string{cfg.OutletIDField})
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		id, err := requiredID(r.Fields, cfg.OutletIDField, cfg.OutletsPath, i)
		if err != nil {
			return nil, err
		}
		pts := spatial.Points(r.Geometry)
		if len(pts) == 0 {
			return nil, errors.New(errors.ErrCodeUnsupportedGeometry,
				fmt.Sprintf("%s row %d: outlets must be points, got %T", cfg.OutletsPath, i, r.Geometry))
		}
		out[id] = pts[0]
	}
	return out, nil
}

func (c *FileCatalog) loadHabitat(ctx context.Context, cfg config.HabitatConfig) (habitat.Layer, error) {
	rows, err := readShapefile(ctx, cfg.Path, []string{cfg.CodeField})
	if err != nil {
		return habitat.Layer{}, err
	}
	layer := habitat.Layer{Type: cfg.Type, Features: make([]habitat.Feature, 0, len(rows))}
	for i, r := range rows {
		poly, err := polygonal(r.Geometry, cfg.Path, i)
		if err != nil {
			return habitat.Layer{}, err
		}
		layer.Features = append(layer.Features, habitat.Feature{Code: r.Fields[cfg.CodeField], Geometry: poly})
	}
	c.logger.Debug("habitat layer loaded",
		logging.Habitat(cfg.Type), logging.Rows(len(rows)), logging.Strings("codes", layer.Codes()))
	return layer, nil
}
