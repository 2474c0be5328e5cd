// Package catalog declares the read-only reference data a pipeline run
// consumes and the port through which it is loaded.
package catalog

import (
	"context"
	"fmt"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/grid"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/habitat"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/stressor"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Reference is the reference data shared by every activity of a run.
// Watersheds and Gear may be nil when no land or fishing activity is run.
type Reference struct {
	Grid          *grid.Grid
	Watersheds    *grid.Watersheds
	Stressors     *stressor.Table
	Vulnerability *habitat.VulnerabilityTable
	Gear          *habitat.GearSeverityTable
	Habitats      []habitat.Layer
}

// Catalog loads reference data and activity features.
type Catalog interface {
	// Activities returns the declared activities in declaration order.
	Activities() []activity.Activity

	// LoadReference reads the grid, watersheds, lookup tables and habitat
	// layers.
	LoadReference(ctx context.Context) (*Reference, error)

	// LoadFeatures reads every scenario layer declared for act.
	LoadFeatures(ctx context.Context, act activity.Activity) (map[activity.Scenario]*activity.FeatureCollection, error)
}

// Memory is a Catalog over data already in memory.
type Memory struct {
	Acts     []activity.Activity
	Ref      *Reference
	Features map[string]map[activity.Scenario]*activity.FeatureCollection
}

var _ Catalog = (*Memory)(nil)

// Activities implements Catalog.
func (m *Memory) Activities() []activity.Activity {
	return append([]activity.Activity(nil), m.Acts...)
}

// LoadReference implements Catalog.
func (m *Memory) LoadReference(ctx context.Context) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Ref == nil {
		return nil, errors.New(errors.ErrCodeInputUnreadable, "no reference data")
	}
	return m.Ref, nil
}

// LoadFeatures implements Catalog.
func (m *Memory) LoadFeatures(ctx context.Context, act activity.Activity) (map[activity.Scenario]*activity.FeatureCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc, ok := m.Features[act.Code]
	if !ok {
		return nil, errors.New(errors.ErrCodeUnknownActivity, fmt.Sprintf("no features for activity %q", act.Code))
	}
	return fc, nil
}

// Lookup returns the activity with the given code.
func Lookup(c Catalog, code string) (activity.Activity, error) {
	for _, a := range c.Activities() {
		if a.Code == code {
			return a, nil
		}
	}
	return activity.Activity{}, errors.New(errors.ErrCodeUnknownActivity, fmt.Sprintf("activity %q is not declared", code))
}
