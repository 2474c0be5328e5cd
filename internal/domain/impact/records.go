// Package impact holds the records that flow between pipeline stages and
// the deduplicated gap report of recoverable lookup misses.
package impact

import (
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
)

// IntensityRecord is the normalized intensity (RI) of one feature.
type IntensityRecord struct {
	FeatureID   int64
	Activity    string
	Scenario    activity.Scenario
	SubActivity string
	Raw         float64
	RI          float64
	// ShapeProxy is set when Raw was derived from the feature geometry.
	ShapeProxy bool
}

// WeightedRecord carries the stressor-weighted intensity (RI_s) of one
// feature for every stressor of its (activity, sub_activity) pair, and the
// impact distance of each stressor.
type WeightedRecord struct {
	IntensityRecord
	Stressors map[string]float64
	Distances map[string]float64
}

// StressorCodes returns the record's stressors, sorted.
func (w WeightedRecord) StressorCodes() []string {
	out := make([]string, 0, len(w.Stressors))
	for s := range w.Stressors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LandIndex is the land-based stressor index of every watershed for one
// (stressor, impact distance) group.
type LandIndex struct {
	Stressor string
	Distance float64
	Values   map[int64]float64
}

// StressorIntensity maps a planning unit to its summed per-stressor
// intensity.
type StressorIntensity map[int64]map[string]float64

// Add accumulates v for (unit, stressor).
func (s StressorIntensity) Add(unit int64, stressor string, v float64) {
	row, ok := s[unit]
	if !ok {
		row = make(map[string]float64)
		s[unit] = row
	}
	row[stressor] += v
}

// Units returns the unit ids, sorted.
func (s StressorIntensity) Units() []int64 {
	out := make([]int64, 0, len(s))
	for u := range s {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stressors returns every stressor present, sorted.
func (s StressorIntensity) Stressors() []string {
	set := make(map[string]struct{})
	for _, row := range s {
		for st := range row {
			set[st] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for st := range set {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}

// ToTable renders the intensities as a unit-keyed table with one column per
// stressor.
func (s StressorIntensity) ToTable(name string) *table.Table {
	t := table.New(name, table.KeyUnit, s.Stressors()...)
	for unit, row := range s {
		for st, v := range row {
			t.Set(unit, st, v)
		}
	}
	return t
}

// FromTable reads a unit-keyed stressor table back.
func FromTable(t *table.Table) StressorIntensity {
	out := make(StressorIntensity, t.Len())
	for _, key := range t.Keys() {
		row, _ := t.Row(key)
		for st, v := range row {
			out.Add(key, st, v)
		}
	}
	return out
}

// Fragment is the impact of one stressor of one activity on one habitat
// code fragment inside one planning unit.
type Fragment struct {
	Activity    string
	Stressor    string
	Habitat     string
	HabitatCode string
	UnitID      int64
	Intensity   float64
	Vscore      float64
	GearScore   float64
	Impact      float64
	AreaWeight  float64
	WtdImpact   float64
}
