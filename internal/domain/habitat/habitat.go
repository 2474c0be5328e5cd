// Package habitat holds habitat layers and the vulnerability and fishing
// gear severity score tables joined against them.
package habitat

import (
	"fmt"
	"sort"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Feature is one habitat polygon carrying a habitat code.
type Feature struct {
	Code     string
	Geometry geom.Polygonal
}

// Layer is a named habitat type (e.g. "benthic") and its features.
type Layer struct {
	Type     string
	Features []Feature
}

// Codes returns the distinct habitat codes of the layer, sorted.
func (l Layer) Codes() []string {
	set := make(map[string]struct{})
	for _, f := range l.Features {
		if f.Code != "" {
			set[f.Code] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Validate rejects a layer without any habitat code.
func (l Layer) Validate() error {
	if len(l.Codes()) == 0 {
		return errors.New(errors.ErrCodeNoHabitatCodes, fmt.Sprintf("habitat layer %q has no habitat codes", l.Type))
	}
	return nil
}

// CoverageFragment is the area of one habitat code inside one planning unit.
type CoverageFragment struct {
	Code string
	Area float64
}

// Coverage maps a planning unit id to its habitat fragments. It is computed
// once per layer and shared read-only by every activity.
type Coverage map[int64][]CoverageFragment

// Add records area of code in unit, merging with an existing fragment of the
// same code.
func (c Coverage) Add(unit int64, code string, area float64) {
	frags := c[unit]
	for i := range frags {
		if frags[i].Code == code {
			frags[i].Area += area
			return
		}
	}
	c[unit] = append(frags, CoverageFragment{Code: code, Area: area})
}

// ─────────────────────────────────────────────────────────────────────────────
// Score tables
// ─────────────────────────────────────────────────────────────────────────────

// VulnerabilityScore is one (activity, stressor, habitat code) score.
type VulnerabilityScore struct {
	Activity string
	Stressor string
	Code     string
	Score    float64
}

type vulnerabilityKey struct{ activity, stressor, code string }

// VulnerabilityTable indexes vulnerability scores.
type VulnerabilityTable struct {
	scores map[vulnerabilityKey]float64
}

// NewVulnerabilityTable indexes scores. Later duplicates are rejected.
func NewVulnerabilityTable(scores []VulnerabilityScore) (*VulnerabilityTable, error) {
	t := &VulnerabilityTable{scores: make(map[vulnerabilityKey]float64, len(scores))}
	for i, s := range scores {
		k := vulnerabilityKey{s.Activity, s.Stressor, s.Code}
		if _, dup := t.scores[k]; dup {
			return nil, errors.Validation(fmt.Sprintf("vulnerability row %d: duplicate entry %s/%s/%s", i+1, s.Activity, s.Stressor, s.Code))
		}
		t.scores[k] = s.Score
	}
	return t, nil
}

// Get returns the score of (activity, stressor, habitat code).
func (t *VulnerabilityTable) Get(activity, stressor, code string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.scores[vulnerabilityKey{activity, stressor, code}]
	return v, ok
}

// Len returns the number of scores.
func (t *VulnerabilityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.scores)
}

// GearScore is one (activity, stressor) fishing gear severity score.
type GearScore struct {
	Activity string
	Stressor string
	Score    float64
}

type gearKey struct{ activity, stressor string }

// GearSeverityTable indexes fishing gear severity scores.
type GearSeverityTable struct {
	scores map[gearKey]float64
}

// NewGearSeverityTable indexes scores. Duplicates are rejected.
func NewGearSeverityTable(scores []GearScore) (*GearSeverityTable, error) {
	t := &GearSeverityTable{scores: make(map[gearKey]float64, len(scores))}
	for i, s := range scores {
		k := gearKey{s.Activity, s.Stressor}
		if _, dup := t.scores[k]; dup {
			return nil, errors.Validation(fmt.Sprintf("gear score row %d: duplicate entry %s/%s", i+1, s.Activity, s.Stressor))
		}
		t.scores[k] = s.Score
	}
	return t, nil
}

// Get returns the gear severity of (activity, stressor).
func (t *GearSeverityTable) Get(activity, stressor string) (float64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t.scores[gearKey{activity, stressor}]
	return v, ok
}

// Len returns the number of scores.
func (t *GearSeverityTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.scores)
}
