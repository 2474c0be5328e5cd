// Package activity defines human activities, their scenarios and the
// features that carry their intensity.
package activity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/geom"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Scenario identifies one of the compared states of the ecosystem.
type Scenario string

const (
	Current   Scenario = "c"
	Future    Scenario = "f"
	Protected Scenario = "p"
)

// Label returns the long name of the scenario.
func (s Scenario) Label() string {
	switch s {
	case Current:
		return "current"
	case Future:
		return "future"
	case Protected:
		return "protected"
	}
	return string(s)
}

func (s Scenario) String() string { return string(s) }

// ParseScenario accepts either the one-letter code or the long name.
func ParseScenario(s string) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "current":
		return Current, nil
	case "f", "future":
		return Future, nil
	case "p", "protected":
		return Protected, nil
	}
	return "", errors.InvalidParam(fmt.Sprintf("unknown scenario %q", s))
}

// SortScenarios orders scenarios c, f, p.
func SortScenarios(s []Scenario) {
	rank := map[Scenario]int{Current: 0, Future: 1, Protected: 2}
	sort.SliceStable(s, func(i, j int) bool { return rank[s[i]] < rank[s[j]] })
}

// Kind selects how an activity's stressors reach the grid.
type Kind string

const (
	Marine  Kind = "marine"
	Coastal Kind = "coastal"
	Land    Kind = "land"
)

// ParseKind validates an activity kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Marine, Coastal, Land:
		return k, nil
	}
	return "", errors.InvalidParam(fmt.Sprintf("unknown activity kind %q", s))
}

// Decays reports whether stressors of this kind spread by distance decay
// rather than by direct overlay.
func (k Kind) Decays() bool { return k == Coastal || k == Land }

// Method is the intensity standardization applied by the normalizer.
type Method string

const (
	MethodRescale Method = "rescale"
	MethodReclass Method = "reclass"
	MethodNone    Method = "none"
)

// ParseMethod validates a standardization method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodRescale, MethodReclass, MethodNone:
		return m, nil
	}
	return "", errors.New(errors.ErrCodeInvalidMethod, fmt.Sprintf("unknown intensity method %q", s))
}

// NoSubActivity is the sub-activity of features that do not declare one.
const NoSubActivity = "None"

// NormalizeSubActivity maps an empty sub-activity to NoSubActivity.
func NormalizeSubActivity(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoSubActivity
	}
	return s
}

// Activity describes one human activity.
type Activity struct {
	Code             string
	Kind             Kind
	IntensityField   string
	SubActivityField string
	Method           Method
}

// UsesShapeProxy reports whether intensity is derived from geometry because
// the activity has no intensity attribute.
func (a Activity) UsesShapeProxy() bool { return a.IntensityField == "" }

// IsFishing reports whether the activity code starts with one of prefixes.
func (a Activity) IsFishing(prefixes []string) bool {
	return IsFishing(a.Code, prefixes)
}

// IsFishing reports whether code starts with one of prefixes.
func IsFishing(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// Feature is one activity feature. A nil Intensity means the attribute was
// absent or null.
type Feature struct {
	ID          int64
	SubActivity string
	Intensity   *float64
	Geometry    geom.Geom
}

// FeatureCollection holds the features of one activity in one scenario.
type FeatureCollection struct {
	Activity string
	Scenario Scenario
	Features []Feature
}

// Len returns the number of features.
func (c *FeatureCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Features)
}

// ByID indexes the collection's features by id.
func (c *FeatureCollection) ByID() map[int64]Feature {
	out := make(map[int64]Feature, c.Len())
	if c == nil {
		return out
	}
	for _, f := range c.Features {
		out[f.ID] = f
	}
	return out
}
