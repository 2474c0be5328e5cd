package table

import (
	"strconv"
	"strings"
)

// Table kinds, one per persisted stage output.
const (
	KindIntensity  = "RI"
	KindWeighted   = "WRI"
	KindLandIndex  = "LI"
	KindReduced    = "SRI"
	KindWtdImpact  = "WtdImpact"
	KindCumulative = "CumulImpact"
	KindSector     = "Sector"
)

// Attribute keys.
const (
	AttrKind        = "kind"
	AttrScenario    = "scenario"
	AttrActivity    = "activity_code"
	AttrStressor    = "stressor_code"
	AttrHabitat     = "habitat_type"
	AttrHabitatCode = "habitat_code"
	AttrSector      = "sector"
	AttrTotal       = "total_column"
	AttrRunID       = "run_id"
)

// AllSector is the sector that contains every activity.
const AllSector = "ALL"

// Name builds a table name as <kind>_<scenario>_<parts...>.
func Name(kind, scenario string, parts ...string) string {
	all := append([]string{kind, scenario}, parts...)
	return strings.Join(all, "_")
}

// SumImpactColumn names the per-habitat-code total of an activity.
func SumImpactColumn(activity string) string { return "Sum_Impact_" + activity }

// CumulImpactColumn names a cumulative total (per activity, habitat or ALL).
func CumulImpactColumn(subject string) string { return "Cumul_Impact_" + subject }

// DistanceColumn names a land index column of one stressor/impact distance
// group, e.g. "runoff@2000".
func DistanceColumn(stressor string, d float64) string {
	return stressor + "@" + strconv.FormatFloat(d, 'f', -1, 64)
}
