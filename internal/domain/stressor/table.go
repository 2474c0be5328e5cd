// Package stressor holds the activity → stressor weighting table.
package stressor

import (
	"fmt"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Row is one line of the stressor table.
type Row struct {
	Activity       string
	SubActivity    string
	Stressor       string
	Weight         float64
	ImpactDistance float64
}

type pairKey struct{ activity, sub string }

type tripleKey struct{ activity, sub, stressor string }

type activityStressor struct{ activity, stressor string }

// Table indexes stressor rows for constant-time joins. It is immutable once
// built and safe for concurrent reads.
type Table struct {
	rows        []Row
	byPair      map[pairKey][]Row
	byTriple    map[tripleKey]Row
	stressors   map[string][]string
	maxDistance map[activityStressor]float64
}

// NewTable validates rows and builds the lookup indexes. Sub-activities are
// normalized so that an empty value joins as "None". Duplicate
// (activity, sub_activity, stressor) rows and negative weights are rejected.
func NewTable(rows []Row) (*Table, error) {
	t := &Table{
		rows:        make([]Row, 0, len(rows)),
		byPair:      make(map[pairKey][]Row),
		byTriple:    make(map[tripleKey]Row, len(rows)),
		stressors:   make(map[string][]string),
		maxDistance: make(map[activityStressor]float64),
	}
	seenStressor := make(map[activityStressor]bool)
	for i, r := range rows {
		if r.Activity == "" || r.Stressor == "" {
			return nil, errors.Validation(fmt.Sprintf("stressor table row %d: activity and stressor are required", i+1))
		}
		if r.Weight < 0 || r.ImpactDistance < 0 {
			return nil, errors.Validation(fmt.Sprintf("stressor table row %d: weight and impact distance must be non-negative", i+1))
		}
		r.SubActivity = activity.NormalizeSubActivity(r.SubActivity)
		tk := tripleKey{r.Activity, r.SubActivity, r.Stressor}
		if _, dup := t.byTriple[tk]; dup {
			return nil, errors.Validation(fmt.Sprintf("stressor table row %d: duplicate entry %s/%s/%s", i+1, r.Activity, r.SubActivity, r.Stressor))
		}
		t.rows = append(t.rows, r)
		t.byTriple[tk] = r
		pk := pairKey{r.Activity, r.SubActivity}
		t.byPair[pk] = append(t.byPair[pk], r)

		as := activityStressor{r.Activity, r.Stressor}
		if !seenStressor[as] {
			seenStressor[as] = true
			t.stressors[r.Activity] = append(t.stressors[r.Activity], r.Stressor)
		}
		if r.ImpactDistance > t.maxDistance[as] {
			t.maxDistance[as] = r.ImpactDistance
		}
	}
	for _, s := range t.stressors {
		sort.Strings(s)
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns a copy of all rows in input order.
func (t *Table) Rows() []Row { return append([]Row(nil), t.rows...) }

// Activities returns the sorted activity codes present in the table.
func (t *Table) Activities() []string {
	out := make([]string, 0, len(t.stressors))
	for a := range t.stressors {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Stressors returns the sorted stressor codes of an activity across all of
// its sub-activities.
func (t *Table) Stressors(activityCode string) []string {
	return append([]string(nil), t.stressors[activityCode]...)
}

// HasPair reports whether any row matches (activity, sub_activity).
func (t *Table) HasPair(activityCode, sub string) bool {
	_, ok := t.byPair[pairKey{activityCode, activity.NormalizeSubActivity(sub)}]
	return ok
}

// PairRows returns the rows of one (activity, sub_activity) pair.
func (t *Table) PairRows(activityCode, sub string) []Row {
	return append([]Row(nil), t.byPair[pairKey{activityCode, activity.NormalizeSubActivity(sub)}]...)
}

// Lookup returns the row of one (activity, sub_activity, stressor) triple.
func (t *Table) Lookup(activityCode, sub, stressorCode string) (Row, bool) {
	r, ok := t.byTriple[tripleKey{activityCode, activity.NormalizeSubActivity(sub), stressorCode}]
	return r, ok
}

// MaxDistance returns the largest impact distance declared for a stressor of
// an activity across its sub-activities.
func (t *Table) MaxDistance(activityCode, stressorCode string) float64 {
	return t.maxDistance[activityStressor{activityCode, stressorCode}]
}
