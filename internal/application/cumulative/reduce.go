package cumulative

import (
	"gonum.org/v1/gonum/floats"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
)

// NullPolicy decides what happens to a key that received no contribution.
type NullPolicy int

const (
	// PruneEmpty deletes rows without any contribution.
	PruneEmpty NullPolicy = iota
	// KeepEmpty keeps them with a zero total.
	KeepEmpty
)

// AggregateFunc combines the non-null contributions of one row.
type AggregateFunc func(values []float64) float64

// Sum adds the contributions.
func Sum(values []float64) float64 { return floats.Sum(values) }

// Source is one contributing column: a value per key, absent meaning null.
type Source struct {
	Column string
	Values map[int64]float64
}

// Reduction describes one aggregation level.
type Reduction struct {
	Name    string
	KeyName string
	// Keys is the full key domain, e.g. every planning unit of the grid.
	Keys    []int64
	Sources []Source
	Total   string
	Agg     AggregateFunc
	Policy  NullPolicy
}

// ReduceAndPrune builds a table with one row per key, one column per source
// and a total column aggregating the non-null contributions of each row.
// Keys outside r.Keys are ignored. Rows without any contribution are pruned
// unless the policy keeps them. A contribution of zero is still a
// contribution.
func ReduceAndPrune(r Reduction) *table.Table {
	agg := r.Agg
	if agg == nil {
		agg = Sum
	}
	cols := make([]string, 0, len(r.Sources)+1)
	for _, s := range r.Sources {
		cols = append(cols, s.Column)
	}
	cols = append(cols, r.Total)
	t := table.New(r.Name, r.KeyName, cols...)
	t.SetAttr(table.AttrTotal, r.Total)

	for _, key := range r.Keys {
		t.EnsureRow(key)
	}
	buf := make([]float64, 0, len(r.Sources))
	for _, key := range r.Keys {
		buf = buf[:0]
		for _, s := range r.Sources {
			if v, ok := s.Values[key]; ok {
				t.Set(key, s.Column, v)
				buf = append(buf, v)
			}
		}
		switch {
		case len(buf) > 0:
			t.Set(key, r.Total, agg(buf))
		case r.Policy == KeepEmpty:
			t.Set(key, r.Total, 0)
		default:
			t.DeleteRow(key)
		}
	}
	return t
}
