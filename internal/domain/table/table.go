// Package table defines the keyed numeric tables exchanged between pipeline
// stages and the Store contract that persists them.
//
// A table has a key column (unit_id, feature_id or watershed_id), an ordered
// list of float columns and a set of string attributes that tag the whole
// table (scenario, activity, stressor, habitat). A row without a value for a
// column holds null in that column.
package table

import (
	"sort"
)

// Key column names.
const (
	KeyUnit      = "unit_id"
	KeyFeature   = "feature_id"
	KeyWatershed = "watershed_id"
)

// Table is a keyed set of rows of nullable float columns. A Table is not safe
// for concurrent mutation; stages build a table and hand it to the Store.
type Table struct {
	Name    string
	KeyName string

	columns []string
	colSet  map[string]struct{}
	attrs   map[string]string
	rows    map[int64]map[string]float64
}

// New creates an empty table with the given columns.
func New(name, keyName string, columns ...string) *Table {
	t := &Table{
		Name:    name,
		KeyName: keyName,
		colSet:  make(map[string]struct{}),
		attrs:   make(map[string]string),
		rows:    make(map[int64]map[string]float64),
	}
	for _, c := range columns {
		t.AddColumn(c)
	}
	return t
}

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string { return append([]string(nil), t.columns...) }

// HasColumn reports whether the column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colSet[name]
	return ok
}

// AddColumn appends a column; it returns false if it already existed.
func (t *Table) AddColumn(name string) bool {
	if t.HasColumn(name) {
		return false
	}
	t.colSet[name] = struct{}{}
	t.columns = append(t.columns, name)
	return true
}

// SetAttr tags the table.
func (t *Table) SetAttr(key, value string) { t.attrs[key] = value }

// Attr returns a tag value, or "" when absent.
func (t *Table) Attr(key string) string { return t.attrs[key] }

// Attrs returns a copy of all tags.
func (t *Table) Attrs() map[string]string {
	out := make(map[string]string, len(t.attrs))
	for k, v := range t.attrs {
		out[k] = v
	}
	return out
}

// EnsureRow creates an all-null row for key if absent.
func (t *Table) EnsureRow(key int64) {
	if _, ok := t.rows[key]; !ok {
		t.rows[key] = make(map[string]float64)
	}
}

// Set stores a value, creating the row and the column when needed.
func (t *Table) Set(key int64, column string, v float64) {
	t.AddColumn(column)
	t.EnsureRow(key)
	t.rows[key][column] = v
}

// Add accumulates v into a cell, treating null as zero.
func (t *Table) Add(key int64, column string, v float64) {
	t.AddColumn(column)
	t.EnsureRow(key)
	t.rows[key][column] += v
}

// Get returns a cell value; ok is false for a missing row or a null cell.
func (t *Table) Get(key int64, column string) (float64, bool) {
	row, ok := t.rows[key]
	if !ok {
		return 0, false
	}
	v, ok := row[column]
	return v, ok
}

// HasRow reports whether the key exists.
func (t *Table) HasRow(key int64) bool {
	_, ok := t.rows[key]
	return ok
}

// Row returns a copy of the non-null cells of a row.
func (t *Table) Row(key int64) (map[string]float64, bool) {
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	out := make(map[string]float64, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true
}

// DeleteRow removes a row.
func (t *Table) DeleteRow(key int64) { delete(t.rows, key) }

// Keys returns the row keys in ascending order.
func (t *Table) Keys() []int64 {
	out := make([]int64, 0, len(t.rows))
	for k := range t.rows {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Column returns the non-null values of a column keyed by row key.
func (t *Table) Column(name string) map[int64]float64 {
	out := make(map[int64]float64)
	for k, row := range t.rows {
		if v, ok := row[name]; ok {
			out[k] = v
		}
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := New(t.Name, t.KeyName, t.columns...)
	for k, v := range t.attrs {
		c.attrs[k] = v
	}
	for key, row := range t.rows {
		r := make(map[string]float64, len(row))
		for col, v := range row {
			r[col] = v
		}
		c.rows[key] = r
	}
	return c
}
