// Package tablecsv reads and writes tables as CSV. Table attributes are
// written as leading "#attr,<key>,<value>" records, followed by the header
// (key column first) and one record per row. An empty cell is a null.
package tablecsv

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/table"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

const attrMarker = "#attr"

// Extension is the file suffix of encoded tables.
const Extension = ".csv"

// Encode writes t to w.
func Encode(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)

	attrs := t.Attrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cw.Write([]string{attrMarker, k, attrs[k]}); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "writing table attributes").WithDetail(t.Name)
		}
	}

	cols := t.Columns()
	header := append([]string{t.KeyName}, cols...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "writing table header").WithDetail(t.Name)
	}

	rec := make([]string, len(header))
	for _, key := range t.Keys() {
		row, _ := t.Row(key)
		rec[0] = strconv.FormatInt(key, 10)
		for i, c := range cols {
			if v, ok := row[c]; ok {
				rec[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				rec[i+1] = ""
			}
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "writing table row").WithDetail(t.Name)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "flushing table").WithDetail(t.Name)
	}
	return nil
}

// Decode reads a table named name from r.
func Decode(r io.Reader, name string) (*table.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	corrupt := func(format string, args ...interface{}) error {
		return errors.New(errors.ErrCodeTableCorrupt, fmt.Sprintf(format, args...)).WithDetail(name)
	}

	attrs := make(map[string]string)
	var header []string
	for header == nil {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, corrupt("missing header")
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "reading table").WithDetail(name)
		}
		if len(rec) > 0 && rec[0] == attrMarker {
			if len(rec) != 3 {
				return nil, corrupt("malformed attribute record")
			}
			attrs[rec[1]] = rec[2]
			continue
		}
		header = rec
	}
	if len(header) == 0 || header[0] == "" {
		return nil, corrupt("missing key column")
	}

	t := table.New(name, header[0], header[1:]...)
	for k, v := range attrs {
		t.SetAttr(k, v)
	}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTableCorrupt, "reading table").WithDetail(name)
		}
		if len(rec) != len(header) {
			return nil, corrupt("row %d has %d fields, want %d", line, len(rec), len(header))
		}
		key, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, corrupt("row %d: bad key %q", line, rec[0])
		}
		t.EnsureRow(key)
		for i, cell := range rec[1:] {
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, corrupt("row %d column %s: bad value %q", line, header[i+1], cell)
			}
			t.Set(key, header[i+1], v)
		}
	}
	return t, nil
}
