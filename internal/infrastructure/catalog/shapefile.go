package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// shapeRow is one decoded shapefile record.
type shapeRow struct {
	Geometry geom.Geom
	Fields   map[string]string
}

// readShapefile decodes every record of path, keeping the required and
// optional attribute columns. A missing required column fails; a missing
// optional column is left out of every row. Empty names are ignored.
func readShapefile(ctx context.Context, path string, required []string, optional ...string) ([]shapeRow, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputUnreadable, "opening shapefile").WithDetail(path)
	}
	defer d.Close()

	present := make(map[string]bool)
	for _, f := range d.Fields() {
		present[cleanField(f.String())] = true
	}
	var wanted []string
	for _, c := range required {
		if c == "" {
			continue
		}
		if !present[c] {
			return nil, errors.New(errors.ErrCodeInputUnreadable, "shapefile is missing a required field").
				WithDetailf("%s: %s", path, c)
		}
		wanted = append(wanted, c)
	}
	for _, c := range optional {
		if c != "" && present[c] {
			wanted = append(wanted, c)
		}
	}

	var rows []shapeRow
	for {
		if len(rows)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		g, fields, more := d.DecodeRowFields(wanted...)
		if !more {
			break
		}
		clean := make(map[string]string, len(fields))
		for k, v := range fields {
			clean[k] = cleanField(v)
		}
		rows = append(rows, shapeRow{Geometry: g, Fields: clean})
	}
	if err := d.Error(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputUnreadable, "decoding shapefile").WithDetail(path)
	}
	return rows, nil
}

// cleanField strips DBF padding.
func cleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

// optionalFloat parses a numeric attribute. Missing, blank and unparseable
// values yield nil.
func optionalFloat(fields map[string]string, column string) *float64 {
	if column == "" {
		return nil
	}
	s, ok := fields[column]
	if !ok || s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// requiredID parses an integer key attribute. Values written as decimals
// ("12.000") are accepted.
func requiredID(fields map[string]string, column, path string, row int) (int64, error) {
	s, ok := fields[column]
	if !ok || s == "" {
		return 0, errors.New(errors.ErrCodeInputUnreadable, fmt.Sprintf("%s row %d: missing id column %q", path, row, column))
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, errors.New(errors.ErrCodeInputUnreadable, fmt.Sprintf("%s row %d: id %q is not an integer", path, row, s))
	}
	return int64(f), nil
}

func polygonal(g geom.Geom, path string, row int) (geom.Polygonal, error) {
	p, ok := g.(geom.Polygonal)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedGeometry, fmt.Sprintf("%s row %d: expected a polygon, got %T", path, row, g))
	}
	return p, nil
}
