package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/habitat"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/stressor"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Column names of the lookup tables. Headers are matched case-insensitively.
const (
	colActivity       = "activity_code"
	colSubActivity    = "sub_activity"
	colStressor       = "stressor_code"
	colWeight         = "stressor_weight"
	colImpactDistance = "impact_distance"
	colHabitatCode    = "habitat_code"
	colVscore         = "vscore"
	colGearScore      = "gear_score"
)

// csvRecords reads a headed CSV file into one map per row keyed by the
// lower-cased header. required lists headers that must be present.
func csvRecords(ctx context.Context, path string, required ...string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputUnreadable, "opening table").WithDetail(path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputUnreadable, "reading table header").WithDetail(path)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")))
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, req := range required {
		if !present[req] {
			return nil, errors.New(errors.ErrCodeInputUnreadable, fmt.Sprintf("%s: missing column %q", path, req))
		}
	}

	var out []map[string]string
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputUnreadable, "reading table").WithDetailf("%s line %d", path, line)
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func parseNumber(row map[string]string, col, path string, line int) (float64, error) {
	v, err := strconv.ParseFloat(row[col], 64)
	if err != nil {
		return 0, errors.New(errors.ErrCodeInputUnreadable, fmt.Sprintf("%s line %d: %s %q is not a number", path, line, col, row[col]))
	}
	return v, nil
}

// LoadStressorTable reads the stressor table CSV.
func LoadStressorTable(ctx context.Context, path string) (*stressor.Table, error) {
	recs, err := csvRecords(ctx, path, colActivity, colStressor, colWeight)
	if err != nil {
		return nil, err
	}
	rows := make([]stressor.Row, 0, len(recs))
	for i, rec := range recs {
		w, err := parseNumber(rec, colWeight, path, i+2)
		if err != nil {
			return nil, err
		}
		var d float64
		if rec[colImpactDistance] != "" {
			if d, err = parseNumber(rec, colImpactDistance, path, i+2); err != nil {
				return nil, err
			}
		}
		rows = append(rows, stressor.Row{
			Activity:       rec[colActivity],
			SubActivity:    activity.NormalizeSubActivity(rec[colSubActivity]),
			Stressor:       rec[colStressor],
			Weight:         w,
			ImpactDistance: d,
		})
	}
	return stressor.NewTable(rows)
}

// LoadVulnerabilityTable reads the vulnerability score CSV.
func LoadVulnerabilityTable(ctx context.Context, path string) (*habitat.VulnerabilityTable, error) {
	recs, err := csvRecords(ctx, path, colActivity, colStressor, colHabitatCode, colVscore)
	if err != nil {
		return nil, err
	}
	scores := make([]habitat.VulnerabilityScore, 0, len(recs))
	for i, rec := range recs {
		v, err := parseNumber(rec, colVscore, path, i+2)
		if err != nil {
			return nil, err
		}
		scores = append(scores, habitat.VulnerabilityScore{
			Activity: rec[colActivity],
			Stressor: rec[colStressor],
			Code:     rec[colHabitatCode],
			Score:    v,
		})
	}
	return habitat.NewVulnerabilityTable(scores)
}

// LoadGearSeverityTable reads the fishing gear severity CSV.
func LoadGearSeverityTable(ctx context.Context, path string) (*habitat.GearSeverityTable, error) {
	recs, err := csvRecords(ctx, path, colActivity, colStressor, colGearScore)
	if err != nil {
		return nil, err
	}
	scores := make([]habitat.GearScore, 0, len(recs))
	for i, rec := range recs {
		v, err := parseNumber(rec, colGearScore, path, i+2)
		if err != nil {
			return nil, err
		}
		scores = append(scores, habitat.GearScore{
			Activity: rec[colActivity],
			Stressor: rec[colStressor],
			Score:    v,
		})
	}
	return habitat.NewGearSeverityTable(scores)
}
