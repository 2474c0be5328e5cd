package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/config"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/testutil"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

type gridRecord struct {
	geom.Polygon
	UnitID float64
	Area   float64
}

type habitatRecord struct {
	geom.Polygon
	Code string
}

type featureRecord struct {
	geom.Point
	Effort float64
	Gear   string
}

func writeShapefile[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	var archetype T
	e, err := shp.NewEncoder(path, archetype)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, e.Encode(r))
	}
	e.Close()
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func fixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	writeShapefile(t, filepath.Join(dir, "grid.shp"), []gridRecord{
		{Polygon: testutil.Square(0, 0, 1000), UnitID: 100, Area: 1e6},
		{Polygon: testutil.Square(1000, 0, 1000), UnitID: 101, Area: 1e6},
	})
	writeShapefile(t, filepath.Join(dir, "benthic.shp"), []habitatRecord{
		{Polygon: testutil.Rect(0, 0, 2000, 500), Code: "HB"},
		{Polygon: testutil.Rect(0, 500, 2000, 1000), Code: "SS"},
	})
	writeShapefile(t, filepath.Join(dir, "trawl_c.shp"), []featureRecord{
		{Point: testutil.Pt(500, 500), Effort: 2, Gear: "bottom"},
		{Point: testutil.Pt(1500, 500), Effort: 4},
	})
	writeFile(t, filepath.Join(dir, "stressors.csv"),
		"Activity_Code,Sub_Activity,Stressor_Code,Stressor_Weight,Impact_Distance\n"+
			"cf_trawl,bottom,bycatch,0.5,\n"+
			"cf_trawl,,bycatch,1,\n")
	writeFile(t, filepath.Join(dir, "vscores.csv"),
		"activity_code,stressor_code,habitat_code,vscore\ncf_trawl,bycatch,HB,0.8\n")
	writeFile(t, filepath.Join(dir, "gear.csv"),
		"activity_code,stressor_code,gear_score\ncf_trawl,bycatch,3\n")

	cfg := &config.Config{
		Inputs: config.InputsConfig{
			Grid:               config.GridConfig{Path: filepath.Join(dir, "grid.shp"), IDField: "UnitID", AreaField: "Area"},
			StressorTable:      filepath.Join(dir, "stressors.csv"),
			VulnerabilityTable: filepath.Join(dir, "vscores.csv"),
			GearTable:          filepath.Join(dir, "gear.csv"),
			Habitats:           []config.HabitatConfig{{Type: "benthic", Path: filepath.Join(dir, "benthic.shp"), CodeField: "Code"}},
		},
		Activities: []config.ActivityConfig{{
			Code:             "cf_trawl",
			Kind:             "marine",
			IntensityField:   "Effort",
			SubActivityField: "Gear",
			Layers:           map[string]string{"c": filepath.Join(dir, "trawl_c.shp")},
		}},
	}
	cfg.Pipeline.Method = "rescale"
	return cfg
}

func TestFileCatalog_LoadReference(t *testing.T) {
	c, err := New(fixture(t), nil)
	require.NoError(t, err)

	ref, err := c.LoadReference(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{100, 101}, ref.Grid.IDs())
	u, ok := ref.Grid.Unit(101)
	require.True(t, ok)
	assert.InDelta(t, 1e6, u.Area, 1e-6)

	assert.Nil(t, ref.Watersheds)
	assert.Equal(t, 2, ref.Stressors.Len())
	row, ok := ref.Stressors.Lookup("cf_trawl", activity.NoSubActivity, "bycatch")
	require.True(t, ok)
	assert.Equal(t, 1.0, row.Weight)

	v, ok := ref.Vulnerability.Get("cf_trawl", "bycatch", "HB")
	require.True(t, ok)
	assert.Equal(t, 0.8, v)
	g, ok := ref.Gear.Get("cf_trawl", "bycatch")
	require.True(t, ok)
	assert.Equal(t, 3.0, g)

	require.Len(t, ref.Habitats, 1)
	assert.Equal(t, "benthic", ref.Habitats[0].Type)
	assert.Equal(t, []string{"HB", "SS"}, ref.Habitats[0].Codes())
}

func TestFileCatalog_LoadFeatures(t *testing.T) {
	c, err := New(fixture(t), nil)
	require.NoError(t, err)

	acts := c.Activities()
	require.Len(t, acts, 1)
	assert.Equal(t, activity.MethodRescale, acts[0].Method)

	fcs, err := c.LoadFeatures(context.Background(), acts[0])
	require.NoError(t, err)
	fc := fcs[activity.Current]
	require.Equal(t, 2, fc.Len())

	assert.Equal(t, int64(0), fc.Features[0].ID)
	assert.Equal(t, "bottom", fc.Features[0].SubActivity)
	require.NotNil(t, fc.Features[0].Intensity)
	assert.Equal(t, 2.0, *fc.Features[0].Intensity)
	assert.Equal(t, activity.NoSubActivity, fc.Features[1].SubActivity)

	_, err = c.LoadFeatures(context.Background(), activity.Activity{Code: "ghost"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownActivity))
}

func TestFileCatalog_MissingInput(t *testing.T) {
	cfg := fixture(t)
	cfg.Inputs.VulnerabilityTable = filepath.Join(t.TempDir(), "absent.csv")
	c, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = c.LoadReference(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputUnreadable))
}

func TestFileCatalog_OptionalGridFields(t *testing.T) {
	cfg := fixture(t)
	config.ApplyDefaults(cfg)
	require.Equal(t, config.DefaultMarineAreaField, cfg.Inputs.Grid.MarineAreaField)
	cfg.Activities[0].SubActivityField = "Method"

	c, err := New(cfg, nil)
	require.NoError(t, err)
	ref, err := c.LoadReference(context.Background())
	require.NoError(t, err)
	u, ok := ref.Grid.Unit(100)
	require.True(t, ok)
	assert.InDelta(t, 1e6, u.MarineArea, 1e-6)

	fcs, err := c.LoadFeatures(context.Background(), c.Activities()[0])
	require.NoError(t, err)
	assert.Equal(t, activity.NoSubActivity, fcs[activity.Current].Features[0].SubActivity)
}

func TestFileCatalog_MissingRequiredField(t *testing.T) {
	cfg := fixture(t)
	cfg.Inputs.Grid.IDField = "PU_ID"
	c, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = c.LoadReference(context.Background())
	require.True(t, errors.IsCode(err, errors.ErrCodeInputUnreadable))
	assert.Contains(t, err.Error(), "PU_ID")
}

func TestNew_RejectsBadDeclarations(t *testing.T) {
	cfg := fixture(t)
	cfg.Activities[0].Kind = "orbital"
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = fixture(t)
	cfg.Activities[0].Method = "stretch"
	_, err = New(cfg, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidMethod))
}

func TestLoadStressorTable_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.csv")
	writeFile(t, path, "activity_code,stressor_code\ncf_trawl,bycatch\n")
	_, err := LoadStressorTable(context.Background(), path)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputUnreadable))
}
