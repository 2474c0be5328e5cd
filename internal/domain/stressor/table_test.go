package stressor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func sampleRows() []Row {
	return []Row{
		{Activity: "cf_trawl", SubActivity: "", Stressor: "bycatch", Weight: 0.5},
		{Activity: "cf_trawl", SubActivity: "", Stressor: "seabed", Weight: 1},
		{Activity: "roads", SubActivity: "paved", Stressor: "runoff", Weight: 1, ImpactDistance: 2000},
		{Activity: "roads", SubActivity: "gravel", Stressor: "runoff", Weight: 0.4, ImpactDistance: 5000},
		{Activity: "roads", SubActivity: "gravel", Stressor: "sediment", Weight: 0.8, ImpactDistance: 1000},
	}
}

func TestNewTable_Lookups(t *testing.T) {
	tbl, err := NewTable(sampleRows())
	require.NoError(t, err)

	assert.Equal(t, 5, tbl.Len())
	assert.Equal(t, []string{"cf_trawl", "roads"}, tbl.Activities())
	assert.Equal(t, []string{"bycatch", "seabed"}, tbl.Stressors("cf_trawl"))
	assert.Equal(t, []string{"runoff", "sediment"}, tbl.Stressors("roads"))
	assert.Empty(t, tbl.Stressors("unknown"))

	assert.True(t, tbl.HasPair("cf_trawl", "None"))
	assert.True(t, tbl.HasPair("cf_trawl", ""))
	assert.False(t, tbl.HasPair("roads", "None"))
	assert.Len(t, tbl.PairRows("roads", "gravel"), 2)

	row, ok := tbl.Lookup("cf_trawl", "", "bycatch")
	require.True(t, ok)
	assert.Equal(t, 0.5, row.Weight)
	assert.Equal(t, "None", row.SubActivity)

	_, ok = tbl.Lookup("roads", "paved", "sediment")
	assert.False(t, ok)

	assert.Equal(t, 5000.0, tbl.MaxDistance("roads", "runoff"))
	assert.Equal(t, 0.0, tbl.MaxDistance("roads", "noise"))
}

func TestNewTable_RejectsDuplicates(t *testing.T) {
	rows := append(sampleRows(), Row{Activity: "cf_trawl", SubActivity: "None", Stressor: "bycatch", Weight: 1})
	_, err := NewTable(rows)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestNewTable_RejectsInvalidRows(t *testing.T) {
	_, err := NewTable([]Row{{Activity: "a", Stressor: ""}})
	assert.Error(t, err)

	_, err = NewTable([]Row{{Activity: "a", Stressor: "s", Weight: -1}})
	assert.Error(t, err)
}

func TestRows_ReturnsCopy(t *testing.T) {
	tbl, err := NewTable(sampleRows())
	require.NoError(t, err)
	rows := tbl.Rows()
	rows[0].Weight = 99
	r, _ := tbl.Lookup("cf_trawl", "None", "bycatch")
	assert.Equal(t, 0.5, r.Weight)
}
