package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func TestParseScenario(t *testing.T) {
	for in, want := range map[string]Scenario{"c": Current, "Future": Future, " p ": Protected, "current": Current} {
		got, err := ParseScenario(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseScenario("x")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestScenarioLabel(t *testing.T) {
	assert.Equal(t, "protected", Protected.Label())
	assert.Equal(t, "z", Scenario("z").Label())
}

func TestSortScenarios(t *testing.T) {
	s := []Scenario{Protected, Current, Future}
	SortScenarios(s)
	assert.Equal(t, []Scenario{Current, Future, Protected}, s)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Coastal")
	require.NoError(t, err)
	assert.Equal(t, Coastal, k)
	assert.True(t, k.Decays())
	assert.False(t, Marine.Decays())

	_, err = ParseKind("air")
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("RECLASS")
	require.NoError(t, err)
	assert.Equal(t, MethodReclass, m)

	_, err = ParseMethod("log")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidMethod))
}

func TestNormalizeSubActivity(t *testing.T) {
	assert.Equal(t, "None", NormalizeSubActivity(""))
	assert.Equal(t, "None", NormalizeSubActivity("  "))
	assert.Equal(t, "bottom", NormalizeSubActivity("bottom"))
}

func TestIsFishing(t *testing.T) {
	prefixes := []string{"cf", "sportf"}
	assert.True(t, Activity{Code: "cf_trawl"}.IsFishing(prefixes))
	assert.True(t, Activity{Code: "sportf_salmon"}.IsFishing(prefixes))
	assert.False(t, Activity{Code: "aquaculture"}.IsFishing(prefixes))
	assert.False(t, IsFishing("cf_trawl", nil))
	assert.False(t, IsFishing("cf_trawl", []string{""}))
}

func TestUsesShapeProxy(t *testing.T) {
	assert.True(t, Activity{Code: "roads"}.UsesShapeProxy())
	assert.False(t, Activity{Code: "cf_trawl", IntensityField: "EFFORT"}.UsesShapeProxy())
}

func TestFeatureCollection(t *testing.T) {
	var nilColl *FeatureCollection
	assert.Equal(t, 0, nilColl.Len())
	assert.Empty(t, nilColl.ByID())

	c := &FeatureCollection{Features: []Feature{{ID: 3}, {ID: 7, SubActivity: "x"}}}
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "x", c.ByID()[7].SubActivity)
}
