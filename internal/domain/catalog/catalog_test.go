package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/domain/activity"
	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func TestMemory(t *testing.T) {
	trawl := activity.Activity{Code: "cf_trawl", Kind: activity.Marine}
	m := &Memory{
		Acts: []activity.Activity{trawl},
		Ref:  &Reference{},
		Features: map[string]map[activity.Scenario]*activity.FeatureCollection{
			"cf_trawl": {activity.Current: {Activity: "cf_trawl", Scenario: activity.Current}},
		},
	}
	ctx := context.Background()

	ref, err := m.LoadReference(ctx)
	require.NoError(t, err)
	assert.NotNil(t, ref)

	fc, err := m.LoadFeatures(ctx, trawl)
	require.NoError(t, err)
	assert.Contains(t, fc, activity.Current)

	_, err = m.LoadFeatures(ctx, activity.Activity{Code: "aquaculture"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownActivity))

	got, err := Lookup(m, "cf_trawl")
	require.NoError(t, err)
	assert.Equal(t, trawl, got)

	_, err = Lookup(m, "nope")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownActivity))
}

func TestMemory_NoReference(t *testing.T) {
	_, err := (&Memory{}).LoadReference(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputUnreadable))
}
