package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/internal/infrastructure/monitoring/logging"
)

func TestMockLogger_RecordsLevels(t *testing.T) {
	l := NewMockLogger()
	l.Debug("d")
	l.Info("i", logging.Activity("cf_trawl"))
	l.Warn("gap found")
	l.Error("e")

	msgs := l.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "info", msgs[1].Level)
	v, ok := msgs[1].Field(logging.KeyActivity)
	require.True(t, ok)
	assert.Equal(t, "cf_trawl", v)
	assert.Len(t, l.ByLevel("warn"), 1)
	assert.True(t, l.Contains("gap"))
	assert.False(t, l.Contains("absent"))
}

func TestMockLogger_ChildrenShareRecord(t *testing.T) {
	l := NewMockLogger()
	child := l.Named("reduce").With(logging.Scenario("c"))
	child.Info("hello")

	msgs := l.Messages()
	require.Len(t, msgs, 1)
	v, ok := msgs[0].Field(logging.KeyScenario)
	require.True(t, ok)
	assert.Equal(t, "c", v)
	v, _ = msgs[0].Field("logger")
	assert.Equal(t, "reduce", v)
}

func TestMockLogger_Reset(t *testing.T) {
	l := NewMockLogger()
	l.Info("x")
	l.Reset()
	assert.Empty(t, l.Messages())
	assert.NoError(t, l.Sync())
}
