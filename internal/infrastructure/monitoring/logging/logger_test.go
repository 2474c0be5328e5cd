package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestNewLogger_ConsoleDefault(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_JSONFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", Format: "json", OutputPaths: []string{"stdout"}})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_UnknownLevel(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "chatty"})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	l, logs := newObservedLogger(zapcore.DebugLevel)

	l.Debug("d", Activity("cf_trawl"))
	l.Info("i", Scenario("c"), Rows(3))
	l.Warn("w", Stressor("bycatch"), Float64("value", 1.5))
	l.Error("e", Habitat("benthic"))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "cf_trawl", entries[0].ContextMap()[KeyActivity])
	assert.Equal(t, "c", entries[1].ContextMap()[KeyScenario])
	assert.Equal(t, int64(3), entries[1].ContextMap()[KeyRows])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "benthic", entries[3].ContextMap()[KeyHabitat])
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	child := l.Named("reduce").With(RunID("run-1"))
	child.Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "reduce", entries[0].LoggerName)
	assert.Equal(t, "run-1", entries[0].ContextMap()[KeyRunID])
}

func TestZapLogger_ErrAddsAppErrorCode(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	l.Error("failed", Err(apperrors.New(apperrors.ErrCodeMissingGearScore, "no gear")))
	l.Error("failed", Err(errors.New("plain")))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "LKP_002", entries[0].ContextMap()["error_code"])
	_, hasCode := entries[1].ContextMap()["error_code"]
	assert.False(t, hasCode)
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
	})
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("n"))
	assert.NoError(t, l.Sync())
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l, _ := newObservedLogger(zapcore.InfoLevel)
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default())
}

func TestLogStageDuration(t *testing.T) {
	l, logs := newObservedLogger(zapcore.InfoLevel)

	LogStageDuration(l, "compose", time.Now(), time.Hour)
	LogStageDuration(l, "reduce", time.Now().Add(-2*time.Second), time.Second)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "compose", entries[0].ContextMap()[KeyStage])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
