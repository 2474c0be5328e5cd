package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "COMMON_001", ErrCodeInternal.String())
	assert.Equal(t, "LKP_002", ErrCodeMissingGearScore.String())
}

func TestExitCodeForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 1},
		{ErrCodeValidation, 2},
		{ErrCodeNoStressors, 2},
		{ErrCodeNullIntensity, 2},
		{ErrCodeMissingGearScore, 2},
		{ErrCodeDatabaseError, 3},
		{ErrCodeTableCorrupt, 3},
		{ErrCodeRunLocked, 4},
		{ErrorCode("UNKNOWN"), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExitCodeForCode(tt.code), tt.code)
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "missing fishing gear score", DefaultMessageForCode(ErrCodeMissingGearScore))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("UNKNOWN")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrCodeMissingGearScore))
	assert.True(t, IsFatal(ErrCodeNoStressors))
	assert.False(t, IsFatal(ErrCodeMissingVulnerability))
	assert.False(t, IsFatal(CodeOK))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "CFG", ModuleForCode(ErrCodeNoStressors))
	assert.Equal(t, "INT", ModuleForCode(ErrCodeNullIntensity))
	assert.Equal(t, "LKP", ModuleForCode(ErrCodeMissingVulnerability))
	assert.Equal(t, "GEO", ModuleForCode(ErrCodeRasterMismatch))
	assert.Equal(t, "STO", ModuleForCode(ErrCodeTableNotFound))
	assert.Equal(t, "RUN", ModuleForCode(ErrCodeRunLocked))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
	assert.Equal(t, "UNKNOWN", ModuleForCode(CodeOK))
}

func TestErrorCodeFormat_Convention(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	for code := range ErrorCodeMessage {
		assert.Regexp(t, re, string(code))
	}
}

func TestErrorCodeExitStatus_HasMessages(t *testing.T) {
	for code := range ErrorCodeExitStatus {
		_, ok := ErrorCodeMessage[code]
		assert.True(t, ok, "missing message for %s", code)
	}
}
