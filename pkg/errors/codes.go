package errors

import "strings"

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "COMMON_000"

	ErrCodeInternal      ErrorCode = "COMMON_001"
	ErrCodeBadRequest    ErrorCode = "COMMON_002"
	ErrCodeNotFound      ErrorCode = "COMMON_005"
	ErrCodeConflict      ErrorCode = "COMMON_006"
	ErrCodeTimeout       ErrorCode = "COMMON_009"
	ErrCodeValidation    ErrorCode = "COMMON_010"
	ErrCodeSerialization ErrorCode = "COMMON_011"
	ErrCodeDatabaseError ErrorCode = "COMMON_012"
	ErrCodeCacheError    ErrorCode = "COMMON_013"
	ErrCodeExternal      ErrorCode = "COMMON_014"
)

// Configuration Error Codes
const (
	ErrCodeNoStressors         ErrorCode = "CFG_001"
	ErrCodeNoHabitatCodes      ErrorCode = "CFG_002"
	ErrCodeUnsupportedGeometry ErrorCode = "CFG_003"
	ErrCodeInvalidMethod       ErrorCode = "CFG_004"
	ErrCodeUnknownActivity     ErrorCode = "CFG_005"
	ErrCodeInputUnreadable     ErrorCode = "CFG_006"
)

// Intensity Error Codes
const (
	ErrCodeNullIntensity     ErrorCode = "INT_001"
	ErrCodeNegativeIntensity ErrorCode = "INT_002"
)

// Lookup Error Codes
const (
	ErrCodeMissingStressorWeight ErrorCode = "LKP_001"
	ErrCodeMissingGearScore      ErrorCode = "LKP_002"
	ErrCodeMissingVulnerability  ErrorCode = "LKP_003"
)

// Geoprocessing Error Codes
const (
	ErrCodeOverlayFailed  ErrorCode = "GEO_001"
	ErrCodeRasterMismatch ErrorCode = "GEO_002"
	ErrCodeDecayFailed    ErrorCode = "GEO_003"
)

// Store Error Codes
const (
	ErrCodeTableNotFound   ErrorCode = "STO_001"
	ErrCodeTableWrite      ErrorCode = "STO_002"
	ErrCodeTableCorrupt    ErrorCode = "STO_003"
	ErrCodeBackendDisabled ErrorCode = "STO_004"
)

// Run Error Codes
const (
	ErrCodeRunLocked  ErrorCode = "RUN_001"
	ErrCodeRunAborted ErrorCode = "RUN_002"
)

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:      "internal error",
	ErrCodeBadRequest:    "bad request",
	ErrCodeNotFound:      "resource not found",
	ErrCodeConflict:      "resource conflict",
	ErrCodeTimeout:       "operation timed out",
	ErrCodeValidation:    "validation failed",
	ErrCodeSerialization: "serialization failed",
	ErrCodeDatabaseError: "database error",
	ErrCodeCacheError:    "cache error",
	ErrCodeExternal:      "external service error",

	ErrCodeNoStressors:         "activity has no stressors",
	ErrCodeNoHabitatCodes:      "habitat layer has no habitat codes",
	ErrCodeUnsupportedGeometry: "unsupported geometry type",
	ErrCodeInvalidMethod:       "invalid intensity method",
	ErrCodeUnknownActivity:     "unknown activity",
	ErrCodeInputUnreadable:     "input layer could not be read",

	ErrCodeNullIntensity:     "null intensity value",
	ErrCodeNegativeIntensity: "negative intensity value",

	ErrCodeMissingStressorWeight: "missing stressor weight",
	ErrCodeMissingGearScore:      "missing fishing gear score",
	ErrCodeMissingVulnerability:  "missing vulnerability score",

	ErrCodeOverlayFailed:  "overlay failed",
	ErrCodeRasterMismatch: "rasters cannot be combined",
	ErrCodeDecayFailed:    "decay surface failed",

	ErrCodeTableNotFound:   "table not found",
	ErrCodeTableWrite:      "table write failed",
	ErrCodeTableCorrupt:    "table is corrupt",
	ErrCodeBackendDisabled: "store backend not configured",

	ErrCodeRunLocked:  "another run holds the output lock",
	ErrCodeRunAborted: "run aborted",
}

// ErrorCodeExitStatus maps ErrorCodes to process exit statuses used by the CLI.
// Input and configuration problems exit with 2, infrastructure problems with 3.
var ErrorCodeExitStatus = map[ErrorCode]int{
	ErrCodeBadRequest:    2,
	ErrCodeValidation:    2,
	ErrCodeNotFound:      2,
	ErrCodeDatabaseError: 3,
	ErrCodeCacheError:    3,
	ErrCodeExternal:      3,
	ErrCodeTimeout:       3,
	ErrCodeTableWrite:    3,
	ErrCodeRunLocked:     4,
}

// ExitCodeForCode returns the process exit status for an ErrorCode.
func ExitCodeForCode(code ErrorCode) int {
	if status, ok := ErrorCodeExitStatus[code]; ok {
		return status
	}
	switch ModuleForCode(code) {
	case "CFG", "INT", "LKP":
		return 2
	case "STO":
		return 3
	}
	return 1
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsFatal reports whether a failure with this code must abort a pipeline run.
// Only missing vulnerability scores are recoverable; they are collected as gaps.
func IsFatal(code ErrorCode) bool {
	return code != ErrCodeMissingVulnerability && code != CodeOK
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
