// Package errors provides structured error handling for storyvec.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and extraction errors
//   - 3XX: Network errors (embedding backend, vector store)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk and content parsing errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Kind names the pipeline failure class an error code belongs to.
type Kind string

const (
	KindExtraction         Kind = "ExtractionError"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindDimensionMismatch  Kind = "BackendDimensionMismatch"
	KindBackendBadResponse Kind = "BackendBadResponse"
	KindStoreUnavailable   Kind = "VectorStoreUnavailable"
	KindStoreUpsert        Kind = "VectorStoreUpsertError"
	KindConfig             Kind = "ConfigError"
	KindInvalidInput       Kind = "InvalidInput"
	KindInternal           Kind = "InternalError"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeExtractionFailed = "ERR_201_EXTRACTION_FAILED"
	ErrCodeStateIO          = "ERR_202_STATE_IO"

	// Network errors (300-399)
	ErrCodeBackendUnavailable     = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeBackendBadResponse     = "ERR_302_BACKEND_BAD_RESPONSE"
	ErrCodeVectorStoreUnavailable = "ERR_303_VECTORSTORE_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeVectorStoreUpsert = "ERR_502_VECTORSTORE_UPSERT_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// kindFromCode maps a code onto its pipeline failure class.
func kindFromCode(code string) Kind {
	switch code {
	case ErrCodeExtractionFailed:
		return KindExtraction
	case ErrCodeBackendUnavailable:
		return KindBackendUnavailable
	case ErrCodeBackendBadResponse:
		return KindBackendBadResponse
	case ErrCodeDimensionMismatch:
		return KindDimensionMismatch
	case ErrCodeVectorStoreUnavailable:
		return KindStoreUnavailable
	case ErrCodeVectorStoreUpsert:
		return KindStoreUpsert
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid:
		return KindConfig
	case ErrCodeInvalidInput:
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigNotFound, ErrCodeConfigInvalid:
		return SeverityFatal
	case ErrCodeExtractionFailed:
		// Bad source files are skipped, the run continues.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Dimension mismatches are retried too; the batch policy retries every
// backend and store failure once before giving up.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeBackendUnavailable,
		ErrCodeBackendBadResponse,
		ErrCodeDimensionMismatch,
		ErrCodeVectorStoreUnavailable,
		ErrCodeVectorStoreUpsert:
		return true
	default:
		return false
	}
}
