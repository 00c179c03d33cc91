package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for storyvec.
// It carries a stable code, the pipeline failure kind derived from it, and
// enough context for logging, HTTP responses and CLI output.
type Error struct {
	// Code is the unique error code (e.g., "ERR_301_BACKEND_UNAVAILABLE").
	Code string

	// Kind is the pipeline failure class derived from Code.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is checks. Matching is by code, so any *Error carrying
// the same code matches regardless of message or cause.
var (
	ErrExtraction             = &Error{Code: ErrCodeExtractionFailed}
	ErrBackendUnavailable     = &Error{Code: ErrCodeBackendUnavailable}
	ErrBackendBadResponse     = &Error{Code: ErrCodeBackendBadResponse}
	ErrDimensionMismatch      = &Error{Code: ErrCodeDimensionMismatch}
	ErrVectorStoreUnavailable = &Error{Code: ErrCodeVectorStoreUnavailable}
	ErrVectorStoreUpsert      = &Error{Code: ErrCodeVectorStoreUpsert}
	ErrInvalidInput           = &Error{Code: ErrCodeInvalidInput}
	ErrConfigNotFound         = &Error{Code: ErrCodeConfigNotFound}
)

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Kind, category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Kind:      kindFromCode(code),
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ExtractionError reports a source file or unit that yielded no usable text.
func ExtractionError(path, reason string, cause error) *Error {
	return New(ErrCodeExtractionFailed, reason, cause).WithDetail("path", path)
}

// BackendUnavailable reports a connection failure or timeout talking to the
// embedding backend.
func BackendUnavailable(message string, cause error) *Error {
	return New(ErrCodeBackendUnavailable, message, cause).
		WithSuggestion("check that the embedding backend is running and reachable")
}

// BackendBadResponse reports output from the embedding backend that could not
// be used.
func BackendBadResponse(message string, cause error) *Error {
	return New(ErrCodeBackendBadResponse, message, cause)
}

// DimensionMismatch reports a vector whose length disagrees with the
// expected dimension.
func DimensionMismatch(expected, got int) *Error {
	return Newf(ErrCodeDimensionMismatch, "dimension mismatch: expected %d, got %d", expected, got).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got))
}

// VectorStoreUnavailable reports that the vector store could not be reached.
func VectorStoreUnavailable(message string, cause error) *Error {
	return New(ErrCodeVectorStoreUnavailable, message, cause).
		WithSuggestion("check qdrant.url and that the vector store is running")
}

// VectorStoreUpsert reports a rejected upsert.
func VectorStoreUpsert(message string, cause error) *Error {
	return New(ErrCodeVectorStoreUpsert, message, cause)
}

// InvalidInput reports a bad request parameter.
func InvalidInput(message string) *Error {
	return New(ErrCodeInvalidInput, message, nil)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first *Error in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// KindOf returns the pipeline failure kind of err, or KindInternal when err
// carries no code.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
