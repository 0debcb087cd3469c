package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrJobConflict    = errors.New("active job exists with different parameters")
	ErrAlreadyClaimed = errors.New("job already claimed")
	ErrNoJobAvailable = errors.New("no job available")
	ErrTerminalState  = errors.New("job is in a terminal state")
	ErrNoCredentials  = errors.New("no credentials available")
	ErrCancelled      = errors.New("job cancelled")
)

// ErrorCode is the stable machine-readable failure code surfaced to callers.
type ErrorCode string

const (
	CodeQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"
	CodeTransientNetwork   ErrorCode = "TRANSIENT_NETWORK"
	CodeTruncatedOutput    ErrorCode = "TRUNCATED_OUTPUT"
	CodeMalformedOutput    ErrorCode = "MALFORMED_OUTPUT"
	CodeInvalidCredential  ErrorCode = "INVALID_CREDENTIAL"
	CodeNoCredentials      ErrorCode = "NO_CREDENTIALS_AVAILABLE"
	CodeJobTimeout         ErrorCode = "JOB_TIMEOUT"
	CodeValidationRejected ErrorCode = "VALIDATION_REJECTED"
	CodeJobCancelled       ErrorCode = "JOB_CANCELLED"
)

// CodedError pairs a stable error code with a human-readable message. The
// executor returns these so the worker can persist both fields on failure
// without parsing error strings.
type CodedError struct {
	Code    ErrorCode
	Message string
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCodedError builds a CodedError with a formatted message.
func NewCodedError(code ErrorCode, format string, args ...any) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code from err, or empty when err carries none.
func CodeOf(err error) ErrorCode {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
