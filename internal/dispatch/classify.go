package dispatch

import (
	"context"
	"errors"

	"plangen/internal/domain"
	"plangen/internal/providers/genai"
	"plangen/internal/validate"
)

// CredAction tells the executor what to report back to the credential pool
// after a failed attempt.
type CredAction int

const (
	CredNone CredAction = iota
	CredQuota
	CredFatal
)

// Classification is the uniform verdict for any attempt error: the stable
// code to persist, whether another attempt may be made, whether the next
// attempt should tighten prompt constraints, and what to do with the
// credential that served the attempt.
type Classification struct {
	Code       domain.ErrorCode
	Retryable  bool
	Stricter   bool
	Credential CredAction
}

// Classify maps an attempt error onto the retry policy. Unknown errors are
// treated as transient network failures so no error silently becomes fatal.
func Classify(err error) Classification {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Category {
		case genai.CategoryQuota:
			return Classification{Code: domain.CodeQuotaExceeded, Retryable: true, Credential: CredQuota}
		case genai.CategoryAuth:
			// Fatal for this credential, retryable on another.
			return Classification{Code: domain.CodeInvalidCredential, Retryable: true, Credential: CredFatal}
		case genai.CategoryContentPolicy:
			return Classification{Code: domain.CodeValidationRejected, Retryable: false}
		case genai.CategoryInvalid:
			return Classification{Code: domain.CodeMalformedOutput, Retryable: false}
		default:
			return Classification{Code: domain.CodeTransientNetwork, Retryable: true}
		}
	}

	switch {
	case errors.Is(err, validate.ErrTruncated):
		return Classification{Code: domain.CodeTruncatedOutput, Retryable: true, Stricter: true}
	case errors.Is(err, validate.ErrMalformed), errors.Is(err, validate.ErrShapeMismatch):
		return Classification{Code: domain.CodeMalformedOutput, Retryable: true, Stricter: true}
	case errors.Is(err, validate.ErrRejected):
		return Classification{Code: domain.CodeValidationRejected, Retryable: true, Stricter: true}
	case errors.Is(err, context.Canceled):
		return Classification{Code: domain.CodeJobCancelled, Retryable: false}
	}

	// Deadline exceeded, DNS failures, connection resets and anything else
	// the transport surfaces.
	return Classification{Code: domain.CodeTransientNetwork, Retryable: true}
}
