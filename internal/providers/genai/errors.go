package genai

import "fmt"

// Category buckets upstream failures by how the dispatcher should react.
type Category string

const (
	// CategoryQuota: rate limit or quota exhausted; cool the credential
	// down and rotate.
	CategoryQuota Category = "quota"
	// CategoryAuth: the credential itself is invalid or revoked; fatal for
	// that credential only.
	CategoryAuth Category = "auth"
	// CategoryContentPolicy: the request was refused on policy grounds.
	CategoryContentPolicy Category = "content_policy"
	// CategoryTransient: network, timeout or 5xx; safe to retry.
	CategoryTransient Category = "transient"
	// CategoryInvalid: the request is malformed; retrying verbatim cannot
	// succeed.
	CategoryInvalid Category = "invalid"
)

// APIError is a Gemini API failure with enough structure for the retry loop.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Category   Category
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gemini status %d (%s): %s", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("gemini (%s): %s", e.Category, e.Message)
}

func categorize(statusCode int, status string) Category {
	switch status {
	case "RESOURCE_EXHAUSTED":
		return CategoryQuota
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return CategoryAuth
	case "UNAVAILABLE", "DEADLINE_EXCEEDED", "INTERNAL", "ABORTED":
		return CategoryTransient
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return CategoryInvalid
	}
	switch {
	case statusCode == 429:
		return CategoryQuota
	case statusCode == 401 || statusCode == 403:
		return CategoryAuth
	case statusCode >= 500:
		return CategoryTransient
	case statusCode >= 400:
		return CategoryInvalid
	}
	return CategoryTransient
}
