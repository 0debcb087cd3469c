package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"plangen/internal/domain"
	"plangen/internal/providers/genai"
	"plangen/internal/validate"
)

func TestClassifyAPIErrors(t *testing.T) {
	cases := []struct {
		name     string
		category genai.Category
		want     Classification
	}{
		{"quota", genai.CategoryQuota, Classification{Code: domain.CodeQuotaExceeded, Retryable: true, Credential: CredQuota}},
		{"auth", genai.CategoryAuth, Classification{Code: domain.CodeInvalidCredential, Retryable: true, Credential: CredFatal}},
		{"content policy", genai.CategoryContentPolicy, Classification{Code: domain.CodeValidationRejected, Retryable: false}},
		{"invalid request", genai.CategoryInvalid, Classification{Code: domain.CodeMalformedOutput, Retryable: false}},
		{"transient", genai.CategoryTransient, Classification{Code: domain.CodeTransientNetwork, Retryable: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := fmt.Errorf("attempt: %w", &genai.APIError{StatusCode: 500, Category: tc.category})
			got := Classify(err)
			if got != tc.want {
				t.Fatalf("Classify = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestClassifyValidationErrors(t *testing.T) {
	cases := []struct {
		err  error
		code domain.ErrorCode
	}{
		{validate.ErrTruncated, domain.CodeTruncatedOutput},
		{validate.ErrMalformed, domain.CodeMalformedOutput},
		{validate.ErrShapeMismatch, domain.CodeMalformedOutput},
		{validate.ErrRejected, domain.CodeValidationRejected},
	}
	for _, tc := range cases {
		got := Classify(fmt.Errorf("check: %w", tc.err))
		if got.Code != tc.code {
			t.Fatalf("Classify(%v).Code = %s, want %s", tc.err, got.Code, tc.code)
		}
		if !got.Retryable || !got.Stricter {
			t.Fatalf("validation failures must retry stricter, got %+v", got)
		}
		if got.Credential != CredNone {
			t.Fatalf("validation failures must not punish the credential, got %+v", got)
		}
	}
}

func TestClassifyCancellation(t *testing.T) {
	got := Classify(context.Canceled)
	if got.Code != domain.CodeJobCancelled || got.Retryable {
		t.Fatalf("Classify(context.Canceled) = %+v", got)
	}
}

func TestClassifyUnknownIsTransient(t *testing.T) {
	got := Classify(errors.New("connection reset by peer"))
	if got.Code != domain.CodeTransientNetwork || !got.Retryable {
		t.Fatalf("unknown error must be retried as transient, got %+v", got)
	}
}
