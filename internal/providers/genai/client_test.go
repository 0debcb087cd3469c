package genai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newFakeClient(rt roundTripFunc) *Client {
	return NewClient(Options{
		BaseURL:    "https://example.invalid/v1beta",
		Model:      "gemini-2.5-flash",
		HTTPClient: &http.Client{Transport: rt},
	})
}

func TestGenerateOK(t *testing.T) {
	var captured *http.Request
	var sentBody geminiGenerateContentRequest
	client := newFakeClient(func(r *http.Request) (*http.Response, error) {
		captured = r
		if err := json.NewDecoder(r.Body).Decode(&sentBody); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		return jsonResponse(http.StatusOK, `{
			"candidates":[{"content":{"parts":[{"text":"{\"days\":[]}"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":100,"candidatesTokenCount":42}
		}`), nil
	})

	result, err := client.Generate(context.Background(), GenerateRequest{
		APIKey:          "secret-key",
		Prompt:          "make a plan",
		Schema:          json.RawMessage(`{"type":"object"}`),
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if result.RawOutput != `{"days":[]}` {
		t.Fatalf("RawOutput = %q", result.RawOutput)
	}
	if result.FinishReason != "STOP" {
		t.Fatalf("FinishReason = %q", result.FinishReason)
	}
	if result.Usage.InputTokens != 100 || result.Usage.OutputTokens != 42 {
		t.Fatalf("Usage = %+v", result.Usage)
	}

	if got := captured.Header.Get("X-Goog-Api-Key"); got != "secret-key" {
		t.Fatalf("api key header = %q", got)
	}
	if !strings.Contains(captured.URL.Path, "models/gemini-2.5-flash:generateContent") {
		t.Fatalf("path = %q", captured.URL.Path)
	}
	cfg := sentBody.GenerationConfig
	if cfg == nil || cfg.ResponseMimeType != "application/json" {
		t.Fatalf("generation config = %+v", cfg)
	}
	if cfg.MaxOutputTokens != 4096 {
		t.Fatalf("maxOutputTokens = %d", cfg.MaxOutputTokens)
	}
}

func TestGenerateConcatenatesParts(t *testing.T) {
	client := newFakeClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"1}"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2}
		}`), nil
	})
	result, err := client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if result.RawOutput != `{"a":1}` {
		t.Fatalf("RawOutput = %q", result.RawOutput)
	}
}

func TestGenerateQuotaError(t *testing.T) {
	client := newFakeClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{
			"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"Quota exceeded for quota metric"}
		}`), nil
	})
	_, err := client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Category != CategoryQuota {
		t.Fatalf("category = %v, want quota", apiErr.Category)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status code = %d", apiErr.StatusCode)
	}
}

func TestGenerateAuthError(t *testing.T) {
	client := newFakeClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{
			"error":{"code":403,"status":"PERMISSION_DENIED","message":"API key not valid"}
		}`), nil
	})
	_, err := client.Generate(context.Background(), GenerateRequest{APIKey: "bad", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Category != CategoryAuth {
		t.Fatalf("category = %v, want auth", apiErr.Category)
	}
}

func TestGenerateNonJSONErrorBody(t *testing.T) {
	client := newFakeClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream proxy unhappy"), nil
	})
	_, err := client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Category != CategoryTransient {
		t.Fatalf("category = %v, want transient", apiErr.Category)
	}
	if apiErr.Message != "upstream proxy unhappy" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestGenerateSafetyBlock(t *testing.T) {
	client := newFakeClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}],
			"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":0}
		}`), nil
	})
	_, err := client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Category != CategoryContentPolicy {
		t.Fatalf("category = %v, want content policy", apiErr.Category)
	}
}

func TestGenerateNoCandidates(t *testing.T) {
	client := newFakeClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[],"usageMetadata":{}}`), nil
	})
	_, err := client.Generate(context.Background(), GenerateRequest{APIKey: "k", Prompt: "p"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Category != CategoryTransient {
		t.Fatalf("category = %v, want transient", apiErr.Category)
	}
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		status int
		grpc   string
		want   Category
	}{
		{429, "RESOURCE_EXHAUSTED", CategoryQuota},
		{429, "", CategoryQuota},
		{401, "UNAUTHENTICATED", CategoryAuth},
		{403, "", CategoryAuth},
		{500, "INTERNAL", CategoryTransient},
		{503, "", CategoryTransient},
		{400, "INVALID_ARGUMENT", CategoryInvalid},
		{400, "", CategoryInvalid},
	}
	for _, tc := range cases {
		if got := categorize(tc.status, tc.grpc); got != tc.want {
			t.Fatalf("categorize(%d, %q) = %v, want %v", tc.status, tc.grpc, got, tc.want)
		}
	}
}
