// Package validate checks structural completeness of model output, repairs
// recoverable responses, and distinguishes token-limit truncation from
// generic malformed JSON because the remediation differs.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrTruncated marks output cut short by the output-token budget.
	ErrTruncated = errors.New("output truncated by token limit")
	// ErrMalformed marks output that is not recoverable JSON.
	ErrMalformed = errors.New("output is not valid JSON")
	// ErrShapeMismatch marks parseable output that violates the expected
	// schema shape.
	ErrShapeMismatch = errors.New("output does not match expected shape")
)

// DefaultTokenMargin is how close (in tokens) the reported output size must
// be to the requested budget before a dangling bracket counts as truncation.
const DefaultTokenMargin = 16

// Checker validates raw model output against the request's expected shape.
type Checker struct {
	// TokenMargin overrides DefaultTokenMargin when > 0.
	TokenMargin int
}

// Result is the outcome of a structural check.
type Result struct {
	// Payload is the extracted (possibly repaired) JSON document.
	Payload []byte
	// Repaired is set when the payload was recovered from surrounding
	// noise rather than parsed verbatim.
	Repaired bool
}

// Check classifies raw output. On success it returns the payload, repaired
// if necessary. Failure is one of ErrTruncated, ErrMalformed or
// ErrShapeMismatch (wrapped with detail).
func (c *Checker) Check(raw string, schema json.RawMessage, outputTokens, tokenBudget int) (*Result, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty output: %w", ErrMalformed)
	}

	start, end, ok := balancedSpan(trimmed)
	if !ok {
		if c.nearBudget(outputTokens, tokenBudget) {
			return nil, fmt.Errorf("unterminated JSON at token budget %d: %w", tokenBudget, ErrTruncated)
		}
		return nil, fmt.Errorf("no balanced JSON span: %w", ErrMalformed)
	}

	payload := trimmed[start:end]
	repaired := start > 0 || end < len(trimmed)
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("balanced span is not valid JSON: %w", ErrMalformed)
	}

	if len(schema) > 0 {
		if err := checkShape(gjson.Parse(payload), gjson.ParseBytes(schema), "$"); err != nil {
			return nil, err
		}
	}

	return &Result{Payload: []byte(payload), Repaired: repaired}, nil
}

// nearBudget implements the truncation heuristic: the reported output token
// count sits within a small margin of the requested maximum.
func (c *Checker) nearBudget(outputTokens, tokenBudget int) bool {
	if tokenBudget <= 0 || outputTokens <= 0 {
		return false
	}
	margin := c.TokenMargin
	if margin <= 0 {
		margin = DefaultTokenMargin
	}
	return outputTokens >= tokenBudget-margin
}

// checkShape verifies value against a minimal JSON-schema subset: "type",
// "properties", "required" and "items". Anything the schema does not
// mention is accepted.
func checkShape(value, schema gjson.Result, path string) error {
	want := schema.Get("type").String()
	if want != "" && !typeMatches(value, want) {
		return fmt.Errorf("%s: expected %s: %w", path, want, ErrShapeMismatch)
	}

	if required := schema.Get("required"); required.IsArray() {
		for _, key := range required.Array() {
			if !value.Get(key.String()).Exists() {
				return fmt.Errorf("%s: missing required field %q: %w", path, key.String(), ErrShapeMismatch)
			}
		}
	}

	if props := schema.Get("properties"); props.IsObject() {
		var shapeErr error
		props.ForEach(func(key, sub gjson.Result) bool {
			field := value.Get(key.String())
			if !field.Exists() {
				return true
			}
			if err := checkShape(field, sub, path+"."+key.String()); err != nil {
				shapeErr = err
				return false
			}
			return true
		})
		if shapeErr != nil {
			return shapeErr
		}
	}

	if items := schema.Get("items"); items.Exists() && value.IsArray() {
		for i, elem := range value.Array() {
			if err := checkShape(elem, items, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}

	return nil
}

func typeMatches(value gjson.Result, want string) bool {
	switch strings.ToLower(want) {
	case "object":
		return value.IsObject()
	case "array":
		return value.IsArray()
	case "string":
		return value.Type == gjson.String
	case "number", "integer":
		return value.Type == gjson.Number
	case "boolean":
		return value.Type == gjson.True || value.Type == gjson.False
	case "null":
		return value.Type == gjson.Null
	}
	return true
}
