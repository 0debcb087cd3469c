package domain

import "encoding/json"

const (
	// DefaultMaxRetries bounds how many failed attempts a job may absorb
	// before it is forced to failed.
	DefaultMaxRetries = 3
	// MaxMaxRetries caps caller-supplied retry budgets.
	MaxMaxRetries = 6
	// DefaultTemperature is applied when the request omits model options.
	DefaultTemperature = 0.7
	// DefaultMaxOutputTokens is the output budget when the request omits one.
	DefaultMaxOutputTokens = 8192
	// HardMaxOutputTokens is the ceiling for budget escalation after a
	// truncated response.
	HardMaxOutputTokens = 65536
)

// ModelOptions tunes the upstream generation call.
type ModelOptions struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// GenerationRequest is the inbound unit of work: an opaque parameter bag plus
// the JSON shape the model output must satisfy. Immutable once fingerprinted.
type GenerationRequest struct {
	UserID     string          `json:"user_id"`
	PlanType   PlanType        `json:"plan_type"`
	Params     map[string]any  `json:"params"`
	Schema     json.RawMessage `json:"schema"`
	MaxRetries int             `json:"max_retries"`
	Model      ModelOptions    `json:"model"`
}

// Normalize applies server defaults and caps to caller-supplied options.
func (r *GenerationRequest) Normalize() {
	if r.MaxRetries <= 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.MaxRetries > MaxMaxRetries {
		r.MaxRetries = MaxMaxRetries
	}
	if r.Model.Temperature <= 0 {
		r.Model.Temperature = DefaultTemperature
	}
	if r.Model.MaxOutputTokens <= 0 {
		r.Model.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if r.Model.MaxOutputTokens > HardMaxOutputTokens {
		r.Model.MaxOutputTokens = HardMaxOutputTokens
	}
}
