package dispatch

import (
	"fmt"
	"strings"

	"plangen/internal/domain"
)

// buildPrompt renders the request parameters into the generation instruction.
// Strictness escalates per validation failure so a retry is never a verbatim
// repeat of an attempt that produced unusable output.
func buildPrompt(planType domain.PlanType, params []byte, strictness int) string {
	var b strings.Builder

	switch planType {
	case domain.PlanTypeWorkout:
		b.WriteString("Generate a structured workout plan matching the response schema.")
	case domain.PlanTypeMeal:
		b.WriteString("Generate a structured meal plan matching the response schema.")
	default:
		b.WriteString("Generate structured content matching the response schema.")
	}

	b.WriteString("\n\nRequest parameters:\n")
	b.Write(params)

	if strictness >= 1 {
		b.WriteString("\n\nRespond with a single JSON document and nothing else. Do not wrap the JSON in markdown fences or add commentary.")
	}
	if strictness >= 2 {
		b.WriteString("\nEvery field required by the schema must be present. Keep the output concise so it fits within the output limit.")
	}
	if strictness >= 3 {
		b.WriteString(fmt.Sprintf("\nPrevious responses were invalid after %d attempts. Emit minified JSON: no whitespace outside string values, shortest valid representation.", strictness))
	}

	return b.String()
}

// strictTemperature lowers sampling temperature as strictness rises; flaky
// structure gets a more deterministic retry.
func strictTemperature(base float64, strictness int) float64 {
	t := base - 0.2*float64(strictness)
	if t < 0.1 {
		t = 0.1
	}
	return t
}
