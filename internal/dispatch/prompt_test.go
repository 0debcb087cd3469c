package dispatch

import (
	"strings"
	"testing"

	"plangen/internal/domain"
)

func TestBuildPromptEscalates(t *testing.T) {
	params := []byte(`{"goal":"strength"}`)

	relaxed := buildPrompt(domain.PlanTypeWorkout, params, 0)
	strict := buildPrompt(domain.PlanTypeWorkout, params, 2)
	if relaxed == strict {
		t.Fatal("strictness must change the prompt")
	}
	if !strings.Contains(relaxed, `{"goal":"strength"}`) {
		t.Fatal("prompt must embed request parameters")
	}
	if strings.Contains(relaxed, "single JSON document") {
		t.Fatal("strict instructions leaked into the relaxed prompt")
	}
	if !strings.Contains(strict, "single JSON document") {
		t.Fatal("strictness 2 must demand bare JSON")
	}
}

func TestBuildPromptPlanTypes(t *testing.T) {
	workout := buildPrompt(domain.PlanTypeWorkout, []byte(`{}`), 0)
	meal := buildPrompt(domain.PlanTypeMeal, []byte(`{}`), 0)
	if !strings.Contains(workout, "workout plan") {
		t.Fatalf("workout prompt: %q", workout)
	}
	if !strings.Contains(meal, "meal plan") {
		t.Fatalf("meal prompt: %q", meal)
	}
}

func TestStrictTemperature(t *testing.T) {
	if got := strictTemperature(0.7, 0); got != 0.7 {
		t.Fatalf("strictness 0 changed temperature: %v", got)
	}
	if got := strictTemperature(0.7, 1); got >= 0.7 {
		t.Fatalf("strictness must lower temperature, got %v", got)
	}
	if got := strictTemperature(0.7, 10); got != 0.1 {
		t.Fatalf("temperature must floor at 0.1, got %v", got)
	}
}
