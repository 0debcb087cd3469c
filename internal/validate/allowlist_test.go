package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestAllowlistKnownIdentifiersUntouched(t *testing.T) {
	al := &Allowlist{Field: "exercise_id", Allowed: []string{"barbell_squat", "bench_press"}}
	payload := []byte(`{"days":[{"exercises":[{"exercise_id":"barbell_squat","sets":5}]}]}`)
	out, err := al.Apply(payload)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if string(out) != string(payload) {
		t.Fatalf("payload modified: %s", out)
	}
}

func TestAllowlistSubstitutesNearMiss(t *testing.T) {
	al := &Allowlist{Field: "exercise_id", Allowed: []string{"barbell_squat", "bench_press", "deadlift"}}
	payload := []byte(`{"days":[{"exercises":[{"exercise_id":"barbel_squat"},{"exercise_id":"bench press"}]}]}`)
	out, err := al.Apply(payload)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	got := gjson.GetBytes(out, "days.0.exercises.0.exercise_id").String()
	if got != "barbell_squat" {
		t.Fatalf("expected barbell_squat, got %q", got)
	}
	got = gjson.GetBytes(out, "days.0.exercises.1.exercise_id").String()
	if got != "bench_press" {
		t.Fatalf("expected bench_press, got %q", got)
	}
}

func TestAllowlistRejectsLowConfidence(t *testing.T) {
	al := &Allowlist{Field: "exercise_id", Allowed: []string{"barbell_squat", "bench_press"}}
	payload := []byte(`{"exercises":[{"exercise_id":"underwater_basket_weaving"}]}`)
	_, err := al.Apply(payload)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "underwater_basket_weaving") {
		t.Fatalf("error should name the offending identifier: %v", err)
	}
}

func TestAllowlistNilReceiver(t *testing.T) {
	var al *Allowlist
	payload := []byte(`{"exercise_id":"anything"}`)
	out, err := al.Apply(payload)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if string(out) != string(payload) {
		t.Fatal("nil allowlist must be a no-op")
	}
}

func TestAllowlistIgnoresOtherFields(t *testing.T) {
	al := &Allowlist{Field: "exercise_id", Allowed: []string{"barbell_squat"}}
	payload := []byte(`{"meal_id":"totally_unknown","exercise_id":"barbell_squat"}`)
	if _, err := al.Apply(payload); err != nil {
		t.Fatalf("unrelated field tripped the allowlist: %v", err)
	}
}

func TestNearestMatch(t *testing.T) {
	allowed := []string{"barbell_squat", "swimming"}

	best, conf := nearestMatch("barbell_squat", allowed)
	if best != "barbell_squat" || conf != 1 {
		t.Fatalf("exact match = %q at %v", best, conf)
	}

	best, close := nearestMatch("barbel_squat", allowed)
	if best != "barbell_squat" {
		t.Fatalf("nearest = %q, want barbell_squat", best)
	}
	if close < DefaultMinConfidence {
		t.Fatalf("near-miss should clear the default floor, got %v", close)
	}

	_, far := nearestMatch("underwater_basket_weaving", allowed)
	if far >= close {
		t.Fatalf("similarity ordering wrong: close=%v far=%v", close, far)
	}
}

func TestNewAllowlistFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exercises.txt")
	content := "# canonical exercise ids\nbarbell_squat\n\n  bench_press  \ndeadlift\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	al, err := NewAllowlistFromFile("exercise_id", path)
	if err != nil {
		t.Fatalf("NewAllowlistFromFile error: %v", err)
	}
	if al.Field != "exercise_id" {
		t.Fatalf("Field = %q", al.Field)
	}
	want := []string{"barbell_squat", "bench_press", "deadlift"}
	if len(al.Allowed) != len(want) {
		t.Fatalf("Allowed = %v", al.Allowed)
	}
	for i, id := range want {
		if al.Allowed[i] != id {
			t.Fatalf("Allowed[%d] = %q, want %q", i, al.Allowed[i], id)
		}
	}
}

func TestNewAllowlistFromFileErrors(t *testing.T) {
	if _, err := NewAllowlistFromFile("exercise_id", filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("# only a comment\n\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := NewAllowlistFromFile("exercise_id", empty); err == nil {
		t.Fatal("expected error for identifier-free file")
	}
}
