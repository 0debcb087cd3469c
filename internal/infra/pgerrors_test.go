package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	violation := &pgconn.PgError{Code: "23505", ConstraintName: "generation_jobs_one_active_per_user"}
	wrapped := fmt.Errorf("insert job: %w", violation)

	if !IsUniqueViolation(wrapped, "generation_jobs_one_active_per_user") {
		t.Fatal("named constraint violation not detected")
	}
	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("unnamed match not detected")
	}
	if IsUniqueViolation(wrapped, "some_other_constraint") {
		t.Fatal("wrong constraint matched")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation misreported as unique")
	}
	if IsUniqueViolation(errors.New("plain error"), "") {
		t.Fatal("plain error misreported as unique violation")
	}
}
