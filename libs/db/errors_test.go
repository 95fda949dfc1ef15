package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	exclusion := &pgconn.PgError{Code: "23P01"}
	fk := &pgconn.PgError{Code: "23503"}

	if !IsUniqueViolation(unique) || IsExclusionViolation(unique) {
		t.Fatalf("expected wrapped 23505 to classify as unique violation only")
	}
	if !IsExclusionViolation(exclusion) {
		t.Fatalf("expected 23P01 to classify as exclusion violation")
	}
	if !IsForeignKeyViolation(fk) {
		t.Fatalf("expected 23503 to classify as foreign key violation")
	}
	if !IsNotFound(fmt.Errorf("scan: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to be not found")
	}
	if IsUniqueViolation(fmt.Errorf("plain")) {
		t.Fatalf("expected non-pg error to be unclassified")
	}
}
