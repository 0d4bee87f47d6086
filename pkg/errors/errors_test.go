package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInvalidState, status: http.StatusConflict, publicMsg: "operation not allowed in current state", detailsOK: true},
		{code: CodeIllegalTransition, status: http.StatusUnprocessableEntity, publicMsg: "status transition not allowed", detailsOK: true},
		{code: CodeAlreadyConverted, status: http.StatusConflict, publicMsg: "quote already converted", detailsOK: true},
		{code: CodeConcurrentModification, status: http.StatusConflict, publicMsg: "resource was modified concurrently", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeWalksNestedTypedErrors(t *testing.T) {
	inner := New(CodeInvalidState, "quote is draft")
	outer := Wrap(CodeDependency, fmt.Errorf("convert: %w", inner), "convert quote")

	if !IsCode(outer, CodeDependency) || !IsCode(outer, CodeInvalidState) {
		t.Fatalf("expected both codes in chain")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) || IsCode(nil, CodeInternal) {
		t.Fatalf("untyped errors carry no code")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: refused"), "load quote")
	if got := err.Error(); got != "DEPENDENCY_ERROR: load quote: dial tcp: refused" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := Newf(CodeNotFound, "quote %d not found", 7).Error(); got != "NOT_FOUND: quote 7 not found" {
		t.Fatalf("unexpected error string %q", got)
	}
	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Code() != CodeInternal {
		t.Fatalf("nil receiver should be safe")
	}
}

func TestDumpIncludesChain(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeDependency, cause, "load quote")

	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(dump.Chain))
	}
	if dump.PG != nil {
		t.Fatalf("expected no pg diagnostics, got %+v", dump.PG)
	}
	if _, ok := dump.Fields()["pg_code"]; ok {
		t.Fatalf("pg_code should be omitted for non-database errors")
	}
}

func TestDumpExtractsPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_deals_source_quote_id", TableName: "deals"}
	err := Wrap(CodeConflict, fmt.Errorf("insert deal: %w", pgErr), "convert quote")

	dump := Dump(err)
	if dump.PG == nil || dump.PG.Code != "23505" {
		t.Fatalf("expected unique violation diagnostics, got %+v", dump.PG)
	}
	if dump.PG.Constraint != "idx_deals_source_quote_id" {
		t.Fatalf("unexpected constraint %q", dump.PG.Constraint)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected three chain entries, got %d", len(dump.Chain))
	}
	fields := dump.Fields()
	if fields["pg_table"] != "deals" {
		t.Fatalf("expected pg_table field, got %v", fields["pg_table"])
	}
}

func TestDumpPQDriverError(t *testing.T) {
	dump := Dump(&pq.Error{Code: "40001", Message: "could not serialize access"})
	if dump.PG == nil || dump.PG.Code != "40001" {
		t.Fatalf("expected pq diagnostics, got %+v", dump.PG)
	}
	if dump.Code != "" {
		t.Fatalf("untyped error should have no code, got %s", dump.Code)
	}
}
