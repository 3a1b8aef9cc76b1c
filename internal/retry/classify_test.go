package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/localdeck/steward/internal/core/domain"
)

type statusErr struct{ status int }

func (e statusErr) Error() string   { return fmt.Sprintf("http status %d", e.status) }
func (e statusErr) HTTPStatus() int { return e.status }

type stateErr struct{ state string }

func (e stateErr) Error() string    { return "sqlstate " + e.state }
func (e stateErr) SQLState() string { return e.state }

func TestClassify(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		retryable bool
	}{
		{errors.New("connection reset by peer"), CodeNetwork, true},
		{errors.New("dial tcp 10.0.0.1:5432: connection refused"), CodeNetwork, true},
		{errors.New("request timed out"), CodeNetwork, true},
		{context.DeadlineExceeded, CodeNetwork, true},
		{statusErr{503}, CodeNetwork, true},
		{statusErr{429}, CodeNetwork, true},
		{statusErr{408}, CodeNetwork, true},
		{statusErr{401}, CodePermissionDenied, false},
		{statusErr{403}, CodePermissionDenied, false},
		{statusErr{406}, CodeNoRows, false},
		{statusErr{404}, CodeNoRows, false},
		{statusErr{400}, CodeValidation, false},
		{statusErr{409}, CodeValidation, false},
		{statusErr{422}, CodeValidation, false},
		{statusErr{418}, CodeUnclassified, false},
		{stateErr{"23505"}, CodeValidation, false},
		{stateErr{"22P02"}, CodeValidation, false},
		{stateErr{"42501"}, CodePermissionDenied, false},
		{stateErr{"28P01"}, CodePermissionDenied, false},
		{stateErr{"08006"}, CodeNetwork, true},
		{stateErr{"53300"}, CodeNetwork, true},
		{stateErr{"57P01"}, CodeNetwork, true},
		{stateErr{"40001"}, CodeUnclassified, false},
		{sql.ErrNoRows, CodeNoRows, false},
		{domain.ErrNoRows, CodeNoRows, false},
		{fmt.Errorf("loading profile: %w", domain.ErrNoRows), CodeNoRows, false},
		{errors.New("duplicate key value violates unique constraint"), CodeValidation, false},
		{errors.New("permission denied for table profiles"), CodePermissionDenied, false},
		{errors.New("something entirely novel went wrong"), CodeUnclassified, false},
	}

	for _, tt := range tests {
		got := Classify(tt.err)
		if got.Code != tt.code || got.Retryable != tt.retryable {
			t.Errorf("Classify(%q) = %+v, want {%s %v}", tt.err, got, tt.code, tt.retryable)
		}
	}
}

func TestClassifyAlreadyClassified(t *testing.T) {
	inner := NewError(CodeValidation, "bad payload", false)
	wrapped := fmt.Errorf("saving row: %w", inner)

	got := Classify(wrapped)
	if got.Code != CodeValidation || got.Retryable {
		t.Fatalf("Classify(wrapped *Error) = %+v, want {%s false}", got, CodeValidation)
	}
}

func TestWrapKeepsClassification(t *testing.T) {
	inner := NewError(CodeNetwork, "connection reset", true)

	out := Wrap(fmt.Errorf("selecting events: %w", inner), 4)
	if out.Code != CodeNetwork || !out.Retryable {
		t.Fatalf("Wrap changed classification: %+v", out)
	}
	if out.Attempts != 4 {
		t.Fatalf("Wrap attempts = %d, want 4", out.Attempts)
	}
}

func TestWrapDetail(t *testing.T) {
	he := Wrap(statusErr{503}, 1)
	hd, ok := he.Detail.(HTTPDetail)
	if !ok || hd.Status != 503 {
		t.Fatalf("Wrap(http) detail = %#v, want HTTPDetail{Status: 503}", he.Detail)
	}

	se := Wrap(stateErr{"23505"}, 1)
	sd, ok := se.Detail.(SQLDetail)
	if !ok || sd.State != "23505" {
		t.Fatalf("Wrap(sql) detail = %#v, want SQLDetail{State: 23505}", se.Detail)
	}

	oe := Wrap(errors.New("opaque"), 1)
	if _, ok := oe.Detail.(OpaqueDetail); !ok {
		t.Fatalf("Wrap(opaque) detail = %#v, want OpaqueDetail", oe.Detail)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	wrapped := Wrap(cause, 2)

	if !errors.Is(wrapped, cause) {
		t.Fatal("wrapped error does not unwrap to its cause")
	}
}
