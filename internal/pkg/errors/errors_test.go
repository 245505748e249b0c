package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeProjectNotFound, "project not found", http.StatusNotFound),
			want: "PROJECT_NOT_FOUND: project not found",
		},
		{
			name: "with wrapped error",
			err:  Wrap(fmt.Errorf("db error"), "DB_ERROR", "database failure", http.StatusInternalServerError),
			want: "DB_ERROR: database failure: db error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(inner, "CODE", "msg", 500)

	if !errors.Is(appErr, inner) {
		t.Error("errors.Is should match inner error")
	}
}

func TestIsAppError(t *testing.T) {
	appErr := NotFound(CodeInvoiceNotFound, "invoice not found")
	wrapped := fmt.Errorf("wrapped: %w", appErr)

	got, ok := IsAppError(wrapped)
	if !ok {
		t.Fatal("IsAppError should return true for wrapped AppError")
	}
	if got.Code != CodeInvoiceNotFound {
		t.Errorf("Code = %q, want %q", got.Code, CodeInvoiceNotFound)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantStatus int
	}{
		{"NotFound", NotFound("NF", "not found"), http.StatusNotFound},
		{"BadRequest", BadRequest("BR", "bad request"), http.StatusBadRequest},
		{"Conflict", Conflict("CF", "conflict"), http.StatusConflict},
		{"Unprocessable", Unprocessable("UP", "unprocessable"), http.StatusUnprocessableEntity},
		{"Internal", Internal("IE", "internal"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", tt.err.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestDomainConstructors(t *testing.T) {
	if err := ErrProjectNotFoundf("proj-1"); err.Code != CodeProjectNotFound || err.Params["project_id"] != "proj-1" {
		t.Errorf("ErrProjectNotFoundf = %+v", err)
	}
	if err := ErrConcurrencyConflictf("proj-2"); err.HTTPStatus != http.StatusConflict {
		t.Errorf("ErrConcurrencyConflictf status = %d", err.HTTPStatus)
	}
	if err := ErrEventMalformedf("missing project id"); err.Code != CodeEventMalformed {
		t.Errorf("ErrEventMalformedf code = %q", err.Code)
	}
}
