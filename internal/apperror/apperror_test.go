package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// Table-driven: each case checks that errors.Is() identifies the kind,
// including through an fmt.Errorf %w wrapper the way services return them.
func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("password", "password required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "InvalidCredentials wraps ErrAuthentication",
			err:       InvalidCredentials(),
			target:    ErrAuthentication,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("email", "ada@example.com"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "wrapped Upstream still matches ErrUpstream",
			err:       fmt.Errorf("service/repos: %w", Upstream("github", errors.New("boom"))),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated does NOT match ErrForbidden",
			err:       Unauthenticated(),
			target:    ErrForbidden,
			wantMatch: false,
		},
		{
			name:      "InvalidCredentials does NOT match ErrValidation",
			err:       InvalidCredentials(),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "abc123"),
			wantMessage: "user not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("password", "password required"),
			wantMessage: "password required",
		},
		{
			name:        "InvalidCredentials has a fixed message",
			err:         InvalidCredentials(),
			wantMessage: "Invalid credentials",
		},
		{
			name:        "Upstream embeds the upstream message",
			err:         Upstream("github", errors.New("bad credentials")),
			wantMessage: "github: bad credentials",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("user", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "email required")
	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
