package apperror

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var errCause = errors.New("github: rate limited")

// Each constructor must wrap its sentinel so handlers can map it with errors.Is.
func TestErrorsIs(t *testing.T) {
	// Each test case checks that errors.Is() correctly identifies the error type
	tests := []struct {
		name      string // Descriptive name for test output
		err       error  // The error to test
		target    error  // What we expect it to match
		wantMatch bool   // Should errors.Is() return true?
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user statistics", "octocat"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("metric", "metric is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user statistics", "octocat"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("no GitHub token on file"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream(errCause, 0),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Upstream keeps the cause reachable",
			err:       Upstream(errCause, 0),
			target:    errCause,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("user statistics", "octocat"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "ValidationFailed does NOT match ErrNotFound",
			err:       ValidationFailed("limit", "limit too large"),
			target:    ErrNotFound,
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
			err:         NotFound("user statistics", "octocat"),
			wantMessage: "user statistics not found with id octocat",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("metric", "metric is required"),
			wantMessage: "metric is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("user statistics", "octocat"),
			wantMessage: "user statistics conflict with id octocat",
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
	err := NotFound("user statistics", "octocat")
	unwrapped := err.Unwrap()

	if unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("limit", "limit must be a positive integer")

	if err.Field != "limit" {
		t.Errorf("Field = %q, want %q", err.Field, "limit")
	}
}

func TestUpstreamRetryAfter(t *testing.T) {
	err := Upstream(errCause, 42*time.Second)

	// Wrapping again must not hide the AppError from errors.As.
	wrapped := fmt.Errorf("service/leaderboard: refreshing octocat: %w", err)

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As() did not find *AppError")
	}
	if appErr.RetryAfter != 42*time.Second {
		t.Errorf("RetryAfter = %v, want %v", appErr.RetryAfter, 42*time.Second)
	}
}
