package apperror

import (
	"errors"
	"testing"
)

// TABLE-DRIVEN TESTS:
// Go's idiomatic pattern for testing multiple cases. Instead of writing a
// separate test function per case, we define a slice of cases and loop.
// Every case gets a name that shows up in test output.

func TestErrorsIs(t *testing.T) {
	// Each test case checks that errors.Is() correctly identifies the error type
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("run", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("language", "language is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Config wraps ErrConfig",
			err:       Config("timeout", "timeout must be at least 1 second"),
			target:    ErrConfig,
			wantMatch: true,
		},
		{
			name:      "EnvironmentStartFailed wraps ErrEnvironment",
			err:       EnvironmentStartFailed("readiness deadline elapsed"),
			target:    ErrEnvironment,
			wantMatch: true,
		},
		{
			name:      "EnvironmentRestartFailed wraps ErrEnvironment",
			err:       EnvironmentRestartFailed("reload exited nonzero"),
			target:    ErrEnvironment,
			wantMatch: true,
		},
		{
			name:      "EmptyBatch wraps ErrEmptyBatch",
			err:       EmptyBatch(),
			target:    ErrEmptyBatch,
			wantMatch: true,
		},
		{
			name:      "Unauthorized wraps ErrUnauthorized",
			err:       Unauthorized("invalid API key"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("run", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "EmptyBatch does NOT match ErrEnvironment",
			err:       EmptyBatch(),
			target:    ErrEnvironment,
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
			err:         NotFound("run", "abc123"),
			wantMessage: "run not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("blocks", "blocks are required"),
			wantMessage: "blocks are required",
		},
		{
			name:        "EnvironmentStartFailed includes the reason",
			err:         EnvironmentStartFailed("vm never reported running"),
			wantMessage: "environment failed to start: vm never reported running",
		},
		{
			name:        "EnvironmentRestartFailed includes the reason",
			err:         EnvironmentRestartFailed("ssh unreachable"),
			wantMessage: "environment failed to restart: ssh unreachable",
		},
		{
			name:        "EmptyBatch has a fixed message",
			err:         EmptyBatch(),
			wantMessage: "execution request contains no code blocks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// .Error() should return the human-readable message
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	// Verify that Unwrap() returns the underlying sentinel error.
	// This is what makes errors.Is() work — it "unwraps" the chain.
	err := NotFound("run", "abc123")
	unwrapped := err.Unwrap()

	if unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestConfigField(t *testing.T) {
	// The Field tells callers WHICH construction parameter was bad.
	err := Config("timeout", "timeout must be at least 1 second")

	if err.Field != "timeout" {
		t.Errorf("Field = %q, want %q", err.Field, "timeout")
	}
}
