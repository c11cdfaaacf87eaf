package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConfig       = errors.New("invalid configuration")
	ErrEnvironment  = errors.New("environment failure")
	ErrEmptyBatch   = errors.New("no code blocks to execute")
	ErrUnauthorized = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Config returns an AppError for a construction-time configuration problem,
// such as a non-positive timeout or an unusable working directory.
func Config(field, message string) *AppError {
	return &AppError{
		Err:     ErrConfig,
		Message: message,
		Field:   field,
	}
}

// EnvironmentStartFailed reports that the execution environment never
// reached a usable state within its readiness window.
func EnvironmentStartFailed(reason string) *AppError {
	return &AppError{
		Err:     ErrEnvironment,
		Message: fmt.Sprintf("environment failed to start: %s", reason),
	}
}

// EnvironmentRestartFailed reports a failed restart of a previously
// running environment.
func EnvironmentRestartFailed(reason string) *AppError {
	return &AppError{
		Err:     ErrEnvironment,
		Message: fmt.Sprintf("environment failed to restart: %s", reason),
	}
}

// EmptyBatch rejects an execution request that carries no code blocks.
func EmptyBatch() *AppError {
	return &AppError{
		Err:     ErrEmptyBatch,
		Message: "execution request contains no code blocks",
	}
}

// Unauthorized returns an AppError indicating missing or invalid credentials.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
