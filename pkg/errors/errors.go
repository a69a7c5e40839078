// Package errors defines the error taxonomy shared by the diagnosis engine and
// its transports. Callers distinguish failures with errors.Is against the
// sentinels and map them to HTTP status codes or stable kind strings.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrContractViolation   = errors.New("contract violation")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrConfiguration       = errors.New("configuration error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// ContractViolation reports a caller-side protocol error such as an out of
// range question number.
func ContractViolation(format string, args ...any) *AppError {
	return Newf(ErrContractViolation, http.StatusBadRequest, format, args...)
}

// CollaboratorFailure wraps an error raised by an external collaborator.
func CollaboratorFailure(collaborator string, err error) *AppError {
	return Newf(ErrCollaboratorFailure, http.StatusBadGateway, "%s: %v", collaborator, err)
}

// Message returns the client-facing message carried by err, falling back to
// err.Error() for plain errors.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// Kind returns a stable, machine-readable name for the error class of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrContractViolation):
		return "contract_violation"
	case errors.Is(err, ErrCollaboratorFailure):
		return "collaborator_failure"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// FromKind rebuilds a typed error from a kind string and message received
// over the wire.
func FromKind(kind, message string) error {
	var sentinel error
	switch kind {
	case "contract_violation":
		sentinel = ErrContractViolation
	case "collaborator_failure":
		sentinel = ErrCollaboratorFailure
	case "configuration_error":
		sentinel = ErrConfiguration
	case "invalid_input":
		sentinel = ErrInvalidInput
	case "rate_limited":
		sentinel = ErrRateLimited
	case "timeout":
		sentinel = ErrTimeout
	default:
		sentinel = ErrInternal
	}
	e := &AppError{Err: sentinel, Message: message}
	e.StatusCode = HTTPStatusCode(sentinel)
	return e
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrContractViolation), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrCollaboratorFailure):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
