// Package apperror defines the error kinds shared by the service and handler layers.
//
// Services return *AppError values wrapping one of the sentinels below. The
// handler layer maps the sentinel to an HTTP status with errors.Is, so no
// package below internal/handler needs to know about status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrAuthentication  = errors.New("authentication error")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrTooManyRequests = errors.New("too many requests")
	ErrUpstream        = errors.New("upstream error")
)

type AppError struct {
	Err     error  // sentinel kind
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

// InvalidCredentials is returned when an email/password pair does not match.
// The message is deliberately the same for unknown-hash and wrong-password cases.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: "Invalid credentials",
	}
}

// Unauthenticated reports a request that carried no session token at all.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "Unauthorized",
	}
}

func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already registered: %s", resource, key),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func TooManyRequests() *AppError {
	return &AppError{
		Err:     ErrTooManyRequests,
		Message: "Too many requests, try again later",
	}
}

// Upstream wraps a failed call to an external API. The upstream message is
// kept in Message so clients can see what the provider reported.
func Upstream(service string, err error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: fmt.Sprintf("%s: %v", service, err),
	}
}
