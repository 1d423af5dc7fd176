package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrGone           = errors.New("gone")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrBadGateway     = errors.New("bad gateway")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError with a caller-defined code. The cause is kept for
// errors.Is matching and is never rendered to clients.
func New(code, message string, status int, cause error) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: cause}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return New("NOT_FOUND", fmt.Sprintf("%s with id %s not found", resource, id), http.StatusNotFound, ErrNotFound)
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return New("ALREADY_EXISTS", fmt.Sprintf("%s with %s %q already exists", resource, field, value), http.StatusConflict, ErrAlreadyExists)
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return New("INVALID_INPUT", message, http.StatusBadRequest, ErrInvalidInput)
}

// Conflict creates a 409 error for a state conflict.
func Conflict(message string) *AppError {
	return New("CONFLICT", message, http.StatusConflict, ErrConflict)
}

// Gone creates a 410 error for a resource that existed but is no longer usable.
func Gone(message string) *AppError {
	return New("GONE", message, http.StatusGone, ErrGone)
}

// ServiceUnavailable creates a 503 error for a dependency that cannot be reached.
func ServiceUnavailable(message string) *AppError {
	return New("SERVICE_UNAVAILABLE", message, http.StatusServiceUnavailable, ErrServiceUnavail)
}

// BadGateway creates a 502 error for a dependency that answered with a failure.
func BadGateway(message string) *AppError {
	return New("BAD_GATEWAY", message, http.StatusBadGateway, ErrBadGateway)
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return New("INTERNAL_ERROR", "an internal error occurred", http.StatusInternalServerError, err)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrBadGateway):
		return http.StatusBadGateway
	case errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
