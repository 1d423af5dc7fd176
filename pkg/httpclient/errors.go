package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of an error response body is kept.
const maxErrorBody = 1 << 20

// StatusError is a non-2xx response whose body has been consumed.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, string(e.Body))
}

// ServerError reports whether the failure was on the remote side.
func (e *StatusError) ServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// ReadStatusError drains and closes a non-2xx response into a *StatusError.
func ReadStatusError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("status %d (failed to read body: %w)", resp.StatusCode, err)
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// IsUnavailable reports whether err means the remote could not serve the
// request at all: an open breaker, a transport failure, or a 5xx.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.ServerError()
	}
	return true
}
