package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	withCause := New("INTERNAL_ERROR", "something broke", http.StatusInternalServerError, fmt.Errorf("db connection lost"))
	assert.Equal(t, "INTERNAL_ERROR: something broke: db connection lost", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "order not found"}
	assert.Equal(t, "NOT_FOUND: order not found", bare.Error())
	assert.Nil(t, bare.Unwrap())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("order", "o-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"already exists", AlreadyExists("order", "payment_reference", "pay_1"), "ALREADY_EXISTS", http.StatusConflict, ErrAlreadyExists},
		{"invalid input", InvalidInput("quantity must be at least 1"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"conflict", Conflict("order write conflict"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"gone", Gone("session expired"), "GONE", http.StatusGone, ErrGone},
		{"service unavailable", ServiceUnavailable("provider down"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
		{"bad gateway", BadGateway("provider rejected request"), "BAD_GATEWAY", http.StatusBadGateway, ErrBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestInternal_KeepsCause(t *testing.T) {
	cause := errors.New("pool closed")
	err := Internal(cause)
	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrNotFound, "load backup")
	assert.Equal(t, "load backup: resource not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTeapot, HTTPStatus(New("TEAPOT", "short and stout", http.StatusTeapot, nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrConflict))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrAlreadyExists))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrInvalidInput))
	assert.Equal(t, http.StatusGone, HTTPStatus(ErrGone))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(ErrBadGateway))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrServiceUnavail))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
