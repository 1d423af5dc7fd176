package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		Timeout:         2 * time.Second,
		MaxRetries:      2,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 4,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClient_RetriesGetOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_PostWithoutIdempotencyKeyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("a=1"))
	require.NoError(t, err)

	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_PostWithIdempotencyKeyReplaysBody(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("mode=payment"))
	require.NoError(t, err)
	req.Header.Set(IdempotencyKeyHeader, "key-1")

	resp, err := New(fastConfig()).Do(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "mode=payment", lastBody.Load())
}

func TestClient_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, err := http.NewRequest(http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	_, err = New(fastConfig()).Do(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.False(t, isRetryableError(errors.New("plain")))
}

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

func TestCircuitBreaker_5xxBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0
	cb := NewCircuitBreakerClient(New(cfg), DefaultCircuitBreakerConfig("test-5xx"), quietLogger())

	_, err := cb.Get(context.Background(), srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "upstream exploded", string(se.Body))
	assert.True(t, IsUnavailable(err))
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.MaxRetries = 0
	cbCfg := DefaultCircuitBreakerConfig("test-open")
	cbCfg.MinRequests = 2
	cb := NewCircuitBreakerClient(New(cfg), cbCfg, quietLogger())

	for i := 0; i < 2; i++ {
		_, err := cb.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCircuitBreaker_4xxPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"resource_missing"}}`))
	}))
	defer srv.Close()

	cb := NewCircuitBreakerClient(New(fastConfig()), DefaultCircuitBreakerConfig("test-4xx"), quietLogger())
	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	err = ReadStatusError(resp)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.False(t, se.ServerError())
	assert.False(t, IsUnavailable(err))
	assert.Contains(t, string(se.Body), "resource_missing")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(404))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
