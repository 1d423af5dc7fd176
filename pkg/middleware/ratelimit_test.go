package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimit_WithinBurstPasses(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(1, 5, bufferLogger(&buf))(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("192.168.1.1:12345"))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}
	assert.Zero(t, buf.Len())
}

func TestRateLimit_OverBurstReturns429(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(0.001, 2, bufferLogger(&buf))(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	assert.Contains(t, buf.String(), "rate limit exceeded")
}

func TestRateLimit_IndependentPerIP(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(0.001, 1, bufferLogger(&buf))(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.1:1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, requestFrom("10.0.0.2:1"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVisitorStore_EvictsStaleVisitors(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newVisitorStore(1, 1, time.Minute)
	store.nowFunc = func() time.Time { return now }

	store.allow("10.0.0.1")
	store.allow("10.0.0.2")
	assert.Equal(t, 2, store.len())

	now = now.Add(2 * time.Minute)
	store.allow("10.0.0.3")
	assert.Equal(t, 1, store.len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.1:5000", want: "10.0.0.1"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.1:5000", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.9"}, remote: "10.0.0.1:5000", want: "203.0.113.9"},
		{name: "garbage forwarded", headers: map[string]string{"X-Forwarded-For": "nope"}, remote: "10.0.0.1:5000", want: "10.0.0.1"},
		{name: "no port", remote: "10.0.0.1", want: "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
