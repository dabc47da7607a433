package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/requestdesk/requestdesk/internal/api/middleware"
)

// limitedGet drives one GET through the handler from the given remote address.
func limitedGet(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_AllowsWithinLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 5, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(okHandler())

	for i := 0; i < 5; i++ {
		rec := limitedGet(handler, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(okHandler())

	// Each test uses its own IP so limiter state cannot leak between tests.
	testIP := "10.0.0.1:12345"

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, limitedGet(handler, testIP).Code)
	}

	rec := limitedGet(handler, testIP)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_DifferentIPsHaveSeparateLimits(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(okHandler())

	ip1 := "172.16.0.1:12345"
	ip2 := "172.16.0.2:12345"

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, limitedGet(handler, ip1).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, limitedGet(handler, ip1).Code)

	// A second address has its own budget.
	assert.Equal(t, http.StatusOK, limitedGet(handler, ip2).Code)
}

func TestRateLimitByUser_FallsBackToIPWithoutIdentity(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.RateLimitByUser(cfg)(okHandler())

	// No auth middleware in the chain, so no user ID is in the context and
	// the limiter keys by IP instead.
	ip1 := "192.168.1.1:12345"
	ip2 := "192.168.1.2:12345"

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, limitedGet(handler, ip1).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, limitedGet(handler, ip1).Code)
	assert.Equal(t, http.StatusOK, limitedGet(handler, ip2).Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}

	// RequestID runs first so the problem body carries a trace ID.
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler()))

	testIP := "203.0.113.1:12345"

	req := httptest.NewRequest(http.MethodGet, "/test/path", http.NoBody)
	req.RemoteAddr = testIP
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/test/path", http.NoBody)
	req.RemoteAddr = testIP
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "Rate limit exceeded")
	assert.Contains(t, body, "/test/path")
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 10, middleware.AuthRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.AuthRateLimit.WindowLength)

	assert.Equal(t, 30, middleware.UploadRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.UploadRateLimit.WindowLength)

	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
