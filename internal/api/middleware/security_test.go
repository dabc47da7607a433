package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/requestdesk/requestdesk/internal/api/middleware"
)

func serveWithSecurity(t *testing.T, mw func(http.Handler) http.Handler, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	rec := serveWithSecurity(t, middleware.SecurityHeaders, nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	expected := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
	}
	for name, value := range expected {
		assert.Equal(t, value, rec.Header().Get(name), name)
	}
}

func TestSecurityHeaders_PreservesExistingHeaders(t *testing.T) {
	handler := middleware.SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Custom-Header", "custom-value")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "custom-value", rec.Header().Get("X-Custom-Header"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRequireTLS_DisabledByDefault(t *testing.T) {
	t.Setenv("REQUIRE_TLS", "")

	rec := serveWithSecurity(t, middleware.RequireTLS, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "http")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireTLS_Enabled_RejectsHTTP(t *testing.T) {
	t.Setenv("REQUIRE_TLS", "true")

	rec := serveWithSecurity(t, middleware.RequireTLS, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "http")
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "TLS required")
	assert.Contains(t, rec.Body.String(), "This endpoint requires HTTPS")
}

func TestRequireTLS_Enabled_AllowsHTTPS(t *testing.T) {
	t.Setenv("REQUIRE_TLS", "true")

	rec := serveWithSecurity(t, middleware.RequireTLS, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireTLS_Enabled_NoHeaderAllowed(t *testing.T) {
	t.Setenv("REQUIRE_TLS", "true")

	// No X-Forwarded-Proto, as with a direct local connection.
	rec := serveWithSecurity(t, middleware.RequireTLS, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
