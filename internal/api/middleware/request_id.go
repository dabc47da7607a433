// Package middleware provides HTTP middleware for the RequestDesk API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// RequestID tags every request with a correlation ID. An ID supplied by the
// caller in X-Request-Id is kept so upstream proxies can trace a request end
// to end; otherwise a fresh one is generated. The ID is echoed back in the
// response header and stored in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = newRequestID()
		}

		w.Header().Set(requestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// newRequestID returns a prefixed, shortened UUID.
func newRequestID() string {
	return "req_" + uuid.New().String()[:22]
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
