package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/requestdesk/requestdesk/internal/api/models"
	"github.com/requestdesk/requestdesk/internal/auth"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// usernameKey is the context key for the authenticated username.
type usernameKey struct{}

// Auth validates the bearer token on every request and stores the caller's
// identity in the context. The username travels with the request so audit
// history can record who approved or rejected without a user lookup.
func Auth(authService *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, problem := bearerToken(r)
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			claims, err := authService.ValidateAccessToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, claims.UserID)
			ctx = context.WithValue(ctx, usernameKey{}, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header. The empty
// problem string means the header parsed cleanly.
func bearerToken(r *http.Request) (token, problem string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}

	token = authHeader[len(bearerPrefix):]
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized writes a 401 problem directly; the response package is
// not used here to avoid an import cycle.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetUsername retrieves the authenticated username from the context.
// Returns an empty string if not authenticated.
func GetUsername(ctx context.Context) string {
	if name, ok := ctx.Value(usernameKey{}).(string); ok {
		return name
	}
	return ""
}
