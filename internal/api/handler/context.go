package handler

import (
	"context"

	"github.com/requestdesk/requestdesk/internal/api/middleware"
)

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// GetUsername retrieves the authenticated username from the context.
// This is a convenience wrapper around middleware.GetUsername.
func GetUsername(ctx context.Context) string {
	return middleware.GetUsername(ctx)
}
