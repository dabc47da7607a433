package auth

import "context"

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// FindByUsername finds a user by username.
	// Returns ErrUserNotFound if no such user exists.
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByID finds a user by their internal ID.
	FindByID(ctx context.Context, id string) (*User, error)

	// Create creates a new user.
	Create(ctx context.Context, user *User) error
}

// RefreshTokenRepository defines the interface for refresh token operations.
type RefreshTokenRepository interface {
	// Create stores a new refresh token.
	Create(ctx context.Context, token *RefreshToken) error

	// FindByToken finds a refresh token by its value.
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)

	// Revoke marks a refresh token as revoked.
	Revoke(ctx context.Context, token string) error

}
