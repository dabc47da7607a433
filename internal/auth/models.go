// Package auth provides authentication services for RequestDesk.
package auth

import "time"

// User represents a staff account that can operate on requests.
type User struct {
	ID           string    `json:"userId"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RefreshToken represents a refresh token stored in the database.
type RefreshToken struct {
	ID        string
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// TokenPair carries the tokens issued after a successful 2FA verification.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`

	// ExpiresIn is the number of seconds until the access token expires.
	ExpiresIn int64 `json:"expiresIn"`
}
