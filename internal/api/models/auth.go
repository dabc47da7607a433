package models

// LoginRequest is the body for POST /api/auth/login/.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse acknowledges that a 2FA code was dispatched.
type LoginResponse struct {
	Message string `json:"message"`
}

// VerifyRequest is the body for POST /api/auth/verify-2fa/.
type VerifyRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

// TokenResponse carries the issued token pair.
type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshRequest is the body for POST /api/auth/refresh/.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// LogoutRequest is the body for POST /api/auth/logout/.
type LogoutRequest struct {
	Refresh string `json:"refresh"`
}
