package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/requestdesk/requestdesk/internal/api/models"
	"github.com/requestdesk/requestdesk/internal/api/response"
	"github.com/requestdesk/requestdesk/internal/auth"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Login handles POST /api/auth/login/ - password check and 2FA code dispatch.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if strings.TrimSpace(req.Username) == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "username", Message: "is required"})
	}
	if req.Password == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "password", Message: "is required"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation error", fieldErrors)
		return
	}

	if err := h.authService.Login(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.Unauthorized(w, r, "invalid username or password")
			return
		}
		response.InternalError(w, r, "login failed")
		return
	}

	response.JSON(w, r, http.StatusOK, models.LoginResponse{
		Message: "verification code sent",
	})
}

// VerifyTwoFactor handles POST /api/auth/verify-2fa/ - exchanges a valid 2FA
// code for a token pair.
func (h *AuthHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if strings.TrimSpace(req.Username) == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "username", Message: "is required"})
	}
	if strings.TrimSpace(req.Code) == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "code", Message: "is required"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation error", fieldErrors)
		return
	}

	pair, err := h.authService.VerifyTwoFactor(r.Context(), req.Username, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrCodeInvalid):
			response.Unauthorized(w, r, "invalid verification code")
		case errors.Is(err, auth.ErrCodeExpired):
			response.Unauthorized(w, r, "verification code expired")
		default:
			response.InternalError(w, r, "verification failed")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.TokenResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
	})
}

// RefreshToken handles POST /api/auth/refresh/ - rotates the refresh token.
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if req.Refresh == "" {
		response.BadRequest(w, r, "refresh is required", nil)
		return
	}

	pair, err := h.authService.RefreshAccessToken(r.Context(), req.Refresh)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			response.Unauthorized(w, r, "invalid refresh token")
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			response.Unauthorized(w, r, "refresh token has expired")
		case errors.Is(err, auth.ErrUserNotFound):
			response.Unauthorized(w, r, "user not found")
		default:
			response.InternalError(w, r, "token refresh failed")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.TokenResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
	})
}

// Logout handles POST /api/auth/logout/ - revokes the presented refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req models.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if req.Refresh == "" {
		response.BadRequest(w, r, "refresh is required", nil)
		return
	}

	if err := h.authService.RevokeRefreshToken(r.Context(), req.Refresh); err != nil {
		response.InternalError(w, r, "logout failed")
		return
	}

	response.NoContent(w, r)
}
