package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Predefined service errors.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CodeNotifier delivers an issued 2FA code to the user, typically by
// publishing an email event consumed by the notification worker.
type CodeNotifier interface {
	TwoFactorCodeIssued(ctx context.Context, user *User, code string) error
}

// Service provides authentication operations: password login, 2FA code
// verification, and token issuance with refresh rotation.
type Service struct {
	jwtService  *JWTService
	userRepo    UserRepository
	refreshRepo RefreshTokenRepository
	codes       CodeStore
	notifier    CodeNotifier
	logger      zerolog.Logger
}

// ServiceConfig holds configuration for the auth service.
type ServiceConfig struct {
	JWTService  *JWTService
	UserRepo    UserRepository
	RefreshRepo RefreshTokenRepository
	Codes       CodeStore
	Notifier    CodeNotifier
	Logger      zerolog.Logger
}

// NewService creates a new auth service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		jwtService:  cfg.JWTService,
		userRepo:    cfg.UserRepo,
		refreshRepo: cfg.RefreshRepo,
		codes:       cfg.Codes,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
	}
}

// Login verifies the username/password pair and, on success, issues a 2FA
// code and dispatches it to the user. No tokens are returned until the code
// is verified.
func (s *Service) Login(ctx context.Context, username, password string) error {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("finding user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return ErrInvalidCredentials
	}

	code, err := GenerateTwoFactorCode()
	if err != nil {
		return err
	}

	if err := s.codes.Put(ctx, user.Username, code, TwoFactorCodeTTL); err != nil {
		return fmt.Errorf("storing 2fa code: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.TwoFactorCodeIssued(ctx, user, code); err != nil {
			// The code is stored; delivery failure is logged and the user
			// may retry the login to get a fresh code.
			s.logger.Error().Err(err).Str("username", user.Username).Msg("failed to dispatch 2fa code")
		}
	}

	return nil
}

// VerifyTwoFactor consumes a valid 2FA code and returns an access/refresh
// token pair.
func (s *Service) VerifyTwoFactor(ctx context.Context, username, code string) (*TokenPair, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrCodeInvalid
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}

	if err := s.codes.Consume(ctx, user.Username, code); err != nil {
		return nil, err
	}

	return s.generateTokens(ctx, user)
}

// RefreshAccessToken rotates a refresh token and returns a new token pair.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshTokenStr string) (*TokenPair, error) {
	refreshToken, err := s.refreshRepo.FindByToken(ctx, refreshTokenStr)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	if refreshToken.RevokedAt != nil {
		return nil, ErrInvalidRefreshToken
	}

	if time.Now().After(refreshToken.ExpiresAt) {
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.userRepo.FindByID(ctx, refreshToken.UserID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	// Rotation: each refresh revokes the presented token.
	if err := s.refreshRepo.Revoke(ctx, refreshTokenStr); err != nil {
		return nil, fmt.Errorf("revoking old refresh token: %w", err)
	}

	return s.generateTokens(ctx, user)
}

// RevokeRefreshToken revokes a refresh token (logout).
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshTokenStr string) error {
	return s.refreshRepo.Revoke(ctx, refreshTokenStr)
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *Service) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	return s.jwtService.ValidateAccessToken(tokenString)
}

// generateTokens creates an access/refresh token pair for the user.
func (s *Service) generateTokens(ctx context.Context, user *User) (*TokenPair, error) {
	access, expiresAt, err := s.jwtService.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}

	refreshValue, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refresh := &RefreshToken{
		ID:        "rt_" + uuid.New().String()[:22],
		Token:     refreshValue,
		UserID:    user.ID,
		ExpiresAt: now.Add(RefreshTokenExpiry),
		CreatedAt: now,
	}

	if err := s.refreshRepo.Create(ctx, refresh); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return &TokenPair{
		Access:    access,
		Refresh:   refreshValue,
		ExpiresIn: int64(time.Until(expiresAt).Seconds()),
	}, nil
}
