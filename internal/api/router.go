// Package api provides the HTTP API for RequestDesk.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/requestdesk/requestdesk/internal/api/handler"
	"github.com/requestdesk/requestdesk/internal/api/middleware"
	"github.com/requestdesk/requestdesk/internal/auth"
	"github.com/requestdesk/requestdesk/internal/request"
	"github.com/requestdesk/requestdesk/internal/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version        string
	BuildTime      string
	Logger         zerolog.Logger
	ServiceName    string
	Metrics        *middleware.Metrics
	AuthService    *auth.Service
	RequestService *request.Service
	Database       handler.Pinger
	Providers      *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "requestdesk-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Database, cfg.Providers)
	authHandler := handler.NewAuthHandler(cfg.AuthService)
	requestHandler := handler.NewRequestHandler(cfg.RequestService)

	// Create auth middleware
	authMiddleware := middleware.Auth(cfg.AuthService)

	// Create rate limit middleware for different endpoint categories
	authRateLimit := middleware.RateLimitByIP(middleware.AuthRateLimit)           // 10 req/min
	uploadRateLimit := middleware.RateLimitByUser(middleware.UploadRateLimit)     // 30 req/min per user
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit) // 100 req/min per user

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints (public) - strict rate limiting
		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimit) // 10 requests per minute per IP
			r.Use(middleware.RequireJSON)
			r.Use(middleware.ContentTypeJSON)
			r.Post("/login/", authHandler.Login)
			r.Post("/verify-2fa/", authHandler.VerifyTwoFactor)
			r.Post("/refresh/", authHandler.RefreshToken)
			r.Post("/logout/", authHandler.Logout)
		})

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/providers", opsHandler.ProviderHealth)
		})

		// Request endpoints (authenticated) - user-based rate limiting.
		// Create and update accept multipart bodies, so the JSON content
		// type guard is not applied here.
		r.Route("/requests", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Get("/", requestHandler.List)
			// Multipart submissions carry file uploads, so creation gets a
			// tighter per-user budget.
			r.With(uploadRateLimit).Post("/", requestHandler.Create)
			r.Get("/stats/", requestHandler.Stats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", requestHandler.Get)
				r.Put("/", requestHandler.Update)
				r.Patch("/", requestHandler.Update)
				r.Delete("/", requestHandler.Delete)
			})
		})
	})

	return r
}
