package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/handlers"
	"github.com/aefields/bastion/internal/middleware"
	"github.com/aefields/bastion/internal/ratelimit"
	"github.com/aefields/bastion/internal/repositories"
	pkghttp "github.com/aefields/bastion/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	resetHandler *handlers.ResetHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *auth.TokenManager,
	userRepo *repositories.UserRepository,
	revokeRepo *repositories.TokenRevocationRepository,
	limiter *ratelimit.Limiter,
	ipConfig *pkghttp.IPConfig,
) {
	// Public routes. Each state-changing auth endpoint carries its own
	// fixed-window limit keyed by client address; a rejected request never
	// reaches the evaluator, so it leaves no audit row.
	router.With(middleware.EndpointRateLimit(limiter, ratelimit.EndpointLogin, ipConfig)).
		Post("/auth/login", authHandler.Login)
	router.With(middleware.EndpointRateLimit(limiter, ratelimit.EndpointRegister, ipConfig)).
		Post("/auth/register", authHandler.Register)
	router.With(middleware.EndpointRateLimit(limiter, ratelimit.EndpointResetRequest, ipConfig)).
		Post("/auth/reset-requests", resetHandler.Submit)
	router.Post("/auth/refresh", authHandler.RefreshToken)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddlewareWithRevocation(tokenManager, revokeRepo, auth.RevocationConfig{FailClosed: false}))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/password", authHandler.ChangePassword)
		r.Get("/auth/reset-requests", resetHandler.ListOwn)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, "admin"))

			r.Get("/admin/reset-requests", adminHandler.ListResetRequests)
			r.Post("/admin/reset-requests/{id}/approve", adminHandler.ApproveResetRequestHandler)
			r.Post("/admin/reset-requests/{id}/reject", adminHandler.RejectResetRequestHandler)

			r.Get("/admin/login-history", adminHandler.GetLoginHistory)
			r.Delete("/admin/login-history", adminHandler.PurgeLoginHistory)

			r.Get("/admin/dashboard/stats", adminHandler.GetDashboardStats)
		})
	})
}
