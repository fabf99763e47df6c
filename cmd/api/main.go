package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/background"
	"github.com/aefields/bastion/internal/config"
	"github.com/aefields/bastion/internal/database"
	"github.com/aefields/bastion/internal/handlers"
	"github.com/aefields/bastion/internal/metrics"
	middlewareCustom "github.com/aefields/bastion/internal/middleware"
	"github.com/aefields/bastion/internal/models"
	"github.com/aefields/bastion/internal/ratelimit"
	"github.com/aefields/bastion/internal/repositories"
	"github.com/aefields/bastion/internal/routes"
	"github.com/aefields/bastion/internal/services"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkghttp "github.com/aefields/bastion/pkg/http"
	pkglogger "github.com/aefields/bastion/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	resetRepo := repositories.NewResetRequestRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(revokeRepo, logger, cfg.Auth.CleanupInterval)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.RememberedRefreshExpiry,
	)

	// Enable composite signing with per-user TokenKey
	tokenManager.SetUserRepo(userRepo)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Rate limit store and per-endpoint policies
	rateStore, err := newRateStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize rate store", slog.Any("error", err))
		os.Exit(1)
	}
	limiter := ratelimit.NewLimiter(rateStore, map[string]ratelimit.Policy{
		ratelimit.EndpointLogin:        {Limit: cfg.RateLimit.Login.Limit, Window: cfg.RateLimit.Login.Window},
		ratelimit.EndpointRegister:     {Limit: cfg.RateLimit.Register.Limit, Window: cfg.RateLimit.Register.Window},
		ratelimit.EndpointResetRequest: {Limit: cfg.RateLimit.ResetRequest.Limit, Window: cfg.RateLimit.ResetRequest.Window},
	}, logger)

	// Timing delay for the login evaluator
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	// Reset resolution notifications go out via SES when enabled
	var emailService services.EmailService
	if cfg.Email.Enabled {
		emailService, err = services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		emailService = services.NoopEmailService{}
	}

	// Initialize services
	authService := services.NewAuthService(userRepo, attemptRepo, revokeRepo, tokenManager, timingDelay, logger, auditLogger)
	userService := services.NewUserService(userRepo, revokeRepo, logger, auditLogger)
	resetService := services.NewResetService(resetRepo, userRepo, revokeRepo, emailService, logger, auditLogger)
	adminService := services.NewAdminService(userRepo, attemptRepo, resetRepo, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, userService, ipConfig)
	resetHandler := handlers.NewResetHandler(resetService, ipConfig)
	adminHandler := handlers.NewAdminHandler(resetService, adminService)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(middlewareCustom.GlobalRateLimit(300))

	// Register routes
	routes.RegisterRoutes(router, authHandler, resetHandler, adminHandler, tokenManager, userRepo, revokeRepo, limiter, ipConfig)

	// Prometheus metrics
	router.Handle("/metrics", metrics.Handler())

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newRateStore selects the rate-limit window store from configuration.
func newRateStore(cfg *config.Config, logger *slog.Logger) (ratelimit.Store, error) {
	switch cfg.RateStore.Driver {
	case "redis":
		logger.Info("using redis rate store", slog.String("addr", cfg.RateStore.RedisAddr))
		return ratelimit.NewRedisStore(cfg.RateStore.RedisAddr, cfg.RateStore.RedisPassword, cfg.RateStore.RedisDB)
	default:
		return ratelimit.NewMemoryStore(), nil
	}
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	// Check if admin already exists
	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	if err := pkgauth.ValidatePassword(adminPassword); err != nil {
		return fmt.Errorf("admin password rejected: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		FullName:     "Admin",
		Role:         "admin",
		IsActive:     true,
		IsVerified:   true,
	}

	_, err = userRepo.Create(ctx, admin)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
