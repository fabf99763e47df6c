package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/config"
	"github.com/aefields/bastion/internal/database"
	"github.com/aefields/bastion/internal/handlers"
	"github.com/aefields/bastion/internal/ratelimit"
	"github.com/aefields/bastion/internal/repositories"
	"github.com/aefields/bastion/internal/routes"
	"github.com/aefields/bastion/internal/services"
	pkghttp "github.com/aefields/bastion/pkg/http"
	pkglogger "github.com/aefields/bastion/pkg/logger"
)

// SentEmail represents a captured reset-resolution notification
type SentEmail struct {
	To                  string
	Status              string
	TempPasswordExpires *time.Time
}

// CapturingEmailService records notifications for test assertions
type CapturingEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

func (m *CapturingEmailService) SendResetResolvedEmail(ctx context.Context, email, status string, tempPasswordExpires *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:                  email,
		Status:              status,
		TempPasswordExpires: tempPasswordExpires,
	})
	return nil
}

// GetLastEmail returns the most recent captured notification
func (m *CapturingEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *CapturingEmailService
	Config       *config.Config
	Limiter      *ratelimit.Limiter

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database and
// captured email. Timing delays are zeroed so lockout tests run fast.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:       15 * time.Minute,
			RefreshTokenExpiry:      7 * 24 * time.Hour,
			RememberedRefreshExpiry: 30 * 24 * time.Hour,
			CleanupInterval:         1 * time.Hour,
			TimingDelayBaseMs:       0,
			TimingDelayRandomMs:     0,
			TimingDelayOnSuccess:    false,
		},
		RateLimit: config.RateLimitConfig{
			Login:        config.EndpointLimit{Limit: 100, Window: time.Minute},
			Register:     config.EndpointLimit{Limit: 100, Window: time.Hour},
			ResetRequest: config.EndpointLimit{Limit: 100, Window: time.Hour},
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
			TrustedProxies: []string{},
		},
	}

	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	resetRepo := repositories.NewResetRequestRepository(db)
	revokeRepo := repositories.NewTokenRevocationRepository(db)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
		cfg.Auth.RememberedRefreshExpiry,
	)
	tokenManager.SetUserRepo(userRepo)

	auditLogger := pkglogger.NewAuditLogger(logger)

	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), map[string]ratelimit.Policy{
		ratelimit.EndpointLogin:        {Limit: cfg.RateLimit.Login.Limit, Window: cfg.RateLimit.Login.Window},
		ratelimit.EndpointRegister:     {Limit: cfg.RateLimit.Register.Limit, Window: cfg.RateLimit.Register.Window},
		ratelimit.EndpointResetRequest: {Limit: cfg.RateLimit.ResetRequest.Limit, Window: cfg.RateLimit.ResetRequest.Window},
	}, logger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:    cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs:  cfg.Auth.TimingDelayRandomMs,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	emailService := &CapturingEmailService{}

	authService := services.NewAuthService(userRepo, attemptRepo, revokeRepo, tokenManager, timingDelay, logger, auditLogger)
	userService := services.NewUserService(userRepo, revokeRepo, logger, auditLogger)
	resetService := services.NewResetService(resetRepo, userRepo, revokeRepo, emailService, logger, auditLogger)
	adminService := services.NewAdminService(userRepo, attemptRepo, resetRepo, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	authHandler := handlers.NewAuthHandler(authService, userService, ipConfig)
	resetHandler := handlers.NewResetHandler(resetService, ipConfig)
	adminHandler := handlers.NewAdminHandler(resetService, adminService)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(router, authHandler, resetHandler, adminHandler, tokenManager, userRepo, revokeRepo, limiter, ipConfig)

	server := httptest.NewServer(router)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: emailService,
		Config:       cfg,
		Limiter:      limiter,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// DoJSON sends a JSON request with optional bearer token and decodes the response
func (ts *TestServer) DoJSON(method, path, token string, body interface{}, target interface{}) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if target != nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, target); err != nil {
				return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
			}
		}
	}

	return resp.StatusCode, nil
}

// LoginAs performs a login and returns the access token
func (ts *TestServer) LoginAs(email, password string) (string, error) {
	var resp services.AuthResponse
	status, err := ts.DoJSON("POST", "/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", status)
	}
	return resp.AccessToken, nil
}
