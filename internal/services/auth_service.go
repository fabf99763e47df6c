package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/metrics"
	"github.com/aefields/bastion/internal/models"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkglogger "github.com/aefields/bastion/pkg/logger"
)

// LoginAttemptRecorder persists one immutable audit row per evaluated attempt.
type LoginAttemptRecorder interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
}

// TokenRevocationRepository defines the interface for token revocation operations
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	RevokeAllUserTokens(ctx context.Context, userID, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthService evaluates login attempts and manages sessions.
type AuthService struct {
	repo        UserRepository
	attemptRepo LoginAttemptRecorder
	revokeRepo  TokenRevocationRepository
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	attemptRepo LoginAttemptRecorder,
	revokeRepo TokenRevocationRepository,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		attemptRepo: attemptRepo,
		revokeRepo:  revokeRepo,
		tm:          tm,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// LoginInput carries one credential submission plus its client context.
type LoginInput struct {
	Email     string
	Password  string
	Remember  bool
	IPAddress string
	UserAgent string
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login evaluates one credential submission. Every evaluated attempt writes
// exactly one audit row, whether or not the email resolved to an account.
// Unknown identity and wrong password both come back as
// models.ErrInvalidCredentials; only locks on accounts that already proved
// to exist are disclosed.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	start := time.Now()
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a bcrypt comparison so this path costs the same as a
			// wrong password against a real account.
			pkgauth.CompareDummy(input.Password)
			s.recordAttempt(ctx, nil, email, input, false, models.FailureInvalidCredentials)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user.IsLocked() {
		remaining := user.LockoutRemainingMinutes()
		s.recordAttempt(ctx, user, email, input, false, models.FailureAccountLocked)
		s.timing.WaitFrom(start, false)
		return nil, &models.LockoutError{RemainingMinutes: remaining}
	}

	// Deactivated accounts short-circuit before the password is ever
	// checked; the failure counter stays untouched.
	if !user.IsActive {
		s.recordAttempt(ctx, user, email, input, false, models.FailureAccountInactive)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrAccountInactive
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, input.Password); err != nil {
		s.registerFailure(ctx, user)
		s.recordAttempt(ctx, user, email, input, false, models.FailureInvalidCredentials)
		s.timing.WaitFrom(start, false)
		return nil, models.ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.repo.RecordLoginSuccess(ctx, user.ID, input.IPAddress, now); err != nil {
		s.logger.Error("failed to record login success",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}

	s.recordAttempt(ctx, user, email, input, true, "")

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email, user.Role, input.Remember)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.timing.WaitFrom(start, true)

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// registerFailure bumps the failure counter and applies a progressive lockout
// once the count reaches the threshold: 5, 10, 20, 40 minutes, capped at 60.
// The attempt that crosses the threshold still reports invalid credentials;
// the lock surfaces on the next attempt.
func (s *AuthService) registerFailure(ctx context.Context, user *models.User) {
	failedAttempts := user.FailedLoginAttempts + 1

	var lockedUntil *time.Time
	if d := models.NextLockoutDuration(failedAttempts); d > 0 {
		until := time.Now().Add(d)
		lockedUntil = &until
		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", user.ID),
			slog.Int("failed_attempts", failedAttempts),
			slog.Time("locked_until", until))
	}

	if err := s.repo.RecordLoginFailure(ctx, user.ID, failedAttempts, lockedUntil); err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("user_id", user.ID), slog.Any("error", err))
	}
}

// recordAttempt writes the audit row, bumps the outcome counter and emits the
// structured audit event. A failed audit write is logged but does not change
// the login outcome.
func (s *AuthService) recordAttempt(ctx context.Context, user *models.User, email string, input LoginInput, success bool, failureReason string) {
	attempt := &models.LoginAttempt{
		EmailAttempted: email,
		IPAddress:      input.IPAddress,
		UserAgent:      input.UserAgent,
		Success:        success,
		FailureReason:  failureReason,
		AttemptedAt:    time.Now(),
	}

	var userID string
	if user != nil {
		userID = user.ID
		attempt.UserID = &user.ID
	}

	if err := s.attemptRepo.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("ip_address", input.IPAddress), slog.Any("error", err))
	}

	outcome := failureReason
	if success {
		outcome = "success"
	}
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()

	eventType := "login_failed"
	if success {
		eventType = "login_success"
	}
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		Email:         email,
		IPAddress:     input.IPAddress,
		UserAgent:     input.UserAgent,
		Success:       success,
		FailureReason: failureReason,
	})
}

// Register creates a new user account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password, fullName, ipAddress string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	user := &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		FullName:          fullName,
		Role:              "user",
		IsActive:          true,
		PasswordChangedAt: &now,
	}

	createdUser, err := s.repo.Create(ctx, user)
	if err != nil {
		s.logger.Error("failed to create user", slog.Any("error", err))
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		return nil, models.ErrInternalServer
	}

	accessToken, err := s.tm.GenerateAccessToken(createdUser.ID, createdUser.Email, createdUser.Role)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", createdUser.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(createdUser.ID, createdUser.Email, createdUser.Role, false)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", createdUser.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.auditLogger.LogAccountAction("user_registered", createdUser.ID, ipAddress, nil)

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(createdUser),
	}, nil
}

// RefreshToken generates a new token pair from a refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.logger.Info("token refresh blocked: account inactive", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}
	if user.IsLocked() {
		s.logger.Info("token refresh blocked: account locked", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	// Invalidate tokens issued before the last password change.
	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(*user.PasswordChangedAt) {
			s.logger.Info("token refresh blocked: issued before password change",
				slog.String("user_id", user.ID))
			return nil, models.ErrUnauthorized
		}
	}

	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	newRefreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email, user.Role, false)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// Logout revokes the current access token
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tm.ValidateToken(accessToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	expiresAt := claims.ExpiresAt.Time
	err = s.revokeRepo.RevokeToken(ctx, claims.ID, claims.UserID, claims.Type, expiresAt, "logout")
	if err != nil {
		s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out", slog.String("user_id", claims.UserID))
	return nil
}

// LogoutAll revokes all tokens for the current user ("logout all devices")
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	err := s.revokeRepo.RevokeAllUserTokens(ctx, userID, "logout_all")
	if err != nil {
		s.logger.Error("failed to revoke all user tokens", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Rotate the TokenKey too, which invalidates any token not yet in the
	// revocation list.
	newTokenKey, err := pkgauth.GenerateTokenKey()
	if err != nil {
		s.logger.Error("failed to generate new token key", slog.Any("error", err))
		return models.ErrInternalServer
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to get user for token key rotation", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	user.TokenKey = newTokenKey

	_, err = s.repo.Update(ctx, userID, user)
	if err != nil {
		s.logger.Error("failed to update token key", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user logged out from all devices", slog.String("user_id", userID))
	return nil
}

// userModelToResponse converts a user model to a response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Company:    user.Company,
		Phone:      user.Phone,
		Role:       user.Role,
		IsVerified: user.IsVerified,
		CreatedAt:  user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  user.UpdatedAt.Format(time.RFC3339),
	}
}
