package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aefields/bastion/internal/models"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkglogger "github.com/aefields/bastion/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, user *models.User) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	RecordLoginFailure(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id string, ip string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

// UserService handles profile and credential business logic
type UserService struct {
	repo        UserRepository
	revokeRepo  TokenRevocationRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewUserService creates a new UserService
func NewUserService(repo UserRepository, revokeRepo TokenRevocationRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		revokeRepo:  revokeRepo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// ListUsers retrieves a list of users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// UpdateProfile applies user-editable profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update *models.User) (*models.User, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if update.FullName != "" {
		existing.FullName = update.FullName
	}
	if update.Company != "" {
		existing.Company = update.Company
	}
	if update.Phone != "" {
		existing.Phone = update.Phone
	}

	updated, err := s.repo.UpdateProfile(ctx, id, existing)
	if err != nil {
		s.logger.Error("failed to update profile", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("profile updated", slog.String("user_id", id))
	return updated, nil
}

// ChangePassword replaces the caller's credential after verifying the
// current one. All existing sessions are invalidated.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		s.auditLogger.LogPasswordChange(userID, ipAddress, false)
		return models.ErrUnauthorized
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, userID, hash, time.Now()); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.revokeRepo.RevokeAllUserTokens(ctx, userID, "password_change"); err != nil {
		s.logger.Error("failed to revoke tokens after password change",
			slog.String("user_id", userID), slog.Any("error", err))
	}

	s.auditLogger.LogPasswordChange(userID, ipAddress, true)
	s.logger.Info("password changed", slog.String("user_id", userID))
	return nil
}

// DeactivateUser soft-deactivates an account. Deactivated accounts fail
// login with a distinct audit reason but keep their data and history.
func (s *UserService) DeactivateUser(ctx context.Context, id, actorID string) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to deactivate user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("user_deactivated", id, "", map[string]string{"actor_id": actorID})
	s.logger.Info("user deactivated", slog.String("user_id", id), slog.String("actor_id", actorID))
	return nil
}

// ReactivateUser re-enables a previously deactivated account.
func (s *UserService) ReactivateUser(ctx context.Context, id, actorID string) error {
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to reactivate user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("user_reactivated", id, "", map[string]string{"actor_id": actorID})
	s.logger.Info("user reactivated", slog.String("user_id", id), slog.String("actor_id", actorID))
	return nil
}
