package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aefields/bastion/internal/models"
	pkglogger "github.com/aefields/bastion/pkg/logger"
)

// AdminUserRepository is the subset of user repository methods AdminService needs.
type AdminUserRepository interface {
	CountTotal(ctx context.Context) (int64, error)
	CountActive(ctx context.Context, active bool) (int64, error)
	CountLocked(ctx context.Context) (int64, error)
}

// AdminAttemptRepository is the subset of attempt repository methods AdminService needs.
type AdminAttemptRepository interface {
	ListRecent(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error)
	CountSince(ctx context.Context, since time.Time) (total int64, failed int64, err error)
	PurgeAll(ctx context.Context) (int64, error)
}

// AdminResetRepository is the subset of reset repository methods AdminService needs.
type AdminResetRepository interface {
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// DashboardStatsResponse contains aggregate admin metrics.
type DashboardStatsResponse struct {
	TotalUsers           int64 `json:"total_users"`
	ActiveUsers          int64 `json:"active_users"`
	DeactivatedUsers     int64 `json:"deactivated_users"`
	LockedUsers          int64 `json:"locked_users"`
	AttemptsLast24h      int64 `json:"attempts_last_24h"`
	FailedLast24h        int64 `json:"failed_last_24h"`
	PendingResetRequests int64 `json:"pending_reset_requests"`
}

// AdminService aggregates data for the admin surface: dashboard stats and
// the login history views.
type AdminService struct {
	userRepo    AdminUserRepository
	attemptRepo AdminAttemptRepository
	resetRepo   AdminResetRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAdminService creates a new AdminService.
func NewAdminService(
	userRepo AdminUserRepository,
	attemptRepo AdminAttemptRepository,
	resetRepo AdminResetRepository,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AdminService {
	return &AdminService{
		userRepo:    userRepo,
		attemptRepo: attemptRepo,
		resetRepo:   resetRepo,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// GetDashboardStats returns aggregate account and attempt counts.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {
	total, err := s.userRepo.CountTotal(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count total users", slog.Any("error", err))
		return nil, err
	}

	active, err := s.userRepo.CountActive(ctx, true)
	if err != nil {
		s.logger.Error("dashboard: failed to count active users", slog.Any("error", err))
		return nil, err
	}

	deactivated, err := s.userRepo.CountActive(ctx, false)
	if err != nil {
		s.logger.Error("dashboard: failed to count deactivated users", slog.Any("error", err))
		return nil, err
	}

	locked, err := s.userRepo.CountLocked(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count locked users", slog.Any("error", err))
		return nil, err
	}

	attempts, failed, err := s.attemptRepo.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		s.logger.Error("dashboard: failed to count attempts", slog.Any("error", err))
		return nil, err
	}

	pending, err := s.resetRepo.CountByStatus(ctx, models.ResetStatusPending)
	if err != nil {
		s.logger.Error("dashboard: failed to count pending resets", slog.Any("error", err))
		return nil, err
	}

	return &DashboardStatsResponse{
		TotalUsers:           total,
		ActiveUsers:          active,
		DeactivatedUsers:     deactivated,
		LockedUsers:          locked,
		AttemptsLast24h:      attempts,
		FailedLast24h:        failed,
		PendingResetRequests: pending,
	}, nil
}

// GetLoginHistory returns the attempt audit trail newest-first. limit is
// clamped to a maximum of 100.
func (s *AdminService) GetLoginHistory(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	attempts, err := s.attemptRepo.ListRecent(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list login history", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return attempts, nil
}

// GetUserLoginHistory returns one account's attempt history.
func (s *AdminService) GetUserLoginHistory(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	attempts, err := s.attemptRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		s.logger.Error("failed to list user login history",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return attempts, nil
}

// PurgeLoginHistory deletes the entire attempt audit trail. This is the only
// way attempt records are ever removed; nothing deletes them automatically.
func (s *AdminService) PurgeLoginHistory(ctx context.Context, actorID string) (int64, error) {
	deleted, err := s.attemptRepo.PurgeAll(ctx)
	if err != nil {
		s.logger.Error("failed to purge login history", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	s.auditLogger.LogAccountAction("login_history_purged", actorID, "", map[string]string{
		"deleted_rows": strconv.FormatInt(deleted, 10),
	})
	s.logger.Warn("login history purged",
		slog.String("actor_id", actorID),
		slog.Int64("deleted_rows", deleted))

	return deleted, nil
}
