package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aefields/bastion/internal/metrics"
	"github.com/aefields/bastion/internal/models"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkglogger "github.com/aefields/bastion/pkg/logger"
)

// ResetRequestRepository defines the interface for reset request data access
type ResetRequestRepository interface {
	Create(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error)
	GetByID(ctx context.Context, id string) (*models.ResetRequest, error)
	HasPending(ctx context.Context, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.ResetRequest, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error)
	Resolve(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error)
}

// UserResetHistoryLimit caps how many of their own requests a user sees.
const UserResetHistoryLimit = 5

// ResetService runs the admin-moderated password reset workflow. There is no
// self-service reset: a user submits a justified request, and an admin either
// rejects it or approves it by issuing a temporary password that directly
// replaces the stored credential.
type ResetService struct {
	repo        ResetRequestRepository
	userRepo    UserRepository
	revokeRepo  TokenRevocationRepository
	email       EmailService
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewResetService creates a new ResetService. email may be a NoopEmailService
// when notifications are disabled.
func NewResetService(
	repo ResetRequestRepository,
	userRepo UserRepository,
	revokeRepo TokenRevocationRepository,
	email EmailService,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *ResetService {
	return &ResetService{
		repo:        repo,
		userRepo:    userRepo,
		revokeRepo:  revokeRepo,
		email:       email,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Submit files a new reset request for the account behind email. The
// endpoint is public, so an unresolved identity returns (nil, nil) and the
// caller shows the same generic success it would for a real submission. At
// most one pending request may exist per user; the pending check is a soft
// guard, with the partial unique index on pending rows as the backstop for
// the check-then-insert race.
func (s *ResetService) Submit(ctx context.Context, email, reason, ipAddress, userAgent string) (*models.ResetRequest, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < models.MinResetReasonLength {
		return nil, models.ErrBadRequest
	}

	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("reset request for unknown identity", slog.String("ip_address", ipAddress))
			return nil, nil
		}
		s.logger.Error("failed to resolve reset request identity", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	userID := user.ID

	pending, err := s.repo.HasPending(ctx, userID)
	if err != nil {
		s.logger.Error("failed to check pending reset requests", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if pending {
		return nil, models.ErrDuplicatePendingRequest
	}

	req := &models.ResetRequest{
		UserID:    userID,
		Reason:    reason,
		RequestIP: ipAddress,
		UserAgent: userAgent,
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		// Loser of the check-then-insert race: the partial unique index on
		// pending requests rejected the duplicate.
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrDuplicatePendingRequest
		}
		s.logger.Error("failed to create reset request", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	metrics.ResetTransitions.WithLabelValues("submitted").Inc()
	s.auditLogger.LogResetTransition("reset_submitted", created.ID, userID)
	s.logger.Info("reset request submitted",
		slog.String("request_id", created.ID),
		slog.String("user_id", userID))

	return created, nil
}

// Approve resolves a pending request, optionally issuing a temporary
// password. When one is supplied it directly replaces the user's stored
// credential, remains valid for 24 hours, and existing sessions are revoked.
// An empty tempPassword approves the request without touching the credential
// (the admin handles the reset through another channel).
func (s *ResetService) Approve(ctx context.Context, requestID, adminID, tempPassword, notes string) (*models.ResetRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get reset request", slog.String("request_id", requestID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !req.IsPending() {
		return nil, models.ErrInvalidTransition
	}

	now := time.Now()

	var hash string
	var expires *time.Time
	if tempPassword != "" {
		if err := pkgauth.ValidatePassword(tempPassword); err != nil {
			return nil, err
		}

		hash, err = pkgauth.HashPassword(tempPassword)
		if err != nil {
			s.logger.Error("failed to hash temporary password", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		exp := now.Add(models.TempPasswordValidity)
		expires = &exp
	}

	req.Status = models.ResetStatusApproved
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	req.AdminNotes = notes
	req.TempPasswordHash = hash
	req.TempPasswordExpires = expires

	resolved, err := s.repo.Resolve(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil, models.ErrInvalidTransition
		}
		s.logger.Error("failed to resolve reset request", slog.String("request_id", requestID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if hash != "" {
		// The temporary password becomes the account credential immediately.
		if err := s.userRepo.UpdatePassword(ctx, req.UserID, hash, now); err != nil {
			s.logger.Error("failed to apply temporary password",
				slog.String("request_id", requestID),
				slog.String("user_id", req.UserID),
				slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		if err := s.revokeRepo.RevokeAllUserTokens(ctx, req.UserID, "password_reset_approved"); err != nil {
			s.logger.Error("failed to revoke tokens after reset approval",
				slog.String("user_id", req.UserID), slog.Any("error", err))
		}
	}

	metrics.ResetTransitions.WithLabelValues("approved").Inc()
	s.auditLogger.LogResetTransition("reset_approved", resolved.ID, adminID)
	s.logger.Info("reset request approved",
		slog.String("request_id", resolved.ID),
		slog.String("admin_id", adminID))

	s.notifyResolution(ctx, req.UserID, models.ResetStatusApproved, expires)

	return resolved, nil
}

// Reject resolves a pending request without touching the credential.
func (s *ResetService) Reject(ctx context.Context, requestID, adminID, notes string) (*models.ResetRequest, error) {
	req, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get reset request", slog.String("request_id", requestID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !req.IsPending() {
		return nil, models.ErrInvalidTransition
	}

	now := time.Now()
	req.Status = models.ResetStatusRejected
	req.ProcessedBy = &adminID
	req.ProcessedAt = &now
	req.AdminNotes = notes

	resolved, err := s.repo.Resolve(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil, models.ErrInvalidTransition
		}
		s.logger.Error("failed to resolve reset request", slog.String("request_id", requestID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	metrics.ResetTransitions.WithLabelValues("rejected").Inc()
	s.auditLogger.LogResetTransition("reset_rejected", resolved.ID, adminID)
	s.logger.Info("reset request rejected",
		slog.String("request_id", resolved.ID),
		slog.String("admin_id", adminID))

	s.notifyResolution(ctx, req.UserID, models.ResetStatusRejected, nil)

	return resolved, nil
}

// ListOwn returns the caller's most recent requests, capped at
// UserResetHistoryLimit.
func (s *ResetService) ListOwn(ctx context.Context, userID string) ([]*models.ResetRequest, error) {
	requests, err := s.repo.ListByUser(ctx, userID, UserResetHistoryLimit)
	if err != nil {
		s.logger.Error("failed to list reset requests", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return requests, nil
}

// ListByStatus returns requests in a status for the admin queue.
func (s *ResetService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error) {
	switch status {
	case models.ResetStatusPending, models.ResetStatusApproved, models.ResetStatusRejected:
	default:
		return nil, models.ErrBadRequest
	}

	requests, err := s.repo.ListByStatus(ctx, status, limit, offset)
	if err != nil {
		s.logger.Error("failed to list reset requests", slog.String("status", status), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return requests, nil
}

// notifyResolution emails the requester about the outcome. Delivery is
// best-effort; the resolution itself has already committed.
func (s *ResetService) notifyResolution(ctx context.Context, userID, status string, tempPasswordExpires *time.Time) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user for reset notification",
			slog.String("user_id", userID), slog.Any("error", err))
		return
	}

	if err := s.email.SendResetResolvedEmail(ctx, user.Email, status, tempPasswordExpires); err != nil {
		s.logger.Error("failed to send reset notification",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}
