package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aefields/bastion/internal/models"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkglogger "github.com/aefields/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tempPassword = "Temp#Pass1234"

func newTestResetService(repo *MockResetRequestRepository, userRepo *MockUserRepository, email *MockEmailService) *ResetService {
	logger := slog.Default()
	if email == nil {
		email = &MockEmailService{}
	}
	return NewResetService(
		repo,
		userRepo,
		&MockTokenRevocationRepository{},
		email,
		logger,
		pkglogger.NewAuditLogger(logger),
	)
}

func pendingRequest() *models.ResetRequest {
	return &models.ResetRequest{
		ID:        "req-1",
		UserID:    "user-1",
		Reason:    "forgot my password after vacation",
		Status:    models.ResetStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func resetUserRepo() *MockUserRepository {
	return &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if email == "alice@example.com" {
				return &models.User{ID: "user-1", Email: email}, nil
			}
			return nil, models.ErrNotFound
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Email: "alice@example.com"}, nil
		},
	}
}

func TestSubmit_ShortReasonRejected(t *testing.T) {
	svc := newTestResetService(&MockResetRequestRepository{}, resetUserRepo(), nil)

	_, err := svc.Submit(context.Background(), "alice@example.com", "help", "203.0.113.7", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	// Whitespace padding does not help.
	_, err = svc.Submit(context.Background(), "alice@example.com", "  hi     \t ", "203.0.113.7", "agent")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestSubmit_UnknownIdentitySilentlyDropped(t *testing.T) {
	created := false
	repo := &MockResetRequestRepository{
		CreateFunc: func(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
			created = true
			return req, nil
		},
	}
	svc := newTestResetService(repo, resetUserRepo(), nil)

	req, err := svc.Submit(context.Background(), "ghost@example.com", "forgot my password after vacation", "203.0.113.7", "agent")

	// No error and no request: the caller shows the same generic success.
	assert.NoError(t, err)
	assert.Nil(t, req)
	assert.False(t, created)
}

func TestSubmit_DuplicatePendingRejected(t *testing.T) {
	repo := &MockResetRequestRepository{
		HasPendingFunc: func(ctx context.Context, userID string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestResetService(repo, resetUserRepo(), nil)

	_, err := svc.Submit(context.Background(), "alice@example.com", "forgot my password after vacation", "203.0.113.7", "agent")
	assert.ErrorIs(t, err, models.ErrDuplicatePendingRequest)
}

func TestSubmit_Success(t *testing.T) {
	var created *models.ResetRequest
	repo := &MockResetRequestRepository{
		CreateFunc: func(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
			req.ID = "req-1"
			req.Status = models.ResetStatusPending
			created = req
			return req, nil
		},
	}
	svc := newTestResetService(repo, resetUserRepo(), nil)

	req, err := svc.Submit(context.Background(), "  Alice@Example.COM ", "forgot my password after vacation", "203.0.113.7", "agent")

	require.NoError(t, err)
	assert.Equal(t, models.ResetStatusPending, req.Status)
	require.NotNil(t, created)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, "203.0.113.7", created.RequestIP)
}

func TestApprove_ReplacesCredentialAndNotifies(t *testing.T) {
	req := pendingRequest()
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
	}

	var newHash string
	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Email: "alice@example.com"}, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			assert.Equal(t, "user-1", id)
			newHash = passwordHash
			return nil
		},
	}
	email := &MockEmailService{}
	svc := newTestResetService(repo, userRepo, email)

	resolved, err := svc.Approve(context.Background(), "req-1", "admin-1", tempPassword, "identity confirmed by phone")

	require.NoError(t, err)
	assert.Equal(t, models.ResetStatusApproved, resolved.Status)
	require.NotNil(t, resolved.ProcessedBy)
	assert.Equal(t, "admin-1", *resolved.ProcessedBy)

	// The temporary password is now the real credential.
	require.NotEmpty(t, newHash)
	assert.NoError(t, pkgauth.ComparePassword(newHash, tempPassword))

	// 24h expiry stamped on the request.
	require.NotNil(t, resolved.TempPasswordExpires)
	assert.InDelta(t, time.Until(*resolved.TempPasswordExpires).Hours(), 24, 0.1)

	require.Len(t, email.SentTo, 1)
	assert.Equal(t, "alice@example.com", email.SentTo[0])
	assert.Equal(t, models.ResetStatusApproved, email.SentStatuses[0])
}

func TestSubmit_InsertRaceLoserMapsToDuplicate(t *testing.T) {
	// The pending check passed but the partial unique index rejected the
	// insert: another submission won the race. The caller sees the same
	// duplicate error as the soft check.
	repo := &MockResetRequestRepository{
		CreateFunc: func(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
			return nil, models.ErrConflict
		},
	}
	svc := newTestResetService(repo, resetUserRepo(), nil)

	_, err := svc.Submit(context.Background(), "alice@example.com", "forgot my password after vacation", "203.0.113.7", "agent")
	assert.ErrorIs(t, err, models.ErrDuplicatePendingRequest)
}

func TestApprove_WithoutTempPasswordLeavesCredential(t *testing.T) {
	// Approval without a temporary password resolves the request and
	// notifies the user, but never touches the credential or the user's
	// sessions.
	req := pendingRequest()
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
	}

	credentialTouched := false
	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Email: "alice@example.com"}, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			credentialTouched = true
			return nil
		},
	}
	tokensRevoked := false
	revokeRepo := &MockTokenRevocationRepository{
		RevokeAllUserTokensFunc: func(ctx context.Context, userID, reason string) error {
			tokensRevoked = true
			return nil
		},
	}
	var sentExpiry *time.Time
	email := &MockEmailService{
		SendResetResolvedEmailFunc: func(ctx context.Context, e, s string, exp *time.Time) error {
			sentExpiry = exp
			return nil
		},
	}
	logger := slog.Default()
	svc := NewResetService(repo, userRepo, revokeRepo, email, logger, pkglogger.NewAuditLogger(logger))

	resolved, err := svc.Approve(context.Background(), "req-1", "admin-1", "", "handled over the phone")

	require.NoError(t, err)
	assert.Equal(t, models.ResetStatusApproved, resolved.Status)
	assert.Empty(t, resolved.TempPasswordHash)
	assert.Nil(t, resolved.TempPasswordExpires)
	assert.False(t, credentialTouched, "no temp password, no credential change")
	assert.False(t, tokensRevoked, "existing sessions stay valid")

	require.Len(t, email.SentStatuses, 1)
	assert.Equal(t, models.ResetStatusApproved, email.SentStatuses[0])
	assert.Nil(t, sentExpiry)
}

func TestApprove_WeakTempPasswordRejected(t *testing.T) {
	req := pendingRequest()
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
	}
	svc := newTestResetService(repo, &MockUserRepository{}, nil)

	_, err := svc.Approve(context.Background(), "req-1", "admin-1", "weak", "")
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestApprove_NonPendingRejected(t *testing.T) {
	req := pendingRequest()
	req.Status = models.ResetStatusApproved
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
	}
	svc := newTestResetService(repo, &MockUserRepository{}, nil)

	_, err := svc.Approve(context.Background(), "req-1", "admin-1", tempPassword, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestApprove_ConcurrentResolutionLoses(t *testing.T) {
	// The request looks pending at read time but another admin resolves it
	// first; the repository's guarded update reports the conflict.
	req := pendingRequest()
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
		ResolveFunc: func(ctx context.Context, r *models.ResetRequest) (*models.ResetRequest, error) {
			return nil, models.ErrInvalidTransition
		},
	}

	credentialTouched := false
	userRepo := &MockUserRepository{
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			credentialTouched = true
			return nil
		},
	}
	svc := newTestResetService(repo, userRepo, nil)

	_, err := svc.Approve(context.Background(), "req-1", "admin-2", tempPassword, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.False(t, credentialTouched, "losing admin must not touch the credential")
}

func TestReject_DoesNotTouchCredential(t *testing.T) {
	req := pendingRequest()
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
	}

	credentialTouched := false
	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Email: "alice@example.com"}, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			credentialTouched = true
			return nil
		},
	}
	email := &MockEmailService{}
	svc := newTestResetService(repo, userRepo, email)

	resolved, err := svc.Reject(context.Background(), "req-1", "admin-1", "could not verify identity")

	require.NoError(t, err)
	assert.Equal(t, models.ResetStatusRejected, resolved.Status)
	assert.False(t, credentialTouched)
	assert.Empty(t, resolved.TempPasswordHash)

	require.Len(t, email.SentStatuses, 1)
	assert.Equal(t, models.ResetStatusRejected, email.SentStatuses[0])
}

func TestListByStatus_UnknownStatusRejected(t *testing.T) {
	svc := newTestResetService(&MockResetRequestRepository{}, &MockUserRepository{}, nil)

	_, err := svc.ListByStatus(context.Background(), "resolved", 20, 0)
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestListOwn_UsesHistoryLimit(t *testing.T) {
	var gotLimit int
	repo := &MockResetRequestRepository{
		ListByUserFunc: func(ctx context.Context, userID string, limit int) ([]*models.ResetRequest, error) {
			gotLimit = limit
			return []*models.ResetRequest{}, nil
		},
	}
	svc := newTestResetService(repo, &MockUserRepository{}, nil)

	_, err := svc.ListOwn(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, UserResetHistoryLimit, gotLimit)
}

func TestApprove_EmailFailureDoesNotFailApproval(t *testing.T) {
	req := pendingRequest()
	repo := &MockResetRequestRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.ResetRequest, error) {
			return req, nil
		},
	}
	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Email: "alice@example.com"}, nil
		},
	}
	email := &MockEmailService{
		SendResetResolvedEmailFunc: func(ctx context.Context, e, s string, exp *time.Time) error {
			return models.ErrInternalServer
		},
	}
	svc := newTestResetService(repo, userRepo, email)

	resolved, err := svc.Approve(context.Background(), "req-1", "admin-1", tempPassword, "")
	require.NoError(t, err)
	assert.Equal(t, models.ResetStatusApproved, resolved.Status)
}
