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

func newTestUserService(repo *MockUserRepository, revokeRepo *MockTokenRevocationRepository) *UserService {
	logger := slog.Default()
	if revokeRepo == nil {
		revokeRepo = &MockTokenRevocationRepository{}
	}
	return NewUserService(repo, revokeRepo, logger, pkglogger.NewAuditLogger(logger))
}

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	user := activeUser(0)
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	svc := newTestUserService(repo, nil)

	err := svc.ChangePassword(context.Background(), user.ID, wrongPassword, "New#Pass1234", "203.0.113.7")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChangePassword_WeakNewPassword(t *testing.T) {
	user := activeUser(0)
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	svc := newTestUserService(repo, nil)

	err := svc.ChangePassword(context.Background(), user.ID, testPassword, "short", "203.0.113.7")
	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestChangePassword_SuccessRevokesSessions(t *testing.T) {
	user := activeUser(0)

	var storedHash string
	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
			storedHash = passwordHash
			return nil
		},
	}

	var revokedReason string
	revokeRepo := &MockTokenRevocationRepository{
		RevokeAllUserTokensFunc: func(ctx context.Context, userID, reason string) error {
			revokedReason = reason
			return nil
		},
	}
	svc := newTestUserService(repo, revokeRepo)

	err := svc.ChangePassword(context.Background(), user.ID, testPassword, "New#Pass1234", "203.0.113.7")

	require.NoError(t, err)
	require.NotEmpty(t, storedHash)
	assert.NoError(t, pkgauth.ComparePassword(storedHash, "New#Pass1234"))
	assert.Equal(t, "password_change", revokedReason)
}

func TestUpdateProfile_OnlyNonEmptyFields(t *testing.T) {
	user := activeUser(0)
	user.Company = "Initech"
	user.Phone = "555-0100"

	repo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		UpdateProfileFunc: func(ctx context.Context, id string, u *models.User) (*models.User, error) {
			return u, nil
		},
	}
	svc := newTestUserService(repo, nil)

	updated, err := svc.UpdateProfile(context.Background(), user.ID, &models.User{FullName: "Alice B"})

	require.NoError(t, err)
	assert.Equal(t, "Alice B", updated.FullName)
	assert.Equal(t, "Initech", updated.Company, "empty fields in the update are left alone")
	assert.Equal(t, "555-0100", updated.Phone)
}

func TestDeactivateUser_NotFound(t *testing.T) {
	repo := &MockUserRepository{
		SetActiveFunc: func(ctx context.Context, id string, active bool) error {
			return models.ErrNotFound
		},
	}
	svc := newTestUserService(repo, nil)

	err := svc.DeactivateUser(context.Background(), "missing", "admin-1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeactivateUser_Success(t *testing.T) {
	var setID string
	var setActive bool
	repo := &MockUserRepository{
		SetActiveFunc: func(ctx context.Context, id string, active bool) error {
			setID = id
			setActive = active
			return nil
		},
	}
	svc := newTestUserService(repo, nil)

	err := svc.DeactivateUser(context.Background(), "user-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", setID)
	assert.False(t, setActive)
}
