package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/models"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkglogger "github.com/aefields/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPassword  = "Correct#Pass1"
	wrongPassword = "Wrong#Pass999"
)

var testPasswordHash string

func init() {
	var err error
	testPasswordHash, err = pkgauth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
}

func newTestAuthService(userRepo *MockUserRepository, attemptRepo *MockLoginAttemptRepository) *AuthService {
	logger := slog.Default()
	tm := auth.NewTokenManager("test-secret-0123456789-0123456789", 15*time.Minute, 24*time.Hour, 30*24*time.Hour)
	timing := auth.NewTimingDelay(auth.TimingConfig{}) // no artificial delay in tests
	return NewAuthService(
		userRepo,
		attemptRepo,
		&MockTokenRevocationRepository{},
		tm,
		timing,
		logger,
		pkglogger.NewAuditLogger(logger),
	)
}

func activeUser(failedAttempts int) *models.User {
	return &models.User{
		ID:                  "user-1",
		Email:               "alice@example.com",
		PasswordHash:        testPasswordHash,
		FullName:            "Alice",
		Role:                "user",
		IsActive:            true,
		FailedLoginAttempts: failedAttempts,
		CreatedAt:           time.Now(),
		UpdatedAt:           time.Now(),
	}
}

func loginInput(email, password string) LoginInput {
	return LoginInput{
		Email:     email,
		Password:  password,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	userRepo := &MockUserRepository{} // GetByEmail defaults to ErrNotFound
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	resp, err := svc.Login(context.Background(), loginInput("ghost@example.com", testPassword))

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	// Exactly one audit row, with the unresolved email and no user ID.
	require.Len(t, attemptRepo.Recorded, 1)
	rec := attemptRepo.Recorded[0]
	assert.Nil(t, rec.UserID)
	assert.Equal(t, "ghost@example.com", rec.EmailAttempted)
	assert.Equal(t, "203.0.113.7", rec.IPAddress)
	assert.False(t, rec.Success)
	assert.Equal(t, models.FailureInvalidCredentials, rec.FailureReason)
}

func TestLogin_WrongPasswordIncrementsCounter(t *testing.T) {
	user := activeUser(2)
	var gotAttempts int
	var gotLockedUntil *time.Time

	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
			gotAttempts = failedAttempts
			gotLockedUntil = lockedUntil
			return nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	_, err := svc.Login(context.Background(), loginInput(user.Email, wrongPassword))

	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	assert.Equal(t, 3, gotAttempts)
	assert.Nil(t, gotLockedUntil, "no lockout below the threshold")

	require.Len(t, attemptRepo.Recorded, 1)
	rec := attemptRepo.Recorded[0]
	require.NotNil(t, rec.UserID)
	assert.Equal(t, user.ID, *rec.UserID)
	assert.Equal(t, models.FailureInvalidCredentials, rec.FailureReason)
}

func TestLogin_FifthFailureLocksAccount(t *testing.T) {
	user := activeUser(4) // this attempt is the 5th consecutive failure
	var gotLockedUntil *time.Time

	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
			gotLockedUntil = lockedUntil
			return nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	_, err := svc.Login(context.Background(), loginInput(user.Email, wrongPassword))

	// The threshold-crossing attempt still reports invalid credentials.
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	require.NotNil(t, gotLockedUntil, "5th failure should set a lockout")
	remaining := time.Until(*gotLockedUntil)
	assert.InDelta(t, (5 * time.Minute).Seconds(), remaining.Seconds(), 5)
}

func TestLockoutProgression(t *testing.T) {
	tests := []struct {
		failedAttempts int
		wantMinutes    int
	}{
		{4, 0},
		{5, 5},
		{6, 10},
		{7, 20},
		{8, 40},
		{9, 60}, // 80 capped
		{15, 60},
		// Long-running counters must stay at the cap; the shift would
		// otherwise overflow and drop the lockout to zero.
		{66, 60},
		{1000, 60},
	}

	for _, tt := range tests {
		d := models.NextLockoutDuration(tt.failedAttempts)
		assert.Equal(t, time.Duration(tt.wantMinutes)*time.Minute, d,
			"failure count %d", tt.failedAttempts)
	}
}

func TestLogin_LockedAccount(t *testing.T) {
	user := activeUser(5)
	until := time.Now().Add(7*time.Minute + 30*time.Second)
	user.LockedUntil = &until

	failureRecorded := false
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
			failureRecorded = true
			return nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	// Even the correct password is rejected during lockout.
	resp, err := svc.Login(context.Background(), loginInput(user.Email, testPassword))

	assert.Nil(t, resp)
	le, ok := models.IsLockout(err)
	require.True(t, ok, "expected a lockout error, got %v", err)
	assert.Equal(t, 8, le.RemainingMinutes, "remaining time rounds up")

	assert.False(t, failureRecorded, "attempts during lockout do not advance the counter")

	require.Len(t, attemptRepo.Recorded, 1)
	assert.Equal(t, models.FailureAccountLocked, attemptRepo.Recorded[0].FailureReason)
}

func TestLogin_InactiveAccount(t *testing.T) {
	user := activeUser(0)
	user.IsActive = false

	failureRecorded := false
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
			failureRecorded = true
			return nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	resp, err := svc.Login(context.Background(), loginInput(user.Email, testPassword))

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, models.ErrAccountInactive)
	assert.False(t, failureRecorded, "a correct password against an inactive account is not a credential failure")

	require.Len(t, attemptRepo.Recorded, 1)
	assert.Equal(t, models.FailureAccountInactive, attemptRepo.Recorded[0].FailureReason)
}

func TestLogin_InactiveAccountWrongPassword(t *testing.T) {
	// Deactivation is checked before the password, so even a wrong password
	// against an inactive account reports inactive and leaves the failure
	// counter alone.
	user := activeUser(4)
	user.IsActive = false

	failureRecorded := false
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
			failureRecorded = true
			return nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	resp, err := svc.Login(context.Background(), loginInput(user.Email, wrongPassword))

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, models.ErrAccountInactive)
	assert.False(t, failureRecorded, "inactive accounts never advance the failure counter")

	require.Len(t, attemptRepo.Recorded, 1)
	assert.Equal(t, models.FailureAccountInactive, attemptRepo.Recorded[0].FailureReason)
}

func TestLogin_SuccessResetsCounterAndIssuesTokens(t *testing.T) {
	user := activeUser(3)

	successRecorded := false
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
		RecordLoginSuccessFunc: func(ctx context.Context, id string, ip string, at time.Time) error {
			successRecorded = true
			assert.Equal(t, user.ID, id)
			assert.Equal(t, "203.0.113.7", ip)
			return nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	resp, err := svc.Login(context.Background(), loginInput(user.Email, testPassword))

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, user.Email, resp.User.Email)
	assert.True(t, successRecorded)

	require.Len(t, attemptRepo.Recorded, 1)
	rec := attemptRepo.Recorded[0]
	assert.True(t, rec.Success)
	assert.Empty(t, rec.FailureReason)
}

func TestLogin_EmailNormalization(t *testing.T) {
	user := activeUser(0)

	var lookedUp string
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			lookedUp = email
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{}
	svc := newTestAuthService(userRepo, attemptRepo)

	_, err := svc.Login(context.Background(), loginInput("  ALICE@Example.COM ", testPassword))

	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", lookedUp)
	require.Len(t, attemptRepo.Recorded, 1)
	assert.Equal(t, "alice@example.com", attemptRepo.Recorded[0].EmailAttempted)
}

func TestLogin_AttemptRecordWriteFailureDoesNotChangeOutcome(t *testing.T) {
	user := activeUser(0)

	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	attemptRepo := &MockLoginAttemptRepository{
		RecordFunc: func(ctx context.Context, attempt *models.LoginAttempt) error {
			return models.ErrInternalServer
		},
	}
	svc := newTestAuthService(userRepo, attemptRepo)

	resp, err := svc.Login(context.Background(), loginInput(user.Email, testPassword))

	require.NoError(t, err)
	assert.NotNil(t, resp)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	user := activeUser(0)
	userRepo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	svc := newTestAuthService(userRepo, &MockLoginAttemptRepository{})

	_, err := svc.Register(context.Background(), user.Email, testPassword, "Alice", "203.0.113.7")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRegister_WeakPasswordRejected(t *testing.T) {
	svc := newTestAuthService(&MockUserRepository{}, &MockLoginAttemptRepository{})

	_, err := svc.Register(context.Background(), "new@example.com", "password", "New User", "203.0.113.7")
	assert.Error(t, err)

	var pwErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &pwErr)
}

func TestRegister_SuccessAutoLogin(t *testing.T) {
	userRepo := &MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			user.ID = "user-new"
			return user, nil
		},
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, TokenKey: "key"}, nil
		},
	}
	svc := newTestAuthService(userRepo, &MockLoginAttemptRepository{})

	resp, err := svc.Register(context.Background(), "New@Example.com", testPassword, "New User", "203.0.113.7")

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.Equal(t, "user", resp.User.Role)
}

func TestRefreshToken_RejectsAccessToken(t *testing.T) {
	user := activeUser(0)
	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	svc := newTestAuthService(userRepo, &MockLoginAttemptRepository{})

	accessToken, err := svc.tm.GenerateAccessToken(user.ID, user.Email, user.Role)
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), accessToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRefreshToken_BlockedAfterPasswordChange(t *testing.T) {
	user := activeUser(0)
	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	svc := newTestAuthService(userRepo, &MockLoginAttemptRepository{})

	refreshToken, err := svc.tm.GenerateRefreshToken(user.ID, user.Email, user.Role, false)
	require.NoError(t, err)

	changed := time.Now().Add(time.Minute)
	user.PasswordChangedAt = &changed

	_, err = svc.RefreshToken(context.Background(), refreshToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestRefreshToken_BlockedWhileLocked(t *testing.T) {
	user := activeUser(5)
	until := time.Now().Add(10 * time.Minute)
	user.LockedUntil = &until

	userRepo := &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	}
	svc := newTestAuthService(userRepo, &MockLoginAttemptRepository{})

	refreshToken, err := svc.tm.GenerateRefreshToken(user.ID, user.Email, user.Role, false)
	require.NoError(t, err)

	_, err = svc.RefreshToken(context.Background(), refreshToken)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
