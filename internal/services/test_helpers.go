package services

import (
	"context"
	"time"

	"github.com/aefields/bastion/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	ListFunc               func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc             func(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdateProfileFunc      func(ctx context.Context, id string, user *models.User) (*models.User, error)
	SetActiveFunc          func(ctx context.Context, id string, active bool) error
	RecordLoginFailureFunc func(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error
	RecordLoginSuccessFunc func(ctx context.Context, id string, ip string, at time.Time) error
	UpdatePasswordFunc     func(ctx context.Context, id, passwordHash string, changedAt time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return user, nil
}

func (m *MockUserRepository) UpdateProfile(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, id, user)
	}
	return user, nil
}

func (m *MockUserRepository) SetActive(ctx context.Context, id string, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return nil
}

func (m *MockUserRepository) RecordLoginFailure(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, id, failedAttempts, lockedUntil)
	}
	return nil
}

func (m *MockUserRepository) RecordLoginSuccess(ctx context.Context, id string, ip string, at time.Time) error {
	if m.RecordLoginSuccessFunc != nil {
		return m.RecordLoginSuccessFunc(ctx, id, ip, at)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, changedAt)
	}
	return nil
}

// MockLoginAttemptRepository implements LoginAttemptRecorder plus the admin
// views for testing. It keeps recorded attempts so tests can assert on them.
type MockLoginAttemptRepository struct {
	RecordFunc     func(ctx context.Context, attempt *models.LoginAttempt) error
	ListRecentFunc func(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
	ListByUserFunc func(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error)
	CountSinceFunc func(ctx context.Context, since time.Time) (int64, int64, error)
	PurgeAllFunc   func(ctx context.Context) (int64, error)

	Recorded []*models.LoginAttempt
}

func (m *MockLoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	m.Recorded = append(m.Recorded, attempt)
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, limit, offset)
	}
	return m.Recorded, nil
}

func (m *MockLoginAttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit)
	}
	return []*models.LoginAttempt{}, nil
}

func (m *MockLoginAttemptRepository) CountSince(ctx context.Context, since time.Time) (int64, int64, error) {
	if m.CountSinceFunc != nil {
		return m.CountSinceFunc(ctx, since)
	}
	return int64(len(m.Recorded)), 0, nil
}

func (m *MockLoginAttemptRepository) PurgeAll(ctx context.Context) (int64, error) {
	if m.PurgeAllFunc != nil {
		return m.PurgeAllFunc(ctx)
	}
	n := int64(len(m.Recorded))
	m.Recorded = nil
	return n, nil
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc         func(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error
	RevokeAllUserTokensFunc func(ctx context.Context, userID, reason string) error
	IsTokenRevokedFunc      func(ctx context.Context, jti string) (bool, error)
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, jti, userID, tokenType string, expiresAt time.Time, reason string) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, jti, userID, tokenType, expiresAt, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	if m.RevokeAllUserTokensFunc != nil {
		return m.RevokeAllUserTokensFunc(ctx, userID, reason)
	}
	return nil
}

func (m *MockTokenRevocationRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if m.IsTokenRevokedFunc != nil {
		return m.IsTokenRevokedFunc(ctx, jti)
	}
	return false, nil
}

// MockResetRequestRepository implements ResetRequestRepository for testing
type MockResetRequestRepository struct {
	CreateFunc        func(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error)
	GetByIDFunc       func(ctx context.Context, id string) (*models.ResetRequest, error)
	HasPendingFunc    func(ctx context.Context, userID string) (bool, error)
	ListByUserFunc    func(ctx context.Context, userID string, limit int) ([]*models.ResetRequest, error)
	ListByStatusFunc  func(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error)
	ResolveFunc       func(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error)
	CountByStatusFunc func(ctx context.Context, status string) (int64, error)
}

func (m *MockResetRequestRepository) Create(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	req.ID = "req_123"
	req.Status = models.ResetStatusPending
	return req, nil
}

func (m *MockResetRequestRepository) GetByID(ctx context.Context, id string) (*models.ResetRequest, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockResetRequestRepository) HasPending(ctx context.Context, userID string) (bool, error) {
	if m.HasPendingFunc != nil {
		return m.HasPendingFunc(ctx, userID)
	}
	return false, nil
}

func (m *MockResetRequestRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.ResetRequest, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit)
	}
	return []*models.ResetRequest{}, nil
}

func (m *MockResetRequestRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error) {
	if m.ListByStatusFunc != nil {
		return m.ListByStatusFunc(ctx, status, limit, offset)
	}
	return []*models.ResetRequest{}, nil
}

func (m *MockResetRequestRepository) Resolve(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, req)
	}
	return req, nil
}

func (m *MockResetRequestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, status)
	}
	return 0, nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendResetResolvedEmailFunc func(ctx context.Context, email, status string, tempPasswordExpires *time.Time) error

	SentTo       []string
	SentStatuses []string
}

func (m *MockEmailService) SendResetResolvedEmail(ctx context.Context, email, status string, tempPasswordExpires *time.Time) error {
	m.SentTo = append(m.SentTo, email)
	m.SentStatuses = append(m.SentStatuses, status)
	if m.SendResetResolvedEmailFunc != nil {
		return m.SendResetResolvedEmailFunc(ctx, email, status, tempPasswordExpires)
	}
	return nil
}
