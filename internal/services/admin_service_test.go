package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aefields/bastion/internal/models"
	pkglogger "github.com/aefields/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdminUserRepo struct {
	total, active, inactive, locked int64
}

func (s *stubAdminUserRepo) CountTotal(ctx context.Context) (int64, error) { return s.total, nil }
func (s *stubAdminUserRepo) CountActive(ctx context.Context, active bool) (int64, error) {
	if active {
		return s.active, nil
	}
	return s.inactive, nil
}
func (s *stubAdminUserRepo) CountLocked(ctx context.Context) (int64, error) { return s.locked, nil }

func newTestAdminService(attemptRepo *MockLoginAttemptRepository, resetRepo *MockResetRequestRepository) *AdminService {
	logger := slog.Default()
	return NewAdminService(
		&stubAdminUserRepo{total: 10, active: 8, inactive: 2, locked: 1},
		attemptRepo,
		resetRepo,
		logger,
		pkglogger.NewAuditLogger(logger),
	)
}

func TestGetDashboardStats(t *testing.T) {
	attemptRepo := &MockLoginAttemptRepository{
		CountSinceFunc: func(ctx context.Context, since time.Time) (int64, int64, error) {
			assert.WithinDuration(t, time.Now().Add(-24*time.Hour), since, time.Minute)
			return 42, 7, nil
		},
	}
	resetRepo := &MockResetRequestRepository{
		CountByStatusFunc: func(ctx context.Context, status string) (int64, error) {
			assert.Equal(t, models.ResetStatusPending, status)
			return 3, nil
		},
	}
	svc := newTestAdminService(attemptRepo, resetRepo)

	stats, err := svc.GetDashboardStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.TotalUsers)
	assert.Equal(t, int64(8), stats.ActiveUsers)
	assert.Equal(t, int64(2), stats.DeactivatedUsers)
	assert.Equal(t, int64(1), stats.LockedUsers)
	assert.Equal(t, int64(42), stats.AttemptsLast24h)
	assert.Equal(t, int64(7), stats.FailedLast24h)
	assert.Equal(t, int64(3), stats.PendingResetRequests)
}

func TestGetLoginHistory_ClampsLimit(t *testing.T) {
	var gotLimit int
	attemptRepo := &MockLoginAttemptRepository{
		ListRecentFunc: func(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
			gotLimit = limit
			return []*models.LoginAttempt{}, nil
		},
	}
	svc := newTestAdminService(attemptRepo, &MockResetRequestRepository{})

	_, err := svc.GetLoginHistory(context.Background(), 5000, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, gotLimit)

	_, err = svc.GetLoginHistory(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, gotLimit)
}

func TestPurgeLoginHistory(t *testing.T) {
	attemptRepo := &MockLoginAttemptRepository{
		PurgeAllFunc: func(ctx context.Context) (int64, error) {
			return 123, nil
		},
	}
	svc := newTestAdminService(attemptRepo, &MockResetRequestRepository{})

	deleted, err := svc.PurgeLoginHistory(context.Background(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(123), deleted)
}
