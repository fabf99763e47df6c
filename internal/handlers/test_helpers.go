package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/models"
	"github.com/aefields/bastion/internal/services"
	pkghttp "github.com/aefields/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "access",
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// WithTokenContext adds user claims and the raw bearer token, simulating
// AuthMiddleware for endpoints that read the token back out of the context.
func WithTokenContext(req *http.Request, token, userID, email string) *http.Request {
	req = WithAuthContext(req, userID, email)
	ctx := context.WithValue(req.Context(), auth.TokenContextKey, token)
	return req.WithContext(ctx)
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc        func(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error)
	RegisterFunc     func(ctx context.Context, email, password, fullName, ipAddress string) (*services.AuthResponse, error)
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	LogoutFunc       func(ctx context.Context, accessToken string) error
	LogoutAllFunc    func(ctx context.Context, userID string) error
}

func (m *MockAuthService) Login(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, input)
}

func (m *MockAuthService) Register(ctx context.Context, email, password, fullName, ipAddress string) (*services.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, fullName, ipAddress)
}

func (m *MockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshTokenFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, accessToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, accessToken)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) error {
	if m.LogoutAllFunc == nil {
		return nil
	}
	return m.LogoutAllFunc(ctx, userID)
}

// MockPasswordChanger implements PasswordChanger for testing
type MockPasswordChanger struct {
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error
}

func (m *MockPasswordChanger) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ipAddress string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, ipAddress)
}

// MockResetService implements ResetServiceInterface and
// AdminResetServiceInterface for testing
type MockResetService struct {
	SubmitFunc       func(ctx context.Context, email, reason, ipAddress, userAgent string) (*models.ResetRequest, error)
	ListOwnFunc      func(ctx context.Context, userID string) ([]*models.ResetRequest, error)
	ListByStatusFunc func(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error)
	ApproveFunc      func(ctx context.Context, requestID, adminID, tempPassword, notes string) (*models.ResetRequest, error)
	RejectFunc       func(ctx context.Context, requestID, adminID, notes string) (*models.ResetRequest, error)
}

func (m *MockResetService) Submit(ctx context.Context, email, reason, ipAddress, userAgent string) (*models.ResetRequest, error) {
	if m.SubmitFunc == nil {
		return nil, nil
	}
	return m.SubmitFunc(ctx, email, reason, ipAddress, userAgent)
}

func (m *MockResetService) ListOwn(ctx context.Context, userID string) ([]*models.ResetRequest, error) {
	if m.ListOwnFunc == nil {
		return []*models.ResetRequest{}, nil
	}
	return m.ListOwnFunc(ctx, userID)
}

func (m *MockResetService) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error) {
	if m.ListByStatusFunc == nil {
		return []*models.ResetRequest{}, nil
	}
	return m.ListByStatusFunc(ctx, status, limit, offset)
}

func (m *MockResetService) Approve(ctx context.Context, requestID, adminID, tempPassword, notes string) (*models.ResetRequest, error) {
	if m.ApproveFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ApproveFunc(ctx, requestID, adminID, tempPassword, notes)
}

func (m *MockResetService) Reject(ctx context.Context, requestID, adminID, notes string) (*models.ResetRequest, error) {
	if m.RejectFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RejectFunc(ctx, requestID, adminID, notes)
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	GetDashboardStatsFunc   func(ctx context.Context) (*services.DashboardStatsResponse, error)
	GetLoginHistoryFunc     func(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
	GetUserLoginHistoryFunc func(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error)
	PurgeLoginHistoryFunc   func(ctx context.Context, actorID string) (int64, error)
}

func (m *MockAdminService) GetDashboardStats(ctx context.Context) (*services.DashboardStatsResponse, error) {
	if m.GetDashboardStatsFunc == nil {
		return &services.DashboardStatsResponse{}, nil
	}
	return m.GetDashboardStatsFunc(ctx)
}

func (m *MockAdminService) GetLoginHistory(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	if m.GetLoginHistoryFunc == nil {
		return []*models.LoginAttempt{}, nil
	}
	return m.GetLoginHistoryFunc(ctx, limit, offset)
}

func (m *MockAdminService) GetUserLoginHistory(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error) {
	if m.GetUserLoginHistoryFunc == nil {
		return []*models.LoginAttempt{}, nil
	}
	return m.GetUserLoginHistoryFunc(ctx, userID, limit)
}

func (m *MockAdminService) PurgeLoginHistory(ctx context.Context, actorID string) (int64, error) {
	if m.PurgeLoginHistoryFunc == nil {
		return 0, nil
	}
	return m.PurgeLoginHistoryFunc(ctx, actorID)
}

// PendingResetFixture returns a pending reset request for handler tests
func PendingResetFixture() *models.ResetRequest {
	return &models.ResetRequest{
		ID:        "req-1",
		UserID:    "user-1",
		Reason:    "forgot my password after vacation",
		Status:    models.ResetStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}
