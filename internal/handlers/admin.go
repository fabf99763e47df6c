package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/models"
	"github.com/aefields/bastion/internal/services"
	pkgauth "github.com/aefields/bastion/pkg/auth"
	pkghttp "github.com/aefields/bastion/pkg/http"
)

// AdminResetServiceInterface defines the admin-side reset workflow operations
type AdminResetServiceInterface interface {
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error)
	Approve(ctx context.Context, requestID, adminID, tempPassword, notes string) (*models.ResetRequest, error)
	Reject(ctx context.Context, requestID, adminID, notes string) (*models.ResetRequest, error)
}

// AdminServiceInterface defines dashboard and login history operations
type AdminServiceInterface interface {
	GetDashboardStats(ctx context.Context) (*services.DashboardStatsResponse, error)
	GetLoginHistory(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error)
	GetUserLoginHistory(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error)
	PurgeLoginHistory(ctx context.Context, actorID string) (int64, error)
}

// AdminHandler handles the admin moderation and audit surface
type AdminHandler struct {
	resetService AdminResetServiceInterface
	adminService AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(resetService AdminResetServiceInterface, adminService AdminServiceInterface) *AdminHandler {
	return &AdminHandler{
		resetService: resetService,
		adminService: adminService,
	}
}

// ApproveResetRequest represents the request body for approving a reset.
// temp_password is optional: when omitted the request is approved without
// replacing the credential.
type ApproveResetRequest struct {
	TempPassword string `json:"temp_password" validate:"omitempty,max=200"`
	Notes        string `json:"notes" validate:"max=2000"`
}

// RejectResetRequest represents the request body for rejecting a reset
type RejectResetRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// LoginAttemptResponse represents an audit trail row in API responses
type LoginAttemptResponse struct {
	ID             string    `json:"id"`
	UserID         *string   `json:"user_id"`
	EmailAttempted string    `json:"email_attempted"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent,omitempty"`
	Success        bool      `json:"success"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

func attemptsToResponse(attempts []*models.LoginAttempt) []LoginAttemptResponse {
	out := make([]LoginAttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, LoginAttemptResponse{
			ID:             a.ID,
			UserID:         a.UserID,
			EmailAttempted: a.EmailAttempted,
			IPAddress:      a.IPAddress,
			UserAgent:      a.UserAgent,
			Success:        a.Success,
			FailureReason:  a.FailureReason,
			AttemptedAt:    a.AttemptedAt,
		})
	}
	return out
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// ListResetRequests returns the moderation queue, oldest first. Defaults to
// the pending queue when no status filter is given.
func (h *AdminHandler) ListResetRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.ResetStatusPending
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	requests, err := h.resetService.ListByStatus(r.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid status filter")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"requests": resetRequestsToResponse(requests),
	})
}

// ApproveResetRequestHandler approves a pending reset request, issuing the
// temporary password supplied by the admin.
func (h *AdminHandler) ApproveResetRequestHandler(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		pkghttp.WriteBadRequest(w, "Missing request ID")
		return
	}

	var req ApproveResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resolved, err := h.resetService.Approve(r.Context(), requestID, claims.UserID, req.TempPassword, req.Notes)
	if err != nil {
		var pwErr *pkgauth.PasswordValidationError
		switch {
		case errors.As(err, &pwErr):
			pkghttp.WriteBadRequest(w, pwErr.Error())
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Reset request not found")
		case errors.Is(err, models.ErrInvalidTransition):
			pkghttp.WriteConflict(w, "Request has already been resolved")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resetRequestToResponse(resolved))
}

// RejectResetRequestHandler rejects a pending reset request.
func (h *AdminHandler) RejectResetRequestHandler(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	requestID := chi.URLParam(r, "id")
	if requestID == "" {
		pkghttp.WriteBadRequest(w, "Missing request ID")
		return
	}

	var req RejectResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resolved, err := h.resetService.Reject(r.Context(), requestID, claims.UserID, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Reset request not found")
		case errors.Is(err, models.ErrInvalidTransition):
			pkghttp.WriteConflict(w, "Request has already been resolved")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resetRequestToResponse(resolved))
}

// GetLoginHistory returns the login attempt audit trail, newest first. An
// optional user_id query parameter narrows the view to one account.
func (h *AdminHandler) GetLoginHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	userID := r.URL.Query().Get("user_id")

	var attempts []*models.LoginAttempt
	var err error
	if userID != "" {
		attempts, err = h.adminService.GetUserLoginHistory(r.Context(), userID, limit)
	} else {
		attempts, err = h.adminService.GetLoginHistory(r.Context(), limit, offset)
	}
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"attempts": attemptsToResponse(attempts),
	})
}

// PurgeLoginHistory deletes the entire login attempt audit trail.
func (h *AdminHandler) PurgeLoginHistory(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	deleted, err := h.adminService.PurgeLoginHistory(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int64{
		"deleted": deleted,
	})
}

// GetDashboardStats returns aggregate account and audit metrics.
func (h *AdminHandler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.GetDashboardStats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}
