package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aefields/bastion/internal/auth"
	"github.com/aefields/bastion/internal/models"
	pkghttp "github.com/aefields/bastion/pkg/http"
)

// ResetServiceInterface defines the user-facing reset workflow operations
type ResetServiceInterface interface {
	Submit(ctx context.Context, email, reason, ipAddress, userAgent string) (*models.ResetRequest, error)
	ListOwn(ctx context.Context, userID string) ([]*models.ResetRequest, error)
}

// ResetHandler handles password reset request submission and history
type ResetHandler struct {
	service  ResetServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewResetHandler creates a new ResetHandler
func NewResetHandler(service ResetServiceInterface, ipConfig *pkghttp.IPConfig) *ResetHandler {
	return &ResetHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// SubmitResetRequest represents the request body for filing a reset request
type SubmitResetRequest struct {
	Email  string `json:"email" validate:"required,email"`
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ResetRequestResponse represents a reset request in API responses. The
// temporary password hash never leaves the database.
type ResetRequestResponse struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id,omitempty"`
	Reason              string     `json:"reason"`
	Status              string     `json:"status"`
	RequestIP           string     `json:"request_ip,omitempty"`
	ProcessedBy         *string    `json:"processed_by,omitempty"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
	AdminNotes          string     `json:"admin_notes,omitempty"`
	TempPasswordExpires *time.Time `json:"temp_password_expires,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func resetRequestToResponse(req *models.ResetRequest) ResetRequestResponse {
	return ResetRequestResponse{
		ID:                  req.ID,
		UserID:              req.UserID,
		Reason:              req.Reason,
		Status:              req.Status,
		RequestIP:           req.RequestIP,
		ProcessedBy:         req.ProcessedBy,
		ProcessedAt:         req.ProcessedAt,
		AdminNotes:          req.AdminNotes,
		TempPasswordExpires: req.TempPasswordExpires,
		CreatedAt:           req.CreatedAt,
	}
}

func resetRequestsToResponse(reqs []*models.ResetRequest) []ResetRequestResponse {
	out := make([]ResetRequestResponse, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, resetRequestToResponse(r))
	}
	return out
}

// Submit files a password reset request. The endpoint is public: whether or
// not the email resolves to an account, the caller sees the same accepted
// response.
func (h *ResetHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitResetRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	_, err := h.service.Submit(r.Context(), req.Email, req.Reason, ipAddress, userAgent)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Please provide a brief explanation (at least 10 characters)")
		case errors.Is(err, models.ErrDuplicatePendingRequest):
			pkghttp.WriteConflict(w, "A reset request for this account is already awaiting review")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "If an account exists for this address, the request has been received and will be reviewed by staff.",
	})
}

// ListOwn returns the authenticated user's recent reset requests
func (h *ResetHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	requests, err := h.service.ListOwn(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requests": resetRequestsToResponse(requests),
	})
}
