package models

import "time"

// Reset request statuses. Requests transition pending -> approved or
// pending -> rejected exactly once and are never re-opened.
const (
	ResetStatusPending  = "pending"
	ResetStatusApproved = "approved"
	ResetStatusRejected = "rejected"
)

const (
	// MinResetReasonLength is the minimum justification length for a request.
	MinResetReasonLength = 10
	// TempPasswordValidity is how long an admin-issued temporary password
	// remains valid after approval.
	TempPasswordValidity = 24 * time.Hour
)

// ResetRequest is a user's request to have their password reset by staff.
// End users cannot self-service a reset; every request is resolved manually
// by an admin who may issue a temporary password.
type ResetRequest struct {
	ID                  string     `db:"id"`
	UserID              string     `db:"user_id"`
	Reason              string     `db:"reason"`
	Status              string     `db:"status"`
	RequestIP           string     `db:"request_ip"`
	UserAgent           string     `db:"user_agent"`
	ProcessedBy         *string    `db:"processed_by"`
	ProcessedAt         *time.Time `db:"processed_at"`
	AdminNotes          string     `db:"admin_notes"`
	TempPasswordHash    string     `db:"temp_password_hash"`
	TempPasswordExpires *time.Time `db:"temp_password_expires"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// IsPending reports whether the request is still awaiting staff action.
func (r *ResetRequest) IsPending() bool {
	return r.Status == ResetStatusPending
}
