package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aefields/bastion/internal/database"
	"github.com/aefields/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const resetColumns = `id, user_id, reason, status, request_ip, user_agent, processed_by, processed_at,
		admin_notes, temp_password_hash, temp_password_expires, created_at, updated_at`

type ResetRequestRepository struct {
	db *database.DB
}

func NewResetRequestRepository(db *database.DB) *ResetRequestRepository {
	return &ResetRequestRepository{db: db}
}

func scanResetRow(scanner rowScanner) (*models.ResetRequest, error) {
	var req models.ResetRequest
	var adminNotes, tempHash *string

	err := scanner.Scan(
		&req.ID, &req.UserID, &req.Reason, &req.Status, &req.RequestIP, &req.UserAgent,
		&req.ProcessedBy, &req.ProcessedAt,
		&adminNotes, &tempHash, &req.TempPasswordExpires,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if adminNotes != nil {
		req.AdminNotes = *adminNotes
	}
	if tempHash != nil {
		req.TempPasswordHash = *tempHash
	}

	return &req, nil
}

func scanResetRows(rows pgx.Rows) ([]*models.ResetRequest, error) {
	defer rows.Close()

	requests := make([]*models.ResetRequest, 0)

	for rows.Next() {
		req, err := scanResetRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reset request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return requests, nil
}

// Create inserts a new pending request.
func (r *ResetRequestRepository) Create(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
	req.ID = uuid.New().String()
	req.Status = models.ResetStatusPending
	req.UserAgent = models.TruncateUserAgent(req.UserAgent)

	now := time.Now()
	req.CreatedAt = now
	req.UpdatedAt = now

	query := `
		INSERT INTO password_reset_requests (id, user_id, reason, status, request_ip, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + resetColumns

	return scanResetRow(r.db.Pool.QueryRow(ctx, query,
		req.ID, req.UserID, req.Reason, req.Status, req.RequestIP, req.UserAgent,
		req.CreatedAt, req.UpdatedAt,
	))
}

func (r *ResetRequestRepository) GetByID(ctx context.Context, id string) (*models.ResetRequest, error) {
	query := `SELECT ` + resetColumns + ` FROM password_reset_requests WHERE id = $1`
	return scanResetRow(r.db.Pool.QueryRow(ctx, query, id))
}

// HasPending reports whether the user already has an unresolved request.
func (r *ResetRequestRepository) HasPending(ctx context.Context, userID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM password_reset_requests WHERE user_id = $1 AND status = $2)`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, userID, models.ResetStatusPending).Scan(&exists)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return exists, nil
}

// ListByUser returns the user's requests newest-first, capped at limit.
func (r *ResetRequestRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.ResetRequest, error) {
	query := `SELECT ` + resetColumns + ` FROM password_reset_requests WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reset requests: %w", err)
	}

	return scanResetRows(rows)
}

// ListByStatus returns requests in the given status, oldest pending first so
// admins work the queue in submission order.
func (r *ResetRequestRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*models.ResetRequest, error) {
	query := `SELECT ` + resetColumns + ` FROM password_reset_requests WHERE status = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`

	rows, err := r.db.Pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query reset requests: %w", err)
	}

	return scanResetRows(rows)
}

// Resolve moves a pending request to its terminal status. The WHERE clause
// re-checks pending so two admins racing on the same request cannot both win.
func (r *ResetRequestRepository) Resolve(ctx context.Context, req *models.ResetRequest) (*models.ResetRequest, error) {
	query := `
		UPDATE password_reset_requests
		SET status = $1, processed_by = $2, processed_at = $3, admin_notes = $4,
			temp_password_hash = $5, temp_password_expires = $6, updated_at = $7
		WHERE id = $8 AND status = $9
		RETURNING ` + resetColumns

	var adminNotes, tempHash *string
	if req.AdminNotes != "" {
		adminNotes = &req.AdminNotes
	}
	if req.TempPasswordHash != "" {
		tempHash = &req.TempPasswordHash
	}

	updated, err := scanResetRow(r.db.Pool.QueryRow(ctx, query,
		req.Status, req.ProcessedBy, req.ProcessedAt, adminNotes,
		tempHash, req.TempPasswordExpires, time.Now(),
		req.ID, models.ResetStatusPending,
	))
	if errors.Is(err, models.ErrNotFound) {
		// Request exists but is no longer pending.
		return nil, models.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CountByStatus returns the number of requests in a status, for the dashboard.
func (r *ResetRequestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM password_reset_requests WHERE status = $1`, status).Scan(&count)
	return count, database.MapPostgresError(err)
}
