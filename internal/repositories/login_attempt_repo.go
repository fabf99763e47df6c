package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/aefields/bastion/internal/database"
	"github.com/aefields/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const attemptColumns = `id, user_id, email_attempted, ip_address, user_agent, success, failure_reason, attempted_at`

// LoginAttemptRepository persists the immutable login audit trail. Rows are
// insert-only: there is no update path, and the only delete is the explicit
// admin purge.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record inserts one audit row for an evaluated login attempt. UserID is nil
// when the submitted email resolved to no account; the attempted email is
// stored either way.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.New().String()
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}
	attempt.UserAgent = models.TruncateUserAgent(attempt.UserAgent)

	query := `
		INSERT INTO login_attempts (id, user_id, email_attempted, ip_address, user_agent, success, failure_reason, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.UserID,
		attempt.EmailAttempted,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.AttemptedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func scanAttemptRows(rows pgx.Rows) ([]*models.LoginAttempt, error) {
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)

	for rows.Next() {
		var a models.LoginAttempt
		err := rows.Scan(
			&a.ID, &a.UserID, &a.EmailAttempted, &a.IPAddress, &a.UserAgent,
			&a.Success, &a.FailureReason, &a.AttemptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return attempts, nil
}

// ListRecent returns attempts newest-first for the admin history view.
func (r *LoginAttemptRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.LoginAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM login_attempts ORDER BY attempted_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}

	return scanAttemptRows(rows)
}

// ListByUser returns a single account's attempts newest-first.
func (r *LoginAttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.LoginAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM login_attempts WHERE user_id = $1 ORDER BY attempted_at DESC LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}

	return scanAttemptRows(rows)
}

// CountSince returns total and failed attempt counts since the given time,
// for the admin dashboard.
func (r *LoginAttemptRepository) CountSince(ctx context.Context, since time.Time) (total int64, failed int64, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success = false)
		FROM login_attempts
		WHERE attempted_at >= $1
	`

	err = r.db.Pool.QueryRow(ctx, query, since).Scan(&total, &failed)
	if err != nil {
		return 0, 0, database.MapPostgresError(err)
	}
	return total, failed, nil
}

// PurgeAll deletes the entire login history. Admin-only; records are never
// removed by any automatic process.
func (r *LoginAttemptRepository) PurgeAll(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts`)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
