package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aefields/bastion/internal/database"
	"github.com/aefields/bastion/internal/models"
	"github.com/aefields/bastion/pkg/auth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, full_name, company, phone, role, is_active, is_verified,
		token_key, failed_login_attempts, locked_until, last_login_at, last_login_ip,
		password_changed_at, created_at, updated_at`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning user rows (single row or rows iterator)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var passwordHash *string

	err := scanner.Scan(
		&user.ID, &user.Email, &passwordHash, &user.FullName, &user.Company, &user.Phone,
		&user.Role, &user.IsActive, &user.IsVerified,
		&user.TokenKey, &user.FailedLoginAttempts, &user.LockedUntil,
		&user.LastLoginAt, &user.LastLoginIP,
		&user.PasswordChangedAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}

	return &user, nil
}

func scanUserRows(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)

	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

// GetByEmail resolves an account by its login identity. Emails are stored
// lowercase; the comparison is case-insensitive regardless.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	return scanUserRows(rows)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	tokenKey, err := auth.GenerateTokenKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}
	user.TokenKey = tokenKey

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "user"
	}

	query := `
		INSERT INTO users (id, email, password_hash, full_name, company, phone, role, is_active, is_verified,
			token_key, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + userColumns

	var passwordHash *string
	if user.PasswordHash != "" {
		passwordHash = &user.PasswordHash
	}

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Email, passwordHash, user.FullName, user.Company, user.Phone,
		user.Role, user.IsActive, user.IsVerified,
		user.TokenKey, user.PasswordChangedAt, user.CreatedAt, user.UpdatedAt,
	))
}

// UpdateProfile updates the user-editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET full_name = $1, company = $2, phone = $3, updated_at = $4
		WHERE id = $5
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.FullName, user.Company, user.Phone, time.Now(), id,
	))
}

// Update applies admin-editable account fields.
func (r *UserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	query := `
		UPDATE users SET full_name = $1, role = $2, is_active = $3, is_verified = $4,
			token_key = $5, locked_until = $6, updated_at = $7
		WHERE id = $8
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.FullName, user.Role, user.IsActive, user.IsVerified,
		user.TokenKey, user.LockedUntil, time.Now(), id,
	))
}

// SetActive soft-(de)activates an account. Accounts are never hard-deleted
// by these flows.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Pool.Exec(ctx, query, active, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordLoginFailure persists the post-increment failure counter and any
// lockout computed from it. Only the lockout fields are touched, mirroring
// the narrow write the login evaluator performs.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, failedAttempts int, lockedUntil *time.Time) error {
	query := `UPDATE users SET failed_login_attempts = $1, locked_until = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.Pool.Exec(ctx, query, failedAttempts, lockedUntil, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordLoginSuccess resets the failure counter, clears any lockout and
// stamps the last-login metadata.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id string, ip string, at time.Time) error {
	query := `
		UPDATE users SET failed_login_attempts = 0, locked_until = NULL,
			last_login_at = $1, last_login_ip = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Pool.Exec(ctx, query, at, ip, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored credential and stamps the change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	query := `UPDATE users SET password_hash = $1, password_changed_at = $2, updated_at = $3 WHERE id = $4`

	result, err := r.db.Pool.Exec(ctx, query, passwordHash, changedAt, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountTotal returns the total number of accounts.
func (r *UserRepository) CountTotal(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountActive returns the number of accounts with is_active matching active.
func (r *UserRepository) CountActive(ctx context.Context, active bool) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE is_active = $1`, active).Scan(&count)
	return count, database.MapPostgresError(err)
}

// CountLocked returns the number of accounts currently inside a lockout window.
func (r *UserRepository) CountLocked(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE locked_until IS NOT NULL AND locked_until > NOW()`).Scan(&count)
	return count, database.MapPostgresError(err)
}
