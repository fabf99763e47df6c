package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/aefields/bastion/pkg/http"
)

func TestLockoutFlow(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("lockout")
	_, err := SeedUser(ctx, testDB.DB, email, password, "user")
	require.NoError(t, err)

	// Four wrong passwords: generic 401 every time, no lock yet.
	for i := 0; i < 4; i++ {
		var resp pkghttp.ErrorResponse
		status, err := ts.DoJSON("POST", "/auth/login", "", map[string]string{
			"email":    email,
			"password": "Wrong#Password1",
		}, &resp)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "Authentication failed", resp.Message)
	}

	// Fifth failure crosses the threshold. The crossing attempt itself still
	// reads as invalid credentials.
	var resp pkghttp.ErrorResponse
	status, err := ts.DoJSON("POST", "/auth/login", "", map[string]string{
		"email":    email,
		"password": "Wrong#Password1",
	}, &resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Now even the correct password is rejected with the lockout response.
	status, err = ts.DoJSON("POST", "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account_locked", resp.Error)
	assert.Contains(t, resp.Message, "minutes")

	// Every evaluated attempt above left exactly one audit row: 5 failures
	// plus 1 rejected-while-locked.
	var count int
	err = testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM login_attempts").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	var lockedReason string
	err = testDB.Pool.QueryRow(ctx,
		"SELECT failure_reason FROM login_attempts ORDER BY attempted_at DESC LIMIT 1").Scan(&lockedReason)
	require.NoError(t, err)
	assert.Equal(t, "account_locked", lockedReason)
}

func TestUnknownEmailLeavesAuditRow(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	var resp pkghttp.ErrorResponse
	status, err := ts.DoJSON("POST", "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "Whatever#Pass1",
	}, &resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Authentication failed", resp.Message)

	var email string
	var userID *string
	err = testDB.Pool.QueryRow(ctx,
		"SELECT email_attempted, user_id FROM login_attempts").Scan(&email, &userID)
	require.NoError(t, err)
	assert.Equal(t, "nobody@example.com", email)
	assert.Nil(t, userID, "unresolved identity must be recorded with NULL user_id")
}

func TestSuccessfulLoginResetsCounter(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.CleanupTables(ctx))

	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	email, password := TestUser("reset-counter")
	user, err := SeedUser(ctx, testDB.DB, email, password, "user")
	require.NoError(t, err)

	// Three failures, then a success.
	for i := 0; i < 3; i++ {
		_, err := ts.DoJSON("POST", "/auth/login", "", map[string]string{
			"email":    email,
			"password": "Wrong#Password1",
		}, nil)
		require.NoError(t, err)
	}

	token, err := ts.LoginAs(email, password)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	var failed int
	err = testDB.Pool.QueryRow(ctx,
		"SELECT failed_login_attempts FROM users WHERE id = $1", user.ID).Scan(&failed)
	require.NoError(t, err)
	assert.Equal(t, 0, failed, "success must reset the failure counter")
}
