package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/aefields/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserTokenKeyFetcher defines the interface for retrieving a user's TokenKey
type UserTokenKeyFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret                  string
	accessTokenExpiry       time.Duration
	refreshTokenExpiry      time.Duration
	rememberedRefreshExpiry time.Duration
	userRepo                UserTokenKeyFetcher
}

// NewTokenManager creates a new TokenManager. rememberedExpiry is the refresh
// lifetime issued when the client asks to stay signed in.
func NewTokenManager(secret string, accessExpiry, refreshExpiry, rememberedExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:                  secret,
		accessTokenExpiry:       accessExpiry,
		refreshTokenExpiry:      refreshExpiry,
		rememberedRefreshExpiry: rememberedExpiry,
	}
}

// SetUserRepo enables composite signing with the per-user TokenKey. Rotating
// a user's TokenKey then invalidates every token issued to them.
func (tm *TokenManager) SetUserRepo(repo UserTokenKeyFetcher) {
	tm.userRepo = repo
}

// getSigningKey returns the composite key (global secret + user TokenKey),
// or the global secret when no user repo is wired.
func (tm *TokenManager) getSigningKey(userID string) ([]byte, error) {
	if tm.userRepo == nil {
		return []byte(tm.secret), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	user, err := tm.userRepo.GetByID(ctx, userID)
	if err != nil {
		// Graceful degradation: use global secret if user not found
		return []byte(tm.secret), nil
	}

	composite := tm.secret + user.TokenKey
	return []byte(composite), nil
}

func (tm *TokenManager) generate(tokenType, userID, email, role string, expiry time.Duration) (string, error) {
	claims := &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signingKey, err := tm.getSigningKey(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get signing key: %w", err)
	}

	tokenString, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// GenerateAccessToken creates a short-lived access token with a JTI claim.
func (tm *TokenManager) GenerateAccessToken(userID, email, role string) (string, error) {
	return tm.generate("access", userID, email, role, tm.accessTokenExpiry)
}

// GenerateRefreshToken creates a refresh token. With remember set the token
// uses the extended remembered lifetime instead of the default one.
func (tm *TokenManager) GenerateRefreshToken(userID, email, role string, remember bool) (string, error) {
	expiry := tm.refreshTokenExpiry
	if remember {
		expiry = tm.rememberedRefreshExpiry
	}
	return tm.generate("refresh", userID, email, role, expiry)
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Extract userID from claims for composite key lookup
		if tmpClaims, ok := token.Claims.(*models.TokenClaims); ok && tmpClaims.UserID != "" {
			signingKey, err := tm.getSigningKey(tmpClaims.UserID)
			if err != nil {
				return []byte(tm.secret), nil
			}
			return signingKey, nil
		}

		return []byte(tm.secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.Type == "" {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}
