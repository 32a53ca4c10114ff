// Package jwt implements the core's side of the auth boundary (§6):
// validating a bearer token minted by an external auth service and
// extracting the user id + email claim. It never issues or rotates
// login credentials itself — that service is an out-of-scope
// collaborator the core only consumes through getAuthenticatedUserId.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the shared-secret HS256 claim set the external auth
// service signs and this core verifies.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Manager validates tokens against one shared signing secret, and can
// mint a short-lived token of its own for tests and local tooling that
// stand in for the external auth service.
type Manager struct {
	secret []byte
	issuer string
	expiry time.Duration
}

func NewManager(secret, issuer string, expiry time.Duration) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer, expiry: expiry}
}

// GenerateToken mints a token for userID/email, signed with the shared
// secret. Exists for tests and local tooling — production token
// issuance is the external auth service's responsibility.
func (m *Manager) GenerateToken(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies tokenString, rejecting anything
// not signed with HMAC under the shared secret.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
