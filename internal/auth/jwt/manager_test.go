package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewManager("test-secret-key-32-chars-long-minimum", "mailmirror", 15*time.Minute)

	token, err := m.GenerateToken("user-1", "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := NewManager("test-secret-key-32-chars-long-minimum", "mailmirror", -time.Minute)

	token, err := m.GenerateToken("user-1", "user@example.com")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m1 := NewManager("test-secret-key-32-chars-long-minimum", "mailmirror", 15*time.Minute)
	m2 := NewManager("different-secret-key-32-chars-long-min", "mailmirror", 15*time.Minute)

	token, err := m1.GenerateToken("user-1", "user@example.com")
	require.NoError(t, err)

	_, err = m2.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret-key-32-chars-long-minimum", "mailmirror", 15*time.Minute)

	_, err := m.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
