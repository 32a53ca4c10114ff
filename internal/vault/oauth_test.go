package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmirror/core/internal/mailerr"
)

func TestRefreshMicrosoftTokenSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	out, err := refreshAgainst(server.URL, "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", out.AccessToken)
	assert.Equal(t, "new-refresh", out.RefreshToken)
	assert.False(t, out.ExpiresAt.IsZero())
}

func TestRefreshMicrosoftTokenKeepsRefreshTokenWhenOmitted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"new-access","expires_in":3600}`))
	}))
	defer server.Close()

	out, err := refreshAgainst(server.URL, "stays-the-same")
	require.NoError(t, err)
	assert.Equal(t, "stays-the-same", out.RefreshToken)
}

func TestRefreshMicrosoftTokenInvalidGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"token expired"}`))
	}))
	defer server.Close()

	_, err := refreshAgainst(server.URL, "expired-refresh")
	assert.ErrorIs(t, err, mailerr.ErrCredentialRejected)
}

func TestRefreshMicrosoftTokenServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := refreshAgainst(server.URL, "refresh")
	assert.ErrorIs(t, err, mailerr.ErrProviderUnavailable)
}

// refreshAgainst exercises RefreshMicrosoftToken's response-handling
// logic against a test server standing in for the Microsoft endpoint,
// since the production URL is a package constant.
func refreshAgainst(serverURL, refreshToken string) (RefreshedToken, error) {
	return refreshMicrosoftTokenAt(context.Background(), serverURL, http.DefaultClient, "client-id", "client-secret", refreshToken)
}
