package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mailmirror/core/internal/mailerr"
)

const microsoftTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

// RefreshedToken is the result of a successful Microsoft token refresh.
// The new RefreshToken must overwrite the account's stored value even
// when Microsoft returns the same one back, since a refresh token is a
// single-use credential under rotation: using a stale one on the next
// refresh is a credential-rejected failure (§4.1 design note).
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshMicrosoftToken exchanges a refresh token for a new access
// token via the Microsoft identity platform's OAuth2 token endpoint.
// Callers must persist the returned RefreshToken immediately, before
// using the AccessToken, so a crash between refresh and persist can't
// strand the account on a token Microsoft has already invalidated.
func RefreshMicrosoftToken(ctx context.Context, httpClient *http.Client, clientID, clientSecret, refreshToken string) (RefreshedToken, error) {
	return refreshMicrosoftTokenAt(ctx, microsoftTokenURL, httpClient, clientID, clientSecret, refreshToken)
}

func refreshMicrosoftTokenAt(ctx context.Context, tokenURL string, httpClient *http.Client, clientID, clientSecret, refreshToken string) (RefreshedToken, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	form := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {"https://graph.microsoft.com/Mail.Read offline_access"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return RefreshedToken{}, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(req)
	if err != nil {
		return RefreshedToken{}, fmt.Errorf("%w: %v", mailerr.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		Error        string `json:"error"`
		ErrorDesc    string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RefreshedToken{}, fmt.Errorf("%w: decoding token response: %v", mailerr.ErrProtocol, err)
	}

	if resp.StatusCode != http.StatusOK || body.Error != "" {
		if body.Error == "invalid_grant" || resp.StatusCode == http.StatusBadRequest {
			return RefreshedToken{}, fmt.Errorf("%w: %s: %s", mailerr.ErrCredentialRejected, body.Error, body.ErrorDesc)
		}
		return RefreshedToken{}, fmt.Errorf("%w: %s: %s", mailerr.ErrProviderUnavailable, body.Error, body.ErrorDesc)
	}

	out := RefreshedToken{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if out.RefreshToken == "" {
		// Microsoft may omit it when the same refresh token stays valid.
		out.RefreshToken = refreshToken
	}
	return out, nil
}
