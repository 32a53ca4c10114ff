// Package graph implements the provider.Adapter capability surface
// against the Microsoft Graph mail API. Graph has no lightweight Go
// SDK in the retrieved corpus, so this is a thin Bearer HTTP client in
// the style of the corpus's own REST client wrappers.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mailmirror/core/internal/mailerr"
)

const baseURL = "https://graph.microsoft.com/v1.0"

// client is a thin HTTP client for the Graph REST API: Bearer auth,
// JSON (de)serialization, retry with backoff on 429.
type client struct {
	accessToken string
	httpClient  *http.Client
	maxRetries  int
}

func newClient(accessToken string) *client {
	return &client{
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
	}
}

func (c *client) get(ctx context.Context, path string, query url.Values, result any) error {
	full := baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, full, result)
}

// getURL performs a GET against a fully-qualified URL, used for
// following Graph's @odata.nextLink pagination cursor verbatim.
func (c *client) getURL(ctx context.Context, fullURL string, result any) error {
	return c.do(ctx, http.MethodGet, fullURL, result)
}

func (c *client) do(ctx context.Context, method, fullURL string, result any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(nil))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", mailerr.ErrProviderUnavailable, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("%w: rate limited (429) on %s", mailerr.ErrProviderUnavailable, fullURL)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: graph returned %d on %s", mailerr.ErrCredentialRejected, resp.StatusCode, fullURL)
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: graph returned %d on %s", mailerr.ErrProviderUnavailable, resp.StatusCode, fullURL)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: unexpected status %d on %s: %s", mailerr.ErrProtocol, resp.StatusCode, fullURL, string(respBody))
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: unmarshaling response from %s: %v", mailerr.ErrProtocol, fullURL, err)
		}
		return nil
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
