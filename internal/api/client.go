package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AuthError reports a request rejected with 401 or 403. The caller
// should treat the credential as revoked.
type AuthError struct {
	Status int
	Path   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d) on %s", e.Status, e.Path)
}

// IsAuthError reports whether err wraps an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Client is a thin HTTP client for the ggcraft REST API. It handles
// Bearer token authentication, JSON and form encoding, and automatic
// retry with exponential backoff on HTTP 429.
type Client struct {
	baseURL      string
	authEndpoint string
	httpClient   *http.Client
	maxRetries   int
}

// NewClient creates a client for the API rooted at baseURL, e.g.
// https://ggcraft.example.com/api. authEndpoint is the absolute URL used
// to authorize private channel subscriptions.
func NewClient(baseURL, authEndpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		authEndpoint: authEndpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
	}
}

// Login exchanges an email and password for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	body := LoginRequest{Email: email, Password: password}
	var resp TokenResponse
	if err := c.do(ctx, request{
		method: http.MethodPost,
		url:    c.baseURL + "/auth/login",
		json:   body,
	}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login response without access token")
	}
	return &resp, nil
}

// Logout revokes credential on the server.
func (c *Client) Logout(ctx context.Context, credential string) error {
	return c.do(ctx, request{
		method:     http.MethodPost,
		url:        c.baseURL + "/auth/logout",
		credential: credential,
	}, nil)
}

// Me returns the profile of the user owning credential.
func (c *Client) Me(ctx context.Context, credential string) (*UserProfile, error) {
	var profile UserProfile
	if err := c.do(ctx, request{
		method:     http.MethodGet,
		url:        c.baseURL + "/auth/me",
		credential: credential,
	}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RespondInvitation accepts or rejects the team invitation identified by token.
func (c *Client) RespondInvitation(ctx context.Context, credential, token string, accept bool) error {
	action := "reject"
	if accept {
		action = "accept"
	}
	return c.do(ctx, request{
		method:     http.MethodPost,
		url:        fmt.Sprintf("%s/invitations/%s/%s", c.baseURL, url.PathEscape(token), action),
		credential: credential,
	}, nil)
}

// Authorize signs a private channel subscription for socketID. It
// satisfies pusher.Authorizer.
func (c *Client) Authorize(ctx context.Context, credential, socketID, channel string) (string, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	var resp ChannelAuthResponse
	if err := c.do(ctx, request{
		method:     http.MethodPost,
		url:        c.authEndpoint,
		credential: credential,
		form:       form,
	}, &resp); err != nil {
		return "", err
	}
	if resp.Auth == "" {
		return "", fmt.Errorf("channel authorization for %s returned no signature", channel)
	}
	return resp.Auth, nil
}

// request describes one API call. At most one of json and form is set.
type request struct {
	method     string
	url        string
	credential string
	json       any
	form       url.Values
}

func (r request) body() (io.Reader, string, error) {
	switch {
	case r.form != nil:
		return strings.NewReader(r.form.Encode()), "application/x-www-form-urlencoded", nil
	case r.json != nil:
		data, err := json.Marshal(r.json)
		if err != nil {
			return nil, "", fmt.Errorf("marshaling request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
	return nil, "", nil
}

// do builds the request, handles auth, rate limiting with exponential
// backoff, and JSON decoding of the response into result.
func (c *Client) do(ctx context.Context, r request, result any) error {
	path := r.url
	if u, err := url.Parse(r.url); err == nil {
		path = u.Path
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		// The body is rebuilt on every attempt since the previous one was consumed.
		body, contentType, err := r.body()
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if r.credential != "" {
			req.Header.Set("Authorization", "Bearer "+r.credential)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", r.method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", r.method, path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthError{Status: resp.StatusCode, Path: path}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr ErrorResponse
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
				return fmt.Errorf("api error (%d) on %s %s: %s",
					resp.StatusCode, r.method, path, apiErr.Message)
			}
			return fmt.Errorf("unexpected status %d on %s %s: %s",
				resp.StatusCode, r.method, path, string(respBody))
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", r.method, path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
