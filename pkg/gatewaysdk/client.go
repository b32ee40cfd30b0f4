package gatewaysdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client talks to one gateway. It is safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login obtains credentials for username and wraps them in a Session.
func (c *Client) Login(ctx context.Context, username string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", map[string]string{"username": username})
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return newSession(c, &tok), nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}

	var tok TokenResponse
	if err := decodeJSON(resp, &tok, http.StatusOK); err != nil {
		return nil, err
	}
	return &tok, nil
}

// NewSessionFromTokens resumes a session from stored credentials.
func (c *Client) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int64) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// Livez calls the liveness endpoint.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// Readyz calls the readiness endpoint. A 503 is returned as the decoded body
// alongside an *APIError.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *Client) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	status := resp.StatusCode

	var out HealthResponse
	if err := decodeJSON(resp, &out, status); err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &out, &APIError{StatusCode: status, Code: out.Status}
	}
	return &out, nil
}
