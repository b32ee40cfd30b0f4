package gatewaysdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshSkew refreshes this long before the access token actually expires.
const refreshSkew = 30 * time.Second

// ErrNoRefreshToken is returned when the access token has expired and the
// session cannot renew it.
var ErrNoRefreshToken = errors.New("gatewaysdk: access token expired and no refresh token available")

// Session is an authenticated principal. All methods refresh the access
// token as needed and are safe for concurrent use.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(c *Client, tok *TokenResponse) *Session {
	return &Session{
		client:       c,
		accessToken:  tok.AccessToken,
		refreshToken: tok.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - refreshSkew),
	}
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the refresh token the session was created with.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// getValidToken returns a usable access token, refreshing it first if it is
// about to expire.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	tok, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.refreshToken = tok.RefreshToken
	}
	s.expiresAt = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - refreshSkew)
	return s.accessToken, nil
}

func (s *Session) get(ctx context.Context, path string, target any) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}
	resp, err := s.client.doRequest(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}

// Logout revokes the access token and the refresh token. The session is
// unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	access, refresh := s.accessToken, s.refreshToken
	s.accessToken, s.refreshToken = "", ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if access == "" {
		return nil
	}

	resp, err := s.client.doRequest(ctx, http.MethodPost, "/auth/logout", access, map[string]string{"refreshToken": refresh})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) User(ctx context.Context) (*User, error) {
	var u User
	if err := s.get(ctx, "/user", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Session) ListPolicies(ctx context.Context) ([]Policy, error) {
	var out []Policy
	if err := s.get(ctx, "/policies", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	var out Policy
	if err := s.get(ctx, "/policies/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) GetConditions(ctx context.Context, policyID string) ([]string, error) {
	var out []string
	if err := s.get(ctx, "/policies/"+url.PathEscape(policyID)+"/conditions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) GetClaims(ctx context.Context, policyID string) ([]Claim, error) {
	var out []Claim
	if err := s.get(ctx, "/policies/"+url.PathEscape(policyID)+"/claims", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Session) GetClaim(ctx context.Context, id string) (*Claim, error) {
	var out Claim
	if err := s.get(ctx, "/claims/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
