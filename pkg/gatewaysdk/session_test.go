package gatewaysdk_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aussiebroadwan/policygate/pkg/gatewaysdk"
	"github.com/stretchr/testify/require"
)

// fakeGateway issues "access-N" tokens and accepts only the latest one.
type fakeGateway struct {
	issued    atomic.Int32
	refreshes atomic.Int32
	expiresIn int64
	loggedOut atomic.Bool
}

func (g *fakeGateway) token() string {
	return "access-" + string(rune('0'+g.issued.Load()))
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authed := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer "+g.token() && !g.loggedOut.Load()
	}

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		g.issued.Add(1)
		writeJSON(w, http.StatusOK, gatewaysdk.TokenResponse{
			AccessToken: g.token(), RefreshToken: "refresh-1", TokenType: "Bearer", ExpiresIn: g.expiresIn,
		})
	})
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.RefreshToken != "refresh-1" || g.loggedOut.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh_invalid"})
			return
		}
		g.refreshes.Add(1)
		g.issued.Add(1)
		writeJSON(w, http.StatusOK, gatewaysdk.TokenResponse{AccessToken: g.token(), TokenType: "Bearer", ExpiresIn: 900})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token_invalid"})
			return
		}
		g.loggedOut.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /policies/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token_invalid"})
			return
		}
		if r.PathValue("id") != "P-1" {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access_denied", "error_description": "not yours"})
			return
		}
		writeJSON(w, http.StatusOK, gatewaysdk.Policy{ID: "P-1", Coverages: []string{}})
	})
	mux.HandleFunc("GET /claims/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	return mux
}

func newClient(t *testing.T, g *fakeGateway) *gatewaysdk.Client {
	t.Helper()
	srv := httptest.NewServer(g.handler())
	t.Cleanup(srv.Close)
	return gatewaysdk.NewClient(srv.URL + "/")
}

func TestSession_UsesTokenUntilNearExpiry(t *testing.T) {
	g := &fakeGateway{expiresIn: 900}
	c := newClient(t, g)

	s, err := c.Login(t.Context(), "alice")
	require.NoError(t, err)

	p, err := s.GetPolicy(t.Context(), "P-1")
	require.NoError(t, err)
	require.Equal(t, "P-1", p.ID)
	require.Zero(t, g.refreshes.Load())
}

func TestSession_RefreshesExpiredToken(t *testing.T) {
	// Inside the refresh skew, so the first call refreshes.
	g := &fakeGateway{expiresIn: 10}
	c := newClient(t, g)

	s, err := c.Login(t.Context(), "alice")
	require.NoError(t, err)
	first := s.AccessToken()

	_, err = s.GetPolicy(t.Context(), "P-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, g.refreshes.Load())
	require.NotEqual(t, first, s.AccessToken())
	require.Equal(t, "refresh-1", s.RefreshToken(), "refresh token is kept when none is returned")
}

func TestSession_Errors(t *testing.T) {
	g := &fakeGateway{expiresIn: 900}
	c := newClient(t, g)

	s, err := c.Login(t.Context(), "alice")
	require.NoError(t, err)

	_, err = s.GetPolicy(t.Context(), "P-2")
	require.True(t, gatewaysdk.IsAccessDenied(err))
	var apiErr *gatewaysdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Equal(t, "not yours", apiErr.Description)

	// Not in the gateway's error shape.
	_, err = s.GetClaim(t.Context(), "C-1")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.False(t, gatewaysdk.IsUnavailable(err))
}

func TestSession_Logout(t *testing.T) {
	g := &fakeGateway{expiresIn: 900}
	c := newClient(t, g)

	s, err := c.Login(t.Context(), "alice")
	require.NoError(t, err)
	require.NoError(t, s.Logout(t.Context()))
	require.True(t, g.loggedOut.Load())

	// Nothing left to log out with.
	require.NoError(t, s.Logout(t.Context()))

	_, err = s.GetPolicy(t.Context(), "P-1")
	require.ErrorIs(t, err, gatewaysdk.ErrNoRefreshToken)
}

func TestClient_RefreshRejected(t *testing.T) {
	c := newClient(t, &fakeGateway{expiresIn: 900})

	_, err := c.Refresh(t.Context(), "bogus")
	require.True(t, gatewaysdk.IsUnauthorized(err))
	require.Equal(t, gatewaysdk.ErrorCodeRefreshInvalid, gatewaysdk.Code(err))
}
