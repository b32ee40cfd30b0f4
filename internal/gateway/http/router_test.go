package http_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/breaker"
	"github.com/aussiebroadwan/policygate/internal/gateway/cache"
	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	gatewayhttp "github.com/aussiebroadwan/policygate/internal/gateway/http"
	"github.com/aussiebroadwan/policygate/internal/gateway/metrics"
	"github.com/aussiebroadwan/policygate/internal/gateway/service"
	"github.com/aussiebroadwan/policygate/internal/gateway/store/drivers/memory"
	"github.com/aussiebroadwan/policygate/internal/gateway/upstream"
	"github.com/aussiebroadwan/policygate/pkg/httpx"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type env struct {
	srv      *httptest.Server
	provider *provider
	breakers *breaker.Registry
	metrics  *metrics.Metrics
}

// provider imitates the upstream policy system. down makes every call 500.
type provider struct {
	calls atomic.Int32
	down  atomic.Bool
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	if p.down.Load() {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/policies" && r.URL.Query().Get("owner") == "alice":
		_, _ = io.WriteString(w, `[{"polizaId":"P-1","descripcion":"Hogar","coberturas":["incendio"]},{"polizaId":"P-2","descripcion":"Auto"}]`)
	case r.URL.Path == "/policies/P-1":
		_, _ = io.WriteString(w, `{"polizaId":"P-1","descripcion":"Hogar","coberturas":["incendio"]}`)
	case r.URL.Path == "/policies/P-1/conditions":
		_, _ = io.WriteString(w, `["sin mascotas"]`)
	case r.URL.Path == "/policies/P-1/claims":
		_, _ = io.WriteString(w, `[{"siniestroId":"S-1","descripcion":"Inundacion","estado":"abierto","fecha":"2026-01-02"}]`)
	case r.URL.Path == "/claims/S-9":
		_, _ = io.WriteString(w, `{"siniestroId":"S-9","descripcion":"Robo","estado":"cerrado","fecha":"2025-11-30"}`)
	default:
		http.NotFound(w, r)
	}
}

func newEnv(t *testing.T, loginLimit httpx.RateLimitConfig) *env {
	t.Helper()

	p := &provider{}
	upstreamSrv := httptest.NewServer(p)
	t.Cleanup(upstreamSrv.Close)

	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "policygate-test",
	})
	require.NoError(t, err)

	st := memory.NewStore(memory.Options{})
	t.Cleanup(func() { _ = st.Close() })

	m := metrics.New()
	logger := slogx.Discard()
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: 3,
		Window:           time.Minute,
		Cooldown:         time.Hour,
		HalfOpenTrials:   1,
	}, logger, m)

	client, err := upstream.NewClient(upstreamSrv.URL, upstreamSrv.Client(), time.Second)
	require.NoError(t, err)
	gw := upstream.NewGateway(client, breakers.Get("provider"), m)

	lists := cache.New[[]domain.Policy](cache.Options{Name: "policy_lists", TTL: time.Minute, Recorder: m})
	policies := cache.New[domain.Policy](cache.Options{Name: "policies", TTL: time.Minute, Recorder: m})
	conditions := cache.New[[]string](cache.Options{Name: "conditions", TTL: time.Minute, Recorder: m})
	t.Cleanup(func() {
		lists.Close()
		policies.Close()
		conditions.Close()
	})

	router := gatewayhttp.NewRouter(km, "test", st, breakers, m, logger)
	router.LoginLimit = loginLimit
	router.CredentialService = &service.CredentialService{
		KeyManager: km,
		Store:      st,
		Issuer:     "policygate-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
		Recorder:   m,
	}
	router.ResourceService = &service.ResourceService{
		Upstream:   gw,
		Guard:      &service.OwnershipGuard{Upstream: gw, PolicyLists: lists},
		Policies:   policies,
		Conditions: conditions,
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &env{srv: srv, provider: p, breakers: breakers, metrics: m}
}

func defaultEnv(t *testing.T) *env {
	return newEnv(t, httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000})
}

func (e *env) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *env) login(t *testing.T, username string) gatewayhttp.TokenResponse {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/login", "", `{"username":"`+username+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[gatewayhttp.TokenResponse](t, resp)
}

func requireError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	require.Equal(t, status, resp.StatusCode)
	body := decode[httpx.ErrorBody](t, resp)
	require.Equal(t, code, body.Error)
}

func TestLoginAndUser(t *testing.T) {
	e := defaultEnv(t)

	tok := e.login(t, "alice")
	require.Equal(t, "Bearer", tok.TokenType)
	require.EqualValues(t, 900, tok.ExpiresIn)
	require.NotEmpty(t, tok.RefreshToken)

	resp := e.do(t, http.MethodGet, "/user", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", decode[gatewayhttp.UserResponse](t, resp).Name)
	require.NotEmpty(t, resp.Header.Get(slogx.RequestIDHeader))
}

func TestLogin_BadRequests(t *testing.T) {
	e := defaultEnv(t)

	for _, body := range []string{"", "not json", `{"username":""}`, `{}`} {
		resp := e.do(t, http.MethodPost, "/auth/login", "", body)
		requireError(t, resp, http.StatusBadRequest, domain.CodeInvalidRequest)
	}
}

func TestLogin_RateLimited(t *testing.T) {
	e := newEnv(t, httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2})

	e.login(t, "alice")
	e.login(t, "alice")
	resp := e.do(t, http.MethodPost, "/auth/login", "", `{"username":"alice"}`)
	requireError(t, resp, http.StatusTooManyRequests, "rate_limit_exceeded")
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLogin_RateLimitIgnoresForwardedFor(t *testing.T) {
	e := newEnv(t, httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2})

	codes := make([]int, 0, 4)
	for i := range 4 {
		req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/auth/login", strings.NewReader(`{"username":"alice"}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		resp, err := e.srv.Client().Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests, http.StatusTooManyRequests}, codes)
}

func TestUnauthenticated(t *testing.T) {
	e := defaultEnv(t)

	for _, tok := range []string{"", "garbage"} {
		resp := e.do(t, http.MethodGet, "/policies", tok, "")
		requireError(t, resp, http.StatusUnauthorized, domain.CodeTokenInvalid)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), `Bearer error="invalid_token"`)
	}
	require.Zero(t, e.provider.calls.Load())
}

func TestRefresh(t *testing.T) {
	e := defaultEnv(t)
	tok := e.login(t, "alice")

	resp := e.do(t, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+tok.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fresh := decode[gatewayhttp.TokenResponse](t, resp)
	require.NotEmpty(t, fresh.AccessToken)
	require.Empty(t, fresh.RefreshToken)

	resp = e.do(t, http.MethodPost, "/auth/refresh", "", `{}`)
	requireError(t, resp, http.StatusBadRequest, domain.CodeInvalidRequest)

	resp = e.do(t, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"nope"}`)
	requireError(t, resp, http.StatusUnauthorized, domain.CodeRefreshInvalid)
}

func TestLogout(t *testing.T) {
	e := defaultEnv(t)
	tok := e.login(t, "alice")

	resp := e.do(t, http.MethodPost, "/auth/logout", tok.AccessToken, `{"refreshToken":"`+tok.RefreshToken+`"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/user", tok.AccessToken, "")
	requireError(t, resp, http.StatusUnauthorized, domain.CodeTokenRevoked)

	resp = e.do(t, http.MethodPost, "/auth/refresh", "", `{"refreshToken":"`+tok.RefreshToken+`"}`)
	requireError(t, resp, http.StatusUnauthorized, domain.CodeRefreshInvalid)

	// A second logout with the same token is turned away by authentication.
	resp = e.do(t, http.MethodPost, "/auth/logout", tok.AccessToken, "")
	requireError(t, resp, http.StatusUnauthorized, domain.CodeTokenRevoked)
}

func TestLogout_WithoutBody(t *testing.T) {
	e := defaultEnv(t)
	tok := e.login(t, "alice")

	resp := e.do(t, http.MethodPost, "/auth/logout", tok.AccessToken, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPolicies(t *testing.T) {
	e := defaultEnv(t)
	tok := e.login(t, "alice")

	resp := e.do(t, http.MethodGet, "/policies", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]domain.Policy](t, resp)
	require.Equal(t, []string{"P-1", "P-2"}, domain.PolicyIDs(list))
	require.Equal(t, []string{}, list[1].Coverages)

	resp = e.do(t, http.MethodGet, "/policies/P-1", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Hogar", decode[domain.Policy](t, resp).Description)

	resp = e.do(t, http.MethodGet, "/policies/P-1/conditions", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"sin mascotas"}, decode[[]string](t, resp))

	resp = e.do(t, http.MethodGet, "/policies/P-1/claims", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	claims := decode[[]domain.Claim](t, resp)
	require.Len(t, claims, 1)
	require.Equal(t, "S-1", claims[0].ID)

	// Owned but unknown upstream.
	resp = e.do(t, http.MethodGet, "/policies/P-2/conditions", tok.AccessToken, "")
	requireError(t, resp, http.StatusNotFound, domain.CodeResourceNotFound)

	// Not owned.
	resp = e.do(t, http.MethodGet, "/policies/P-7", tok.AccessToken, "")
	requireError(t, resp, http.StatusForbidden, domain.CodeAccessDenied)

	resp = e.do(t, http.MethodGet, "/claims/S-9", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Robo", decode[domain.Claim](t, resp).Description)

	resp = e.do(t, http.MethodGet, "/claims/S-404", tok.AccessToken, "")
	requireError(t, resp, http.StatusNotFound, domain.CodeResourceNotFound)
}

func TestPolicies_UnknownOwner(t *testing.T) {
	e := defaultEnv(t)
	tok := e.login(t, "bob")

	resp := e.do(t, http.MethodGet, "/policies", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]domain.Policy](t, resp))

	resp = e.do(t, http.MethodGet, "/policies/P-1", tok.AccessToken, "")
	requireError(t, resp, http.StatusForbidden, domain.CodeAccessDenied)
}

func TestUpstreamOutage(t *testing.T) {
	e := defaultEnv(t)
	tok := e.login(t, "alice")
	e.provider.down.Store(true)

	for range 3 {
		resp := e.do(t, http.MethodGet, "/claims/S-9", tok.AccessToken, "")
		requireError(t, resp, http.StatusBadGateway, domain.CodeUpstreamUnavailable)
	}
	require.EqualValues(t, 3, e.provider.calls.Load())

	// Open: fail fast without touching the provider.
	resp := e.do(t, http.MethodGet, "/claims/S-9", tok.AccessToken, "")
	requireError(t, resp, http.StatusBadGateway, domain.CodeUpstreamUnavailable)
	require.EqualValues(t, 3, e.provider.calls.Load())

	// Credentials keep working while the provider is down.
	resp = e.do(t, http.MethodGet, "/user", tok.AccessToken, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[gatewayhttp.HealthResponse](t, resp)
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, []breaker.DependencyState{{Name: "provider", State: breaker.StateOpen}}, health.Checks.Upstreams)
}

func TestSystemEndpoints(t *testing.T) {
	e := defaultEnv(t)

	resp := e.do(t, http.MethodGet, "/livez", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decode[gatewayhttp.HealthResponse](t, resp).Status)

	resp = e.do(t, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decode[gatewayhttp.HealthResponse](t, resp).Status)

	resp = e.do(t, http.MethodGet, "/.well-known/jwks.json", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jwks := decode[jwtx.JWKS](t, resp)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "Ed25519", jwks.Keys[0].Crv)

	e.login(t, "alice")
	resp = e.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "policygate_auth_events_total")
}
