package http

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	_ "github.com/aussiebroadwan/policygate/api/gateway" // Swagger docs
	"github.com/aussiebroadwan/policygate/internal/gateway/breaker"
	"github.com/aussiebroadwan/policygate/internal/gateway/metrics"
	"github.com/aussiebroadwan/policygate/internal/gateway/service"
	"github.com/aussiebroadwan/policygate/internal/gateway/store"
	"github.com/aussiebroadwan/policygate/pkg/httpx"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	breakers *breaker.Registry
	metrics  *metrics.Metrics

	CredentialService *service.CredentialService
	ResourceService   *service.ResourceService

	// LoginLimit and ResourceLimit default to the httpx profiles.
	LoginLimit    httpx.RateLimitConfig
	ResourceLimit httpx.RateLimitConfig

	// TrustedProxies are the peers whose forwarding headers identify the
	// client. Empty means every request is keyed on its direct peer.
	TrustedProxies []netip.Prefix
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	breakers *breaker.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:           http.NewServeMux(),
		keys:          keys,
		buildVersion:  buildVersion,
		startTime:     time.Now(),
		store:         st,
		breakers:      breakers,
		metrics:       m,
		logger:        logger,
		LoginLimit:    httpx.LoginLimit,
		ResourceLimit: httpx.ResourceLimit,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerResources()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title						policygate
//	@version					0.1.0
//	@description				Authenticated gateway in front of an insurance policy provider.
//	@description				Access tokens are short lived JWTs; refresh tokens are opaque.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/policygate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) limiter(name string, cfg httpx.RateLimitConfig) *httpx.RateLimiter {
	rl := httpx.NewRateLimiter(cfg)
	rl.OnReject = func(*http.Request, string) { r.metrics.RateLimited(name) }
	return rl
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Credentials: r.CredentialService}

	// Login is unauthenticated so it is limited per client address.
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			r.limiter("login", r.LoginLimit).Middleware(httpx.ClientIPKeyExtractor(r.TrustedProxies)),
		),
	)
	r.Mux.Handle("POST /auth/refresh", http.HandlerFunc(h.HandleRefresh))
	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			bearerAuth(r.CredentialService),
		),
	)
}

func (r *Router) registerResources() {
	h := &ResourceHandler{Resources: r.ResourceService}
	perUser := r.limiter("resource", r.ResourceLimit).
		Middleware(httpx.FirstKeyExtractor(httpx.UserIDKeyExtractor, httpx.ClientIPKeyExtractor(r.TrustedProxies)))

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			bearerAuth(r.CredentialService),
			perUser,
		)
	}

	r.Mux.Handle("GET /policies", secured(h.HandleListPolicies))
	r.Mux.Handle("GET /policies/{id}", secured(h.HandleGetPolicy))
	r.Mux.Handle("GET /policies/{id}/conditions", secured(h.HandleGetConditions))
	r.Mux.Handle("GET /policies/{id}/claims", secured(h.HandleGetClaims))
	r.Mux.Handle("GET /claims/{id}", secured(h.HandleGetClaim))
	r.Mux.Handle("GET /user", secured(HandleUser))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys, r.breakers))
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.keys.KeySet))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
