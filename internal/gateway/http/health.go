package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/breaker"
	"github.com/aussiebroadwan/policygate/internal/gateway/store"
	"github.com/aussiebroadwan/policygate/pkg/httpx"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
)

// LivezHandler godoc
//
//	@Summary		Liveness check
//	@Description	Always 200 while the process is serving.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness check
//	@Description	503 when the token registries or the signer are unusable.
//	@Description	Open upstream breakers mark the gateway degraded but keep it ready,
//	@Description	since it can still issue credentials and fail fast on reads.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/readyz [get]
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	keys *jwtx.KeyManager,
	breakers *breaker.Registry,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{Store: "ok", Signer: "ok"}
		status := "ok"
		code := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Store = "error: " + err.Error()
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}

		if keys == nil || keys.Signer == nil {
			checks.Signer = "error: no signing key"
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}

		checks.Upstreams = breakers.States()
		for _, dep := range checks.Upstreams {
			if dep.State != breaker.StateClosed && code == http.StatusOK {
				status = "degraded"
			}
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}

// JWKSHandler godoc
//
//	@Summary		JSON Web Key Set
//	@Description	Public keys for verifying access tokens. Empty when tokens are HS256 signed.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	jwtx.JWKS
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys *jwtx.KeySet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, keys.PublicJWKS())
	}
}
