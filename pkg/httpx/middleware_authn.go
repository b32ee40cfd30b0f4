package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

var (
	ErrMissingBearer = errors.New("httpx: missing bearer token")
	errTrailingData  = errors.New("httpx: unexpected data after JSON body")
)

// Authenticate validates a raw bearer token and returns the context that
// downstream handlers should see.
type Authenticate func(ctx context.Context, raw string) (context.Context, error)

// AuthnFailure renders an authentication error. The default writes a bare
// RFC 6750 challenge.
type AuthnFailure func(w http.ResponseWriter, r *http.Request, err error)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	authz := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingBearer
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingBearer
	}
	return raw, nil
}

// AuthnMiddleware rejects requests without a valid bearer token.
func AuthnMiddleware(authenticate Authenticate, fail AuthnFailure) Middleware {
	if fail == nil {
		fail = func(w http.ResponseWriter, _ *http.Request, err error) {
			WriteBearerChallenge(w, err.Error())
			w.WriteHeader(http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if err != nil {
				fail(w, r, err)
				return
			}

			ctx, err := authenticate(r.Context(), raw)
			if err != nil {
				slogx.FromContext(r.Context()).Debug("bearer authentication failed", "err", err)
				fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteBearerChallenge sets the RFC 6750 WWW-Authenticate header. The caller
// still owns the status line and body.
func WriteBearerChallenge(w http.ResponseWriter, desc string) {
	desc = strings.ReplaceAll(desc, `"`, `'`)
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
}
