package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/pkg/httpx"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

// writeError renders err as an ErrorBody. Unauthorized responses also carry
// a bearer challenge.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		log.Debug("client went away", "err", err)
		return
	}

	status, code, msg := domain.Describe(err)
	switch {
	case status == http.StatusBadGateway:
		log.Warn("upstream unavailable", "err", err)
	case status >= http.StatusInternalServerError:
		log.Error("request failed", "err", err)
	}

	if status == http.StatusUnauthorized {
		httpx.WriteBearerChallenge(w, msg)
	}
	httpx.WriteError(w, status, code, msg)
}

// authnFailure adapts writeError to httpx.AuthnMiddleware. A missing header
// is reported the same way as a bad token.
func authnFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, httpx.ErrMissingBearer) {
		err = domain.ErrTokenInvalid()
	}
	writeError(w, r, err)
}
