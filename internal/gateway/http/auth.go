package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/service"
	"github.com/aussiebroadwan/policygate/pkg/httpx"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

const maxBodyBytes = 1 << 16

type principalKey struct{}

func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && p.Identity != ""
}

// bearerAuth verifies the access token and exposes the principal to the
// rest of the chain.
func bearerAuth(creds *service.CredentialService) httpx.Middleware {
	return httpx.AuthnMiddleware(func(ctx context.Context, raw string) (context.Context, error) {
		p, err := creds.Verify(ctx, raw)
		if err != nil {
			return ctx, err
		}
		ctx = withPrincipal(ctx, p)
		ctx = httpx.WithUserID(ctx, p.Identity)
		ctx = slogx.With(ctx, "user", p.Identity)
		return ctx, nil
	}, authnFailure)
}

// AuthHandler serves the credential lifecycle endpoints.
type AuthHandler struct {
	Credentials *service.CredentialService
}

// HandleLogin godoc
//
//	@Summary		Log in
//	@Description	Issues an access token and a refresh token for the given username.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LoginRequest		true	"Username"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		429		{object}	httpx.ErrorBody
//	@Router			/auth/login [post]
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, r, domain.ErrInvalidRequest("request body must be a JSON object with a username"))
		return
	}

	pair, err := h.Credentials.Login(r.Context(), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh godoc
//
//	@Summary		Refresh an access token
//	@Description	Exchanges a refresh token for a new access token. The refresh token stays valid until it expires.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	httpx.ErrorBody
//	@Failure		401		{object}	httpx.ErrorBody
//	@Router			/auth/refresh [post]
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := httpx.DecodeJSON(w, r, maxBodyBytes, &req); err != nil || req.RefreshToken == "" {
		writeError(w, r, domain.ErrInvalidRequest("refreshToken is required"))
		return
	}

	pair, err := h.Credentials.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout godoc
//
//	@Summary		Log out
//	@Description	Revokes the presented access token and deletes the refresh token, if one is given.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Param			body	body	LogoutRequest	false	"Refresh token"
//	@Success		204
//	@Failure		400	{object}	httpx.ErrorBody
//	@Failure		401	{object}	httpx.ErrorBody
//	@Router			/auth/logout [post]
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if err := httpx.DecodeJSON(w, r, maxBodyBytes, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, domain.ErrInvalidRequest("malformed request body"))
		return
	}

	// The middleware already verified it; the raw value is needed for its id.
	raw, _ := httpx.BearerToken(r)
	if err := h.Credentials.Logout(r.Context(), raw, req.RefreshToken); err != nil {
		writeError(w, r, err)
		return
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
