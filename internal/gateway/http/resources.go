package http

import (
	"net/http"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/service"
	"github.com/aussiebroadwan/policygate/pkg/httpx"
)

// ResourceHandler serves policy and claim reads for the authenticated
// principal.
type ResourceHandler struct {
	Resources *service.ResourceService
}

// principal is always set behind bearerAuth; the check guards against a
// route registered without it.
func principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, r, domain.ErrTokenInvalid())
	}
	return p, ok
}

// HandleListPolicies godoc
//
//	@Summary	List my policies
//	@Tags		Policies
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{array}		domain.Policy
//	@Failure	401	{object}	httpx.ErrorBody
//	@Failure	502	{object}	httpx.ErrorBody
//	@Router		/policies [get]
func (h *ResourceHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	policies, err := h.Resources.ListPolicies(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policies)
}

// HandleGetPolicy godoc
//
//	@Summary	Get one of my policies
//	@Tags		Policies
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"Policy id"
//	@Success	200	{object}	domain.Policy
//	@Failure	401	{object}	httpx.ErrorBody
//	@Failure	403	{object}	httpx.ErrorBody
//	@Failure	404	{object}	httpx.ErrorBody
//	@Failure	502	{object}	httpx.ErrorBody
//	@Router		/policies/{id} [get]
func (h *ResourceHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	policy, err := h.Resources.GetPolicy(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, policy)
}

// HandleGetConditions godoc
//
//	@Summary	Get the conditions of one of my policies
//	@Tags		Policies
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path	string	true	"Policy id"
//	@Success	200	{array}	string
//	@Failure	401	{object}	httpx.ErrorBody
//	@Failure	403	{object}	httpx.ErrorBody
//	@Failure	404	{object}	httpx.ErrorBody
//	@Failure	502	{object}	httpx.ErrorBody
//	@Router		/policies/{id}/conditions [get]
func (h *ResourceHandler) HandleGetConditions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	conditions, err := h.Resources.GetConditions(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, conditions)
}

// HandleGetClaims godoc
//
//	@Summary	List the claims filed under one of my policies
//	@Tags		Claims
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path	string	true	"Policy id"
//	@Success	200	{array}	domain.Claim
//	@Failure	401	{object}	httpx.ErrorBody
//	@Failure	403	{object}	httpx.ErrorBody
//	@Failure	404	{object}	httpx.ErrorBody
//	@Failure	502	{object}	httpx.ErrorBody
//	@Router		/policies/{id}/claims [get]
func (h *ResourceHandler) HandleGetClaims(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	claims, err := h.Resources.GetClaims(r.Context(), p, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, claims)
}

// HandleGetClaim godoc
//
//	@Summary	Get a claim by id
//	@Tags		Claims
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"Claim id"
//	@Success	200	{object}	domain.Claim
//	@Failure	401	{object}	httpx.ErrorBody
//	@Failure	404	{object}	httpx.ErrorBody
//	@Failure	502	{object}	httpx.ErrorBody
//	@Router		/claims/{id} [get]
func (h *ResourceHandler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}
	claim, err := h.Resources.GetClaim(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, claim)
}

// HandleUser godoc
//
//	@Summary	Who am I
//	@Tags		Auth
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	UserResponse
//	@Failure	401	{object}	httpx.ErrorBody
//	@Router		/user [get]
func HandleUser(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, UserResponse{Name: p.Identity})
}
