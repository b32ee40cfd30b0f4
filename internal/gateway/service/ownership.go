package service

import (
	"context"
	"slices"

	"github.com/aussiebroadwan/policygate/internal/gateway/cache"
	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/upstream"
)

// OwnershipGuard decides whether a principal may see a policy. The decision
// is made fresh on every call against the principal's cached policy list.
type OwnershipGuard struct {
	Upstream    upstream.Fetcher
	PolicyLists *cache.Cache[[]domain.Policy]
}

// PolicyList returns the identity's policies, fetching them at most once per
// cache lifetime however many callers ask concurrently. An owner the provider
// does not know owns nothing.
func (g *OwnershipGuard) PolicyList(ctx context.Context, identity string) ([]domain.Policy, error) {
	return g.PolicyLists.GetOrCompute(ctx, identity, func(ctx context.Context) ([]domain.Policy, error) {
		policies, err := g.Upstream.FetchPoliciesByOwner(ctx, identity)
		switch {
		case domain.IsKind(err, domain.KindResourceNotFound):
			return []domain.Policy{}, nil
		case err != nil:
			return nil, err
		case policies == nil:
			return []domain.Policy{}, nil
		}
		return policies, nil
	})
}

// EnsureOwned fails with AccessDenied unless policyID is in p's policy list.
func (g *OwnershipGuard) EnsureOwned(ctx context.Context, p domain.Principal, policyID string) error {
	policies, err := g.PolicyList(ctx, p.Identity)
	if err != nil {
		return err
	}

	if !slices.Contains(domain.PolicyIDs(policies), policyID) {
		return domain.ErrAccessDenied(policyID)
	}
	return nil
}
