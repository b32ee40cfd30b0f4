package service

import (
	"context"
	"slices"

	"github.com/aussiebroadwan/policygate/internal/gateway/cache"
	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/upstream"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

// ResourceService composes ownership checks with cached upstream reads.
// Owned operations always check ownership before fetching.
type ResourceService struct {
	Upstream   upstream.Fetcher
	Guard      *OwnershipGuard
	Policies   *cache.Cache[domain.Policy]
	Conditions *cache.Cache[[]string]
}

// ListPolicies returns the caller's policies.
func (s *ResourceService) ListPolicies(ctx context.Context, p domain.Principal) ([]domain.Policy, error) {
	policies, err := s.Guard.PolicyList(ctx, p.Identity)
	if err != nil {
		return nil, err
	}
	return slices.Clone(policies), nil
}

// GetPolicy returns one owned policy.
func (s *ResourceService) GetPolicy(ctx context.Context, p domain.Principal, id string) (domain.Policy, error) {
	if err := s.Guard.EnsureOwned(ctx, p, id); err != nil {
		return domain.Policy{}, err
	}
	return s.Policies.GetOrCompute(ctx, id, func(ctx context.Context) (domain.Policy, error) {
		return s.Upstream.FetchPolicy(ctx, id)
	})
}

// GetConditions returns the conditions of one owned policy.
func (s *ResourceService) GetConditions(ctx context.Context, p domain.Principal, id string) ([]string, error) {
	if err := s.Guard.EnsureOwned(ctx, p, id); err != nil {
		return nil, err
	}
	conditions, err := s.Conditions.GetOrCompute(ctx, id, func(ctx context.Context) ([]string, error) {
		return s.Upstream.FetchConditions(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(conditions), nil
}

// GetClaims returns the claims filed under one owned policy. Claims change
// often, so they are never cached.
func (s *ResourceService) GetClaims(ctx context.Context, p domain.Principal, id string) ([]domain.Claim, error) {
	if err := s.Guard.EnsureOwned(ctx, p, id); err != nil {
		return nil, err
	}
	return s.Upstream.FetchClaims(ctx, id)
}

// GetClaim looks up a single claim by id. There is no ownership check on
// this path.
func (s *ResourceService) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	return s.Upstream.FetchClaim(ctx, id)
}

// InvalidateOwner drops the cached policy list for identity so the next
// access re-reads it from the provider.
func (s *ResourceService) InvalidateOwner(ctx context.Context, identity string) {
	s.Guard.PolicyLists.Invalidate(identity)
	slogx.FromContext(ctx).Debug("policy list invalidated", "identity", identity)
}
