package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/cache"
	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/service"
	"github.com/aussiebroadwan/policygate/internal/gateway/store/drivers/memory"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
)

const testIssuer = "policygate-test"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeFetcher serves canned data and counts calls per operation.
type fakeFetcher struct {
	owners     map[string][]domain.Policy
	policies   map[string]domain.Policy
	conditions map[string][]string
	claims     map[string][]domain.Claim
	claim      map[string]domain.Claim

	// gate, when non-nil, blocks every fetch until closed.
	gate chan struct{}
	fail error

	byOwner, policy, cond, claimsCalls, claimCalls atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		owners: map[string][]domain.Policy{
			"alice": {{ID: "P-1", Description: "Home"}, {ID: "P-2", Description: "Car"}},
		},
		policies: map[string]domain.Policy{
			"P-1": {ID: "P-1", Description: "Home", Coverages: []string{"fire"}},
			"P-2": {ID: "P-2", Description: "Car", Coverages: []string{}},
			"P-9": {ID: "P-9", Description: "Boat", Coverages: []string{}},
		},
		conditions: map[string][]string{"P-1": {"no pets"}},
		claims: map[string][]domain.Claim{
			"P-1": {{ID: "C-1", Description: "Flood", Status: "open", Date: "2026-01-02"}},
		},
		claim: map[string]domain.Claim{
			"C-1": {ID: "C-1", Description: "Flood", Status: "open", Date: "2026-01-02"},
			"C-7": {ID: "C-7", Description: "Theft", Status: "closed", Date: "2025-11-30"},
		},
	}
}

func (f *fakeFetcher) wait(ctx context.Context) error {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.fail
}

func (f *fakeFetcher) FetchPoliciesByOwner(ctx context.Context, owner string) ([]domain.Policy, error) {
	f.byOwner.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	p, ok := f.owners[owner]
	if !ok {
		return nil, domain.ErrResourceNotFound("policies")
	}
	return p, nil
}

func (f *fakeFetcher) FetchPolicy(ctx context.Context, id string) (domain.Policy, error) {
	f.policy.Add(1)
	if err := f.wait(ctx); err != nil {
		return domain.Policy{}, err
	}
	p, ok := f.policies[id]
	if !ok {
		return domain.Policy{}, domain.ErrResourceNotFound("policy")
	}
	return p, nil
}

func (f *fakeFetcher) FetchConditions(ctx context.Context, id string) ([]string, error) {
	f.cond.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	c, ok := f.conditions[id]
	if !ok {
		return nil, domain.ErrResourceNotFound("conditions")
	}
	return c, nil
}

func (f *fakeFetcher) FetchClaims(ctx context.Context, id string) ([]domain.Claim, error) {
	f.claimsCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	c, ok := f.claims[id]
	if !ok {
		return nil, domain.ErrResourceNotFound("claims")
	}
	return c, nil
}

func (f *fakeFetcher) FetchClaim(ctx context.Context, id string) (domain.Claim, error) {
	f.claimCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return domain.Claim{}, err
	}
	c, ok := f.claim[id]
	if !ok {
		return domain.Claim{}, domain.ErrResourceNotFound("claim")
	}
	return c, nil
}

func newResourceService(t *testing.T, f *fakeFetcher, ttl time.Duration) *service.ResourceService {
	t.Helper()
	lists := cache.New[[]domain.Policy](cache.Options{Name: "policy_lists", TTL: ttl})
	policies := cache.New[domain.Policy](cache.Options{Name: "policies", TTL: ttl})
	conditions := cache.New[[]string](cache.Options{Name: "conditions", TTL: ttl})
	t.Cleanup(func() {
		lists.Close()
		policies.Close()
		conditions.Close()
	})
	return &service.ResourceService{
		Upstream:   f,
		Guard:      &service.OwnershipGuard{Upstream: f, PolicyLists: lists},
		Policies:   policies,
		Conditions: conditions,
	}
}

func newCredentialService(t *testing.T, clock *fakeClock) (*service.CredentialService, *memory.Store) {
	t.Helper()
	return newCredentialServiceWithLeeway(t, clock, 0)
}

func newCredentialServiceWithLeeway(t *testing.T, clock *fakeClock, leeway time.Duration) (*service.CredentialService, *memory.Store) {
	t.Helper()
	km, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmHS256,
		Issuer:    testIssuer,
		Secret:    testSecret,
		Leeway:    leeway,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("key manager: %v", err)
	}
	st := memory.NewStore(memory.Options{Now: clock.Now})
	t.Cleanup(func() { _ = st.Close() })

	return &service.CredentialService{
		KeyManager: km,
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Now:        clock.Now,
	}, st
}
