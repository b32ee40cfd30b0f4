// Package upstream talks to the external policy provider. Every call goes
// through the dependency's circuit breaker.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/breaker"
	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/metrics"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

// Fetcher is the read surface the services depend on.
type Fetcher interface {
	FetchPoliciesByOwner(ctx context.Context, owner string) ([]domain.Policy, error)
	FetchPolicy(ctx context.Context, id string) (domain.Policy, error)
	FetchConditions(ctx context.Context, policyID string) ([]string, error)
	FetchClaims(ctx context.Context, policyID string) ([]domain.Claim, error)
	FetchClaim(ctx context.Context, id string) (domain.Claim, error)
}

// Recorder receives per-call outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	UpstreamRequest(dependency, operation, result string, seconds float64)
}

type Gateway struct {
	client   *Client
	breaker  *breaker.Breaker
	recorder Recorder
}

var _ Fetcher = (*Gateway)(nil)

func NewGateway(client *Client, b *breaker.Breaker, rec Recorder) *Gateway {
	return &Gateway{client: client, breaker: b, recorder: rec}
}

func (g *Gateway) FetchPoliciesByOwner(ctx context.Context, owner string) ([]domain.Policy, error) {
	var out []ExternalPolicy
	if err := g.get(ctx, "policies_by_owner", "/policies", url.Values{"owner": {owner}}, "policies", &out); err != nil {
		return nil, err
	}
	return toPolicies(out), nil
}

func (g *Gateway) FetchPolicy(ctx context.Context, id string) (domain.Policy, error) {
	var out ExternalPolicy
	if err := g.get(ctx, "policy", "/policies/"+url.PathEscape(id), nil, "policy", &out); err != nil {
		return domain.Policy{}, err
	}
	return ToPolicy(out), nil
}

func (g *Gateway) FetchConditions(ctx context.Context, policyID string) ([]string, error) {
	out := []string{}
	if err := g.get(ctx, "conditions", "/policies/"+url.PathEscape(policyID)+"/conditions", nil, "conditions", &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (g *Gateway) FetchClaims(ctx context.Context, policyID string) ([]domain.Claim, error) {
	var out []ExternalClaim
	if err := g.get(ctx, "claims", "/policies/"+url.PathEscape(policyID)+"/claims", nil, "claims", &out); err != nil {
		return nil, err
	}
	return toClaims(out), nil
}

func (g *Gateway) FetchClaim(ctx context.Context, id string) (domain.Claim, error) {
	var out ExternalClaim
	if err := g.get(ctx, "claim", "/claims/"+url.PathEscape(id), nil, "claim", &out); err != nil {
		return domain.Claim{}, err
	}
	return ToClaim(out), nil
}

// get runs one request through the breaker and decodes the body into v.
// A body that does not decode is treated like any other provider fault.
func (g *Gateway) get(ctx context.Context, op, path string, query url.Values, resource string, v any) error {
	start := time.Now()
	_, err := g.breaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		body, err := g.client.Get(ctx, path, query, resource)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(body, v); err != nil {
			return nil, fmt.Errorf("upstream: decode %s: %w", op, err)
		}
		return body, nil
	})
	g.record(ctx, op, err, time.Since(start))
	return err
}

func (g *Gateway) record(ctx context.Context, op string, err error, took time.Duration) {
	result := metrics.ResultSuccess
	switch {
	case err == nil:
	case domain.IsKind(err, domain.KindResourceNotFound):
		result = metrics.ResultNotFound
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		result = metrics.ResultCanceled
	default:
		result = metrics.ResultFailure
		slogx.FromContext(ctx).Warn("upstream call failed",
			"dependency", g.breaker.Name(),
			"operation", op,
			"err", err,
		)
	}
	if g.recorder != nil {
		g.recorder.UpstreamRequest(g.breaker.Name(), op, result, took.Seconds())
	}
}
