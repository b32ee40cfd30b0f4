package memory

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/store"
	"github.com/jellydator/ttlcache/v3"
)

type refreshTokensRepo struct {
	now   func() time.Time
	items *ttlcache.Cache[string, domain.RefreshToken]
}

func newRefreshTokensRepo(now func() time.Time) *refreshTokensRepo {
	return &refreshTokensRepo{
		now: now,
		items: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, domain.RefreshToken](),
		),
	}
}

func (r *refreshTokensRepo) CreateRefreshToken(_ context.Context, t domain.RefreshToken) error {
	if t.TokenHash == "" {
		return errors.New("memory: refresh token hash is required")
	}
	ttl := ttlUntil(r.now, t.ExpiresAt)
	if ttl == 0 || t.Expired(r.now()) {
		// Dead on arrival, indistinguishable from never stored.
		return nil
	}
	r.items.Set(t.TokenHash, t, ttl)
	return nil
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(_ context.Context, hash string) (domain.RefreshToken, error) {
	item := r.items.Get(hash)
	if item == nil {
		return domain.RefreshToken{}, store.ErrNotFound
	}

	t := item.Value()
	if t.Expired(r.now()) {
		r.items.Delete(hash)
		return domain.RefreshToken{}, store.ErrNotFound
	}
	return t, nil
}

func (r *refreshTokensRepo) DeleteRefreshToken(_ context.Context, hash string) error {
	r.items.Delete(hash)
	return nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(context.Context) error {
	r.items.DeleteExpired()

	now := r.now()
	for hash, item := range r.items.Items() {
		if item.Value().Expired(now) {
			r.items.Delete(hash)
		}
	}
	return nil
}
