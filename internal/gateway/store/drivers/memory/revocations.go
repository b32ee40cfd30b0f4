package memory

import (
	"context"
	"errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type revocationsRepo struct {
	now   func() time.Time
	items *ttlcache.Cache[string, time.Time]
}

func newRevocationsRepo(now func() time.Time) *revocationsRepo {
	return &revocationsRepo{
		now: now,
		items: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, time.Time](),
		),
	}
}

func (r *revocationsRepo) RevokeToken(_ context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return errors.New("memory: token id is required")
	}
	if !expiresAt.IsZero() && !r.now().Before(expiresAt) {
		// The token can no longer pass verification, nothing to remember.
		return nil
	}
	r.items.Set(tokenID, expiresAt, ttlUntil(r.now, expiresAt))
	return nil
}

func (r *revocationsRepo) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	item := r.items.Get(tokenID)
	if item == nil {
		return false, nil
	}

	exp := item.Value()
	if !exp.IsZero() && !r.now().Before(exp) {
		r.items.Delete(tokenID)
		return false, nil
	}
	return true, nil
}

func (r *revocationsRepo) DeleteExpiredRevocations(context.Context) error {
	r.items.DeleteExpired()

	now := r.now()
	for id, item := range r.items.Items() {
		if exp := item.Value(); !exp.IsZero() && !now.Before(exp) {
			r.items.Delete(id)
		}
	}
	return nil
}

// Len is the number of remembered revocations.
func (r *revocationsRepo) Len() int {
	return r.items.Len()
}
