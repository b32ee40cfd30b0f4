// Package memory is a process-local store driver backed by ttlcache. Each
// registry owns its own cache, so there is no lock shared between them.
package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/store"
)

var errClosed = errors.New("memory: store closed")

// Options tunes the driver.
type Options struct {
	// Now is the clock used for expiry decisions. Defaults to time.Now.
	Now func() time.Time
}

type Store struct {
	now         func() time.Time
	refresh     *refreshTokensRepo
	revocations *revocationsRepo
	closed      atomic.Bool
}

var _ store.Store = (*Store)(nil)

// NewStore creates the registries and starts their background expiry loops.
// Close must be called to stop them.
func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		now:         now,
		refresh:     newRefreshTokensRepo(now),
		revocations: newRevocationsRepo(now),
	}
	go s.refresh.items.Start()
	go s.revocations.items.Start()
	return s
}

func (s *Store) RefreshTokens() store.RefreshTokens { return s.refresh }
func (s *Store) Revocations() store.Revocations     { return s.revocations }

func (s *Store) Ping(context.Context) error {
	if s.closed.Load() {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.refresh.items.Stop()
	s.revocations.items.Stop()
	s.refresh.items.DeleteAll()
	s.revocations.items.DeleteAll()
	return nil
}

// ttlUntil converts an absolute expiry into a ttlcache TTL. The cache sweeps
// on wall time while reads judge expiry by the injected clock, so the TTL only
// bounds memory and never decides validity on its own.
func ttlUntil(now func() time.Time, expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return -1 // ttlcache.NoTTL
	}
	return expiresAt.Sub(now())
}
