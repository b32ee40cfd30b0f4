package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface. The only driver today is the
// process-local memory driver; token state does not survive a restart.
type Store interface {
	RefreshTokens() RefreshTokens
	Revocations() Revocations

	// Ping reports whether the store can serve requests.
	Ping(ctx context.Context) error

	// Close stops background expiry and drops all state.
	Close() error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new entry keyed by its TokenHash.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns a live entry. An entry found past its
	// expiry is deleted and reported as ErrNotFound.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// DeleteRefreshToken removes an entry. Deleting a missing entry is not an error.
	DeleteRefreshToken(ctx context.Context, hash string) error

	// DeleteExpiredRefreshTokens sweeps everything past expiry.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}

type Revocations interface {
	// RevokeToken records tokenID as revoked until expiresAt. Revoking twice
	// is a no-op; a zero expiresAt keeps the entry for the process lifetime.
	RevokeToken(ctx context.Context, tokenID string, expiresAt time.Time) error

	// IsRevoked reports whether tokenID is revoked. Entries past their expiry
	// are deleted during the read and reported as not revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpiredRevocations sweeps everything past expiry.
	DeleteExpiredRevocations(ctx context.Context) error
}
