package domain

import "time"

// TokenTypeBearer is the only token type we hand out.
const TokenTypeBearer = "Bearer"

// TokenPair is what login and refresh return. RefreshToken is empty on refresh
// since the presented refresh token stays valid and is not reissued.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
}

// RefreshToken is a registry entry. Only the fingerprint of the opaque token
// is kept.
type RefreshToken struct {
	TokenHash string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Revocation marks an access token id as unusable until the token would
// have expired anyway.
type Revocation struct {
	TokenID   string
	ExpiresAt time.Time
}

// Principal is the verified caller. It is resolved once at the HTTP boundary
// and passed by value from there on.
type Principal struct {
	Identity  string
	TokenID   string
	ExpiresAt time.Time
}
