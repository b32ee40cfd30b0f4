package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. The gateway overrides both from config.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenUseAccess marks a JWT as an access token. Refresh tokens are opaque and
// never travel as JWTs, but the marker keeps other JWTs signed with the same
// key from being accepted as bearer credentials.
const TokenUseAccess = "access"

// Claims are the access-token claims. The subject is the principal identity
// that the gateway also uses as the upstream owner key.
type Claims struct {
	jwt.RegisteredClaims

	// TokenUse distinguishes access tokens from anything else we might sign.
	TokenUse string `json:"token_use,omitempty"`
}

// NewAccessClaims builds claims with a fresh jti and the given lifetime.
func NewAccessClaims(subject, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TokenUse: TokenUseAccess,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ExpiresAtTime returns the exp claim or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAccess makes sure the token is an access token with a subject and a
// jti; revocation is keyed on the jti so a token without one is useless.
func (c *Claims) ValidateAccess() error {
	if c.TokenUse != TokenUseAccess || c.Subject == "" || c.ID == "" {
		return ErrInvalidClaim
	}
	return nil
}
