package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// MinHMACKeySize is the smallest HS256 key we accept (RFC 7518 §3.2).
const MinHMACKeySize = 32

// HS256Signer implements the Signer interface using HMAC-SHA256.
type HS256Signer struct {
	kid string
	key []byte
}

func newHS256Signer(kid string, key []byte) (*HS256Signer, error) {
	s := &HS256Signer{kid: kid, key: append([]byte(nil), key...)}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	return t.SignedString(s.key)
}

// Validate rejects keys shorter than the hash output.
func (s *HS256Signer) Validate() error {
	if len(s.key) < MinHMACKeySize {
		return errors.New("jwtx: HS256 key must be at least 32 bytes")
	}
	return nil
}
