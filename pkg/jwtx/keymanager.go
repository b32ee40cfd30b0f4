package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/policygate/pkg/cryptox"
)

// Supported JWT signing algorithms
const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// KeyManager wires a signer, its matching verifier and the published KeySet
// together for one process.
type KeyManager struct {
	Signer   Signer
	Verifier Verifier
	KeySet   *KeySet

	// Leeway is how long past exp the Verifier still accepts a token.
	Leeway time.Duration
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Algorithm is either "HS256" or "EdDSA".
	Algorithm string

	// Issuer is stamped into and enforced on every token.
	Issuer string

	// Secret is the HS256 key material. Ignored for EdDSA.
	Secret []byte

	// PrivateKeyPEM is the EdDSA signing key. When empty an ephemeral key is
	// generated. Ignored for HS256.
	PrivateKeyPEM []byte

	// Leeway for exp/nbf checks.
	Leeway time.Duration

	// Now overrides the verifier clock.
	Now func() time.Time
}

// NewKeyManager builds a KeyManager for the configured algorithm. Without
// PrivateKeyPEM an EdDSA key lives only in memory, so tokens do not survive a
// restart. A supplied key gets a kid derived from its public half, so every
// replica loading it publishes the same JWK.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}

	vopts := VerifyOptions{Issuer: opts.Issuer, Leeway: opts.Leeway, Now: opts.Now}
	keyset := NewKeySet()

	kid, err := generateRandomKeyID()
	if err != nil {
		return nil, err
	}

	switch opts.Algorithm {
	case AlgorithmHS256, "":
		signer, err := NewSignerHS256(kid, opts.Secret)
		if err != nil {
			return nil, err
		}
		return &KeyManager{
			Signer:   signer,
			Verifier: NewVerifierHS256(opts.Secret, vopts),
			KeySet:   keyset,
			Leeway:   opts.Leeway,
		}, nil

	case AlgorithmEdDSA:
		pemBytes := opts.PrivateKeyPEM
		if len(pemBytes) == 0 {
			if pemBytes, err = cryptox.GenerateEd25519Key(); err != nil {
				return nil, fmt.Errorf("jwtx: generate EdDSA key: %w", err)
			}
		}
		signer, err := newEdDSASigner(kid, pemBytes)
		if err != nil {
			return nil, err
		}
		if len(opts.PrivateKeyPEM) > 0 {
			signer.kid = thumbprintKID(signer.PublicJWK())
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: add signer to keyset: %w", err)
		}
		return &KeyManager{
			Signer:   signer,
			Verifier: NewVerifierEdDSA(keyset, vopts),
			KeySet:   keyset,
			Leeway:   opts.Leeway,
		}, nil

	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: HS256, EdDSA)", opts.Algorithm)
	}
}

// Algorithm returns the signing algorithm being used.
func (km *KeyManager) Algorithm() string {
	return km.Signer.Alg()
}

// thumbprintKID names a key after its public material.
func thumbprintKID(j JWK) string {
	return "policygate-" + cryptox.FingerprintToken(j.Crv + ":" + j.X)[:22]
}

// generateRandomKeyID creates a random key identifier with 128 bits of entropy.
func generateRandomKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: generate key ID: %w", err)
	}
	return "policygate-" + token, nil
}
