package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// GenerateEd25519Key returns a fresh Ed25519 private key, PKCS8 PEM encoded.
func GenerateEd25519Key() ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate Ed25519 key: %w", err)
	}
	return encodeEd25519(priv)
}

// DeriveEd25519Key seeds an Ed25519 key from secret via DeriveKey, so every
// process holding the same secret and info signs with the same key.
func DeriveEd25519Key(secret []byte, info string) ([]byte, error) {
	seed, err := DeriveKey(secret, info, ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	return encodeEd25519(ed25519.NewKeyFromSeed(seed))
}

func encodeEd25519(priv ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
