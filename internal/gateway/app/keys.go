package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/policygate/pkg/cryptox"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
)

// HKDF info strings binding derived keys to access token signing.
const (
	hs256KeyInfo = "policygate/access-token/hs256"
	eddsaKeyInfo = "policygate/access-token/eddsa"
)

// InitAuthKeys builds the key manager for cfg. Without AUTH_SECRET keys are
// random per process, so tokens stop verifying after a restart.
func InitAuthKeys(cfg Config, logger *slog.Logger, now func() time.Time) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Leeway:    cfg.ClockSkew,
		Now:       now,
	}

	switch {
	case cfg.Algorithm == jwtx.AlgorithmHS256, cfg.Algorithm == "":
		secret := cfg.Secret
		if secret == "" {
			random, err := cryptox.GenerateToken(cryptox.TokenSize256)
			if err != nil {
				return nil, fmt.Errorf("generate signing secret: %w", err)
			}
			secret = random
			logger.Warn("AUTH_SECRET not set, using a random secret; tokens will not survive a restart")
		}

		key, err := cryptox.DeriveKey([]byte(secret), hs256KeyInfo, jwtx.MinHMACKeySize)
		if err != nil {
			return nil, fmt.Errorf("derive signing key: %w", err)
		}
		opts.Secret = key

	case cfg.Secret != "":
		pemKey, err := cryptox.DeriveEd25519Key([]byte(cfg.Secret), eddsaKeyInfo)
		if err != nil {
			return nil, fmt.Errorf("derive signing key: %w", err)
		}
		opts.PrivateKeyPEM = pemKey

	default:
		logger.Warn("AUTH_SECRET not set, using an ephemeral EdDSA key; tokens will not survive a restart")
	}

	km, err := jwtx.NewKeyManager(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("signing keys ready", "algorithm", km.Algorithm(), "kid", km.Signer.KID())
	return km, nil
}
