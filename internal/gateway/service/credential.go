package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/aussiebroadwan/policygate/internal/gateway/metrics"
	"github.com/aussiebroadwan/policygate/internal/gateway/store"
	"github.com/aussiebroadwan/policygate/pkg/cryptox"
	"github.com/aussiebroadwan/policygate/pkg/jwtx"
	"github.com/aussiebroadwan/policygate/pkg/slogx"
)

// MaxUsernameLength bounds the subject we are willing to sign.
const MaxUsernameLength = 256

// AuthRecorder counts credential events. *metrics.Metrics satisfies it.
type AuthRecorder interface {
	AuthEvent(event, result string)
}

// CredentialService issues, refreshes, revokes and verifies credentials. It
// only touches the two token registries, never the upstream provider.
type CredentialService struct {
	KeyManager *jwtx.KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time

	// OnLogin runs after a successful login, e.g. to drop stale per-user
	// cache entries. It must not block.
	OnLogin func(ctx context.Context, username string)

	Recorder AuthRecorder
}

func (s *CredentialService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Login issues a fresh access token and refresh token for username. There is
// no password check: the caller is trusted to have authenticated the user.
func (s *CredentialService) Login(ctx context.Context, username string) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	username = strings.TrimSpace(username)
	if username == "" {
		s.record("login", metrics.ResultRejected)
		return nil, domain.ErrInvalidRequest("username is required")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		s.record("login", metrics.ResultRejected)
		return nil, domain.ErrInvalidRequest("username is too long")
	}

	now := s.now()
	access, err := s.signAccess(username, now)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("service: generate refresh token: %w", err)
	}
	rt := domain.RefreshToken{
		TokenHash: cryptox.FingerprintToken(refreshOpaque),
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.RefreshTTL),
	}
	if err := s.Store.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("service: store refresh token: %w", err)
	}

	if s.OnLogin != nil {
		s.OnLogin(ctx, username)
	}

	l.Info("login succeeded", slog.String("username", username))
	s.record("login", metrics.ResultSuccess)

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshOpaque,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Refresh mints a new access token for the owner of refreshOpaque. The
// refresh token itself is left untouched and stays usable until it expires.
func (s *CredentialService) Refresh(ctx context.Context, refreshOpaque string) (*domain.TokenPair, error) {
	refreshOpaque = strings.TrimSpace(refreshOpaque)
	if refreshOpaque == "" {
		s.record("refresh", metrics.ResultRejected)
		return nil, domain.ErrRefreshInvalid()
	}

	rt, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshOpaque))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.record("refresh", metrics.ResultRejected)
			return nil, domain.ErrRefreshInvalid()
		}
		return nil, fmt.Errorf("service: lookup refresh token: %w", err)
	}

	access, err := s.signAccess(rt.Username, s.now())
	if err != nil {
		return nil, err
	}

	s.record("refresh", metrics.ResultSuccess)
	return &domain.TokenPair{
		AccessToken: access,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   s.AccessTTL,
	}, nil
}

// Logout revokes the access token's id until the verifier would stop
// accepting it (exp plus leeway) and deletes the refresh token. Logging out an
// already revoked pair succeeds.
func (s *CredentialService) Logout(ctx context.Context, accessToken, refreshOpaque string) error {
	l := slogx.FromContext(ctx)

	claims, err := s.KeyManager.Verifier.Verify(strings.TrimSpace(accessToken))
	switch {
	case err == nil:
		if err := s.Store.Revocations().RevokeToken(ctx, claims.ID, claims.ExpiresAtTime().Add(s.KeyManager.Leeway)); err != nil {
			return fmt.Errorf("service: revoke access token: %w", err)
		}
	case errors.Is(err, jwtx.ErrExpired):
		// Already unusable; nothing to revoke.
	default:
		s.record("logout", metrics.ResultRejected)
		return domain.ErrTokenInvalid()
	}

	if refreshOpaque = strings.TrimSpace(refreshOpaque); refreshOpaque != "" {
		if err := s.Store.RefreshTokens().DeleteRefreshToken(ctx, cryptox.FingerprintToken(refreshOpaque)); err != nil {
			return fmt.Errorf("service: delete refresh token: %w", err)
		}
	}

	l.Info("logout", slog.String("username", claims.Subject))
	s.record("logout", metrics.ResultSuccess)
	return nil
}

// Verify checks signature, expiry and revocation and returns the principal.
func (s *CredentialService) Verify(ctx context.Context, token string) (domain.Principal, error) {
	claims, err := s.KeyManager.Verifier.Verify(token)
	if err != nil {
		s.record("verify", metrics.ResultRejected)
		if errors.Is(err, jwtx.ErrExpired) {
			return domain.Principal{}, domain.ErrTokenExpired()
		}
		slogx.FromContext(ctx).Debug("access token rejected", "err", err)
		return domain.Principal{}, domain.ErrTokenInvalid()
	}

	revoked, err := s.Store.Revocations().IsRevoked(ctx, claims.ID)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("service: revocation lookup: %w", err)
	}
	if revoked {
		s.record("verify", metrics.ResultRejected)
		return domain.Principal{}, domain.ErrTokenRevoked()
	}

	s.record("verify", metrics.ResultSuccess)
	return domain.Principal{
		Identity:  claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

func (s *CredentialService) signAccess(username string, now time.Time) (string, error) {
	claims := jwtx.NewAccessClaims(username, s.Issuer, s.AccessTTL, now)
	token, err := s.KeyManager.Signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("service: sign access token: %w", err)
	}
	return token, nil
}

func (s *CredentialService) record(event, result string) {
	if s.Recorder != nil {
		s.Recorder.AuthEvent(event, result)
	}
}
