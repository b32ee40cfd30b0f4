package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/policygate/internal/gateway/domain"
	"github.com/stretchr/testify/require"
)

func TestLogin_IssuesUsablePair(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newCredentialService(t, clock)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, domain.TokenTypeBearer, pair.TokenType)
	require.Equal(t, 15*time.Minute, pair.ExpiresIn)

	p, err := svc.Verify(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", p.Identity)
	require.NotEmpty(t, p.TokenID)
	require.Equal(t, clock.Now().Add(15*time.Minute).Unix(), p.ExpiresAt.Unix())
}

func TestLogin_RejectsEmptyUsername(t *testing.T) {
	svc, _ := newCredentialService(t, newFakeClock())

	for _, name := range []string{"", "   "} {
		_, err := svc.Login(context.Background(), name)
		require.True(t, domain.IsKind(err, domain.KindInvalidRequest), "username %q", name)
	}
}

func TestLogin_OnLoginHook(t *testing.T) {
	svc, _ := newCredentialService(t, newFakeClock())
	var got string
	svc.OnLogin = func(_ context.Context, username string) { got = username }

	_, err := svc.Login(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "bob", got)
}

func TestLogin_ConcurrentTokenIDsAreUnique(t *testing.T) {
	svc, _ := newCredentialService(t, newFakeClock())
	ctx := context.Background()

	const n = 32
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair, err := svc.Login(ctx, "alice")
			if err != nil {
				return
			}
			p, err := svc.Verify(ctx, pair.AccessToken)
			if err != nil {
				return
			}
			ids <- p.TokenID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate token id %s", id)
		seen[id] = true
	}
	require.Len(t, seen, n)
}

func TestRefresh_KeepsIdentity(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newCredentialService(t, clock)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	refreshed, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, refreshed.AccessToken)
	require.Empty(t, refreshed.RefreshToken)

	p, err := svc.Verify(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", p.Identity)

	// Not rotated: the same refresh token keeps working.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_UnknownAndExpired(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newCredentialService(t, clock)
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "never-issued")
	require.True(t, domain.HasCode(err, domain.CodeRefreshInvalid))

	_, err = svc.Refresh(ctx, "")
	require.True(t, domain.HasCode(err, domain.CodeRefreshInvalid))

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.True(t, domain.HasCode(err, domain.CodeRefreshInvalid))
}

func TestVerify_Expired(t *testing.T) {
	clock := newFakeClock()
	svc, _ := newCredentialService(t, clock)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = svc.Verify(ctx, pair.AccessToken)
	require.True(t, domain.HasCode(err, domain.CodeTokenExpired))
}

func TestVerify_Garbage(t *testing.T) {
	svc, _ := newCredentialService(t, newFakeClock())

	for _, tok := range []string{"", "abc", "a.b.c"} {
		_, err := svc.Verify(context.Background(), tok)
		require.True(t, domain.HasCode(err, domain.CodeTokenInvalid), "token %q", tok)
	}
}

func TestLogout_RevokesAccessAndRefresh(t *testing.T) {
	svc, st := newCredentialService(t, newFakeClock())
	ctx := context.Background()

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	other, err := svc.Login(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.AccessToken, pair.RefreshToken))

	_, err = svc.Verify(ctx, pair.AccessToken)
	require.True(t, domain.HasCode(err, domain.CodeTokenRevoked))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.True(t, domain.HasCode(err, domain.CodeRefreshInvalid))

	// Other sessions of the same user are untouched.
	_, err = svc.Verify(ctx, other.AccessToken)
	require.NoError(t, err)

	// Repeating the logout is harmless.
	require.NoError(t, svc.Logout(ctx, pair.AccessToken, pair.RefreshToken))
	require.Equal(t, 1, st.Revocations().(interface{ Len() int }).Len())
}

func TestLogout_RevocationLapsesWithToken(t *testing.T) {
	clock := newFakeClock()
	svc, st := newCredentialService(t, clock)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, pair.AccessToken, ""))

	clock.Advance(16 * time.Minute)
	require.NoError(t, st.Revocations().DeleteExpiredRevocations(ctx))
	require.Equal(t, 0, st.Revocations().(interface{ Len() int }).Len())

	_, err = svc.Verify(ctx, pair.AccessToken)
	require.True(t, domain.HasCode(err, domain.CodeTokenExpired))
}

func TestLogout_RevocationCoversLeeway(t *testing.T) {
	clock := newFakeClock()
	svc, st := newCredentialServiceWithLeeway(t, clock, time.Minute)
	ctx := context.Background()

	pair, err := svc.Login(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, pair.AccessToken, ""))

	// Past exp but inside the leeway the signature still verifies, so the
	// revocation must still be remembered.
	clock.Advance(15*time.Minute + 30*time.Second)
	require.NoError(t, st.Revocations().DeleteExpiredRevocations(ctx))
	_, err = svc.Verify(ctx, pair.AccessToken)
	require.True(t, domain.HasCode(err, domain.CodeTokenRevoked), "got %v", err)

	clock.Advance(time.Minute)
	_, err = svc.Verify(ctx, pair.AccessToken)
	require.True(t, domain.HasCode(err, domain.CodeTokenExpired))
}

func TestLogout_InvalidToken(t *testing.T) {
	svc, _ := newCredentialService(t, newFakeClock())

	err := svc.Logout(context.Background(), "garbage", "")
	require.True(t, domain.HasCode(err, domain.CodeTokenInvalid))
}
