package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTokenService(client, TokenConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "iamcore",
		Audience:   "iamcore-clients",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	})
}

func TestGenerateTokenPair_DistinctJTIs(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokenPair(ctx, Claims{Subject: "user1", InstanceID: "inst1"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := svc.parse(pair.AccessToken)
	require.NoError(t, err)
	refresh, err := svc.parse(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access.ID)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokenPair(ctx, Claims{
		Subject:    "user1",
		InstanceID: "inst1",
		OrgID:      "org1",
		Email:      "user1@acme.test",
		Roles:      []string{"ORG_ADMIN"},
	})
	require.NoError(t, err)

	claims, err := svc.VerifyToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.Subject)
	assert.Equal(t, "org1", claims.OrgID)
	assert.Equal(t, []string{"ORG_ADMIN"}, claims.Roles)
}

// TestRefreshToken_SingleUse is spec §8 invariant 9 / scenario S5: a
// refresh token is consumed by its first use and fails on a second.
func TestRefreshToken_SingleUse(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokenPair(ctx, Claims{Subject: "user1", InstanceID: "inst1"})
	require.NoError(t, err)

	newPair, err := svc.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	_, err = svc.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenExpired, "presenting a consumed refresh token must fail")

	// the new refresh token is still live and usable exactly once.
	_, err = svc.RefreshToken(ctx, newPair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshToken_RejectsAccessToken(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokenPair(ctx, Claims{Subject: "user1", InstanceID: "inst1"})
	require.NoError(t, err)

	_, err = svc.RefreshToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestRevokeToken_FailsSubsequentVerify(t *testing.T) {
	svc := newTestTokenService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokenPair(ctx, Claims{Subject: "user1", InstanceID: "inst1"})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeToken(ctx, pair.AccessToken))

	_, err = svc.VerifyToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyToken_ExpiredFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := NewTokenService(client, TokenConfig{
		Secret:     []byte("test-secret"),
		Issuer:     "iamcore",
		Audience:   "iamcore-clients",
		AccessTTL:  -time.Second, // already expired on mint
		RefreshTTL: time.Hour,
	})

	pair, err := svc.GenerateTokenPair(context.Background(), Claims{Subject: "user1", InstanceID: "inst1"})
	require.NoError(t, err)

	_, err = svc.VerifyToken(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
