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

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, ttl), mr
}

func TestStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sess1", "user1", "inst1", nil)
	require.NoError(t, err)
	assert.Equal(t, sess.CreatedAt, sess.LastActivityAt)

	got, found, err := store.Get(ctx, "sess1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "user1", got.UserID)
}

func TestStore_Get_NotFound(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	_, found, err := store.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_IsValid(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.Create(ctx, "sess1", "user1", "inst1", nil)
	require.NoError(t, err)

	valid, err := store.IsValid(ctx, "sess1")
	require.NoError(t, err)
	assert.True(t, valid, "isValid must hold while expiresAt > now")

	mr.FastForward(2 * time.Hour)
	valid, err = store.IsValid(ctx, "sess1")
	require.NoError(t, err)
	assert.False(t, valid, "isValid must flip false once the TTL evicts the key")
}

func TestStore_UpdateActivity_RefreshesTTLAndBumpsTimestamp(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	sess, err := store.Create(ctx, "sess1", "user1", "inst1", nil)
	require.NoError(t, err)

	require.NoError(t, store.UpdateActivity(ctx, "sess1"))
	got, found, err := store.Get(ctx, "sess1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.LastActivityAt.After(sess.LastActivityAt) || got.LastActivityAt.Equal(sess.LastActivityAt))
	assert.False(t, got.ExpiresAt.Before(sess.ExpiresAt), "expiresAt must move forward with the refreshed TTL")
}

func TestStore_UpdateActivity_ExpiredSessionFails(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	err := store.UpdateActivity(context.Background(), "never-created")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestStore_DeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	_, err := store.Create(ctx, "sess1", "user1", "inst1", nil)
	require.NoError(t, err)
	_, err = store.Create(ctx, "sess2", "user1", "inst1", nil)
	require.NoError(t, err)

	require.NoError(t, store.DeleteAllForUser(ctx, "user1"))

	_, found1, _ := store.Get(ctx, "sess1")
	_, found2, _ := store.Get(ctx, "sess2")
	assert.False(t, found1)
	assert.False(t, found2)
}
