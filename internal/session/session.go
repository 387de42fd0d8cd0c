// Package session implements the Redis-backed session store and JWT
// token service every authenticated request rides on: sessions carry a
// TTL and a per-user secondary index for bulk revocation, and tokens are
// minted/verified/refreshed/revoked against a shared Redis-backed
// denylist so every replica agrees on revocation state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionExpired is returned by UpdateActivity for a session that no
// longer exists (expired or deleted).
var ErrSessionExpired = errors.New("session expired")

// Session is one authenticated session.
type Session struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	InstanceID     string          `json:"instanceId"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	ExpiresAt      time.Time       `json:"expiresAt"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
}

// Store is a Redis-backed SessionStore keyed `session:{id}` with a
// `user_sessions:{userID}` secondary index for DeleteAllForUser.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore constructs a Store over client with sessions expiring after ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func sessionKey(id string) string    { return "session:" + id }
func userIndexKey(userID string) string { return "user_sessions:" + userID }

// Create persists a new session for userID, expiring after the store's TTL.
func (s *Store) Create(ctx context.Context, id, userID, instanceID string, metadata json.RawMessage) (Session, error) {
	now := time.Now()
	sess := Session{
		ID:             id,
		UserID:         userID,
		InstanceID:     instanceID,
		Metadata:       metadata,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
		LastActivityAt: now,
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return Session{}, err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(id), data, s.ttl)
	pipe.SAdd(ctx, userIndexKey(userID), id)
	pipe.Expire(ctx, userIndexKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Session{}, fmt.Errorf("session: create: %w", err)
	}
	return sess, nil
}

// Get returns the session for id, or (Session{}, false, nil) if absent.
func (s *Store) Get(ctx context.Context, id string) (Session, bool, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("session: get: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// UpdateActivity bumps lastActivityAt and refreshes the session's TTL.
func (s *Store) UpdateActivity(ctx context.Context, id string) error {
	sess, found, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrSessionExpired
	}
	sess.LastActivityAt = time.Now()
	sess.ExpiresAt = sess.LastActivityAt.Add(s.ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(id), data, s.ttl).Err()
}

// Delete removes one session.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess, found, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, userIndexKey(sess.UserID), id)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteAllForUser removes every session belonging to userID.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	ids, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("session: list user sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.Del(ctx, userIndexKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}

// IsValid reports whether id names a session that exists and has not expired.
func (s *Store) IsValid(ctx context.Context, id string) (bool, error) {
	sess, found, err := s.Get(ctx, id)
	if err != nil || !found {
		return false, err
	}
	return time.Now().Before(sess.ExpiresAt), nil
}

// CleanupExpired is a best-effort no-op: Redis's own key TTL already
// expires session and index entries, so there is nothing left to sweep.
func (s *Store) CleanupExpired(ctx context.Context) error {
	return nil
}
