// Package redis provides a Redis-backed session store. Keys carry the
// session TTL natively so expired sessions vanish without a sweeper.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/NairaLink/chat_layer/internal/app/domain/session"
	"github.com/NairaLink/chat_layer/internal/app/storage"
)

const keyPrefix = "chat:session:"

// SessionStore persists sessions in Redis.
type SessionStore struct {
	client *goredis.Client
}

var _ storage.SessionStore = (*SessionStore)(nil)

// NewSessionStore wraps an existing Redis client.
func NewSessionStore(client *goredis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) GetSession(ctx context.Context, userID string) (session.Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return session.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var sess session.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.Data == nil {
		sess.Data = make(map[string]string)
	}
	return sess, nil
}

func (s *SessionStore) PutSession(ctx context.Context, sess session.Session) error {
	if sess.UserID == "" {
		return fmt.Errorf("session user id is required")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, keyPrefix+sess.UserID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis put session: %w", err)
	}
	return nil
}
