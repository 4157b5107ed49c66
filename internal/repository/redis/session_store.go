package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-assistant/internal/client"
	"chat-assistant/internal/conversation"
	"chat-assistant/internal/util"
)

const sessionPrefix = "chat_session:"

// KV is the part of *client.RedisClient the repositories use.
type KV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	IncrWithExpire(ctx context.Context, key string, expiration time.Duration) (int64, error)
	Scan(ctx context.Context, pattern string, count int64) ([]string, error)
}

// SessionStore keeps sessions as JSON documents with a sliding TTL.
type SessionStore struct {
	client KV
	ttl    time.Duration
}

func NewSessionStore(client KV, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, id string) (*conversation.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := s.client.Get(ctx, sessionPrefix+id)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, conversation.ErrSessionNotFound
		}
		util.Error("Failed to get session", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess conversation.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		util.Error("Failed to unmarshal session", zap.String("session_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *conversation.Session) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+sess.ID, string(data), s.ttl); err != nil {
		util.Error("Failed to save session",
			zap.String("session_id", sess.ID),
			zap.Duration("ttl", s.ttl),
			zap.Error(err))
		return fmt.Errorf("failed to save session: %w", err)
	}

	util.Debug("Session saved",
		zap.String("session_id", sess.ID),
		zap.String("phase", string(sess.Phase)))
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.client.Del(ctx, sessionPrefix+id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// IDs lists live session IDs for the idle sweeper.
func (s *SessionStore) IDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	keys, err := s.client.Scan(ctx, sessionPrefix+"*", 500)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, sessionPrefix))
	}
	return ids, nil
}
