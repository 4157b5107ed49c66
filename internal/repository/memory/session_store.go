package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"chat-assistant/internal/conversation"
)

// SessionStore keeps sessions in process. Entries are stored as JSON so
// callers never share a mutable session.
type SessionStore struct {
	cache *cache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{cache: cache.New(ttl, 10*time.Minute)}
}

func (r *SessionStore) Get(_ context.Context, id string) (*conversation.Session, error) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, conversation.ErrSessionNotFound
	}
	var s conversation.Session
	if err := json.Unmarshal(x.([]byte), &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *SessionStore) Save(_ context.Context, s *conversation.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	r.cache.Set(s.ID, b, cache.DefaultExpiration)
	return nil
}

func (r *SessionStore) Delete(_ context.Context, id string) error {
	r.cache.Delete(id)
	return nil
}

func (r *SessionStore) IDs(_ context.Context) ([]string, error) {
	items := r.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids, nil
}
