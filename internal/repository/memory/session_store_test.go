package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/conversation"
)

func TestSessionStoreIsolatesCopies(t *testing.T) {
	store := NewSessionStore(time.Hour)
	ctx := context.Background()

	s := &conversation.Session{ID: "s1", Phase: conversation.PhaseFreeChat}
	require.NoError(t, store.Save(ctx, s))
	s.Phase = conversation.PhaseEnded

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, conversation.PhaseFreeChat, got.Phase)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
}

func TestSessionStoreExpires(t *testing.T) {
	store := NewSessionStore(20 * time.Millisecond)
	require.NoError(t, store.Save(context.Background(), &conversation.Session{ID: "s1"}))

	time.Sleep(40 * time.Millisecond)

	_, err := store.Get(context.Background(), "s1")
	assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
}

func TestOTPSendLimiter(t *testing.T) {
	l := NewOTPSendLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ops@acme.com")
		require.NoError(t, err)
		assert.True(t, ok, "send %d", i+1)
	}
	ok, _ := l.Allow(ctx, "OPS@acme.com")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "crew@acme.com")
	assert.True(t, ok)
}
