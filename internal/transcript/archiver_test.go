package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/conversation"
	"chat-assistant/internal/mailer"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memStore) Put(_ context.Context, key string, body []byte) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = body
	return nil
}

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Email
	err  error
}

func (o *outbox) Send(_ context.Context, e mailer.Email) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, e)
	return "id", nil
}

type indexSpy struct {
	ids []string
	err error
}

func (i *indexSpy) IndexTranscript(_ context.Context, t Transcript) error {
	i.ids = append(i.ids, t.ID)
	return i.err
}

func endedSession() *conversation.Session {
	start := time.Date(2025, 6, 30, 23, 50, 0, 0, time.UTC)
	end := start.Add(15 * time.Minute)
	return &conversation.Session{
		ID:             "sess-1",
		ConversationID: "2b0f1c1e-8a59-4e59-9a8c-3f1f3f0a1b2c",
		Phase:          conversation.PhaseEnded,
		Email:          "ops@acme-shipping.com",
		Verified:       true,
		Topic:          "products",
		StartedAt:      start,
		LastActivity:   start.Add(10 * time.Minute),
		EndedAt:        &end,
		EndReason:      conversation.EndReasonInactivity,
		Messages: []conversation.Message{
			{Role: conversation.RoleAssistant, Content: "Hello!", Timestamp: start},
			{Role: conversation.RoleUser, Content: "<b>inventory</b>", Timestamp: start.Add(time.Minute)},
		},
	}
}

func TestBuildAndKey(t *testing.T) {
	tr := Build(endedSession())

	assert.Equal(t, "2b0f1c1e-8a59-4e59-9a8c-3f1f3f0a1b2c", tr.ID)
	assert.Equal(t, 2, tr.MessageCount)
	assert.InDelta(t, 900, tr.DurationSeconds, 1e-9)
	assert.Equal(t, "conversations/2025/07/01/2b0f1c1e-8a59-4e59-9a8c-3f1f3f0a1b2c.json", Key(tr))
}

func TestFinalizeRunsAllSinks(t *testing.T) {
	store := &memStore{}
	box := &outbox{}
	idx := &indexSpy{}
	a := NewArchiver("Aniket Solutions", nil,
		WithStore(store),
		WithNotification(box, "leads@aniketsolutions.com"),
		WithIndexer(idx),
	)

	key, err := a.Archive(context.Background(), endedSession())

	require.NoError(t, err)
	assert.Equal(t, "conversations/2025/07/01/2b0f1c1e-8a59-4e59-9a8c-3f1f3f0a1b2c.json", key)

	var stored Transcript
	require.NoError(t, json.Unmarshal(store.objects[key], &stored))
	assert.Equal(t, "ops@acme-shipping.com", stored.Email)

	require.Len(t, box.sent, 1)
	assert.Equal(t, []string{"leads@aniketsolutions.com"}, box.sent[0].To)
	assert.Contains(t, box.sent[0].HTML, key)
	assert.NotContains(t, box.sent[0].HTML, "<b>inventory</b>")
	assert.Equal(t, []string{"2b0f1c1e-8a59-4e59-9a8c-3f1f3f0a1b2c"}, idx.ids)
}

func TestFinalizeCollectsSinkFailures(t *testing.T) {
	storeErr := errors.New("s3 down")
	box := &outbox{}
	a := NewArchiver("Aniket Solutions", nil,
		WithStore(&memStore{err: storeErr}),
		WithNotification(box, "leads@aniketsolutions.com"),
		WithIndexer(&indexSpy{err: errors.New("es down")}),
	)

	out := a.Finalize(context.Background(), Build(endedSession()))

	assert.False(t, out.Stored)
	assert.Empty(t, out.Key)
	assert.True(t, out.Emailed)
	assert.False(t, out.Indexed)
	assert.ErrorIs(t, out.Err(), storeErr)
	assert.Len(t, out.Errors, 2)
	require.Len(t, box.sent, 1)
}

type ctxStore struct {
	memStore
}

func (c *ctxStore) Put(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.memStore.Put(ctx, key, body)
}

func TestFinalizeSurvivesCancelledCaller(t *testing.T) {
	store := &ctxStore{}
	a := NewArchiver("Aniket Solutions", nil, WithStore(store), WithSinkTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := a.Finalize(ctx, Build(endedSession()))

	require.NoError(t, out.Err())
	assert.True(t, out.Stored)
	assert.Contains(t, store.objects, out.Key)
}

func TestNewExport(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	exp := NewExport(endedSession(), now)

	b, err := json.Marshal(exp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": "2025-01-02T03:04:05Z",
		"messages": [
			{"role": "assistant", "content": "Hello!", "timestamp": "2025-06-30T23:50:00Z"},
			{"role": "user", "content": "<b>inventory</b>", "timestamp": "2025-06-30T23:51:00Z"}
		]
	}`, string(b))
}
