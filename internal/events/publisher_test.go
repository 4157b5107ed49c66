package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"chat-assistant/internal/conversation"
)

type producerSpy struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (p *producerSpy) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return p.err
}

func TestKafkaPublisher(t *testing.T) {
	spy := &producerSpy{}
	p := NewKafkaPublisher(spy, "conversation-events", nil)
	at := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	err := p.Publish(context.Background(), conversation.Event{
		Type:           conversation.EventVerified,
		SessionID:      "s1",
		ConversationID: "c1",
		Email:          "ops@acme.com",
		Phase:          conversation.PhaseAwaitingSelection,
		At:             at,
	})

	require.NoError(t, err)
	assert.Equal(t, "conversation-events", spy.topic)
	assert.Equal(t, "s1", string(spy.key))
	assert.Equal(t, "verification.succeeded", spy.headers["event_type"])

	var decoded conversation.Event
	require.NoError(t, json.Unmarshal(spy.value, &decoded))
	assert.Equal(t, "ops@acme.com", decoded.Email)
	assert.True(t, decoded.At.Equal(at))

	spy.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), conversation.Event{SessionID: "s1"}))
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), conversation.Event{Type: conversation.EventEnded, SessionID: "s1"}))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "conversation.ended", logs.All()[0].ContextMap()["type"])
}
