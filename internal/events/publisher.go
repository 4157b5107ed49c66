package events

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"chat-assistant/internal/conversation"
)

// Producer is satisfied by *client.KafkaProducer.
type Producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaPublisher emits conversation lifecycle events keyed by session, so
// one session's events stay ordered on a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *zap.Logger
}

func NewKafkaPublisher(producer Producer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e conversation.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	headers := map[string]string{
		"event_type":      string(e.Type),
		"conversation_id": e.ConversationID,
		"content_type":    "application/json",
	}
	if err := p.producer.ProduceMessage(ctx, p.topic, []byte(e.SessionID), value, headers); err != nil {
		return err
	}
	return nil
}

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e conversation.Event) error {
	p.logger.Info("Conversation event",
		zap.String("type", string(e.Type)),
		zap.String("session_id", e.SessionID),
		zap.String("conversation_id", e.ConversationID),
		zap.String("phase", string(e.Phase)),
		zap.String("detail", e.Detail),
	)
	return nil
}
