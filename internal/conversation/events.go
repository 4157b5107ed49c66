package conversation

import (
	"context"
	"time"
)

type EventType string

const (
	EventStarted       EventType = "conversation.started"
	EventCodeSent      EventType = "verification.code_sent"
	EventVerified      EventType = "verification.succeeded"
	EventLockedOut     EventType = "verification.locked_out"
	EventTopicSelected EventType = "conversation.topic_selected"
	EventEnded         EventType = "conversation.ended"
)

// Event is a lifecycle notification for downstream consumers.
type Event struct {
	Type           EventType `json:"type"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	Email          string    `json:"email,omitempty"`
	Phase          Phase     `json:"phase"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// ReplyRecord describes how one free-chat message was answered.
type ReplyRecord struct {
	SessionID      string
	ConversationID string
	Topic          string
	Query          string
	Category       string
	Confidence     float64
	Score          float64
	Source         string
	FilterStage    string
	At             time.Time
}

type Recorder interface {
	RecordReply(ctx context.Context, r ReplyRecord) error
}

// Archiver persists a finished conversation and returns its storage key.
type Archiver interface {
	Archive(ctx context.Context, s *Session) (string, error)
}
