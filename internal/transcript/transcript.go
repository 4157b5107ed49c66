package transcript

import (
	"fmt"
	"time"

	"chat-assistant/internal/conversation"
)

// Transcript is the archived record of one conversation.
type Transcript struct {
	ID              string                 `json:"id"`
	SessionID       string                 `json:"session_id"`
	Email           string                 `json:"email"`
	Topic           string                 `json:"topic,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	EndedAt         time.Time              `json:"ended_at"`
	DurationSeconds float64                `json:"duration_seconds"`
	EndReason       string                 `json:"end_reason"`
	MessageCount    int                    `json:"message_count"`
	Messages        []conversation.Message `json:"messages"`
}

// Build snapshots s. An open conversation is cut at its last activity.
func Build(s *conversation.Session) Transcript {
	ended := s.LastActivity
	if s.EndedAt != nil {
		ended = *s.EndedAt
	}
	msgs := make([]conversation.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return Transcript{
		ID:              s.ConversationID,
		SessionID:       s.ID,
		Email:           s.Email,
		Topic:           string(s.Topic),
		StartedAt:       s.StartedAt.UTC(),
		EndedAt:         ended.UTC(),
		DurationSeconds: ended.Sub(s.StartedAt).Seconds(),
		EndReason:       s.EndReason,
		MessageCount:    len(msgs),
		Messages:        msgs,
	}
}

// Key is the object key for t, partitioned by end date.
func Key(t Transcript) string {
	return fmt.Sprintf("conversations/%s/%s.json", t.EndedAt.UTC().Format("2006/01/02"), t.ID)
}

// Export is the download format for the chat window.
type Export struct {
	Timestamp time.Time              `json:"timestamp"`
	Messages  []conversation.Message `json:"messages"`
}

func NewExport(s *conversation.Session, now time.Time) Export {
	msgs := make([]conversation.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return Export{Timestamp: now.UTC(), Messages: msgs}
}
