package conversation

import (
	"time"

	"github.com/google/uuid"

	"chat-assistant/internal/matcher"
	"chat-assistant/internal/otp"
)

type Phase string

const (
	PhaseAwaitingEmail     Phase = "awaiting_email"
	PhaseAwaitingOtp       Phase = "awaiting_otp"
	PhaseAwaitingSelection Phase = "awaiting_selection"
	PhaseFreeChat          Phase = "free_chat"
	PhaseEnded             Phase = "ended"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	EndReasonInactivity = "inactivity"
	EndReasonReset      = "reset"
	EndReasonUser       = "user"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Excluded  bool      `json:"excluded,omitempty"`
}

// Session is one visitor's chat state. ConversationID changes on every reset
// while ID stays stable for the client.
type Session struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Phase          Phase         `json:"phase"`
	Email          string        `json:"email,omitempty"`
	Verified       bool          `json:"verified"`
	OTP            *otp.Record   `json:"otp,omitempty"`
	Topic          matcher.Topic `json:"topic,omitempty"`
	Messages       []Message     `json:"messages"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivity   time.Time     `json:"last_activity"`
	FollowUpSentAt *time.Time    `json:"follow_up_sent_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	EndReason      string        `json:"end_reason,omitempty"`
	TranscriptKey  string        `json:"transcript_key,omitempty"`
}

func (s *Session) append(role, content string, at time.Time) *Message {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: at})
	return &s.Messages[len(s.Messages)-1]
}

// LastAssistant returns the newest assistant message text.
func (s *Session) LastAssistant() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Idle reports whether the session is in a phase watched for inactivity.
func (s *Session) Idle() bool {
	return s.Phase == PhaseAwaitingSelection || s.Phase == PhaseFreeChat
}

func (s *Session) reinit(greeting string, now time.Time) {
	id := s.ID
	*s = Session{
		ID:             id,
		ConversationID: uuid.NewString(),
		Phase:          PhaseAwaitingEmail,
		StartedAt:      now,
		LastActivity:   now,
	}
	s.append(RoleAssistant, greeting, now)
}
