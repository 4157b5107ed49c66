package search

import (
	"context"
	"strings"
	"time"

	"chat-assistant/internal/conversation"
	"chat-assistant/internal/transcript"
)

// DocumentIndexer is satisfied by *client.ESClient.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

// transcriptDoc flattens a transcript for full-text search.
type transcriptDoc struct {
	ConversationID  string    `json:"conversation_id"`
	SessionID       string    `json:"session_id"`
	Email           string    `json:"email"`
	Domain          string    `json:"domain"`
	Topic           string    `json:"topic,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	EndReason       string    `json:"end_reason"`
	MessageCount    int       `json:"message_count"`
	UserText        string    `json:"user_text"`
	AssistantText   string    `json:"assistant_text"`
}

// TranscriptIndexer writes finished conversations to Elasticsearch.
type TranscriptIndexer struct {
	client DocumentIndexer
	index  string
}

func NewTranscriptIndexer(client DocumentIndexer, index string) *TranscriptIndexer {
	return &TranscriptIndexer{client: client, index: index}
}

func (i *TranscriptIndexer) IndexTranscript(ctx context.Context, t transcript.Transcript) error {
	return i.client.IndexDocument(ctx, i.index, t.ID, toDoc(t))
}

func toDoc(t transcript.Transcript) transcriptDoc {
	var user, assistant []string
	for _, m := range t.Messages {
		if m.Excluded {
			continue
		}
		if m.Role == conversation.RoleUser {
			user = append(user, m.Content)
		} else {
			assistant = append(assistant, m.Content)
		}
	}
	domain := ""
	if at := strings.LastIndex(t.Email, "@"); at >= 0 {
		domain = strings.ToLower(t.Email[at+1:])
	}
	return transcriptDoc{
		ConversationID:  t.ID,
		SessionID:       t.SessionID,
		Email:           t.Email,
		Domain:          domain,
		Topic:           t.Topic,
		StartedAt:       t.StartedAt,
		EndedAt:         t.EndedAt,
		DurationSeconds: t.DurationSeconds,
		EndReason:       t.EndReason,
		MessageCount:    t.MessageCount,
		UserText:        strings.Join(user, "\n"),
		AssistantText:   strings.Join(assistant, "\n"),
	}
}
