package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrUnavailable   = errors.New("language model unavailable")
	ErrUpstream      = errors.New("language model request failed")
	ErrEmptyResponse = errors.New("language model returned no content")
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string
	Content string
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature      float64
	MaxTokens        int
	Model            string // Override default model
	PresencePenalty  float64
	FrequencyPenalty float64
}

func WithTemperature(temp float64) Option {
	return func(o *Options) { o.Temperature = temp }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

func WithPenalties(presence, frequency float64) Option {
	return func(o *Options) {
		o.PresencePenalty = presence
		o.FrequencyPenalty = frequency
	}
}

// Apply folds opts over base.
func Apply(base Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// Provider defines the contract for any chat-completion backend
type Provider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}

// ModerationResult lists human-readable categories for flagged content.
type ModerationResult struct {
	Flagged    bool
	Categories []string
}

// Moderator classifies text for policy violations.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationResult, error)
}
