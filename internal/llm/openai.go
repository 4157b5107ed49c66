package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIAPI is the subset of *openai.Client used here.
type OpenAIAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	Moderations(ctx context.Context, req openai.ModerationRequest) (openai.ModerationResponse, error)
}

type OpenAIProvider struct {
	client   OpenAIAPI
	defaults Options
	timeout  time.Duration
	logger   *zap.Logger
}

// NewOpenAIClient builds the SDK client for an API key.
func NewOpenAIClient(apiKey string) *openai.Client {
	return openai.NewClient(apiKey)
}

func NewOpenAIProvider(client OpenAIAPI, defaults Options, logger *zap.Logger) *OpenAIProvider {
	if defaults.Model == "" {
		defaults.Model = openai.GPT4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{client: client, defaults: defaults, timeout: 30 * time.Second, logger: logger}
}

func (p *OpenAIProvider) Chat(ctx context.Context, history []Message, options ...Option) (string, error) {
	if p == nil || p.client == nil {
		return "", ErrUnavailable
	}
	opts := Apply(p.defaults, options...)

	msgs := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            opts.Model,
		Messages:         msgs,
		Temperature:      float32(opts.Temperature),
		MaxTokens:        opts.MaxTokens,
		PresencePenalty:  float32(opts.PresencePenalty),
		FrequencyPenalty: float32(opts.FrequencyPenalty),
	})
	if err != nil {
		p.logger.Warn("Chat completion failed",
			zap.String("model", opts.Model),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}

	p.logger.Debug("Chat completion",
		zap.String("model", opts.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return text, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, options ...Option) (string, error) {
	return p.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

func (p *OpenAIProvider) Moderate(ctx context.Context, text string) (ModerationResult, error) {
	if p == nil || p.client == nil {
		return ModerationResult{}, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return ModerationResult{}, classify(err)
	}
	if len(resp.Results) == 0 {
		return ModerationResult{}, ErrEmptyResponse
	}

	r := resp.Results[0]
	out := ModerationResult{Flagged: r.Flagged}
	if !r.Flagged {
		return out, nil
	}
	c := r.Categories
	for _, f := range []struct {
		on   bool
		name string
	}{
		{c.Harassment, "harassment"},
		{c.HarassmentThreatening, "threatening content"},
		{c.Hate, "hate speech"},
		{c.HateThreatening, "threatening hate speech"},
		{c.SelfHarm, "self-harm content"},
		{c.SelfHarmInstructions, "self-harm instructions"},
		{c.SelfHarmIntent, "self-harm intent"},
		{c.Sexual, "sexual content"},
		{c.SexualMinors, "sexual content involving minors"},
		{c.Violence, "violent content"},
		{c.ViolenceGraphic, "graphic violence"},
	} {
		if f.on {
			out.Categories = append(out.Categories, f.name)
		}
	}
	return out, nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}
