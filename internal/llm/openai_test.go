package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpenAI struct {
	lastChat  openai.ChatCompletionRequest
	chatResp  openai.ChatCompletionResponse
	chatErr   error
	modResp   openai.ModerationResponse
	modErr    error
	chatCalls int
}

func (f *fakeOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatCalls++
	f.lastChat = req
	return f.chatResp, f.chatErr
}

func (f *fakeOpenAI) Moderations(_ context.Context, _ openai.ModerationRequest) (openai.ModerationResponse, error) {
	return f.modResp, f.modErr
}

func reply(text string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: text}}}}
}

func TestChatAppliesOptions(t *testing.T) {
	api := &fakeOpenAI{chatResp: reply("  Hello there  ")}
	p := NewOpenAIProvider(api, Options{Model: "gpt-4", Temperature: 0.8, MaxTokens: 200}, nil)

	out, err := p.Chat(context.Background(),
		[]Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "hi"}},
		WithPenalties(0.3, 0.5),
		WithMaxTokens(150),
	)

	require.NoError(t, err)
	assert.Equal(t, "Hello there", out)
	assert.Equal(t, "gpt-4", api.lastChat.Model)
	assert.Equal(t, 150, api.lastChat.MaxTokens)
	assert.InDelta(t, 0.8, api.lastChat.Temperature, 1e-6)
	assert.InDelta(t, 0.3, api.lastChat.PresencePenalty, 1e-6)
	assert.InDelta(t, 0.5, api.lastChat.FrequencyPenalty, 1e-6)
	require.Len(t, api.lastChat.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.lastChat.Messages[0].Role)
}

func TestChatErrorsAreClassified(t *testing.T) {
	api := &fakeOpenAI{chatErr: &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}}
	p := NewOpenAIProvider(api, Options{}, nil)

	_, err := p.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUpstream)

	api.chatErr = context.DeadlineExceeded
	_, err = p.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrUnavailable)

	api.chatErr = nil
	api.chatResp = openai.ChatCompletionResponse{}
	_, err = p.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestNilProviderIsUnavailable(t *testing.T) {
	var p *OpenAIProvider
	_, err := p.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = p.Moderate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestModerateNamesCategories(t *testing.T) {
	api := &fakeOpenAI{modResp: openai.ModerationResponse{Results: []openai.Result{{
		Flagged:    true,
		Categories: openai.ResultCategories{Harassment: true, ViolenceGraphic: true},
	}}}}
	p := NewOpenAIProvider(api, Options{}, nil)

	res, err := p.Moderate(context.Background(), "text")

	require.NoError(t, err)
	assert.True(t, res.Flagged)
	assert.Equal(t, []string{"harassment", "graphic violence"}, res.Categories)

	api.modErr = errors.New("network")
	_, err = p.Moderate(context.Background(), "text")
	assert.ErrorIs(t, err, ErrUpstream)
}
