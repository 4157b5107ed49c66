package responder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/llm"
	"chat-assistant/internal/matcher"
)

type fakeProvider struct {
	answers []string
	err     error
	calls   [][]llm.Message
	opts    []llm.Options
}

func (f *fakeProvider) Chat(_ context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.calls = append(f.calls, history)
	f.opts = append(f.opts, llm.Apply(llm.Options{}, options...))
	if f.err != nil {
		return "", f.err
	}
	i := len(f.calls) - 1
	if i >= len(f.answers) {
		i = len(f.answers) - 1
	}
	return f.answers[i], nil
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, options...)
}

func newGenerator(t *testing.T, p llm.Provider) *Generator {
	t.Helper()
	cat, err := matcher.LoadCatalog("")
	require.NoError(t, err)
	return New(cat, p, nil, WithContact(Contact{Email: "sales@aniketsolutions.com", FormURL: "https://example.test/contact"}))
}

func TestRespondUsesTemplateAboveThreshold(t *testing.T) {
	p := &fakeProvider{answers: []string{"unused"}}
	g := newGenerator(t, p)

	r := g.Respond(context.Background(), "inventory", matcher.Match{Category: "inventory_control", Confidence: 0.9}, nil)

	assert.Equal(t, SourceTemplate, r.Source)
	assert.Contains(t, r.Text, "AniSol Inventory Control")
	assert.Contains(t, r.Text, "sales@aniketsolutions.com")
	assert.Empty(t, p.calls)
}

func TestRespondAtThresholdCallsModel(t *testing.T) {
	p := &fakeProvider{answers: []string{"Our TMS covers planned maintenance across your fleet."}}
	g := newGenerator(t, p)

	r := g.Respond(context.Background(), "maintenance", matcher.Match{Category: "tms", Confidence: g.Threshold()}, nil)

	assert.Equal(t, SourceLLM, r.Source)
	require.Len(t, p.calls, 1)
	assert.Equal(t, llm.RoleSystem, p.calls[0][0].Role)
	assert.Contains(t, p.calls[0][0].Content, "Aniket Solutions")
	assert.InDelta(t, 0.3, p.opts[0].PresencePenalty, 1e-9)
	assert.InDelta(t, 0.5, p.opts[0].FrequencyPenalty, 1e-9)
}

func TestRespondEscalatesWithoutModel(t *testing.T) {
	p := &fakeProvider{answers: []string{"unused"}}
	g := newGenerator(t, p)

	r := g.Respond(context.Background(), "Can I get a price quote for 12 vessels?", matcher.Match{}, nil)

	assert.Equal(t, SourceEscalation, r.Source)
	assert.Contains(t, r.Text, leadEscalation)
	assert.Contains(t, r.Text, "https://example.test/contact")
	assert.Empty(t, p.calls)
}

func TestRespondFallback(t *testing.T) {
	g := newGenerator(t, nil)
	r := g.Respond(context.Background(), "what about blockchain", matcher.Match{}, nil)
	assert.Equal(t, SourceFallback, r.Source)
	assert.Contains(t, r.Text, "sales@aniketsolutions.com")

	g = newGenerator(t, &fakeProvider{err: llm.ErrUnavailable})
	r = g.Respond(context.Background(), "what about blockchain", matcher.Match{}, nil)
	assert.Equal(t, SourceFallback, r.Source)
	assert.Contains(t, r.Text, leadUnavailable)
}

func TestRespondSendsFilteredHistory(t *testing.T) {
	p := &fakeProvider{answers: []string{"Happy to help with crew planning."}}
	g := newGenerator(t, p)

	history := []Turn{
		{Role: llm.RoleAssistant, Content: "Hello! I'm Alex from Aniket Solutions."},
		{Role: llm.RoleUser, Content: "ok"},
		{Role: llm.RoleUser, Content: "asdf asdf asdf", Excluded: true},
		{Role: llm.RoleAssistant, Content: "🤖 Content Quality: rejected", Excluded: true},
	}
	for i := 0; i < 8; i++ {
		history = append(history, Turn{Role: llm.RoleUser, Content: "question number " + strings.Repeat("x", i+1)})
	}

	g.Respond(context.Background(), "crew rotation", matcher.Match{}, history)

	require.Len(t, p.calls, 1)
	sent := p.calls[0]
	require.Len(t, sent, 1+historyTurns+1)
	assert.Equal(t, "question number xxx", sent[1].Content)
	assert.Equal(t, "crew rotation", sent[len(sent)-1].Content)
	for _, m := range sent {
		assert.NotContains(t, m.Content, "asdf")
	}
}

func TestRespondRetriesRepeatedAnswer(t *testing.T) {
	prev := "AniSol TMS handles planned maintenance and certificates for your fleet"
	p := &fakeProvider{answers: []string{
		"AniSol TMS handles planned maintenance and certificates for your whole fleet",
		"Could you share how many vessels you manage so we can suggest a rollout?",
	}}
	g := newGenerator(t, p)

	r := g.Respond(context.Background(), "tell me more", matcher.Match{}, []Turn{{Role: llm.RoleAssistant, Content: prev}})

	require.Len(t, p.calls, 2)
	assert.Equal(t, SourceLLM, r.Source)
	assert.Contains(t, r.Text, "how many vessels")
	assert.Len(t, p.calls[1], 2)
	assert.InDelta(t, 0.9, p.opts[1].Temperature, 1e-9)
	assert.Equal(t, 150, p.opts[1].MaxTokens)
}

func TestRespondRedirectsUncertainAnswer(t *testing.T) {
	p := &fakeProvider{answers: []string{"I'm not sure we support that integration."}}
	g := newGenerator(t, p)

	r := g.Respond(context.Background(), "do you integrate with SAP S4?", matcher.Match{}, nil)

	assert.Equal(t, SourceEscalation, r.Source)
	assert.Contains(t, r.Text, leadUncertain)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("a b c", "c b a d"), 1e-9)
	assert.InDelta(t, 0.0, similarity("", "a"), 1e-9)
	assert.InDelta(t, 0.5, similarity("a b", "a c"), 1e-9)
}
