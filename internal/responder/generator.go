package responder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chat-assistant/internal/llm"
	"chat-assistant/internal/matcher"
)

type Source string

const (
	SourceTemplate   Source = "template"
	SourceLLM        Source = "llm"
	SourceEscalation Source = "escalation"
	SourceFallback   Source = "fallback"
)

const (
	DefaultThreshold = 0.3
	historyTurns     = 6
	minTurnLength    = 10
	repeatSimilarity = 0.7
)

// Turn is one prior message offered as model context.
type Turn struct {
	Role     string
	Content  string
	Excluded bool
}

type Reply struct {
	Text   string
	Source Source
}

type Contact struct {
	Company    string
	Email      string
	FormURL    string
	WebsiteURL string
}

type Generator struct {
	catalog   *matcher.Catalog
	provider  llm.Provider
	threshold float64
	contact   Contact
	system    string
	logger    *zap.Logger
}

type Option func(*Generator)

func WithThreshold(t float64) Option {
	return func(g *Generator) { g.threshold = t }
}

func WithContact(c Contact) Option {
	return func(g *Generator) { g.contact = c }
}

// New builds a generator. A nil provider makes every non-template answer a fallback.
func New(catalog *matcher.Catalog, provider llm.Provider, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		catalog:   catalog,
		provider:  provider,
		threshold: DefaultThreshold,
		contact:   Contact{Company: catalog.Company.Name},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.contact.Company == "" {
		g.contact.Company = catalog.Company.Name
	}
	g.system = g.systemPrompt()
	return g
}

func (g *Generator) Threshold() float64 { return g.threshold }

// Respond picks the answer for query. It never returns an error; provider
// failures become the fallback text.
func (g *Generator) Respond(ctx context.Context, query string, m matcher.Match, history []Turn) Reply {
	if m.Confidence > g.threshold {
		if cat, ok := g.catalog.Category(m.Category); ok {
			return Reply{Text: cat.Render(g.contact.Email), Source: SourceTemplate}
		}
	}

	if needsEscalation(query) {
		return Reply{Text: g.contactResponse(leadEscalation), Source: SourceEscalation}
	}

	if g.provider == nil {
		return Reply{Text: g.contactResponse(leadUnavailable), Source: SourceFallback}
	}

	msgs := make([]llm.Message, 0, historyTurns+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: g.system})
	msgs = append(msgs, recent(history)...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})

	answer, err := g.provider.Chat(ctx, msgs, llm.WithPenalties(0.3, 0.5))
	if err != nil {
		g.logger.Error("LLM response failed", zap.String("category", m.Category), zap.Error(err))
		return Reply{Text: g.contactResponse(leadUnavailable), Source: SourceFallback}
	}

	if prev := lastAssistant(history); prev != "" && similarity(answer, prev) > repeatSimilarity {
		g.logger.Debug("Answer repeats previous reply, retrying")
		retry, err := g.provider.Chat(ctx,
			[]llm.Message{
				{Role: llm.RoleSystem, Content: g.system},
				{Role: llm.RoleUser, Content: fmt.Sprintf(retryPrompt, query)},
			},
			llm.WithTemperature(0.9),
			llm.WithMaxTokens(150),
			llm.WithPenalties(0.5, 0.7),
		)
		if err != nil {
			g.logger.Warn("Retry for repeated answer failed", zap.Error(err))
		} else {
			answer = retry
		}
	}

	if soundsUncertain(answer) {
		return Reply{Text: g.contactResponse(leadUncertain), Source: SourceEscalation}
	}
	return Reply{Text: strings.TrimSpace(answer), Source: SourceLLM}
}

// recent keeps the last few user and assistant turns worth sending as context.
func recent(history []Turn) []llm.Message {
	var out []llm.Message
	for i := len(history) - 1; i >= 0 && len(out) < historyTurns; i-- {
		t := history[i]
		if t.Excluded || len(t.Content) <= minTurnLength {
			continue
		}
		if t.Role != llm.RoleUser && t.Role != llm.RoleAssistant {
			continue
		}
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func lastAssistant(history []Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleAssistant && !history[i].Excluded {
			return history[i].Content
		}
	}
	return ""
}
