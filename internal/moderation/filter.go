package moderation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chat-assistant/internal/llm"
)

// aiCheckMinLength is the length above which the model-based check runs.
const aiCheckMinLength = 20

const aiCheckPrompt = `Analyze the following text and determine if it's meaningful business communication or gibberish/spam.

Text to analyze: %q

Respond with only one of these options:
- "VALID" if it's meaningful business communication
- "GIBBERISH" if it's nonsensical, spam, or not a legitimate business inquiry
- "UNCLEAR" if you're not sure`

type Stage string

const (
	StageModeration Stage = "moderation"
	StageHeuristic  Stage = "heuristic"
	StageAI         Stage = "ai"
)

// Verdict is the filter outcome. Message is user-facing text for rejections.
type Verdict struct {
	Allowed bool
	Stage   Stage
	Reason  string
	Message string
}

type Filter struct {
	moderator   llm.Moderator
	classifier  llm.Provider
	filterModel string
	logger      *zap.Logger
}

// NewFilter builds a filter. Either dependency may be nil, which skips that stage.
func NewFilter(moderator llm.Moderator, classifier llm.Provider, filterModel string, logger *zap.Logger) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{moderator: moderator, classifier: classifier, filterModel: filterModel, logger: logger}
}

// Check runs moderation, then heuristics, then the model check for longer
// text. Failures of the remote checks let the message through.
func (f *Filter) Check(ctx context.Context, text string) Verdict {
	if f.moderator != nil {
		res, err := f.moderator.Moderate(ctx, text)
		switch {
		case err != nil:
			f.logger.Warn("Moderation check failed, proceeding", zap.Error(err))
		case res.Flagged:
			reason := "Content flagged for: " + strings.Join(res.Categories, ", ")
			return Verdict{
				Stage:   StageModeration,
				Reason:  reason,
				Message: "🚫 Content Moderation: " + reason + ". Please keep the conversation professional.",
			}
		}
	}

	if bad, reason := DetectGibberish(text); bad {
		return Verdict{
			Stage:   StageHeuristic,
			Reason:  reason,
			Message: "🤖 Content Quality: " + reason + ". Please provide a meaningful business inquiry.",
		}
	}

	if f.classifier != nil && len(strings.TrimSpace(text)) > aiCheckMinLength {
		opts := []llm.Option{llm.WithTemperature(0.1), llm.WithMaxTokens(10)}
		if f.filterModel != "" {
			opts = append(opts, llm.WithModel(f.filterModel))
		}
		out, err := f.classifier.Generate(ctx, fmt.Sprintf(aiCheckPrompt, text), opts...)
		switch {
		case err != nil:
			f.logger.Warn("AI gibberish check failed, proceeding", zap.Error(err))
		case strings.EqualFold(strings.Trim(strings.TrimSpace(out), `".`), "GIBBERISH"):
			reason := "AI detected non-meaningful content"
			return Verdict{
				Stage:   StageAI,
				Reason:  reason,
				Message: "🤖 Content Analysis: " + reason + ". Please provide a clear business inquiry.",
			}
		}
	}

	return Verdict{Allowed: true}
}
