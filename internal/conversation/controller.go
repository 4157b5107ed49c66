package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chat-assistant/internal/emailcheck"
	"chat-assistant/internal/matcher"
	"chat-assistant/internal/moderation"
	"chat-assistant/internal/otp"
	"chat-assistant/internal/responder"
	"chat-assistant/internal/util"
)

var (
	ErrSessionEnded = errors.New("conversation has ended")
	ErrWrongPhase   = errors.New("operation not allowed in current phase")
	ErrInvalidTopic = errors.New("unknown topic")
	ErrEmptyInput   = errors.New("message is empty")

	ErrSessionNotFound = errors.New("session not found")
)

type EmailValidator interface {
	Validate(ctx context.Context, email string) emailcheck.Result
}

type CodeIssuer interface {
	Issue(ctx context.Context, email string) (*otp.Record, error)
	Resend(ctx context.Context, email string) (*otp.Record, error)
	Verify(entered string, rec *otp.Record) error
	TTL() time.Duration
	MaxAttempts() int
}

type ContentFilter interface {
	Check(ctx context.Context, text string) moderation.Verdict
}

type CategoryMatcher interface {
	Match(query string) matcher.Match
}

type Responder interface {
	Respond(ctx context.Context, query string, m matcher.Match, history []responder.Turn) responder.Reply
}

// Deps are the collaborators of a Controller. Archiver, Publisher and
// Recorder are optional.
type Deps struct {
	Validator EmailValidator
	Codes     CodeIssuer
	Filter    ContentFilter
	Matcher   CategoryMatcher
	Responder Responder
	Catalog   *matcher.Catalog
	Archiver  Archiver
	Publisher Publisher
	Recorder  Recorder
}

type Settings struct {
	Company      string
	ContactEmail string
	IdleFollowUp time.Duration
	IdleEnd      time.Duration
	ResetDelay   time.Duration
}

type Controller struct {
	deps     Deps
	settings Settings
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(deps Deps, settings Settings, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Company == "" && deps.Catalog != nil {
		settings.Company = deps.Catalog.Company.Name
	}
	if settings.IdleFollowUp <= 0 {
		settings.IdleFollowUp = 3 * time.Minute
	}
	if settings.IdleEnd <= 0 {
		settings.IdleEnd = 3 * time.Minute
	}
	if settings.ResetDelay <= 0 {
		settings.ResetDelay = 5 * time.Second
	}
	c := &Controller{deps: deps, settings: settings, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CodePolicy reports the verification code lifetime and attempt limit.
func (c *Controller) CodePolicy() (time.Duration, int) {
	return c.deps.Codes.TTL(), c.deps.Codes.MaxAttempts()
}

// NewSession starts a conversation awaiting the visitor's email. An empty id
// gets a generated one.
func (c *Controller) NewSession(ctx context.Context, id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{ID: id}
	s.reinit(greeting(c.settings.Company), c.now())
	c.publish(ctx, EventStarted, s, "")
	return s
}

// HandleInput routes one visitor message according to the session phase.
// Recoverable problems are answered inline and return nil.
func (c *Controller) HandleInput(ctx context.Context, s *Session, text string) error {
	if s.Phase == PhaseEnded {
		return ErrSessionEnded
	}
	text = util.CleanInput(text, util.MaxInputRunes)
	if text == "" {
		return ErrEmptyInput
	}

	now := c.now()
	s.LastActivity = now
	s.FollowUpSentAt = nil

	switch s.Phase {
	case PhaseAwaitingEmail:
		s.append(RoleUser, text, now)
		c.handleEmail(ctx, s, text)
	case PhaseAwaitingOtp:
		s.append(RoleUser, maskDigits(text), now)
		c.handleCode(ctx, s, text)
	case PhaseAwaitingSelection:
		topic, ok := ParseTopic(text)
		if !ok {
			s.append(RoleUser, text, now)
			s.append(RoleAssistant, msgSelection, c.now())
			return nil
		}
		return c.selectTopic(ctx, s, topic, text)
	case PhaseFreeChat:
		c.handleChat(ctx, s, text)
	default:
		return ErrWrongPhase
	}
	return nil
}

func (c *Controller) handleEmail(ctx context.Context, s *Session, text string) {
	email := strings.ToLower(emailcheck.ExtractEmail(text))
	res := c.deps.Validator.Validate(ctx, email)
	if !res.IsValid {
		s.append(RoleAssistant, res.Summary(), c.now())
		return
	}

	rec, err := c.deps.Codes.Issue(ctx, email)
	if err != nil {
		c.logger.Warn("Verification code not sent", zap.String("email", email), zap.Error(err))
		s.append(RoleAssistant, codeNotSent(otp.UserMessage(err)), c.now())
		return
	}

	s.Email = email
	s.OTP = rec
	s.Phase = PhaseAwaitingOtp
	s.append(RoleAssistant, codeSent(email, c.deps.Codes.TTL()), c.now())
	c.publish(ctx, EventCodeSent, s, "")
}

func (c *Controller) handleCode(ctx context.Context, s *Session, text string) {
	if strings.EqualFold(text, "resend") {
		c.resend(ctx, s)
		return
	}
	code := strings.ReplaceAll(text, " ", "")
	if !isCode(code) {
		s.append(RoleAssistant, msgCodeFormat, c.now())
		return
	}

	err := c.deps.Codes.Verify(code, s.OTP)
	switch {
	case err == nil:
		s.Verified = true
		s.Phase = PhaseAwaitingSelection
		s.append(RoleAssistant, verified(c.settings.Company), c.now())
		c.publish(ctx, EventVerified, s, "")
	case errors.Is(err, otp.ErrInvalid) && s.OTP.Attempts < c.deps.Codes.MaxAttempts():
		s.append(RoleAssistant, invalidCode(c.deps.Codes.MaxAttempts()-s.OTP.Attempts), c.now())
	case errors.Is(err, otp.ErrExpired):
		s.append(RoleAssistant, otp.UserMessage(err)+" Type \"resend\" to get a new code.", c.now())
	default:
		// Invalid with attempts exhausted, too many attempts, or no record.
		s.OTP = nil
		s.Email = ""
		s.Phase = PhaseAwaitingEmail
		s.append(RoleAssistant, msgRestart, c.now())
		c.publish(ctx, EventLockedOut, s, err.Error())
	}
}

// Resend replaces the outstanding code. Only valid while awaiting a code.
func (c *Controller) Resend(ctx context.Context, s *Session) error {
	if s.Phase == PhaseEnded {
		return ErrSessionEnded
	}
	if s.Phase != PhaseAwaitingOtp {
		return ErrWrongPhase
	}
	s.LastActivity = c.now()
	c.resend(ctx, s)
	return nil
}

func (c *Controller) resend(ctx context.Context, s *Session) {
	rec, err := c.deps.Codes.Resend(ctx, s.Email)
	if err != nil {
		c.logger.Warn("Verification code resend failed", zap.String("email", s.Email), zap.Error(err))
		s.append(RoleAssistant, "Couldn't send a new verification code: "+otp.UserMessage(err), c.now())
		return
	}
	s.OTP = rec
	s.append(RoleAssistant, msgCodeResent, c.now())
	c.publish(ctx, EventCodeSent, s, "resend")
}

// SelectTopic picks products or services and opens free chat.
func (c *Controller) SelectTopic(ctx context.Context, s *Session, topic matcher.Topic) error {
	if s.Phase == PhaseEnded {
		return ErrSessionEnded
	}
	if s.Phase != PhaseAwaitingSelection {
		return ErrWrongPhase
	}
	info, ok := c.deps.Catalog.Topics[topic]
	if !ok {
		return ErrInvalidTopic
	}
	now := c.now()
	s.LastActivity = now
	s.FollowUpSentAt = nil
	return c.selectTopic(ctx, s, topic, info.Label)
}

func (c *Controller) selectTopic(ctx context.Context, s *Session, topic matcher.Topic, said string) error {
	info, ok := c.deps.Catalog.Topics[topic]
	if !ok {
		return ErrInvalidTopic
	}
	s.append(RoleUser, said, c.now())
	s.Topic = topic
	s.Phase = PhaseFreeChat
	s.append(RoleAssistant, strings.TrimSpace(info.Overview), c.now())
	c.publish(ctx, EventTopicSelected, s, string(topic))
	return nil
}

func (c *Controller) handleChat(ctx context.Context, s *Session, text string) {
	history := turns(s.Messages)
	now := c.now()
	rec := ReplyRecord{
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		Topic:          string(s.Topic),
		Query:          text,
		At:             now,
	}

	verdict := moderation.Verdict{Allowed: true}
	if util.ContainsSuspicious(text) {
		verdict = moderation.Verdict{
			Stage:   moderation.StageHeuristic,
			Reason:  "markup in message",
			Message: "🚫 Content Moderation: Messages can't contain code or markup. Please rephrase your question.",
		}
	} else if c.deps.Filter != nil {
		verdict = c.deps.Filter.Check(ctx, text)
	}
	if !verdict.Allowed {
		user := s.append(RoleUser, text, now)
		user.Excluded = true
		reply := s.append(RoleAssistant, verdict.Message, c.now())
		reply.Excluded = true
		c.logger.Info("Message rejected by content filter",
			zap.String("session_id", s.ID),
			zap.String("stage", string(verdict.Stage)),
			zap.String("reason", verdict.Reason),
		)
		rec.FilterStage = string(verdict.Stage)
		c.record(ctx, rec)
		return
	}

	s.append(RoleUser, text, now)
	m := c.deps.Matcher.Match(text)
	reply := c.deps.Responder.Respond(ctx, text, m, history)
	s.append(RoleAssistant, reply.Text, c.now())

	rec.Category = m.Category
	rec.Confidence = m.Confidence
	rec.Score = m.Score
	rec.Source = string(reply.Source)
	c.record(ctx, rec)
}

// Tick applies inactivity rules at now and reports whether s changed.
func (c *Controller) Tick(ctx context.Context, s *Session, now time.Time) bool {
	switch {
	case s.Phase == PhaseEnded:
		if s.EndedAt != nil && now.Sub(*s.EndedAt) >= c.settings.ResetDelay {
			s.reinit(greeting(c.settings.Company), now)
			c.publish(ctx, EventStarted, s, "auto reset")
			return true
		}
	case s.Idle() && s.FollowUpSentAt == nil:
		if now.Sub(s.LastActivity) >= c.settings.IdleFollowUp {
			s.append(RoleAssistant, msgFollowUp, now)
			s.FollowUpSentAt = &now
			return true
		}
	case s.Idle():
		if now.Sub(*s.FollowUpSentAt) >= c.settings.IdleEnd {
			c.end(ctx, s, EndReasonInactivity, now)
			return true
		}
	}
	return false
}

// End closes the conversation. A verified conversation is archived exactly once.
func (c *Controller) End(ctx context.Context, s *Session, reason string) error {
	if s.Phase == PhaseEnded {
		return ErrSessionEnded
	}
	c.end(ctx, s, reason, c.now())
	return nil
}

func (c *Controller) end(ctx context.Context, s *Session, reason string, now time.Time) {
	s.append(RoleAssistant, closing(reason, c.settings.ContactEmail), now)
	s.Phase = PhaseEnded
	s.EndedAt = &now
	s.EndReason = reason
	s.FollowUpSentAt = nil

	if s.Verified && c.deps.Archiver != nil {
		key, err := c.deps.Archiver.Archive(ctx, s)
		if err != nil {
			c.logger.Error("Conversation archive incomplete",
				zap.String("conversation_id", s.ConversationID),
				zap.Error(err),
			)
		}
		s.TranscriptKey = key
	}
	c.publish(ctx, EventEnded, s, reason)
}

// Reset ends a verified conversation if one is open and starts over in place.
func (c *Controller) Reset(ctx context.Context, s *Session) {
	if s.Verified && s.Phase != PhaseEnded {
		c.end(ctx, s, EndReasonReset, c.now())
	}
	s.reinit(greeting(c.settings.Company), c.now())
	c.publish(ctx, EventStarted, s, "reset")
}

func (c *Controller) publish(ctx context.Context, typ EventType, s *Session, detail string) {
	if c.deps.Publisher == nil {
		return
	}
	err := c.deps.Publisher.Publish(ctx, Event{
		Type:           typ,
		SessionID:      s.ID,
		ConversationID: s.ConversationID,
		Email:          s.Email,
		Phase:          s.Phase,
		Detail:         detail,
		At:             c.now(),
	})
	if err != nil {
		c.logger.Warn("Failed to publish conversation event", zap.String("type", string(typ)), zap.Error(err))
	}
}

func (c *Controller) record(ctx context.Context, r ReplyRecord) {
	if c.deps.Recorder == nil {
		return
	}
	if err := c.deps.Recorder.RecordReply(ctx, r); err != nil {
		c.logger.Warn("Failed to record reply analytics", zap.Error(err))
	}
}

// ParseTopic reads a topic choice from free text.
func ParseTopic(text string) (matcher.Topic, bool) {
	lower := strings.ToLower(text)
	product := strings.Contains(lower, "product")
	service := strings.Contains(lower, "service")
	switch {
	case product && !service:
		return matcher.TopicProducts, true
	case service && !product:
		return matcher.TopicServices, true
	}
	return "", false
}

// maskDigits hides a typed verification code so it never reaches a transcript.
func maskDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return '•'
		}
		return r
	}, s)
}

func isCode(s string) bool {
	if len(s) != otp.CodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func turns(msgs []Message) []responder.Turn {
	out := make([]responder.Turn, len(msgs))
	for i, m := range msgs {
		out[i] = responder.Turn{Role: m.Role, Content: m.Content, Excluded: m.Excluded}
	}
	return out
}
