package conversation

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/emailcheck"
	"chat-assistant/internal/mailer"
	"chat-assistant/internal/matcher"
	"chat-assistant/internal/moderation"
	"chat-assistant/internal/otp"
	"chat-assistant/internal/responder"
)

type okResolver struct{}

func (okResolver) LookupMX(context.Context, string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx.example.com.", Pref: 10}}, nil
}

func (okResolver) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return []net.IP{net.IPv4(192, 0, 2, 1)}, nil
}

type outbox struct{ sent []mailer.Email }

func (o *outbox) Send(_ context.Context, e mailer.Email) (string, error) {
	o.sent = append(o.sent, e)
	return "msg-id", nil
}

type archiveSpy struct{ calls []string }

func (a *archiveSpy) Archive(_ context.Context, s *Session) (string, error) {
	a.calls = append(a.calls, s.ConversationID)
	return "conversations/" + s.ConversationID + ".json", nil
}

type eventSpy struct{ events []Event }

func (e *eventSpy) Publish(_ context.Context, ev Event) error {
	e.events = append(e.events, ev)
	return nil
}

type recorderSpy struct{ records []ReplyRecord }

func (r *recorderSpy) RecordReply(_ context.Context, rec ReplyRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type harness struct {
	ctl      *Controller
	now      time.Time
	outbox   *outbox
	archive  *archiveSpy
	events   *eventSpy
	recorder *recorderSpy
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		now:      time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC),
		outbox:   &outbox{},
		archive:  &archiveSpy{},
		events:   &eventSpy{},
		recorder: &recorderSpy{},
	}
	clock := func() time.Time { return h.now }

	cat, err := matcher.LoadCatalog("")
	require.NoError(t, err)

	h.ctl = NewController(Deps{
		Validator: emailcheck.NewValidator(nil, emailcheck.WithResolver(okResolver{})),
		Codes:     otp.NewManager(h.outbox, nil, otp.WithClock(clock)),
		Filter:    moderation.NewFilter(nil, nil, "", nil),
		Matcher:   matcher.New(cat),
		Responder: responder.New(cat, nil, nil, responder.WithContact(responder.Contact{Email: "sales@aniketsolutions.com"})),
		Catalog:   cat,
		Archiver:  h.archive,
		Publisher: h.events,
		Recorder:  h.recorder,
	}, Settings{ContactEmail: "sales@aniketsolutions.com"}, nil, WithClock(clock))
	return h
}

func (h *harness) verified(t *testing.T) *Session {
	t.Helper()
	ctx := context.Background()
	s := h.ctl.NewSession(ctx, "")
	require.NoError(t, h.ctl.HandleInput(ctx, s, "my email is ops@acme-shipping.com"))
	require.Equal(t, PhaseAwaitingOtp, s.Phase)
	require.NoError(t, h.ctl.HandleInput(ctx, s, s.OTP.Code))
	require.Equal(t, PhaseAwaitingSelection, s.Phase)
	return s
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestNewSessionGreets(t *testing.T) {
	h := newHarness(t)

	s := h.ctl.NewSession(context.Background(), "abc")

	assert.Equal(t, "abc", s.ID)
	assert.NotEmpty(t, s.ConversationID)
	assert.Equal(t, PhaseAwaitingEmail, s.Phase)
	require.Len(t, s.Messages, 1)
	assert.Contains(t, s.Messages[0].Content, "corporate email address")
	assert.Equal(t, EventStarted, h.events.events[0].Type)
}

func TestPersonalEmailStaysAwaitingEmail(t *testing.T) {
	h := newHarness(t)
	s := h.ctl.NewSession(context.Background(), "")

	require.NoError(t, h.ctl.HandleInput(context.Background(), s, "jane@yahoo.com"))

	assert.Equal(t, PhaseAwaitingEmail, s.Phase)
	assert.Contains(t, s.LastAssistant(), "personal email provider")
	assert.Empty(t, h.outbox.sent)
	assert.Nil(t, s.OTP)
}

func TestCorrectCodeFirstTry(t *testing.T) {
	h := newHarness(t)

	s := h.verified(t)

	require.NotNil(t, s.OTP)
	assert.Equal(t, 0, s.OTP.Attempts)
	assert.True(t, s.Verified)
	assert.Equal(t, "ops@acme-shipping.com", s.Email)
	assert.Len(t, h.outbox.sent, 1)
	assert.Contains(t, s.LastAssistant(), "Email verified")
}

func TestTypedCodeIsMasked(t *testing.T) {
	h := newHarness(t)

	s := h.verified(t)

	code := s.OTP.Code
	var typed []string
	for _, m := range s.Messages {
		assert.NotContains(t, m.Content, code)
		if m.Role == RoleUser {
			typed = append(typed, m.Content)
		}
	}
	assert.Equal(t, []string{"my email is ops@acme-shipping.com", "••••••"}, typed)
}

func TestThreeWrongCodesRestartVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.ctl.NewSession(ctx, "")
	require.NoError(t, h.ctl.HandleInput(ctx, s, "ops@acme-shipping.com"))
	bad := wrongCode(s.OTP.Code)

	require.NoError(t, h.ctl.HandleInput(ctx, s, bad))
	assert.Contains(t, s.LastAssistant(), "2 attempts remaining")
	require.NoError(t, h.ctl.HandleInput(ctx, s, bad))
	assert.Contains(t, s.LastAssistant(), "1 attempt remaining")
	require.NoError(t, h.ctl.HandleInput(ctx, s, bad))

	assert.Equal(t, PhaseAwaitingEmail, s.Phase)
	assert.Nil(t, s.OTP)
	assert.Contains(t, s.LastAssistant(), "Too many failed attempts")

	require.NoError(t, h.ctl.HandleInput(ctx, s, bad))
	assert.Equal(t, PhaseAwaitingEmail, s.Phase)
	assert.False(t, s.Verified)
	assert.Contains(t, s.LastAssistant(), "Invalid email format")
}

func TestMalformedCodeDoesNotConsumeAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.ctl.NewSession(ctx, "")
	require.NoError(t, h.ctl.HandleInput(ctx, s, "ops@acme-shipping.com"))

	require.NoError(t, h.ctl.HandleInput(ctx, s, "12ab"))

	assert.Equal(t, 0, s.OTP.Attempts)
	assert.Equal(t, PhaseAwaitingOtp, s.Phase)
	assert.Contains(t, s.LastAssistant(), "6-digit")
}

func TestExpiredCodeKeepsRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.ctl.NewSession(ctx, "")
	require.NoError(t, h.ctl.HandleInput(ctx, s, "ops@acme-shipping.com"))
	code := s.OTP.Code

	h.now = h.now.Add(10*time.Minute + time.Second)
	require.NoError(t, h.ctl.HandleInput(ctx, s, code))

	assert.Equal(t, PhaseAwaitingOtp, s.Phase)
	assert.NotNil(t, s.OTP)
	assert.Contains(t, s.LastAssistant(), "expired")
}

func TestResend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.ctl.NewSession(ctx, "")

	assert.ErrorIs(t, h.ctl.Resend(ctx, s), ErrWrongPhase)

	require.NoError(t, h.ctl.HandleInput(ctx, s, "ops@acme-shipping.com"))
	first := s.OTP
	require.NoError(t, h.ctl.HandleInput(ctx, s, wrongCode(first.Code)))

	require.NoError(t, h.ctl.Resend(ctx, s))

	assert.NotSame(t, first, s.OTP)
	assert.Equal(t, 0, s.OTP.Attempts)
	assert.Equal(t, PhaseAwaitingOtp, s.Phase)
	assert.Len(t, h.outbox.sent, 2)
	assert.Contains(t, s.LastAssistant(), "New verification code sent")
}

func TestTopicSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)

	require.NoError(t, h.ctl.HandleInput(ctx, s, "hmm not sure"))
	assert.Equal(t, PhaseAwaitingSelection, s.Phase)
	assert.ErrorIs(t, h.ctl.SelectTopic(ctx, s, "hardware"), ErrInvalidTopic)

	require.NoError(t, h.ctl.HandleInput(ctx, s, "Tell me about your products"))

	assert.Equal(t, PhaseFreeChat, s.Phase)
	assert.Equal(t, matcher.TopicProducts, s.Topic)
	assert.Contains(t, s.LastAssistant(), "AniSol")
	assert.ErrorIs(t, h.ctl.SelectTopic(ctx, s, matcher.TopicServices), ErrWrongPhase)
}

func TestFreeChatTemplateAnswer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)
	require.NoError(t, h.ctl.SelectTopic(ctx, s, matcher.TopicProducts))

	require.NoError(t, h.ctl.HandleInput(ctx, s, "What is your inventory system?"))

	assert.Contains(t, s.LastAssistant(), "AniSol Inventory Control")
	require.Len(t, h.recorder.records, 1)
	rec := h.recorder.records[0]
	assert.Equal(t, "inventory_control", rec.Category)
	assert.Greater(t, rec.Confidence, 0.25)
	assert.Equal(t, string(responder.SourceTemplate), rec.Source)
}

func TestFreeChatRejectionIsExcluded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)
	require.NoError(t, h.ctl.SelectTopic(ctx, s, matcher.TopicServices))

	require.NoError(t, h.ctl.HandleInput(ctx, s, "asdf asdf"))

	n := len(s.Messages)
	assert.True(t, s.Messages[n-1].Excluded)
	assert.True(t, s.Messages[n-2].Excluded)
	assert.Contains(t, s.Messages[n-1].Content, "Content Quality")
	require.Len(t, h.recorder.records, 1)
	assert.Equal(t, string(moderation.StageHeuristic), h.recorder.records[0].FilterStage)
}

func TestEmptyInput(t *testing.T) {
	h := newHarness(t)
	s := h.ctl.NewSession(context.Background(), "")
	assert.ErrorIs(t, h.ctl.HandleInput(context.Background(), s, "   \x00 "), ErrEmptyInput)
}

func TestInactivityFollowUpEndAndReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)
	conversationID := s.ConversationID
	start := h.now

	assert.False(t, h.ctl.Tick(ctx, s, start.Add(2*time.Minute)))

	assert.True(t, h.ctl.Tick(ctx, s, start.Add(3*time.Minute)))
	assert.NotNil(t, s.FollowUpSentAt)
	assert.Contains(t, s.LastAssistant(), "Are you still there")

	assert.False(t, h.ctl.Tick(ctx, s, start.Add(5*time.Minute)))

	h.now = start.Add(6 * time.Minute)
	assert.True(t, h.ctl.Tick(ctx, s, h.now))
	assert.Equal(t, PhaseEnded, s.Phase)
	assert.Equal(t, EndReasonInactivity, s.EndReason)
	assert.Equal(t, []string{conversationID}, h.archive.calls)
	assert.NotEmpty(t, s.TranscriptKey)
	assert.ErrorIs(t, h.ctl.HandleInput(ctx, s, "hello?"), ErrSessionEnded)

	assert.False(t, h.ctl.Tick(ctx, s, h.now.Add(4*time.Second)))
	assert.True(t, h.ctl.Tick(ctx, s, h.now.Add(5*time.Second)))
	assert.Equal(t, PhaseAwaitingEmail, s.Phase)
	assert.NotEqual(t, conversationID, s.ConversationID)
	assert.Len(t, h.archive.calls, 1)
}

func TestReplyClearsFollowUp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)
	require.NoError(t, h.ctl.SelectTopic(ctx, s, matcher.TopicProducts))

	h.now = h.now.Add(3 * time.Minute)
	require.True(t, h.ctl.Tick(ctx, s, h.now))

	h.now = h.now.Add(time.Minute)
	require.NoError(t, h.ctl.HandleInput(ctx, s, "Does the crewing module track certificates?"))
	assert.Nil(t, s.FollowUpSentAt)

	assert.False(t, h.ctl.Tick(ctx, s, h.now.Add(2*time.Minute)))
	assert.Equal(t, PhaseFreeChat, s.Phase)
}

func TestEndArchivesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)

	require.NoError(t, h.ctl.End(ctx, s, EndReasonUser))
	assert.ErrorIs(t, h.ctl.End(ctx, s, EndReasonUser), ErrSessionEnded)

	assert.Len(t, h.archive.calls, 1)
}

func TestUnverifiedEndIsNotArchived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.ctl.NewSession(ctx, "")

	require.NoError(t, h.ctl.End(ctx, s, EndReasonUser))

	assert.Empty(t, h.archive.calls)
	assert.Empty(t, s.TranscriptKey)
}

func TestResetArchivesVerifiedConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := h.verified(t)
	id, conversationID := s.ID, s.ConversationID

	h.ctl.Reset(ctx, s)

	assert.Equal(t, id, s.ID)
	assert.NotEqual(t, conversationID, s.ConversationID)
	assert.Equal(t, PhaseAwaitingEmail, s.Phase)
	assert.False(t, s.Verified)
	assert.Len(t, s.Messages, 1)
	assert.Equal(t, []string{conversationID}, h.archive.calls)
}

func TestParseTopic(t *testing.T) {
	topic, ok := ParseTopic("Services please")
	assert.True(t, ok)
	assert.Equal(t, matcher.TopicServices, topic)

	_, ok = ParseTopic("products and services")
	assert.False(t, ok)
}
