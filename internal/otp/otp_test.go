package otp

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/mailer"
)

type captureSender struct {
	sent []mailer.Email
	err  error
}

func (c *captureSender) Send(_ context.Context, msg mailer.Email) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, msg)
	return "id", nil
}

type staticLimiter struct {
	allow bool
	err   error
}

func (s staticLimiter) Allow(context.Context, string) (bool, error) { return s.allow, s.err }

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newManager(t *testing.T, opts ...Option) (*Manager, *captureSender, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := &captureSender{}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return NewManager(s, nil, opts...), s, c
}

func TestGenerate(t *testing.T) {
	digits := regexp.MustCompile(`^[0-9]{6}$`)
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Regexp(t, digits, code)
	}
}

func TestIssueSendsCodeByEmail(t *testing.T) {
	m, s, c := newManager(t)

	rec, err := m.Issue(context.Background(), "ops@acme.com")

	require.NoError(t, err)
	assert.Equal(t, "ops@acme.com", rec.Email)
	assert.Equal(t, c.t, rec.IssuedAt)
	assert.Zero(t, rec.Attempts)
	require.Len(t, s.sent, 1)
	assert.Equal(t, []string{"ops@acme.com"}, s.sent[0].To)
	assert.Contains(t, s.sent[0].Text, rec.Code)
	assert.Contains(t, s.sent[0].HTML, rec.Code)
}

func TestIssueSendFailure(t *testing.T) {
	m, s, _ := newManager(t)
	s.err = &mailer.SendError{Provider: "ses", Code: "SendingPausedException"}

	rec, err := m.Issue(context.Background(), "ops@acme.com")

	assert.Nil(t, rec)
	var se *mailer.SendError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, UserMessage(err), "paused")
}

func TestIssueRateLimited(t *testing.T) {
	m, s, _ := newManager(t, WithLimiter(staticLimiter{allow: false}))

	_, err := m.Issue(context.Background(), "ops@acme.com")

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, s.sent)
}

func TestIssueLimiterErrorFailsOpen(t *testing.T) {
	m, s, _ := newManager(t, WithLimiter(staticLimiter{err: errors.New("redis down")}))

	_, err := m.Issue(context.Background(), "ops@acme.com")

	require.NoError(t, err)
	assert.Len(t, s.sent, 1)
}

func TestResendReplacesRecord(t *testing.T) {
	m, _, c := newManager(t)
	first, err := m.Issue(context.Background(), "ops@acme.com")
	require.NoError(t, err)
	first.Attempts = 2

	c.t = c.t.Add(5 * time.Minute)
	second, err := m.Resend(context.Background(), "ops@acme.com")

	require.NoError(t, err)
	assert.Zero(t, second.Attempts)
	assert.Equal(t, c.t, second.IssuedAt)
}

func TestVerifyCorrectCodeKeepsAttempts(t *testing.T) {
	m, _, c := newManager(t)
	rec := &Record{Code: "123456", Email: "a@acme.com", IssuedAt: c.t}

	c.t = c.t.Add(599 * time.Second)

	assert.NoError(t, m.Verify("123456", rec))
	assert.Zero(t, rec.Attempts)
}

func TestVerifyAtExactlyTTLIsValid(t *testing.T) {
	m, _, c := newManager(t)
	rec := &Record{Code: "123456", IssuedAt: c.t}
	c.t = c.t.Add(600 * time.Second)

	assert.NoError(t, m.Verify("123456", rec))
}

func TestVerifyExpired(t *testing.T) {
	m, _, c := newManager(t)
	rec := &Record{Code: "123456", IssuedAt: c.t}
	c.t = c.t.Add(601 * time.Second)

	assert.ErrorIs(t, m.Verify("123456", rec), ErrExpired)
	assert.Zero(t, rec.Attempts)
}

func TestVerifyMismatchIncrementsCallerRecord(t *testing.T) {
	m, _, c := newManager(t)
	rec := &Record{Code: "123456", IssuedAt: c.t}

	assert.ErrorIs(t, m.Verify("654321", rec), ErrInvalid)
	assert.ErrorIs(t, m.Verify(" 123456", rec), ErrInvalid)
	assert.Equal(t, 2, rec.Attempts)
}

func TestVerifyTooManyAttemptsCheckedBeforeCompare(t *testing.T) {
	m, _, c := newManager(t)
	rec := &Record{Code: "123456", IssuedAt: c.t}

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, m.Verify("000000", rec), ErrInvalid)
	}
	assert.ErrorIs(t, m.Verify("123456", rec), ErrTooManyAttempts)
	assert.Equal(t, 3, rec.Attempts)
}

func TestVerifyNoRecord(t *testing.T) {
	m, _, _ := newManager(t)

	assert.ErrorIs(t, m.Verify("123456", nil), ErrNoOtpFound)
	assert.ErrorIs(t, m.Verify("123456", &Record{}), ErrNoOtpFound)
}

func TestUserMessage(t *testing.T) {
	assert.Contains(t, UserMessage(ErrExpired), "expired")
	assert.Contains(t, UserMessage(ErrInvalid), "Invalid")
	assert.Contains(t, UserMessage(ErrTooManyAttempts), "Too many")
	assert.Contains(t, UserMessage(nil), "verified")
}
