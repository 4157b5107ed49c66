package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"chat-assistant/internal/mailer"
)

const (
	CodeLength         = 6
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 3
)

var (
	ErrNoOtpFound      = errors.New("no verification code found")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrExpired         = errors.New("verification code expired")
	ErrInvalid         = errors.New("invalid verification code")
	ErrRateLimited     = errors.New("too many verification codes requested")
)

// Record is one issued code. Attempts counts failed verifications only.
type Record struct {
	Code     string    `json:"code"`
	Email    string    `json:"email"`
	IssuedAt time.Time `json:"issued_at"`
	Attempts int       `json:"attempts"`
}

// ExpiresAt is the last instant at which the code still verifies.
func (r *Record) ExpiresAt(ttl time.Duration) time.Time {
	return r.IssuedAt.Add(ttl)
}

// Limiter caps how many codes one email can be sent per window.
type Limiter interface {
	Allow(ctx context.Context, email string) (bool, error)
}

type Manager struct {
	sender      mailer.Sender
	limiter     Limiter
	logger      *zap.Logger
	now         func() time.Time
	ttl         time.Duration
	maxAttempts int
	emailData   mailer.OTPData
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLimiter(l Limiter) Option {
	return func(m *Manager) { m.limiter = l }
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithBranding sets the company, website and verification link used in the email.
func WithBranding(company, websiteURL, verificationURL string) Option {
	return func(m *Manager) {
		m.emailData.Company = company
		m.emailData.WebsiteURL = websiteURL
		m.emailData.VerificationURL = verificationURL
	}
}

func NewManager(sender mailer.Sender, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		sender:      sender,
		logger:      logger,
		now:         time.Now,
		ttl:         DefaultTTL,
		maxAttempts: DefaultMaxAttempts,
		emailData: mailer.OTPData{
			Company:    "Aniket Solutions",
			WebsiteURL: "https://www.aniketsolutions.com",
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

func (m *Manager) TTL() time.Duration { return m.ttl }

func (m *Manager) MaxAttempts() int { return m.maxAttempts }

// Generate returns CodeLength independent uniform digits.
func Generate() (string, error) {
	buf := make([]byte, CodeLength)
	ten := big.NewInt(10)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// Issue sends a fresh code to email and returns its record. The send result
// reflects hand-off to the mail provider, not delivery.
func (m *Manager) Issue(ctx context.Context, email string) (*Record, error) {
	if m.limiter != nil {
		ok, err := m.limiter.Allow(ctx, email)
		if err != nil {
			m.logger.Warn("OTP limiter unavailable, allowing send", zap.Error(err))
		} else if !ok {
			return nil, ErrRateLimited
		}
	}

	code, err := Generate()
	if err != nil {
		return nil, err
	}

	data := m.emailData
	data.Code = code
	data.ExpiryMinutes = int(m.ttl / time.Minute)
	msg, err := mailer.OTPEmail(email, data)
	if err != nil {
		return nil, err
	}

	messageID, err := m.sender.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("send verification code: %w", err)
	}

	m.logger.Info("Verification code issued",
		zap.String("email", email),
		zap.String("message_id", messageID),
	)
	return &Record{Code: code, Email: email, IssuedAt: m.now(), Attempts: 0}, nil
}

// Resend issues a replacement code; the caller discards the old record.
func (m *Manager) Resend(ctx context.Context, email string) (*Record, error) {
	return m.Issue(ctx, email)
}

// Verify checks entered against rec. A mismatch increments rec.Attempts on
// the caller's record, which the caller must persist.
func (m *Manager) Verify(entered string, rec *Record) error {
	if rec == nil || rec.Code == "" {
		return ErrNoOtpFound
	}
	if rec.Attempts >= m.maxAttempts {
		return ErrTooManyAttempts
	}
	if m.now().Sub(rec.IssuedAt) > m.ttl {
		return ErrExpired
	}
	if entered != rec.Code {
		rec.Attempts++
		return ErrInvalid
	}
	return nil
}

// UserMessage is the inline chat text for a verification outcome.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return "✅ Email verified!"
	case errors.Is(err, ErrNoOtpFound):
		return "No verification code found. Please request a new one."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many failed attempts. Please request a new verification code."
	case errors.Is(err, ErrExpired):
		return "Your verification code has expired. Please request a new one."
	case errors.Is(err, ErrInvalid):
		return "Invalid verification code. Please try again."
	case errors.Is(err, ErrRateLimited):
		return "Too many verification codes requested. Please wait a few minutes and try again."
	default:
		return mailer.UserMessage(err)
	}
}
