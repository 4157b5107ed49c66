package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPSender struct {
	dialer Dialer
	from   string
	logger *zap.Logger
}

func NewSMTPSender(host string, port int, username, password, from string, logger *zap.Logger) *SMTPSender {
	return NewSMTPSenderWithDialer(gomail.NewDialer(host, port, username, password), from, logger)
}

func NewSMTPSenderWithDialer(d Dialer, from string, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{dialer: d, from: from, logger: logger}
}

func (s *SMTPSender) Send(ctx context.Context, msg Email) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}
	if s.from == "" {
		return "", &SendError{Provider: "smtp", Message: "SMTP_FROM is not configured", Err: ErrNoSender}
	}

	id := fmt.Sprintf("<%s@chat-assistant>", uuid.NewString())
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To...)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	m.SetDateHeader("Date", time.Now())
	m.SetBody("text/plain", msg.Text)
	m.AddAlternative("text/html", msg.HTML)

	// gomail has no context support; honour cancellation before dialing.
	if err := ctx.Err(); err != nil {
		return "", &SendError{Provider: "smtp", Message: err.Error(), Err: err}
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("SMTP send failed", zap.Strings("to", msg.To), zap.Error(err))
		return "", &SendError{Provider: "smtp", Message: err.Error(), Err: err}
	}

	s.logger.Info("Email sent via SMTP", zap.Strings("to", msg.To), zap.String("message_id", id))
	return id, nil
}
