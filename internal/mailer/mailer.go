package mailer

import (
	"context"
	"errors"
	"fmt"
)

// Email is a single multipart (HTML + plain text) message.
type Email struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers an email and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, msg Email) (string, error)
}

var (
	ErrNoSender     = errors.New("no verified sender address available")
	ErrNoRecipients = errors.New("email has no recipients")
)

// SendError carries the provider's short error code so callers can show it.
type SendError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *SendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s send failed (%s): %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s send failed: %s", e.Provider, e.Message)
}

func (e *SendError) Unwrap() error { return e.Err }

// UserMessage maps a send failure to the short text shown in the chat.
func UserMessage(err error) string {
	var se *SendError
	if !errors.As(err, &se) {
		return "We couldn't send the verification email right now. Please try again shortly."
	}
	switch se.Code {
	case "MessageRejected":
		return "Email address not verified with our mail provider. Please try again later."
	case "SendingPausedException":
		return "Email sending is temporarily paused. Please try again later."
	case "":
		return "We couldn't send the verification email right now. Please try again shortly."
	default:
		return fmt.Sprintf("Mail provider error (%s). Please try again later.", se.Code)
	}
}

func validate(msg Email) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	return nil
}
