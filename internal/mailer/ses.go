package mailer

import (
	"context"
	"errors"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	ListEmailIdentities(ctx context.Context, params *sesv2.ListEmailIdentitiesInput, optFns ...func(*sesv2.Options)) (*sesv2.ListEmailIdentitiesOutput, error)
}

type SESSender struct {
	client SESAPI
	logger *zap.Logger

	mu   sync.Mutex
	from string
}

// NewSESSender sends through SES. An empty from address is resolved lazily to
// the first verified email identity on the account.
func NewSESSender(client SESAPI, from string, logger *zap.Logger) *SESSender {
	return &SESSender{client: client, from: from, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg Email) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}
	from, err := s.sender(ctx)
	if err != nil {
		return "", err
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8(msg.Subject),
				Body: &types.Body{
					Html: utf8(msg.HTML),
					Text: utf8(msg.Text),
				},
			},
		},
	})
	if err != nil {
		sendErr := toSendError(err)
		s.logger.Error("SES send failed",
			zap.Strings("to", msg.To),
			zap.String("code", sendErr.Code),
			zap.Error(err),
		)
		return "", sendErr
	}

	id := aws.ToString(out.MessageId)
	s.logger.Info("Email sent via SES",
		zap.Strings("to", msg.To),
		zap.String("from", from),
		zap.String("message_id", id),
	)
	return id, nil
}

func (s *SESSender) sender(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.from != "" {
		return s.from, nil
	}

	out, err := s.client.ListEmailIdentities(ctx, &sesv2.ListEmailIdentitiesInput{PageSize: aws.Int32(100)})
	if err != nil {
		return "", toSendError(err)
	}
	for _, id := range out.EmailIdentities {
		if id.IdentityType == types.IdentityTypeEmailAddress && id.SendingEnabled {
			s.from = aws.ToString(id.IdentityName)
			s.logger.Info("Using auto-detected SES sender", zap.String("from", s.from))
			return s.from, nil
		}
	}
	return "", &SendError{Provider: "ses", Message: "no verified email identities found", Err: ErrNoSender}
}

func toSendError(err error) *SendError {
	se := &SendError{Provider: "ses", Message: err.Error(), Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		se.Code = apiErr.ErrorCode()
		se.Message = apiErr.ErrorMessage()
	}
	return se
}

func utf8(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}
