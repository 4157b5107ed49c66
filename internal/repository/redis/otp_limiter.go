package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-assistant/internal/util"
)

const otpSendPrefix = "otp_send:"

// OTPSendLimiter caps verification emails per address in a fixed window.
type OTPSendLimiter struct {
	client KV
	limit  int
	window time.Duration
}

func NewOTPSendLimiter(client KV, limit int, window time.Duration) *OTPSendLimiter {
	return &OTPSendLimiter{client: client, limit: limit, window: window}
}

func (l *OTPSendLimiter) Allow(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpSendPrefix + strings.ToLower(email)
	count, err := l.client.IncrWithExpire(ctx, key, l.window)
	if err != nil {
		util.Error("Failed to increment OTP send counter", zap.String("email", email), zap.Error(err))
		return false, fmt.Errorf("failed to increment otp send counter: %w", err)
	}

	if int(count) > l.limit {
		util.Warn("OTP send limit reached",
			zap.String("email", email),
			zap.Int64("count", count),
			zap.Int("limit", l.limit))
		return false, nil
	}
	return true, nil
}
