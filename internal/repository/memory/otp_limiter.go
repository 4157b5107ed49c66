package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// OTPSendLimiter is the in-process counterpart of the Redis limiter.
type OTPSendLimiter struct {
	mu     sync.Mutex
	cache  *cache.Cache
	limit  int
	window time.Duration
}

func NewOTPSendLimiter(limit int, window time.Duration) *OTPSendLimiter {
	return &OTPSendLimiter{cache: cache.New(window, window), limit: limit, window: window}
}

func (l *OTPSendLimiter) Allow(_ context.Context, email string) (bool, error) {
	key := strings.ToLower(email)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.cache.Add(key, 1, l.window); err == nil {
		return l.limit >= 1, nil
	}
	n, err := l.cache.IncrementInt(key, 1)
	if err != nil {
		// Expired between Add and IncrementInt.
		l.cache.Set(key, 1, l.window)
		n = 1
	}
	return n <= l.limit, nil
}
