package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"chat-assistant/internal/conversation"
	"chat-assistant/internal/emailcheck"
	"chat-assistant/internal/matcher"
	"chat-assistant/internal/transcript"
	"chat-assistant/internal/util"

	"go.uber.org/zap"
)

// SessionStore persists sessions between requests.
type SessionStore interface {
	Get(ctx context.Context, id string) (*conversation.Session, error)
	Save(ctx context.Context, s *conversation.Session) error
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) ([]string, error)
}

// SessionView is what clients see of a session. The verification code
// itself never leaves the server.
type SessionView struct {
	ID                string                 `json:"id"`
	ConversationID    string                 `json:"conversation_id"`
	Phase             conversation.Phase     `json:"phase"`
	Email             string                 `json:"email,omitempty"`
	Verified          bool                   `json:"verified"`
	Topic             matcher.Topic          `json:"topic,omitempty"`
	Messages          []conversation.Message `json:"messages"`
	StartedAt         time.Time              `json:"started_at"`
	LastActivity      time.Time              `json:"last_activity"`
	EndedAt           *time.Time             `json:"ended_at,omitempty"`
	EndReason         string                 `json:"end_reason,omitempty"`
	OTPExpiresAt      *time.Time             `json:"otp_expires_at,omitempty"`
	AttemptsRemaining *int                   `json:"attempts_remaining,omitempty"`
}

// ChatService serializes work per session and persists every change.
type ChatService struct {
	ctl       *conversation.Controller
	store     SessionStore
	validator conversation.EmailValidator
	logger    *zap.Logger
	now       func() time.Time
	locks     *keyedMutex

	sweepMu   sync.Mutex
	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// NewChatService creates a new chat service
func NewChatService(
	ctl *conversation.Controller,
	store SessionStore,
	validator conversation.EmailValidator,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		ctl:       ctl,
		store:     store,
		validator: validator,
		logger:    logger,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

// Create starts a new session and returns its greeting view.
func (s *ChatService) Create(ctx context.Context) (*SessionView, error) {
	sess := s.ctl.NewSession(ctx, "")
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("Chat session created",
		util.String("session_id", sess.ID),
		util.String("conversation_id", sess.ConversationID),
	)
	return s.view(sess), nil
}

func (s *ChatService) Get(ctx context.Context, id string) (*SessionView, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

// SendMessage routes one visitor message by phase.
func (s *ChatService) SendMessage(ctx context.Context, id, text string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *conversation.Session) error {
		return s.ctl.HandleInput(ctx, sess, text)
	})
}

func (s *ChatService) ResendCode(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *conversation.Session) error {
		return s.ctl.Resend(ctx, sess)
	})
}

// SelectTopic accepts "products" or "services" in any case.
func (s *ChatService) SelectTopic(ctx context.Context, id, topic string) (*SessionView, error) {
	t := matcher.Topic(strings.ToLower(strings.TrimSpace(topic)))
	return s.update(ctx, id, func(sess *conversation.Session) error {
		return s.ctl.SelectTopic(ctx, sess, t)
	})
}

// Reset ends the current conversation if needed and greets again.
func (s *ChatService) Reset(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *conversation.Session) error {
		s.ctl.Reset(ctx, sess)
		return nil
	})
}

func (s *ChatService) End(ctx context.Context, id string) (*SessionView, error) {
	return s.update(ctx, id, func(sess *conversation.Session) error {
		return s.ctl.End(ctx, sess, conversation.EndReasonUser)
	})
}

// Export returns the downloadable copy of the current conversation.
func (s *ChatService) Export(ctx context.Context, id string) (*transcript.Export, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	export := transcript.NewExport(sess, s.now())
	return &export, nil
}

// ValidateEmail runs the validator outside any conversation.
func (s *ChatService) ValidateEmail(ctx context.Context, email string) (emailcheck.Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return emailcheck.Result{}, conversation.ErrEmptyInput
	}
	return s.validator.Validate(ctx, email), nil
}

func (s *ChatService) update(ctx context.Context, id string, fn func(*conversation.Session) error) (*SessionView, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	// fn may already have mailed a code or archived a transcript, so the
	// new state is saved even if the caller has gone away.
	if err := s.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Error("Failed to save chat session",
			util.String("session_id", id),
			util.ErrorField(err),
		)
		return nil, err
	}
	return s.view(sess), nil
}

// Sweep applies inactivity rules to every stored session once. It returns
// how many sessions changed.
func (s *ChatService) Sweep(ctx context.Context) (int, error) {
	ids, err := s.store.IDs(ctx)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		ok, err := s.tick(ctx, id)
		if err != nil {
			s.logger.Warn("Idle sweep skipped session",
				util.String("session_id", id),
				util.ErrorField(err),
			)
			continue
		}
		if ok {
			changed++
		}
	}
	if changed > 0 {
		s.logger.Debug("Idle sweep finished",
			util.Int("sessions", len(ids)),
			util.Int("changed", changed),
		)
	}
	return changed, nil
}

func (s *ChatService) tick(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !s.ctl.Tick(ctx, sess, s.now()) {
		return false, nil
	}
	return true, s.store.Save(ctx, sess)
}

// StartSweeper runs Sweep every interval until Stop is called.
func (s *ChatService) StartSweeper(interval time.Duration) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	if s.stopSweep != nil || interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	s.sweepDone = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Warn("Idle sweep failed", util.ErrorField(err))
				}
			}
		}
	}(s.sweepDone)

	s.logger.Info("Idle sweeper started", util.Duration("interval", interval))
}

// Stop halts the sweeper and waits for an in-flight sweep.
func (s *ChatService) Stop() {
	s.sweepMu.Lock()
	cancel, done := s.stopSweep, s.sweepDone
	s.stopSweep, s.sweepDone = nil, nil
	s.sweepMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *ChatService) view(sess *conversation.Session) *SessionView {
	v := &SessionView{
		ID:             sess.ID,
		ConversationID: sess.ConversationID,
		Phase:          sess.Phase,
		Email:          sess.Email,
		Verified:       sess.Verified,
		Topic:          sess.Topic,
		Messages:       sess.Messages,
		StartedAt:      sess.StartedAt,
		LastActivity:   sess.LastActivity,
		EndedAt:        sess.EndedAt,
		EndReason:      sess.EndReason,
	}
	if sess.Phase == conversation.PhaseAwaitingOtp && sess.OTP != nil {
		ttl, maxAttempts := s.ctl.CodePolicy()
		expires := sess.OTP.ExpiresAt(ttl)
		remaining := maxAttempts - sess.OTP.Attempts
		if remaining < 0 {
			remaining = 0
		}
		v.OTPExpiresAt = &expires
		v.AttemptsRemaining = &remaining
	}
	return v
}

// keyedMutex hands out one mutex per session id and forgets it once no
// caller holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
