package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chat-assistant/internal/conversation"
	"chat-assistant/internal/mailer"
)

type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

type Indexer interface {
	IndexTranscript(ctx context.Context, t Transcript) error
}

// Outcome reports what each sink did with a transcript.
type Outcome struct {
	Key     string
	Stored  bool
	Emailed bool
	Indexed bool
	Errors  map[string]error
}

// Err joins sink errors in a stable order.
func (o Outcome) Err() error {
	var errs []error
	for _, sink := range []string{"storage", "email", "index"} {
		if err, ok := o.Errors[sink]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", sink, err))
		}
	}
	return errors.Join(errs...)
}

const defaultSinkTimeout = 30 * time.Second

type Archiver struct {
	store    ObjectStore
	sender   mailer.Sender
	notifyTo string
	indexer  Indexer
	company  string
	timeout  time.Duration
	logger   *zap.Logger
}

type Option func(*Archiver)

func WithStore(s ObjectStore) Option {
	return func(a *Archiver) { a.store = s }
}

func WithNotification(sender mailer.Sender, to string) Option {
	return func(a *Archiver) {
		a.sender = sender
		a.notifyTo = to
	}
}

func WithIndexer(i Indexer) Option {
	return func(a *Archiver) { a.indexer = i }
}

// WithSinkTimeout bounds how long the sinks of one transcript may run.
func WithSinkTimeout(d time.Duration) Option {
	return func(a *Archiver) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func NewArchiver(company string, logger *zap.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Archiver{company: company, timeout: defaultSinkTimeout, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Archive builds and finalizes the transcript of s.
func (a *Archiver) Archive(ctx context.Context, s *conversation.Session) (string, error) {
	out := a.Finalize(ctx, Build(s))
	return out.Key, out.Err()
}

// Finalize runs every configured sink concurrently. Sink failures are
// collected in the outcome and do not stop the others. The sinks keep
// running when ctx is cancelled, since an ended conversation is never
// archived again; only the archiver's own timeout stops them.
func (a *Archiver) Finalize(ctx context.Context, t Transcript) Outcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	key := Key(t)
	out := Outcome{Errors: map[string]error{}}
	var mu sync.Mutex
	fail := func(sink string, err error) {
		mu.Lock()
		out.Errors[sink] = err
		mu.Unlock()
	}

	var g errgroup.Group

	if a.store != nil {
		g.Go(func() error {
			body, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				fail("storage", err)
				return nil
			}
			if err := a.store.Put(ctx, key, body); err != nil {
				fail("storage", err)
				return nil
			}
			mu.Lock()
			out.Stored = true
			out.Key = key
			mu.Unlock()
			return nil
		})
	}

	if a.sender != nil && a.notifyTo != "" {
		g.Go(func() error {
			msg, err := mailer.TranscriptEmail(a.notifyTo, a.emailData(t, key))
			if err != nil {
				fail("email", err)
				return nil
			}
			if _, err := a.sender.Send(ctx, msg); err != nil {
				fail("email", err)
				return nil
			}
			mu.Lock()
			out.Emailed = true
			mu.Unlock()
			return nil
		})
	}

	if a.indexer != nil {
		g.Go(func() error {
			if err := a.indexer.IndexTranscript(ctx, t); err != nil {
				fail("index", err)
				return nil
			}
			mu.Lock()
			out.Indexed = true
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	fields := []zap.Field{
		zap.String("conversation_id", t.ID),
		zap.String("key", key),
		zap.Bool("stored", out.Stored),
		zap.Bool("emailed", out.Emailed),
		zap.Bool("indexed", out.Indexed),
	}
	if err := out.Err(); err != nil {
		a.logger.Error("Transcript finalized with errors", append(fields, zap.Error(err))...)
	} else {
		a.logger.Info("Transcript finalized", fields...)
	}
	return out
}

func (a *Archiver) emailData(t Transcript, key string) mailer.TranscriptData {
	lines := make([]mailer.TranscriptLine, 0, len(t.Messages))
	for _, m := range t.Messages {
		speaker := "User"
		if m.Role == conversation.RoleAssistant {
			speaker = "Assistant"
		}
		lines = append(lines, mailer.TranscriptLine{Speaker: speaker, Time: m.Timestamp, Content: m.Content})
	}
	storedAt := ""
	if a.store != nil {
		storedAt = key
	}
	return mailer.TranscriptData{
		Company:        a.company,
		ConversationID: t.ID,
		UserEmail:      t.Email,
		Topic:          t.Topic,
		StartedAt:      t.StartedAt,
		EndedAt:        t.EndedAt,
		Duration:       time.Duration(t.DurationSeconds * float64(time.Second)).Round(time.Second),
		EndReason:      t.EndReason,
		StorageKey:     storedAt,
		Lines:          lines,
	}
}
