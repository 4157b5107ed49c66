package analytics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-assistant/internal/conversation"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS reply_events (
	session_id      String,
	conversation_id String,
	topic           LowCardinality(String),
	query           String,
	category        LowCardinality(String),
	confidence      Float64,
	score           Float64,
	source          LowCardinality(String),
	filter_stage    LowCardinality(String),
	created_at      DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (created_at, conversation_id)`

	insertReplies = `INSERT INTO reply_events (session_id, conversation_id, topic, query, category, confidence, score, source, filter_stage, created_at)`
)

// Store is satisfied by *client.ClickHouseClient.
type Store interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

// ClickHouseRecorder buffers reply records and writes them in batches.
type ClickHouseRecorder struct {
	store     Store
	batchSize int
	logger    *zap.Logger

	mu  sync.Mutex
	buf [][]interface{}
}

func NewClickHouseRecorder(store Store, batchSize int, logger *zap.Logger) *ClickHouseRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseRecorder{store: store, batchSize: batchSize, logger: logger}
}

// Migrate creates the events table if needed.
func (r *ClickHouseRecorder) Migrate(ctx context.Context) error {
	return r.store.Exec(ctx, createTable)
}

func (r *ClickHouseRecorder) RecordReply(ctx context.Context, rec conversation.ReplyRecord) error {
	r.mu.Lock()
	r.buf = append(r.buf, []interface{}{
		rec.SessionID,
		rec.ConversationID,
		rec.Topic,
		rec.Query,
		rec.Category,
		rec.Confidence,
		rec.Score,
		rec.Source,
		rec.FilterStage,
		rec.At.UTC(),
	})
	full := len(r.buf) >= r.batchSize
	r.mu.Unlock()

	if full {
		return r.Flush(ctx)
	}
	return nil
}

// Flush writes everything buffered. Rows are dropped if the insert fails.
func (r *ClickHouseRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	rows := r.buf
	r.buf = nil
	r.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}
	if err := r.store.BatchInsert(ctx, insertReplies, rows); err != nil {
		r.logger.Error("Failed to write reply analytics", zap.Int("rows", len(rows)), zap.Error(err))
		return err
	}
	r.logger.Debug("Reply analytics flushed", zap.Int("rows", len(rows)))
	return nil
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (r *ClickHouseRecorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = r.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = r.Flush(flushCtx)
			cancel()
			return
		}
	}
}
