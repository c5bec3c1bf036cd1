package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

// AttemptWriter stores finished attempts durably.
type AttemptWriter interface {
	Upsert(ctx context.Context, a *model.Attempt) error
}

// SubmissionWorker consumes persist_submissions_queue and UPSERTs attempts to PostgreSQL.
type SubmissionWorker struct {
	writer     AttemptWriter
	rdb        *redis.Client
	queue      string
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(writer AttemptWriter, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		writer:     writer,
		rdb:        rdb,
		queue:      config.WorkerKey.PersistSubmissionsQueue,
		retryDelay: 5 * time.Second,
		log:        log.With().Str("component", "submission_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, w.queue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	attempt, ok := w.decode(result[1])
	if !ok {
		return
	}

	if err := w.writer.Upsert(ctx, attempt); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", attempt.AttemptID).
			Dur("retry_in", w.retryDelay).
			Msg("Persist error, pushing back")
		w.rdb.RPush(context.Background(), w.queue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(w.retryDelay):
		}
		return
	}

	w.log.Info().
		Str("attempt_id", attempt.AttemptID).
		Int("student_id", attempt.StudentID).
		Str("paper_id", attempt.PaperID).
		Msg("Attempt persisted")
}

// decode drops payloads that can never be written.
func (w *SubmissionWorker) decode(raw string) (*model.Attempt, bool) {
	var a model.Attempt
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error, dropping payload")
		return nil, false
	}
	if a.AttemptID == "" || a.PaperID == "" {
		w.log.Error().Str("payload", raw).Msg("Incomplete attempt, dropping payload")
		return nil, false
	}
	return &a, true
}

// drain processes all remaining items in the queue before shutdown.
func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, w.queue).Result()
		if err != nil {
			break
		}

		attempt, ok := w.decode(raw)
		if !ok {
			continue
		}
		if err := w.writer.Upsert(ctx, attempt); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, w.queue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
