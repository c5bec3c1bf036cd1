package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/persistence"
)

type memoryWriter struct {
	mu       sync.Mutex
	fail     bool
	attempts map[string]model.Attempt
}

func (m *memoryWriter) Upsert(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	if m.attempts == nil {
		m.attempts = make(map[string]model.Attempt)
	}
	m.attempts[a.AttemptID] = *a
	return nil
}

func (m *memoryWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

func (m *memoryWriter) setFail(v bool) {
	m.mu.Lock()
	m.fail = v
	m.mu.Unlock()
}

func setup(t *testing.T, w *memoryWriter) (*SubmissionWorker, *persistence.RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	worker := NewSubmissionWorker(w, rdb, zerolog.Nop())
	worker.retryDelay = 10 * time.Millisecond
	return worker, persistence.NewRedisQueue(rdb, config.WorkerKey.PersistSubmissionsQueue), mr
}

func attempt(id string) model.Attempt {
	return model.Attempt{
		AttemptID:   id,
		StudentID:   42,
		PaperID:     "cgl-1",
		Status:      model.SessionStatusSubmitted,
		Score:       4,
		SubmittedAt: time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubmissionWorkerPersists(t *testing.T) {
	w := &memoryWriter{}
	worker, queue, mr := setup(t, w)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	_ = queue.Enqueue(context.Background(), attempt("a1"))
	_ = queue.Enqueue(context.Background(), attempt("a2"))
	_, _ = mr.Lpush(config.WorkerKey.PersistSubmissionsQueue, "{broken")

	waitFor(t, func() bool { return w.count() == 2 })
	cancel()
	<-done

	if mr.Exists(config.WorkerKey.PersistSubmissionsQueue) {
		t.Fatal("queue not emptied")
	}
}

func TestSubmissionWorkerRetries(t *testing.T) {
	w := &memoryWriter{fail: true}
	worker, queue, _ := setup(t, w)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	_ = queue.Enqueue(context.Background(), attempt("a1"))
	time.Sleep(50 * time.Millisecond)
	if w.count() != 0 {
		t.Fatal("write should have failed")
	}

	w.setFail(false)
	waitFor(t, func() bool { return w.count() == 1 })
}

func TestSubmissionWorkerDrain(t *testing.T) {
	w := &memoryWriter{}
	worker, queue, mr := setup(t, w)

	for _, id := range []string{"a1", "a2", "a3"} {
		_ = queue.Enqueue(context.Background(), attempt(id))
	}
	worker.drain(context.Background())

	if w.count() != 3 {
		t.Fatalf("expected 3 drained attempts, got %d", w.count())
	}
	if mr.Exists(config.WorkerKey.PersistSubmissionsQueue) {
		t.Fatal("queue not emptied")
	}

	w.setFail(true)
	_ = queue.Enqueue(context.Background(), attempt("a4"))
	worker.drain(context.Background())
	items, _ := mr.List(config.WorkerKey.PersistSubmissionsQueue)
	if len(items) != 1 {
		t.Fatalf("failed item should stay queued, got %d", len(items))
	}
}
