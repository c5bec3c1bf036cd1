package persistence

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

// countingStore wraps MemoryStore, counts saves and can be told to fail.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
	fail  error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	fail := s.fail
	if fail == nil {
		s.saves++
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.MemoryStore.Save(ctx, key, data)
}

func (s *countingStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func withRemaining(paper int) model.Snapshot {
	snap := sampleSnapshot(model.SessionStatusRunning, time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
	snap.State.PaperRemaining = paper
	return snap
}

func newTestAdapter(store Store, debounce time.Duration) *Adapter {
	return NewAdapter(store, "student:42:paper:ssc-cgl-2023:snapshot", AdapterOptions{
		Clock:    clockwork.NewRealClock(),
		Debounce: debounce,
		Logger:   zerolog.Nop(),
	})
}

func TestAdapterSaveLoadRoundTrip(t *testing.T) {
	a := newTestAdapter(NewMemoryStore(), time.Hour)
	snap := withRemaining(250)

	if err := a.Flush(context.Background(), snap); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got, ok := a.Load(context.Background())
	if !ok {
		t.Fatal("expected snapshot")
	}
	if !reflect.DeepEqual(got.State, snap.State) {
		t.Fatalf("expected %+v, got %+v", snap.State, got.State)
	}
}

func TestAdapterLoadAbsentAndCorrupt(t *testing.T) {
	store := NewMemoryStore()
	a := newTestAdapter(store, time.Hour)

	if _, ok := a.Load(context.Background()); ok {
		t.Fatal("expected absent snapshot")
	}

	_ = store.Save(context.Background(), a.Key(), []byte(`{"version":1,"garbage":true}`))
	if _, ok := a.Load(context.Background()); ok {
		t.Fatal("expected corrupt snapshot to be treated as absent")
	}
}

func TestAdapterScheduleCoalesces(t *testing.T) {
	store := newCountingStore()
	a := newTestAdapter(store, time.Hour)

	for _, remaining := range []int{300, 299, 298, 297} {
		a.Schedule(withRemaining(remaining))
	}
	if store.saveCount() != 0 {
		t.Fatal("schedule must not write synchronously")
	}

	if err := a.FlushPending(context.Background()); err != nil {
		t.Fatalf("flush pending: %v", err)
	}
	if got := store.saveCount(); got != 1 {
		t.Fatalf("expected 1 coalesced write, got %d", got)
	}
	snap, ok := a.Load(context.Background())
	if !ok || snap.State.PaperRemaining != 297 {
		t.Fatalf("expected latest snapshot (297), got %+v", snap)
	}
}

func TestAdapterDeferredWriteFires(t *testing.T) {
	store := newCountingStore()
	a := newTestAdapter(store, 10*time.Millisecond)

	a.Schedule(withRemaining(300))
	a.Schedule(withRemaining(290))

	deadline := time.Now().Add(2 * time.Second)
	for store.saveCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("deferred write never happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, ok := a.Load(context.Background())
	if !ok || snap.State.PaperRemaining != 290 {
		t.Fatalf("expected latest snapshot (290), got %+v", snap)
	}
}

func TestAdapterFailedWriteIsReportedAndRetried(t *testing.T) {
	store := newCountingStore()
	store.setFail(errors.New("redis down"))
	a := newTestAdapter(store, time.Hour)

	a.Schedule(withRemaining(280))
	err := a.FlushPending(context.Background())

	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "save" {
		t.Fatalf("expected save PersistenceError, got %v", err)
	}
	select {
	case reported := <-a.Errors():
		if reported.Op != "save" {
			t.Fatalf("unexpected op %q", reported.Op)
		}
	default:
		t.Fatal("expected error on channel")
	}

	store.setFail(nil)
	if err := a.FlushPending(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	snap, ok := a.Load(context.Background())
	if !ok || snap.State.PaperRemaining != 280 {
		t.Fatalf("expected retried snapshot (280), got %+v", snap)
	}
}

func TestAdapterFlushSupersedesPending(t *testing.T) {
	store := newCountingStore()
	a := newTestAdapter(store, time.Hour)

	a.Schedule(withRemaining(100))
	if err := a.Flush(context.Background(), withRemaining(50)); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := a.FlushPending(context.Background()); err != nil {
		t.Fatalf("flush pending: %v", err)
	}

	if got := store.saveCount(); got != 1 {
		t.Fatalf("expected only the flush to write, got %d writes", got)
	}
	snap, _ := a.Load(context.Background())
	if snap.State.PaperRemaining != 50 {
		t.Fatalf("expected 50, got %d", snap.State.PaperRemaining)
	}
}

func TestAdapterDiscard(t *testing.T) {
	store := NewMemoryStore()
	a := newTestAdapter(store, time.Hour)

	_ = a.Flush(context.Background(), withRemaining(10))
	a.Schedule(withRemaining(9))
	if err := a.Discard(context.Background()); err != nil {
		t.Fatalf("discard: %v", err)
	}
	_ = a.FlushPending(context.Background())

	if _, ok := a.Load(context.Background()); ok {
		t.Fatal("expected snapshot to be gone")
	}
}
