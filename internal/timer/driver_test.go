package timer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

func TestDriverTicksUntilCancelled(t *testing.T) {
	var ticks atomic.Int32
	d := NewDriver(clockwork.NewRealClock(), 5*time.Millisecond, func() { ticks.Add(1) }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
	if d.Running() {
		t.Fatal("expected driver to report stopped")
	}
}

func TestDriverRejectsSecondRun(t *testing.T) {
	d := NewDriver(clockwork.NewRealClock(), time.Hour, func() {}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !d.Running() {
		if time.Now().After(deadline) {
			t.Fatal("driver never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := d.Run(ctx); !errors.Is(err, ErrDriverRunning) {
		t.Fatalf("expected ErrDriverRunning, got %v", err)
	}
}
