package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

// DefaultDebounce is the coalescing window for mutation-triggered writes.
const DefaultDebounce = 2 * time.Second

const errorBuffer = 16

// AdapterOptions configure an Adapter.
type AdapterOptions struct {
	Clock        clockwork.Clock
	Debounce     time.Duration
	WriteTimeout time.Duration
	Logger       zerolog.Logger
}

// Adapter persists the snapshots of one session under one key.
//
// Schedule coalesces: the first call arms a single timer, later calls only replace the
// pending snapshot, and the timer writes whatever is latest when it fires. A failed write
// keeps its snapshot pending and is retried with the next Schedule. Flush writes
// synchronously and supersedes anything pending.
type Adapter struct {
	store        Store
	key          string
	clock        clockwork.Clock
	debounce     time.Duration
	writeTimeout time.Duration

	mu      sync.Mutex
	seq     uint64
	pending *pendingWrite
	timer   clockwork.Timer

	writeMu sync.Mutex
	written uint64

	errs chan *PersistenceError
	log  zerolog.Logger
}

type pendingWrite struct {
	seq  uint64
	snap model.Snapshot
}

// NewAdapter creates an Adapter for key on store.
func NewAdapter(store Store, key string, opts AdapterOptions) *Adapter {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	return &Adapter{
		store:        store,
		key:          key,
		clock:        opts.Clock,
		debounce:     opts.Debounce,
		writeTimeout: opts.WriteTimeout,
		errs:         make(chan *PersistenceError, errorBuffer),
		log:          opts.Logger.With().Str("component", "persistence").Str("key", key).Logger(),
	}
}

// Key returns the storage key of this adapter.
func (a *Adapter) Key() string { return a.key }

// Errors reports failed writes. Errors are dropped when nobody drains the channel.
func (a *Adapter) Errors() <-chan *PersistenceError { return a.errs }

// Schedule queues snap for a deferred write and returns immediately.
func (a *Adapter) Schedule(snap model.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	a.pending = &pendingWrite{seq: a.seq, snap: snap}
	if a.timer == nil {
		a.timer = a.clock.AfterFunc(a.debounce, a.flushPending)
	}
}

// Flush writes snap now, cancelling any pending deferred write.
func (a *Adapter) Flush(ctx context.Context, snap model.Snapshot) error {
	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	return a.write(ctx, seq, snap)
}

// FlushPending writes the pending snapshot, if any, synchronously.
func (a *Adapter) FlushPending(ctx context.Context) error {
	a.mu.Lock()
	p := a.pending
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if p == nil {
		return nil
	}
	if err := a.write(ctx, p.seq, p.snap); err != nil {
		a.restore(p)
		return err
	}
	return nil
}

// Discard deletes the stored snapshot and drops anything pending.
func (a *Adapter) Discard(ctx context.Context) error {
	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := a.store.Delete(ctx, a.key); err != nil {
		return a.report("delete", err)
	}
	a.written = seq
	return nil
}

// Load returns the stored snapshot. Missing, unreadable and corrupt data all yield
// (nil, false); corrupt data is logged, storage failures are also reported on Errors.
func (a *Adapter) Load(ctx context.Context) (*model.Snapshot, bool) {
	data, err := a.store.Load(ctx, a.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			_ = a.report("load", err)
		}
		return nil, false
	}

	snap, err := Decode(data)
	if err != nil {
		a.log.Warn().Err(err).Msg("Ignoring corrupt snapshot")
		return nil, false
	}
	return snap, true
}

// Stop cancels the deferred write timer without writing.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Adapter) flushPending() {
	a.mu.Lock()
	p := a.pending
	a.pending = nil
	a.timer = nil
	a.mu.Unlock()

	if p == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.writeTimeout)
	defer cancel()
	if err := a.write(ctx, p.seq, p.snap); err != nil {
		a.restore(p)
	}
}

// restore puts a failed write back unless something newer arrived meanwhile.
func (a *Adapter) restore(p *pendingWrite) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil && p.seq > a.writtenSeq() {
		a.pending = p
	}
}

func (a *Adapter) writtenSeq() uint64 {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.written
}

func (a *Adapter) write(ctx context.Context, seq uint64, snap model.Snapshot) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if seq <= a.written {
		return nil
	}

	data, err := Encode(snap)
	if err != nil {
		return a.report("encode", err)
	}
	if err := a.store.Save(ctx, a.key, data); err != nil {
		return a.report("save", err)
	}
	a.written = seq

	a.log.Debug().
		Str("status", string(snap.Status)).
		Int("paper_remaining", snap.State.PaperRemaining).
		Msg("Snapshot saved")
	return nil
}

func (a *Adapter) report(op string, err error) error {
	pe := &PersistenceError{Op: op, Key: a.key, Err: err}
	a.log.Error().Err(err).Str("op", op).Msg("Persistence failure")
	select {
	case a.errs <- pe:
	default:
	}
	return pe
}
