package timer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ErrDriverRunning is returned when Run is called on a driver that is already ticking.
var ErrDriverRunning = errors.New("timer driver already running")

// DefaultInterval is the production tick cadence: one tick per second.
const DefaultInterval = time.Second

// Driver is the single tick source of one session.
type Driver struct {
	clock    clockwork.Clock
	interval time.Duration
	tick     func()
	running  atomic.Bool
	log      zerolog.Logger
}

// NewDriver creates a driver that calls tick once per interval on clock.
func NewDriver(clock clockwork.Clock, interval time.Duration, tick func(), log zerolog.Logger) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{
		clock:    clock,
		interval: interval,
		tick:     tick,
		log:      log.With().Str("component", "timer_driver").Logger(),
	}
}

// Run blocks, ticking until ctx is cancelled. Call in a goroutine.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrDriverRunning
	}
	defer d.running.Store(false)

	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Debug().Dur("interval", d.interval).Msg("Driver started")

	for {
		select {
		case <-ctx.Done():
			d.log.Debug().Msg("Driver stopped")
			return nil
		case <-ticker.Chan():
			d.tick()
		}
	}
}

// Running reports whether Run is active.
func (d *Driver) Running() bool {
	return d.running.Load()
}
