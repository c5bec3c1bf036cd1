// Package timer implements the three nested exam countdowns (paper, section, question).
// The engine never looks at a wall clock: it only moves when Tick is called, which keeps
// it deterministic under test. A Driver turns a real or fake clock into ticks.
package timer

// Scope identifies one of the three countdowns.
type Scope string

const (
	ScopePaper    Scope = "paper"
	ScopeSection  Scope = "section"
	ScopeQuestion Scope = "question"
)

// Unbounded is reported as the remaining value of a scope without a time limit.
const Unbounded = -1

// Durations are the initial values of the countdowns in seconds. Zero (or less) for the
// section or question scope means that scope is not timed.
type Durations struct {
	Paper    int `json:"paper"`
	Section  int `json:"section"`
	Question int `json:"question"`
}

// Remaining are the current countdown values in seconds.
type Remaining struct {
	Paper    int `json:"paper"`
	Section  int `json:"section"`
	Question int `json:"question"`
}

type countdown struct {
	value  int
	active bool
	fired  bool
}

func newCountdown(seconds int) countdown {
	if seconds <= 0 {
		return countdown{value: Unbounded}
	}
	return countdown{value: seconds, active: true}
}

func restoreCountdown(seconds int) countdown {
	if seconds < 0 {
		return countdown{value: Unbounded}
	}
	return countdown{value: seconds, active: true, fired: seconds == 0}
}

// Engine holds the countdowns. It is not safe for concurrent use; the owning session
// serializes access.
type Engine struct {
	paper    countdown
	section  countdown
	question countdown

	running bool
	paused  bool

	expireFns []func(Scope)
	tickFns   []func(Remaining)
}

// NewEngine creates a stopped engine.
func NewEngine() *Engine {
	return &Engine{
		paper:    countdown{value: 0},
		section:  countdown{value: Unbounded},
		question: countdown{value: Unbounded},
	}
}

// OnExpire registers fn to be called once per scope when its countdown reaches zero.
func (e *Engine) OnExpire(fn func(Scope)) {
	e.expireFns = append(e.expireFns, fn)
}

// OnTick registers fn to be called with the remaining values after every effective tick.
func (e *Engine) OnTick(fn func(Remaining)) {
	e.tickFns = append(e.tickFns, fn)
}

// Start initializes all countdowns and starts ticking. Calling Start on a running engine
// re-initializes it and discards the previous counts and expiry state.
func (e *Engine) Start(d Durations) {
	e.paper = newCountdown(d.Paper)
	e.section = newCountdown(d.Section)
	e.question = newCountdown(d.Question)
	e.running = true
	e.paused = false
}

// Restore starts the engine from persisted values. Scopes already at zero count as
// expired and will not fire again.
func (e *Engine) Restore(r Remaining) {
	e.paper = restoreCountdown(r.Paper)
	e.section = restoreCountdown(r.Section)
	e.question = restoreCountdown(r.Question)
	e.running = true
	e.paused = false
}

// Stop halts ticking permanently until the next Start or Restore.
func (e *Engine) Stop() {
	e.running = false
	e.paused = false
}

// Pause suspends ticking without touching the values.
func (e *Engine) Pause() {
	if e.running {
		e.paused = true
	}
}

// Resume continues ticking after Pause.
func (e *Engine) Resume() {
	e.paused = false
}

// Running reports whether ticks currently have an effect.
func (e *Engine) Running() bool {
	return e.running && !e.paused
}

// Paused reports whether the engine is started but suspended.
func (e *Engine) Paused() bool {
	return e.running && e.paused
}

// ResetSection restarts the section countdown. The paper and question scopes are untouched.
func (e *Engine) ResetSection(seconds int) {
	e.section = newCountdown(seconds)
}

// ResetQuestion restarts the question countdown. The paper and section scopes are untouched.
func (e *Engine) ResetQuestion(seconds int) {
	e.question = newCountdown(seconds)
}

// Remaining returns the current values; Unbounded for untimed scopes.
func (e *Engine) Remaining() Remaining {
	return Remaining{
		Paper:    e.paper.value,
		Section:  e.section.value,
		Question: e.question.value,
	}
}

// Expired reports whether the scope has fired.
func (e *Engine) Expired(s Scope) bool {
	if c := e.scope(s); c != nil {
		return c.fired
	}
	return false
}

// Tick decrements every timed countdown by one second. Expiry handlers run in the order
// paper, section, question; a handler that stops the engine suppresses the rest.
func (e *Engine) Tick() {
	if !e.Running() {
		return
	}

	for _, c := range []*countdown{&e.paper, &e.section, &e.question} {
		if c.active && c.value > 0 {
			c.value--
		}
	}

	for _, fn := range e.tickFns {
		fn(e.Remaining())
	}

	for _, s := range []Scope{ScopePaper, ScopeSection, ScopeQuestion} {
		if !e.running {
			return
		}
		c := e.scope(s)
		if !c.active || c.value > 0 || c.fired {
			continue
		}
		c.fired = true
		for _, fn := range e.expireFns {
			fn(s)
		}
	}
}

func (e *Engine) scope(s Scope) *countdown {
	switch s {
	case ScopePaper:
		return &e.paper
	case ScopeSection:
		return &e.section
	case ScopeQuestion:
		return &e.question
	}
	return nil
}
