// Package session implements the exam session state machine: one Session per attempt,
// owning its timer engine, answers and navigation position.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/persistence"
	"github.com/stemsi/exstem-session/internal/timer"
)

// DefaultFlushTimeout bounds synchronous writes on terminal transitions and teardown.
const DefaultFlushTimeout = 3 * time.Second

// Persister receives snapshots of the session. Schedule must not block.
type Persister interface {
	Schedule(snap model.Snapshot)
	Flush(ctx context.Context, snap model.Snapshot) error
	Discard(ctx context.Context) error
}

type nopPersister struct{}

func (nopPersister) Schedule(model.Snapshot) {}

func (nopPersister) Flush(context.Context, model.Snapshot) error { return nil }

func (nopPersister) Discard(context.Context) error { return nil }

// Options configure a Session. Zero values fall back to sensible defaults.
type Options struct {
	AttemptID    string
	StudentID    int
	Clock        clockwork.Clock
	Persister    Persister
	FlushTimeout time.Duration
	Logger       zerolog.Logger
}

// Session is a single exam attempt. All methods are safe for concurrent use; every call
// runs to completion before the next one starts. Events are published after the call
// releases the state lock, in call order. Subscribers must not call mutating methods
// synchronously from their callback.
type Session struct {
	mu         sync.Mutex
	dispatchMu sync.Mutex

	attemptID string
	studentID int
	paper     *model.Paper
	status    model.SessionStatus

	sectionIdx      int
	questionIdx     int
	questionElapsed int
	answers         map[string]model.Answer

	engine       *timer.Engine
	clock        clockwork.Clock
	persister    Persister
	flushTimeout time.Duration

	bus     *Bus
	pending []Event
	outbox  []Event
	log     zerolog.Logger
}

// New creates a session in NOT_STARTED.
func New(opts Options) *Session {
	if opts.AttemptID == "" {
		opts.AttemptID = uuid.New().String()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Persister == nil {
		opts.Persister = nopPersister{}
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}

	s := &Session{
		attemptID:    opts.AttemptID,
		studentID:    opts.StudentID,
		status:       model.SessionStatusNotStarted,
		answers:      make(map[string]model.Answer),
		engine:       timer.NewEngine(),
		clock:        opts.Clock,
		persister:    opts.Persister,
		flushTimeout: opts.FlushTimeout,
		bus:          newBus(),
		log: opts.Logger.With().
			Str("component", "session").
			Str("attempt_id", opts.AttemptID).
			Int("student_id", opts.StudentID).
			Logger(),
	}
	s.engine.OnTick(func(r timer.Remaining) {
		s.queue(Event{Type: EventTick, Remaining: &r})
	})
	s.engine.OnExpire(s.handleExpire)
	return s
}

// Restore rebuilds a session from a persisted snapshot. Wall-clock time elapsed since the
// snapshot was saved is charged to the countdowns; if the paper time ran out meanwhile,
// the session comes back already AUTO_SUBMITTED.
func Restore(paper *model.Paper, snap *model.Snapshot, opts Options) (*Session, error) {
	if paper == nil {
		return nil, &InvalidPaperError{Reason: "paper is nil"}
	}
	if err := paper.Validate(); err != nil {
		return nil, &InvalidPaperError{Reason: err.Error()}
	}
	if err := checkSnapshot(paper, snap); err != nil {
		return nil, err
	}

	opts.AttemptID = snap.AttemptID
	opts.StudentID = snap.StudentID
	s := New(opts)

	state, expired := persistence.Reconcile(*snap, s.clock.Now())

	s.mu.Lock()
	defer s.release()

	s.paper = paper
	s.sectionIdx = state.SectionIndex
	s.questionIdx = state.QuestionIndex
	s.questionElapsed = state.QuestionElapsed
	s.answers = state.Answers
	if s.answers == nil {
		s.answers = make(map[string]model.Answer)
	}
	s.engine.Restore(timer.Remaining{
		Paper:    state.PaperRemaining,
		Section:  state.SectionRemaining,
		Question: state.QuestionRemaining,
	})

	switch {
	case snap.Status.Terminal():
		s.engine.Stop()
		s.status = snap.Status
	case expired:
		s.status = model.SessionStatusRunning
		s.log.Info().Str("paper_id", paper.ID).Msg("Paper time ran out while away, auto-submitting")
		s.finish(model.SessionStatusAutoSubmitted)
	case snap.Status == model.SessionStatusPaused:
		s.engine.Pause()
		s.status = model.SessionStatusPaused
	default:
		s.status = model.SessionStatusRunning
		s.schedule()
	}

	s.log.Info().
		Str("paper_id", paper.ID).
		Str("status", string(s.status)).
		Int("paper_remaining", state.PaperRemaining).
		Msg("Session restored")
	return s, nil
}

func checkSnapshot(paper *model.Paper, snap *model.Snapshot) error {
	if snap == nil {
		return &InvalidSnapshotError{Reason: "snapshot is nil"}
	}
	st := snap.State
	if st.PaperID != paper.ID {
		return &InvalidSnapshotError{Reason: "paper id mismatch"}
	}
	if paper.QuestionAt(st.SectionIndex, st.QuestionIndex) == nil {
		return &InvalidSnapshotError{Reason: "position out of range"}
	}
	for id := range st.Answers {
		if !paper.HasQuestion(id) {
			return &InvalidSnapshotError{Reason: "answer for unknown question " + id}
		}
	}
	return nil
}

// Subscribe registers fn for session events.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// AttemptID returns the attempt identifier.
func (s *Session) AttemptID() string { return s.attemptID }

// StudentID returns the owner of the attempt.
func (s *Session) StudentID() int { return s.studentID }

// Paper returns the paper the session runs on, nil before Start.
func (s *Session) Paper() *model.Paper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paper
}

// Status returns the current lifecycle status.
func (s *Session) Status() model.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// State returns a copy of the current session state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Snapshot returns the persistable form of the session.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start moves NOT_STARTED to RUNNING and starts the countdowns.
func (s *Session) Start(paper *model.Paper) error {
	s.mu.Lock()
	defer s.release()

	if s.status != model.SessionStatusNotStarted {
		return &StateTransitionError{Op: "start", Status: s.status}
	}
	if paper == nil {
		return &InvalidPaperError{Reason: "paper is nil"}
	}
	if err := paper.Validate(); err != nil {
		return &InvalidPaperError{Reason: err.Error()}
	}

	first := paper.Sections[0]
	s.paper = paper
	s.sectionIdx, s.questionIdx, s.questionElapsed = 0, 0, 0
	s.engine.Start(timer.Durations{
		Paper:    paper.DurationSeconds,
		Section:  first.DurationSeconds,
		Question: first.Questions[0].TimeLimitSeconds,
	})
	s.status = model.SessionStatusRunning

	s.log.Info().
		Str("paper_id", paper.ID).
		Int("duration_seconds", paper.DurationSeconds).
		Int("sections", len(paper.Sections)).
		Msg("Session started")

	s.stateChanged()
	return nil
}

// Tick advances the countdowns by one second. It is a no-op unless RUNNING.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.release()

	if s.status != model.SessionStatusRunning {
		return
	}
	s.questionElapsed++
	s.engine.Tick()
	if s.status == model.SessionStatusRunning {
		s.schedule()
	}
}

// SelectAnswer records value for the question. Selecting the current value is a no-op.
func (s *Session) SelectAnswer(questionID, value string) error {
	s.mu.Lock()
	defer s.release()

	if err := s.requireRunning("select_answer"); err != nil {
		return err
	}
	q := s.paper.Question(questionID)
	if q == nil {
		return &UnknownQuestionError{QuestionID: questionID}
	}

	a := s.answers[questionID]
	v := q.Normalize(value)
	if v == "" && q.Multiple() {
		// Deselecting every option leaves the question unanswered.
		if a.Value == nil {
			return nil
		}
		a.Value = nil
	} else {
		if a.Value != nil && *a.Value == v {
			return nil
		}
		a.Value = &v
	}
	s.answers[questionID] = a

	s.stateChanged()
	return nil
}

// ClearAnswer resets the question to unanswered, keeping its flag and time spent.
func (s *Session) ClearAnswer(questionID string) error {
	s.mu.Lock()
	defer s.release()

	if err := s.requireRunning("clear_answer"); err != nil {
		return err
	}
	if !s.paper.HasQuestion(questionID) {
		return &UnknownQuestionError{QuestionID: questionID}
	}

	a, ok := s.answers[questionID]
	if !ok || a.Value == nil {
		return nil
	}
	a.Value = nil
	s.answers[questionID] = a

	s.stateChanged()
	return nil
}

// ToggleFlag flips the review flag of the question.
func (s *Session) ToggleFlag(questionID string) error {
	s.mu.Lock()
	defer s.release()

	if err := s.requireRunning("toggle_flag"); err != nil {
		return err
	}
	if !s.paper.HasQuestion(questionID) {
		return &UnknownQuestionError{QuestionID: questionID}
	}

	a := s.answers[questionID]
	a.Flagged = !a.Flagged
	s.answers[questionID] = a

	s.stateChanged()
	return nil
}

// Navigate moves to the given position. Crossing into another section resets the
// section and question countdowns; moving within a section resets only the question one.
func (s *Session) Navigate(sectionIndex, questionIndex int) error {
	s.mu.Lock()
	defer s.release()

	if err := s.requireRunning("navigate"); err != nil {
		return err
	}
	if err := s.checkTarget(sectionIndex, questionIndex); err != nil {
		return err
	}
	if s.moveTo(sectionIndex, questionIndex) {
		s.stateChanged()
	}
	return nil
}

// Next moves to the following question, crossing into the next section at the end of one.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.release()

	if err := s.requireRunning("next"); err != nil {
		return err
	}

	sec, q := s.sectionIdx, s.questionIdx+1
	if q >= len(s.paper.Sections[sec].Questions) {
		sec, q = sec+1, 0
	}
	if err := s.checkTarget(sec, q); err != nil {
		return err
	}
	s.moveTo(sec, q)
	s.stateChanged()
	return nil
}

// Previous moves to the preceding question, crossing back into the previous section
// when the paper allows free navigation.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.release()

	if err := s.requireRunning("previous"); err != nil {
		return err
	}

	sec, q := s.sectionIdx, s.questionIdx-1
	if q < 0 {
		sec = sec - 1
		if sec >= 0 {
			q = len(s.paper.Sections[sec].Questions) - 1
		}
	}
	if err := s.checkTarget(sec, q); err != nil {
		return err
	}
	s.moveTo(sec, q)
	s.stateChanged()
	return nil
}

// Pause suspends the countdowns. Answers and navigation are rejected until Resume.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.release()

	if s.status != model.SessionStatusRunning {
		return &StateTransitionError{Op: "pause", Status: s.status}
	}
	s.engine.Pause()
	s.status = model.SessionStatusPaused
	s.log.Debug().Msg("Session paused")
	s.stateChanged()
	return nil
}

// Resume continues a paused session.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.release()

	if s.status != model.SessionStatusPaused {
		return &StateTransitionError{Op: "resume", Status: s.status}
	}
	s.engine.Resume()
	s.status = model.SessionStatusRunning
	s.log.Debug().Msg("Session resumed")
	s.stateChanged()
	return nil
}

// Submit finishes the attempt on the student's request. The final snapshot is written
// before Submit returns.
func (s *Session) Submit() error {
	s.mu.Lock()
	defer s.release()

	if s.status != model.SessionStatusRunning && s.status != model.SessionStatusPaused {
		return &StateTransitionError{Op: "submit", Status: s.status}
	}
	s.finish(model.SessionStatusSubmitted)
	return nil
}

// Abandon ends the attempt without a submission and discards the resumable snapshot.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.release()

	if s.status != model.SessionStatusRunning && s.status != model.SessionStatusPaused {
		return &StateTransitionError{Op: "abandon", Status: s.status}
	}
	s.accrue()
	s.engine.Stop()
	s.status = model.SessionStatusAbandoned

	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	if err := s.persister.Discard(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Discard snapshot failed")
	}

	s.log.Info().Msg("Session abandoned")
	st := s.stateLocked()
	s.queue(Event{Type: EventStateChange, State: &st})
	return nil
}

// Close is the teardown hook: it writes the latest state synchronously, best effort.
// The session itself is left as is and can still be used.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != model.SessionStatusRunning && s.status != model.SessionStatusPaused {
		return
	}
	if err := s.persister.Flush(ctx, s.snapshotLocked()); err != nil {
		s.log.Warn().Err(err).Msg("Teardown flush failed")
	}
}

// View returns the derived navigation view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return buildView(s.attemptID, s.paper, s.status, s.stateLocked())
}

// Result scores the current answers. It is meaningful once the session is terminal.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Score(s.attemptID, s.paper, s.status, s.stateLocked())
}

// ─── internals (callers hold s.mu) ──────────────────────────────────

func (s *Session) requireRunning(op string) error {
	if s.status != model.SessionStatusRunning {
		return &StateTransitionError{Op: op, Status: s.status}
	}
	return nil
}

func (s *Session) checkTarget(sectionIndex, questionIndex int) error {
	if sectionIndex < 0 || sectionIndex >= len(s.paper.Sections) {
		return &InvalidNavigationError{SectionIndex: sectionIndex, QuestionIndex: questionIndex, Reason: "section index out of range"}
	}
	if questionIndex < 0 || questionIndex >= len(s.paper.Sections[sectionIndex].Questions) {
		return &InvalidNavigationError{SectionIndex: sectionIndex, QuestionIndex: questionIndex, Reason: "question index out of range"}
	}
	if !s.paper.FreeNavigation && sectionIndex < s.sectionIdx {
		return &InvalidNavigationError{SectionIndex: sectionIndex, QuestionIndex: questionIndex, Reason: "section is locked"}
	}
	return nil
}

// moveTo assumes a valid target and reports whether the position changed.
func (s *Session) moveTo(sectionIndex, questionIndex int) bool {
	if sectionIndex == s.sectionIdx && questionIndex == s.questionIdx {
		return false
	}
	s.accrue()

	crossing := sectionIndex != s.sectionIdx
	s.sectionIdx, s.questionIdx = sectionIndex, questionIndex
	sec := s.paper.Sections[sectionIndex]
	if crossing {
		s.engine.ResetSection(sec.DurationSeconds)
	}
	s.engine.ResetQuestion(sec.Questions[questionIndex].TimeLimitSeconds)
	return true
}

// accrue moves the time spent on the current question into its answer.
func (s *Session) accrue() {
	if s.questionElapsed == 0 || s.paper == nil {
		return
	}
	id := s.paper.Sections[s.sectionIdx].Questions[s.questionIdx].ID
	a := s.answers[id]
	a.TimeSpent += s.questionElapsed
	s.answers[id] = a
	s.questionElapsed = 0
}

func (s *Session) handleExpire(scope timer.Scope) {
	s.queue(Event{Type: EventExpire, Scope: scope})

	switch scope {
	case timer.ScopePaper:
		s.log.Info().Msg("Paper time expired")
		s.finish(model.SessionStatusAutoSubmitted)
	case timer.ScopeSection:
		next := s.sectionIdx + 1
		if last := len(s.paper.Sections) - 1; next > last {
			next = last
		}
		s.log.Debug().Int("section_index", s.sectionIdx).Int("next", next).Msg("Section time expired")
		if s.moveTo(next, 0) {
			s.stateChanged()
		}
	case timer.ScopeQuestion:
		if s.questionIdx+1 < len(s.paper.Sections[s.sectionIdx].Questions) {
			s.moveTo(s.sectionIdx, s.questionIdx+1)
			s.stateChanged()
		}
	}
}

func (s *Session) finish(status model.SessionStatus) {
	s.accrue()
	s.engine.Stop()
	s.status = status

	snap := s.snapshotLocked()
	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	if err := s.persister.Flush(ctx, snap); err != nil {
		s.log.Error().Err(err).Msg("Final snapshot flush failed")
	}

	s.log.Info().
		Str("status", string(status)).
		Int("paper_remaining", snap.State.PaperRemaining).
		Msg("Session finished")

	st := snap.State
	final := st.Clone()
	s.queue(Event{Type: EventStateChange, State: &st})
	s.queue(Event{Type: EventSubmitted, State: &final})
}

func (s *Session) stateChanged() {
	st := s.stateLocked()
	s.queue(Event{Type: EventStateChange, State: &st})
	s.schedule()
}

func (s *Session) schedule() {
	if s.status == model.SessionStatusRunning || s.status == model.SessionStatusPaused {
		s.persister.Schedule(s.snapshotLocked())
	}
}

func (s *Session) stateLocked() model.SessionState {
	r := s.engine.Remaining()
	st := model.SessionState{
		SectionIndex:      s.sectionIdx,
		QuestionIndex:     s.questionIdx,
		PaperRemaining:    r.Paper,
		SectionRemaining:  r.Section,
		QuestionRemaining: r.Question,
		QuestionElapsed:   s.questionElapsed,
		Answers:           s.answers,
	}
	if s.paper != nil {
		st.PaperID = s.paper.ID
	}
	return st.Clone()
}

func (s *Session) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		Version:   model.SnapshotVersion,
		AttemptID: s.attemptID,
		StudentID: s.studentID,
		Status:    s.status,
		SavedAt:   s.clock.Now().UTC(),
		State:     s.stateLocked(),
	}
}

// ReportPersistenceError publishes a failed snapshot write to subscribers.
func (s *Session) ReportPersistenceError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.queue(Event{Type: EventPersistenceError, Error: err.Error()})
	s.release()
}

func (s *Session) queue(ev Event) {
	ev.Status = s.status
	s.pending = append(s.pending, ev)
}

// release moves the events of the finished call to the outbox, drops the state lock and
// publishes. Whoever holds dispatchMu drains the outbox in order, so subscribers may read
// the session while another call is in flight.
func (s *Session) release() {
	s.outbox = append(s.outbox, s.pending...)
	s.pending = nil
	s.mu.Unlock()

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	for {
		s.mu.Lock()
		events := s.outbox
		s.outbox = nil
		s.mu.Unlock()
		if len(events) == 0 {
			return
		}
		for _, ev := range events {
			s.bus.publish(ev)
		}
	}
}
