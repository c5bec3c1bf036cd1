package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/persistence"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/timer"
)

// Domain Errors
var (
	ErrSessionNotFound = errors.New("no session for this paper")
	ErrServiceClosed   = errors.New("session service is shutting down")
)

// PaperProvider resolves paper ids to validated papers.
type PaperProvider interface {
	Get(ctx context.Context, id string) (*model.Paper, error)
}

// AttemptReader looks up finished attempts once their snapshot has expired.
type AttemptReader interface {
	GetLatest(ctx context.Context, studentID int, paperID string) (*model.Attempt, error)
}

// SessionServiceOptions configure a SessionService.
type SessionServiceOptions struct {
	Store         persistence.Store
	Queue         persistence.SubmissionQueue
	Attempts      AttemptReader
	Clock         clockwork.Clock
	TickInterval  time.Duration
	AutosaveDelay time.Duration
	FlushTimeout  time.Duration
}

// SessionStats is reported by the health endpoint.
type SessionStats struct {
	LiveSessions    int    `json:"live_sessions"`
	PersistFailures uint64 `json:"persist_failures"`
}

// SessionService owns the live sessions of this process: one per student and paper. A
// live session has its own tick driver and persistence adapter. Finished and abandoned
// sessions leave the registry; their last snapshot stays in the store.
type SessionService struct {
	papers PaperProvider
	opts   SessionServiceOptions
	log    zerolog.Logger

	mu     sync.Mutex
	live   map[string]*liveSession
	closed bool

	keyLocks sync.Map
	pending  sync.WaitGroup
	failures atomic.Uint64
}

type liveSession struct {
	sess        *session.Session
	adapter     *persistence.Adapter
	cancel      context.CancelFunc
	done        sync.WaitGroup
	unsubscribe func()
}

// NewSessionService creates a new SessionService.
func NewSessionService(papers PaperProvider, opts SessionServiceOptions, log zerolog.Logger) *SessionService {
	if opts.Store == nil {
		opts.Store = persistence.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = timer.DefaultInterval
	}
	if opts.AutosaveDelay <= 0 {
		opts.AutosaveDelay = persistence.DefaultDebounce
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = session.DefaultFlushTimeout
	}
	return &SessionService{
		papers: papers,
		opts:   opts,
		log:    log.With().Str("component", "session_service").Logger(),
		live:   make(map[string]*liveSession),
	}
}

// StartOrResume returns the student's session on the paper, creating and starting a new
// one when none exists. A finished session is returned as is. The flag reports whether a
// new attempt was started.
func (s *SessionService) StartOrResume(ctx context.Context, studentID int, paperID string) (*session.Session, bool, error) {
	key := config.CacheKey.SessionRegistryKey(studentID, paperID)
	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	sess, err := s.lookupLocked(ctx, key, studentID, paperID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, false, err
	}

	paper, err := s.papers.Get(ctx, paperID)
	if err != nil {
		return nil, false, err
	}

	adapter := s.newAdapter(studentID, paperID)
	sess = session.New(s.sessionOptions(studentID, adapter))
	ls, err := s.register(key, sess, adapter)
	if err != nil {
		return nil, false, err
	}
	if err := sess.Start(paper); err != nil {
		s.release(key, ls)
		return nil, false, err
	}

	s.log.Info().
		Int("student_id", studentID).
		Str("paper_id", paperID).
		Str("attempt_id", sess.AttemptID()).
		Msg("Attempt started")
	return sess, true, nil
}

// Get returns the student's session on the paper, restoring it from the store when it
// is not live in this process.
func (s *SessionService) Get(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	key := config.CacheKey.SessionRegistryKey(studentID, paperID)
	if ls := s.liveSession(key); ls != nil {
		return ls.sess, nil
	}

	lock := s.keyLock(key)
	lock.Lock()
	defer lock.Unlock()
	return s.lookupLocked(ctx, key, studentID, paperID)
}

// Answer selects value for the question, or clears the answer when value is nil.
func (s *SessionService) Answer(ctx context.Context, studentID int, paperID, questionID string, value *string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, func(sess *session.Session) error {
		if value == nil {
			return sess.ClearAnswer(questionID)
		}
		return sess.SelectAnswer(questionID, *value)
	})
}

// ToggleFlag flips the review flag of the question.
func (s *SessionService) ToggleFlag(ctx context.Context, studentID int, paperID, questionID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, func(sess *session.Session) error {
		return sess.ToggleFlag(questionID)
	})
}

// Navigate jumps to a question.
func (s *SessionService) Navigate(ctx context.Context, studentID int, paperID string, sectionIndex, questionIndex int) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, func(sess *session.Session) error {
		return sess.Navigate(sectionIndex, questionIndex)
	})
}

// Next moves to the following question.
func (s *SessionService) Next(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, (*session.Session).Next)
}

// Previous moves to the preceding question.
func (s *SessionService) Previous(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, (*session.Session).Previous)
}

// Pause suspends the countdowns.
func (s *SessionService) Pause(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, (*session.Session).Pause)
}

// Resume continues a paused session.
func (s *SessionService) Resume(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, (*session.Session).Resume)
}

// Submit finishes the attempt and queues it for durable storage.
func (s *SessionService) Submit(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, (*session.Session).Submit)
}

// Abandon ends the attempt without a submission. The student may start over afterwards.
func (s *SessionService) Abandon(ctx context.Context, studentID int, paperID string) (*session.Session, error) {
	return s.apply(ctx, studentID, paperID, (*session.Session).Abandon)
}

// Result scores a finished session.
func (s *SessionService) Result(ctx context.Context, studentID int, paperID string) (*session.Result, error) {
	sess, err := s.Get(ctx, studentID, paperID)
	if err != nil {
		return nil, err
	}
	if status := sess.Status(); !status.Terminal() {
		return nil, &session.StateTransitionError{Op: "result", Status: status}
	}
	res := sess.Result()
	return &res, nil
}

// LatestAttempt returns the durable record of the student's last finished attempt.
func (s *SessionService) LatestAttempt(ctx context.Context, studentID int, paperID string) (*model.Attempt, error) {
	if s.opts.Attempts == nil {
		return nil, ErrSessionNotFound
	}
	return s.opts.Attempts.GetLatest(ctx, studentID, paperID)
}

// Stats reports registry counters.
func (s *SessionService) Stats() SessionStats {
	s.mu.Lock()
	n := len(s.live)
	s.mu.Unlock()
	return SessionStats{LiveSessions: n, PersistFailures: s.failures.Load()}
}

// Shutdown stops every tick driver, flushes the latest state of every live session and
// waits for queued submissions, bounded by ctx.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	live := s.live
	s.live = make(map[string]*liveSession)
	s.mu.Unlock()

	for _, ls := range live {
		ls.stop()
		ls.sess.Close(ctx)
	}

	waited := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		s.log.Warn().Msg("Shutdown deadline hit before all submissions were queued")
	}

	s.log.Info().Int("sessions", len(live)).Msg("Live sessions flushed")
}

// ─── internals ──────────────────────────────────────────────────────

func (s *SessionService) apply(ctx context.Context, studentID int, paperID string, op func(*session.Session) error) (*session.Session, error) {
	sess, err := s.Get(ctx, studentID, paperID)
	if err != nil {
		return nil, err
	}
	if err := op(sess); err != nil {
		return sess, err
	}
	return sess, nil
}

func (s *SessionService) keyLock(key string) *sync.Mutex {
	v, _ := s.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *SessionService) liveSession(key string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[key]
}

// lookupLocked expects the key lock to be held.
func (s *SessionService) lookupLocked(ctx context.Context, key string, studentID int, paperID string) (*session.Session, error) {
	if ls := s.liveSession(key); ls != nil {
		return ls.sess, nil
	}

	adapter := s.newAdapter(studentID, paperID)
	snap, ok := adapter.Load(ctx)
	if !ok {
		return nil, ErrSessionNotFound
	}

	paper, err := s.papers.Get(ctx, paperID)
	if err != nil {
		return nil, err
	}

	sess, err := session.Restore(paper, snap, s.sessionOptions(studentID, adapter))
	if err != nil {
		s.log.Warn().Err(err).
			Int("student_id", studentID).
			Str("paper_id", paperID).
			Msg("Discarding snapshot that no longer fits the paper")
		_ = adapter.Discard(ctx)
		return nil, ErrSessionNotFound
	}

	if sess.Status().Terminal() {
		if !snap.Status.Terminal() {
			s.enqueue(sess)
		}
		return sess, nil
	}

	if _, err := s.register(key, sess, adapter); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionService) newAdapter(studentID int, paperID string) *persistence.Adapter {
	return persistence.NewAdapter(s.opts.Store, config.CacheKey.SessionSnapshotKey(studentID, paperID), persistence.AdapterOptions{
		Clock:        s.opts.Clock,
		Debounce:     s.opts.AutosaveDelay,
		WriteTimeout: s.opts.FlushTimeout,
		Logger:       s.log,
	})
}

func (s *SessionService) sessionOptions(studentID int, adapter *persistence.Adapter) session.Options {
	return session.Options{
		StudentID:    studentID,
		Clock:        s.opts.Clock,
		Persister:    adapter,
		FlushTimeout: s.opts.FlushTimeout,
		Logger:       s.log,
	}
}

// register makes sess live: it starts the tick driver and leaves the registry on its own
// once the session finishes.
func (s *SessionService) register(key string, sess *session.Session, adapter *persistence.Adapter) (*liveSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{sess: sess, adapter: adapter, cancel: cancel}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrServiceClosed
	}
	s.live[key] = ls
	s.mu.Unlock()

	ls.unsubscribe = sess.Subscribe(func(ev session.Event) {
		switch {
		case ev.Type == session.EventSubmitted:
			s.enqueue(sess)
			s.release(key, ls)
		case ev.Type == session.EventStateChange && ev.Status == model.SessionStatusAbandoned:
			s.release(key, ls)
		}
	})

	driver := timer.NewDriver(s.opts.Clock, s.opts.TickInterval, sess.Tick, s.log.With().Str("attempt_id", sess.AttemptID()).Logger())
	ls.done.Add(2)
	go func() {
		defer ls.done.Done()
		_ = driver.Run(ctx)
	}()
	go func() {
		defer ls.done.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case perr := <-adapter.Errors():
				s.failures.Add(1)
				sess.ReportPersistenceError(perr)
			}
		}
	}()
	return ls, nil
}

// release drops ls from the registry without waiting for its goroutines, so it is safe
// to call from a session event callback.
func (s *SessionService) release(key string, ls *liveSession) {
	s.mu.Lock()
	if s.live[key] == ls {
		delete(s.live, key)
	}
	s.mu.Unlock()

	ls.cancel()
	ls.adapter.Stop()
	if ls.unsubscribe != nil {
		ls.unsubscribe()
	}
}

func (ls *liveSession) stop() {
	ls.cancel()
	ls.done.Wait()
	if ls.unsubscribe != nil {
		ls.unsubscribe()
	}
}

func (s *SessionService) enqueue(sess *session.Session) {
	if s.opts.Queue == nil {
		return
	}

	res := sess.Result()
	snap := sess.Snapshot()
	data, err := persistence.Encode(snap)
	if err != nil {
		s.log.Error().Err(err).Str("attempt_id", sess.AttemptID()).Msg("Encode final snapshot failed")
	}
	attempt := model.Attempt{
		AttemptID:   sess.AttemptID(),
		StudentID:   sess.StudentID(),
		PaperID:     res.PaperID,
		Status:      res.Status,
		Score:       res.Score,
		MaxScore:    res.MaxScore,
		Correct:     res.Correct,
		Incorrect:   res.Incorrect,
		Skipped:     res.Skipped,
		TimeTaken:   res.TimeTaken,
		SubmittedAt: snap.SavedAt,
		Snapshot:    data,
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.FlushTimeout)
		defer cancel()
		if err := s.opts.Queue.Enqueue(ctx, attempt); err != nil {
			s.log.Error().Err(err).Str("attempt_id", attempt.AttemptID).Msg("Queue submission failed")
			return
		}
		s.log.Info().
			Str("attempt_id", attempt.AttemptID).
			Str("status", string(attempt.Status)).
			Float64("score", attempt.Score).
			Msg("Submission queued")
	}()
}
