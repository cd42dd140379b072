package examsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/model"
)

// Config wires a Session to its collaborators.
type Config struct {
	ExamID    uuid.UUID
	StudentID int

	Fetcher     PaperFetcher
	Submitter   Submitter
	Persistence Persistence

	// RecordKey stores the resumable session record, ResultKey the last
	// submission outcome.
	RecordKey string
	ResultKey string

	Log zerolog.Logger
}

// Session bundles the three parts of one exam attempt around a shared Store.
type Session struct {
	Store     *Store
	Navigator *Navigator
	Guard     *Guard

	examID    uuid.UUID
	studentID int
	log       zerolog.Logger

	timerMu sync.Mutex
	timer   *time.Timer
}

// Open resumes the persisted session for cfg, or fetches and loads a fresh
// paper when there is nothing to resume. resumed reports which happened.
// Any failure is an ErrLoadFailed and no session is returned.
func Open(ctx context.Context, cfg Config) (sess *Session, resumed bool, err error) {
	log := cfg.Log.With().
		Int("student_id", cfg.StudentID).
		Str("exam_id", cfg.ExamID.String()).
		Logger()

	store := NewStore(cfg.Persistence, cfg.RecordKey)

	resumed, err = store.Resume(ctx)
	if err != nil {
		// A corrupt record must not block the candidate; fall back to a fetch.
		log.Warn().Err(err).Msg("Discarding unreadable session record")
		resumed = false
	}
	if resumed && store.Paper().ID != cfg.ExamID {
		log.Warn().Msg("Session record belongs to another exam, refetching")
		resumed = false
	}

	if !resumed {
		paper, err := cfg.Fetcher.FetchPaper(ctx, cfg.ExamID, cfg.StudentID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		if err := store.Replace(ctx, paper); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
	}

	sess = &Session{
		Store:     store,
		Navigator: NewNavigator(store),
		Guard:     NewGuard(store, cfg.Submitter, cfg.Persistence, cfg.ResultKey, log),
		examID:    cfg.ExamID,
		studentID: cfg.StudentID,
		log:       log,
	}
	return sess, resumed, nil
}

// ExamID returns the exam this session is for.
func (s *Session) ExamID() uuid.UUID { return s.examID }

// StudentID returns the candidate this session belongs to.
func (s *Session) StudentID() int { return s.studentID }

// ArmDeadline schedules a forced submission when the paper's time runs out.
// The forced path goes through the same Guard as manual submissions.
// onDone, if not nil, receives the outcome. Re-arming replaces the timer.
func (s *Session) ArmDeadline(onDone func(res *model.SubmissionResult, dispatched bool, err error)) {
	paper := s.Store.Paper()
	if paper == nil || paper.DurationMinutes <= 0 || paper.StartedAt.IsZero() {
		return
	}

	wait := time.Until(paper.Deadline())
	if wait < 0 {
		wait = 0
	}

	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(wait, func() {
		s.log.Info().Msg("Exam time expired, forcing submission")
		res, dispatched, err := s.Guard.Submit(context.Background())
		if onDone != nil {
			onDone(res, dispatched, err)
		}
	})
}

// Close stops the deadline timer. It does not touch persisted state.
func (s *Session) Close() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Abandon ends the session without submitting and clears its record.
func (s *Session) Abandon(ctx context.Context) error {
	s.Close()
	if err := s.Store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session record: %w", err)
	}
	return nil
}
