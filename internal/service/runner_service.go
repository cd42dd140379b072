package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/model"
	"golang.org/x/sync/singleflight"
)

// Runner errors.
var (
	ErrNoLiveSession  = errors.New("exam session not started")
	ErrNoResult       = errors.New("exam has not been submitted")
	ErrAutosaveFailed = errors.New("answer saved locally but not autosaved")
)

// ProgressArchive keeps per-question progress outside the live session so
// it can be replayed after a restart.
type ProgressArchive interface {
	SaveProgress(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, p examsession.Progress) error
	LoadProgress(ctx context.Context, examID uuid.UUID, studentID int) (map[uuid.UUID]examsession.Progress, error)
	Discard(ctx context.Context, examID uuid.UUID, studentID int) error
}

// StartResult is returned when a student enters an exam.
type StartResult struct {
	Session *examsession.View `json:"session"`
	Resumed bool              `json:"resumed"`
}

type liveKey struct {
	studentID int
	examID    uuid.UUID
}

func (k liveKey) String() string {
	return strconv.Itoa(k.studentID) + ":" + k.examID.String()
}

// liveSession is one running exam attempt. mu serializes commands that read
// the cursor and then act on it.
type liveSession struct {
	*examsession.Session
	mu       sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

func (l *liveSession) finish() {
	l.doneOnce.Do(func() { close(l.done) })
}

// RunnerService hosts the live exam sessions of this server, keyed by
// student and exam.
type RunnerService struct {
	fetcher   examsession.PaperFetcher
	submitter examsession.Submitter
	runner    examsession.CodeRunner
	persist   examsession.Persistence
	archive   ProgressArchive
	log       zerolog.Logger

	mu       sync.Mutex
	sessions map[liveKey]*liveSession
	starts   singleflight.Group
}

// NewRunnerService creates a new RunnerService.
func NewRunnerService(
	fetcher examsession.PaperFetcher,
	submitter examsession.Submitter,
	runner examsession.CodeRunner,
	persist examsession.Persistence,
	archive ProgressArchive,
	log zerolog.Logger,
) *RunnerService {
	return &RunnerService{
		fetcher:   fetcher,
		submitter: submitter,
		runner:    runner,
		persist:   persist,
		archive:   archive,
		log:       log.With().Str("component", "runner_service").Logger(),
		sessions:  make(map[liveKey]*liveSession),
	}
}

// Start enters the exam for a student: the live session is reused, else the
// persisted record is resumed, else a fresh paper is fetched. Saved answers
// are replayed and the deadline is armed.
func (s *RunnerService) Start(ctx context.Context, studentID int, examID uuid.UUID) (*StartResult, error) {
	k := liveKey{studentID: studentID, examID: examID}

	if live := s.live(k); live != nil {
		view, err := live.Store.Snapshot()
		if err != nil {
			return nil, err
		}
		return &StartResult{Session: view, Resumed: true}, nil
	}

	v, err, _ := s.starts.Do(k.String(), func() (interface{}, error) {
		if live := s.live(k); live != nil {
			return &StartResult{Resumed: true}, nil
		}
		return s.open(ctx, k)
	})
	if err != nil {
		return nil, err
	}

	res := *v.(*StartResult)
	live := s.live(k)
	if live == nil {
		// Submitted by the deadline right after opening.
		return nil, ErrSessionCompleted
	}
	res.Session, err = live.Store.Snapshot()
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *RunnerService) open(ctx context.Context, k liveKey) (*StartResult, error) {
	log := s.log.With().Int("student_id", k.studentID).Str("exam_id", k.examID.String()).Logger()

	if _, found, err := s.persist.Load(ctx, s.resultKey(k)); err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	} else if found {
		return nil, ErrSessionCompleted
	}

	sess, resumed, err := examsession.Open(ctx, examsession.Config{
		ExamID:      k.examID,
		StudentID:   k.studentID,
		Fetcher:     s.fetcher,
		Submitter:   s.submitter,
		Persistence: s.persist,
		RecordKey:   s.recordKey(k),
		ResultKey:   s.resultKey(k),
		Log:         s.log,
	})
	if err != nil {
		return nil, err
	}

	saved, err := s.archive.LoadProgress(ctx, k.examID, k.studentID)
	if err != nil {
		log.Warn().Err(err).Msg("Could not replay saved answers")
	} else if len(saved) > 0 {
		sess.Store.RestoreProgress(saved)
	}

	live := &liveSession{Session: sess, done: make(chan struct{})}
	s.mu.Lock()
	s.sessions[k] = live
	s.mu.Unlock()

	sess.ArmDeadline(func(res *model.SubmissionResult, _ bool, err error) {
		s.settle(k, live, res, err)
	})

	log.Info().Bool("resumed", resumed).Int("replayed", len(saved)).Msg("Exam session started")
	return &StartResult{Resumed: resumed}, nil
}

func (s *RunnerService) live(k liveKey) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[k]
}

func (s *RunnerService) mustLive(studentID int, examID uuid.UUID) (*liveSession, error) {
	live := s.live(liveKey{studentID: studentID, examID: examID})
	if live == nil {
		return nil, ErrNoLiveSession
	}
	return live, nil
}

func (s *RunnerService) recordKey(k liveKey) string {
	return config.CacheKey.SessionRecordKey(k.examID.String(), k.studentID)
}

func (s *RunnerService) resultKey(k liveKey) string {
	return config.CacheKey.SessionResultKey(k.examID.String(), k.studentID)
}

// View returns the current snapshot of a live session.
func (s *RunnerService) View(studentID int, examID uuid.UUID) (*examsession.View, error) {
	live, err := s.mustLive(studentID, examID)
	if err != nil {
		return nil, err
	}
	return live.Store.Snapshot()
}

// Done is closed once the session has been submitted. It is nil when no
// session is live.
func (s *RunnerService) Done(studentID int, examID uuid.UUID) <-chan struct{} {
	live := s.live(liveKey{studentID: studentID, examID: examID})
	if live == nil {
		return nil
	}
	return live.done
}

// AnswerMCQ records the answer of the MCQ at index and autosaves it.
func (s *RunnerService) AnswerMCQ(ctx context.Context, studentID int, examID uuid.UUID, index int, answer string) (*examsession.Progress, error) {
	live, err := s.mustLive(studentID, examID)
	if err != nil {
		return nil, err
	}

	if err := live.Store.UpdateMCQAnswer(index, answer); err != nil {
		return nil, err
	}
	id, err := live.Store.MCQID(index)
	if err != nil {
		return nil, err
	}
	return s.autosave(ctx, live, id)
}

// RunCode executes source against the current coding question and stores
// the outcome on it. Hidden test outputs are never returned.
func (s *RunnerService) RunCode(ctx context.Context, studentID int, examID uuid.UUID, language, source string) (*model.TestCaseSummary, error) {
	live, err := s.mustLive(studentID, examID)
	if err != nil {
		return nil, err
	}

	live.mu.Lock()
	defer live.mu.Unlock()

	q, err := live.Store.CodingQuestion()
	if err != nil {
		return nil, err
	}
	summary, err := s.runner.Run(ctx, q, language, source)
	if err != nil {
		return nil, fmt.Errorf("run code: %w", err)
	}

	err = live.Store.UpdateCodingAnswer(examsession.CodingAnswer{
		Language:        language,
		Source:          source,
		TestCaseSummary: summary,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.autosave(ctx, live, q.ID); err != nil {
		return summary, err
	}
	return summary, nil
}

// MarkReview flags the current question for review and autosaves it.
func (s *RunnerService) MarkReview(ctx context.Context, studentID int, examID uuid.UUID) (*examsession.Progress, error) {
	live, err := s.mustLive(studentID, examID)
	if err != nil {
		return nil, err
	}

	live.mu.Lock()
	defer live.mu.Unlock()

	if err := live.Store.MarkCurrentForReview(); err != nil {
		return nil, err
	}

	var id uuid.UUID
	cur := live.Store.Cursor()
	if cur.List == examsession.ListMCQ {
		id, err = live.Store.MCQID(cur.Index)
	} else {
		var q model.CodingQuestion
		q, err = live.Store.CodingQuestion()
		id = q.ID
	}
	if err != nil {
		return nil, err
	}
	return s.autosave(ctx, live, id)
}

func (s *RunnerService) autosave(ctx context.Context, live *liveSession, questionID uuid.UUID) (*examsession.Progress, error) {
	p, _ := live.Store.Progress(questionID)
	if err := s.archive.SaveProgress(ctx, live.ExamID(), live.StudentID(), questionID, p); err != nil {
		s.log.Error().Err(err).
			Int("student_id", live.StudentID()).
			Str("question_id", questionID.String()).
			Msg("Autosave failed")
		return &p, fmt.Errorf("%w: %w", ErrAutosaveFailed, err)
	}
	return &p, nil
}

// Next moves the cursor forward.
func (s *RunnerService) Next(studentID int, examID uuid.UUID) (examsession.Cursor, error) {
	live, err := s.mustLive(studentID, examID)
	if err != nil {
		return examsession.Cursor{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return live.Navigator.Next(), nil
}

// Previous moves the cursor backward.
func (s *RunnerService) Previous(studentID int, examID uuid.UUID) (examsession.Cursor, error) {
	live, err := s.mustLive(studentID, examID)
	if err != nil {
		return examsession.Cursor{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return live.Navigator.Previous(), nil
}

// Submit hands the answer set to the grader. dispatched is false when
// another submission is in flight or the exam was already submitted; the
// stored result is returned in the latter case.
func (s *RunnerService) Submit(ctx context.Context, studentID int, examID uuid.UUID) (*model.SubmissionResult, bool, error) {
	k := liveKey{studentID: studentID, examID: examID}
	live := s.live(k)
	if live == nil {
		res, err := s.Result(ctx, studentID, examID)
		if errors.Is(err, ErrNoResult) {
			return nil, false, ErrNoLiveSession
		}
		return res, false, err
	}

	res, dispatched, err := live.Guard.Submit(ctx)
	s.settle(k, live, res, err)
	if errors.Is(err, ErrAlreadySubmitted) {
		return nil, dispatched, ErrSessionCompleted
	}
	return res, dispatched, err
}

// settle retires a live session once its submission has gone through, or
// when the grader reports it was submitted before.
func (s *RunnerService) settle(k liveKey, live *liveSession, res *model.SubmissionResult, err error) {
	log := s.log.With().Int("student_id", k.studentID).Str("exam_id", k.examID.String()).Logger()

	switch {
	case err == nil && live.Guard.State() == examsession.StateSubmitted:
	case errors.Is(err, ErrAlreadySubmitted):
		log.Warn().Msg("Exam was already graded, dropping live session")
		if clearErr := live.Store.Clear(context.Background()); clearErr != nil {
			log.Warn().Err(clearErr).Msg("Failed to clear session record")
		}
	case errors.Is(err, examsession.ErrSessionClosed):
		log.Debug().Msg("Submit on an abandoned session ignored")
		return
	case err != nil:
		log.Error().Err(err).Msg("Submission failed")
		return
	default:
		return
	}

	live.Close()
	live.finish()
	s.mu.Lock()
	if s.sessions[k] == live {
		delete(s.sessions, k)
	}
	s.mu.Unlock()

	if res != nil {
		log.Info().Float64("score", res.Score).Msg("Exam session finished")
	}
}

// Result returns the last submission outcome of a student exam.
func (s *RunnerService) Result(ctx context.Context, studentID int, examID uuid.UUID) (*model.SubmissionResult, error) {
	k := liveKey{studentID: studentID, examID: examID}
	if live := s.live(k); live != nil {
		if res := live.Guard.Result(); res != nil {
			return res, nil
		}
	}

	raw, found, err := s.persist.Load(ctx, s.resultKey(k))
	if err != nil {
		return nil, fmt.Errorf("load result: %w", err)
	}
	if !found {
		return nil, ErrNoResult
	}

	var res model.SubmissionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &res, nil
}

// Abandon ends a live session without submitting and drops its record and
// autosave buffer. Answers already persisted by the autosave worker remain
// and are replayed on the next Start.
func (s *RunnerService) Abandon(ctx context.Context, studentID int, examID uuid.UUID) error {
	k := liveKey{studentID: studentID, examID: examID}

	s.mu.Lock()
	live := s.sessions[k]
	delete(s.sessions, k)
	s.mu.Unlock()

	if live == nil {
		return ErrNoLiveSession
	}
	live.finish()
	if err := live.Abandon(ctx); err != nil {
		return err
	}
	if err := s.archive.Discard(ctx, examID, studentID); err != nil {
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Failed to discard autosave buffer")
	}

	s.log.Info().Int("student_id", studentID).Str("exam_id", examID.String()).Msg("Exam session abandoned")
	return nil
}

// Shutdown stops every deadline timer. Persisted records are kept so the
// sessions resume on the next start.
func (s *RunnerService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, live := range s.sessions {
		live.Close()
		delete(s.sessions, k)
	}
}

// LiveCount reports how many sessions are hosted.
func (s *RunnerService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
