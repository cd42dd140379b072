package examsession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/model"
)

// SubmissionState enumerates the Guard's states.
type SubmissionState string

const (
	StateIdle       SubmissionState = "IDLE"
	StateSubmitting SubmissionState = "SUBMITTING"
	StateSubmitted  SubmissionState = "SUBMITTED"
)

// Guard submits a session's answers at most once at a time, and never again
// after a successful submission. The manual submit path and the deadline
// timer must share the same Guard.
type Guard struct {
	mu     sync.Mutex
	state  SubmissionState
	result *model.SubmissionResult

	store     *Store
	submitter Submitter
	persist   Persistence
	resultKey string
	log       zerolog.Logger
}

// NewGuard creates an idle Guard. On success the result is saved under resultKey.
func NewGuard(store *Store, submitter Submitter, persist Persistence, resultKey string, log zerolog.Logger) *Guard {
	return &Guard{
		state:     StateIdle,
		store:     store,
		submitter: submitter,
		persist:   persist,
		resultKey: resultKey,
		log:       log,
	}
}

// State returns the current state.
func (g *Guard) State() SubmissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Result returns the outcome of the successful submission, or nil.
func (g *Guard) Result() *model.SubmissionResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

// Submit sends the answered questions to the Submitter.
//
// dispatched is false when the call was suppressed because a submission is
// already in flight or has already succeeded; that is not an error. On a
// failed dispatch the Guard returns to idle with the answers untouched, so
// the caller may retry.
func (g *Guard) Submit(ctx context.Context) (result *model.SubmissionResult, dispatched bool, err error) {
	g.mu.Lock()
	switch g.state {
	case StateSubmitting:
		g.mu.Unlock()
		return nil, false, nil
	case StateSubmitted:
		res := g.result
		g.mu.Unlock()
		return res, false, nil
	}
	if g.store.Paper() == nil {
		g.mu.Unlock()
		return nil, false, ErrNotLoaded
	}
	if g.store.Closed() {
		g.mu.Unlock()
		return nil, false, ErrSessionClosed
	}
	g.state = StateSubmitting
	g.mu.Unlock()

	payload := BuildPayload(g.store)
	res, err := g.submitter.SubmitAnswers(ctx, payload)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil {
		g.state = StateIdle
		g.log.Warn().Err(err).
			Str("student_exam_id", payload.StudentExamID.String()).
			Msg("Submission failed")
		return nil, true, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	g.state = StateSubmitted
	g.result = res
	g.store.close()

	// Detached from ctx: the grade is final even if the caller went away.
	settleCtx := context.WithoutCancel(ctx)
	if err := g.persist.Clear(settleCtx, g.store.key); err != nil {
		g.log.Error().Err(err).Msg("Failed to clear session record")
	}
	if raw, err := json.Marshal(res); err == nil {
		if err := g.persist.Save(settleCtx, g.resultKey, raw); err != nil {
			g.log.Error().Err(err).Msg("Failed to store submission result")
		}
	}

	g.log.Info().
		Str("student_exam_id", payload.StudentExamID.String()).
		Int("answered", len(payload.Answers)).
		Msg("Exam submitted")
	return res, true, nil
}
