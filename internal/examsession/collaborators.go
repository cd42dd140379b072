// Package examsession holds the state machine of one candidate's attempt at
// one exam paper: the answer store, the question navigator and the guard
// that lets the final answer set be submitted exactly once.
package examsession

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-runner/internal/model"
)

// Domain errors.
var (
	ErrLoadFailed        = errors.New("exam paper could not be loaded")
	ErrSubmissionFailed  = errors.New("exam submission failed")
	ErrInvalidPaper      = errors.New("exam paper is missing or has no id")
	ErrAlreadyLoaded     = errors.New("a paper is already loaded in this session")
	ErrNotLoaded         = errors.New("no paper loaded")
	ErrSessionClosed     = errors.New("exam session is closed")
	ErrIndexOutOfRange   = errors.New("question index out of range")
	ErrNoCodingQuestion  = errors.New("current question is not a coding question")
	ErrNoCurrentQuestion = errors.New("session has no questions")
)

// PaperFetcher returns the paper a student sits for the given exam.
// No partial paper may be returned together with a nil error.
type PaperFetcher interface {
	FetchPaper(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamPaper, error)
}

// Submitter accepts a sparse answer payload and returns the graded result.
type Submitter interface {
	SubmitAnswers(ctx context.Context, payload *Payload) (*model.SubmissionResult, error)
}

// CodeRunner executes candidate source against a coding question's tests.
type CodeRunner interface {
	Run(ctx context.Context, q model.CodingQuestion, language, source string) (*model.TestCaseSummary, error)
}

// Persistence is the durable key-value record used to resume a session
// after a reload and to keep the last submission outcome.
type Persistence interface {
	Save(ctx context.Context, key string, value []byte) error
	// Load reports found=false with a nil error when the key is absent.
	Load(ctx context.Context, key string) (value []byte, found bool, err error)
	Clear(ctx context.Context, key string) error
}
