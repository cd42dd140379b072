package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/model"
)

func TestGrade(t *testing.T) {
	q1, q2, q3 := uuid.New(), uuid.New(), uuid.New()
	key := &model.AnswerKey{
		MCQ: map[string]model.MCQKey{
			q1.String(): {Correct: "B", Points: 4},
			q2.String(): {Correct: "C", Points: 4},
		},
		Coding: map[string]int{q3.String(): 10},
	}
	opt := func(s string) *string { return &s }

	tests := []struct {
		name      string
		answers   map[uuid.UUID]examsession.AnswerEntry
		wantScore float64
		wantPct   float64
		answered  int
	}{
		{"blank", nil, 0, 0, 0},
		{"one correct", map[uuid.UUID]examsession.AnswerEntry{
			q1: {SelectedOption: opt("B")},
			q2: {SelectedOption: opt("A")},
		}, 4, 22.22, 2},
		{"partial coding", map[uuid.UUID]examsession.AnswerEntry{
			q3: {TestCaseSummary: &model.TestCaseSummary{Passed: 1, Total: 3}},
		}, 3.33, 18.5, 1},
		{"coding without tests", map[uuid.UUID]examsession.AnswerEntry{
			q3: {TestCaseSummary: &model.TestCaseSummary{}},
		}, 0, 0, 1},
		{"perfect", map[uuid.UUID]examsession.AnswerEntry{
			q1: {SelectedOption: opt("B")},
			q2: {SelectedOption: opt("C")},
			q3: {TestCaseSummary: &model.TestCaseSummary{Passed: 5, Total: 5}},
		}, 18, 100, 3},
		{"unknown question ignored", map[uuid.UUID]examsession.AnswerEntry{
			uuid.New(): {SelectedOption: opt("B")},
		}, 0, 0, 0},
	}

	at := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := &examsession.Payload{ExamID: uuid.New(), StudentExamID: uuid.New(), Answers: tc.answers}
			res := Grade(key, payload, at)

			if res.Score != tc.wantScore || res.Percentage != tc.wantPct || res.Answered != tc.answered {
				t.Errorf("score=%v pct=%v answered=%d, want %v %v %d",
					res.Score, res.Percentage, res.Answered, tc.wantScore, tc.wantPct, tc.answered)
			}
			if res.MaxScore != 18 || len(res.Breakdown) != 3 {
				t.Errorf("max=%d breakdown=%d", res.MaxScore, len(res.Breakdown))
			}
			if res.Breakdown[0].Kind != string(model.QuestionKindMCQ) || res.Breakdown[2].Kind != string(model.QuestionKindCoding) {
				t.Errorf("breakdown order = %+v", res.Breakdown)
			}
			if !res.SubmittedAt.Equal(at) || res.StudentExamID != payload.StudentExamID {
				t.Errorf("header = %+v", res)
			}
		})
	}
}

type staticKeys struct{ key *model.AnswerKey }

func (k staticKeys) AnswerKey(context.Context, uuid.UUID) (*model.AnswerKey, error) {
	return k.key, nil
}

type submissionFixture struct {
	svc     *SubmissionService
	rdb     *redis.Client
	payload *examsession.Payload
	lockKey string
}

func newSubmissionFixture(t *testing.T) *submissionFixture {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("set REDIS_URL to run redis tests")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { rdb.Close() })

	q := uuid.New()
	answer := "B"
	payload := &examsession.Payload{
		ExamID:        uuid.New(),
		StudentExamID: uuid.New(),
		Answers:       map[uuid.UUID]examsession.AnswerEntry{q: {SelectedOption: &answer}},
	}
	key := &model.AnswerKey{MCQ: map[string]model.MCQKey{q.String(): {Correct: "B", Points: 5}}}

	svc := NewSubmissionService(staticKeys{key}, rdb, zerolog.Nop())
	svc.queue = "test:scores:" + uuid.NewString()

	f := &submissionFixture{
		svc:     svc,
		rdb:     rdb,
		payload: payload,
		lockKey: config.CacheKey.SubmissionLockKey(payload.StudentExamID.String()),
	}
	t.Cleanup(func() { rdb.Del(context.Background(), f.lockKey, svc.queue) })
	return f
}

func (f *submissionFixture) queued(t *testing.T) int64 {
	t.Helper()
	n, err := f.rdb.LLen(context.Background(), f.svc.queue).Result()
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSubmitAnswersOncePerSession(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	res, err := f.svc.SubmitAnswers(ctx, f.payload)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 5 {
		t.Errorf("score = %v, want 5", res.Score)
	}
	if _, err := f.svc.SubmitAnswers(ctx, f.payload); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v", err)
	}
	if n := f.queued(t); n != 1 {
		t.Errorf("queued scores = %d, want 1", n)
	}
}

func TestSubmitAnswersFailedPushReleasesLock(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx := context.Background()

	// A string under the queue key makes RPUSH fail with WRONGTYPE.
	if err := f.rdb.Set(ctx, f.svc.queue, "blocked", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SubmitAnswers(ctx, f.payload); err == nil || errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("blocked submit err = %v", err)
	}
	if n := f.rdb.Exists(ctx, f.lockKey).Val(); n != 0 {
		t.Fatal("lock kept after the score failed to queue")
	}

	f.rdb.Del(ctx, f.svc.queue)
	if _, err := f.svc.SubmitAnswers(ctx, f.payload); err != nil {
		t.Fatalf("retry err = %v", err)
	}
	if n := f.queued(t); n != 1 {
		t.Errorf("queued scores = %d, want 1", n)
	}
}

func TestSubmitAnswersSurvivesCancelledCaller(t *testing.T) {
	f := newSubmissionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.SubmitAnswers(ctx, f.payload); err != nil {
		t.Fatalf("submit err = %v", err)
	}
	if n := f.queued(t); n != 1 {
		t.Errorf("queued scores = %d, want 1", n)
	}
	if _, err := f.svc.SubmitAnswers(context.Background(), f.payload); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("resubmit err = %v", err)
	}
}
