package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/model"
)

// ErrAlreadySubmitted is returned when a student exam was graded before.
var ErrAlreadySubmitted = errors.New("exam already submitted")

// submissionLockTTL outlives any exam by a wide margin.
const submissionLockTTL = 7 * 24 * time.Hour

// lockAndQueue takes the submission lock and queues the score in one step.
// A failed push releases the lock again, so the lock never outlives a score
// that was not queued.
//
// KEYS[1] lock, KEYS[2] queue; ARGV[1] lock value, ARGV[2] ttl seconds,
// ARGV[3] queue item. Returns 1 when queued, 0 when the lock was held.
var lockAndQueue = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2]) then
	return 0
end
local pushed = redis.pcall('RPUSH', KEYS[2], ARGV[3])
if type(pushed) == 'table' and pushed.err then
	redis.call('DEL', KEYS[1])
	return redis.error_reply(pushed.err)
end
return 1
`)

// AnswerKeySource returns the grading key of an exam.
type AnswerKeySource interface {
	AnswerKey(ctx context.Context, examID uuid.UUID) (*model.AnswerKey, error)
}

// SubmissionService grades submitted answer sets against the cached answer
// key and queues the score for persistence.
type SubmissionService struct {
	keys  AnswerKeySource
	rdb   *redis.Client
	log   zerolog.Logger
	now   func() time.Time
	queue string
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(keys AnswerKeySource, rdb *redis.Client, log zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		keys:  keys,
		rdb:   rdb,
		log:   log.With().Str("component", "submission_service").Logger(),
		now:   time.Now,
		queue: config.WorkerKey.PersistScoresQueue,
	}
}

// scorePayload is the item pushed on persist_scores_queue.
type scorePayload struct {
	StudentExamID string          `json:"student_exam_id"`
	Score         float64         `json:"score"`
	Result        json.RawMessage `json:"result"`
}

// SubmitAnswers grades payload once per student exam. A second submission
// for the same student exam fails with ErrAlreadySubmitted.
func (s *SubmissionService) SubmitAnswers(ctx context.Context, payload *examsession.Payload) (*model.SubmissionResult, error) {
	key, err := s.keys.AnswerKey(ctx, payload.ExamID)
	if err != nil {
		return nil, err
	}

	result := Grade(key, payload, s.now())
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	item, err := json.Marshal(scorePayload{
		StudentExamID: payload.StudentExamID.String(),
		Score:         result.Score,
		Result:        resultJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal score: %w", err)
	}

	lockKey := config.CacheKey.SubmissionLockKey(payload.StudentExamID.String())
	ttl := int64(submissionLockTTL / time.Second)
	// Detached so a caller leaving mid-call cannot split lock from queue.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	queued, err := lockAndQueue.Run(runCtx, s.rdb, []string{lockKey, s.queue}, s.now().Unix(), ttl, item).Int()
	if err != nil {
		return nil, fmt.Errorf("queue score: %w", err)
	}
	if queued == 0 {
		return nil, ErrAlreadySubmitted
	}

	s.log.Info().
		Str("student_exam_id", payload.StudentExamID.String()).
		Float64("score", result.Score).
		Int("answered", result.Answered).
		Msg("Exam graded")
	return result, nil
}

// Grade scores payload against key. An MCQ earns its points on an exact
// match; a coding question earns its points scaled by the passed share of
// its test cases. Entries for questions outside key are ignored.
func Grade(key *model.AnswerKey, payload *examsession.Payload, at time.Time) *model.SubmissionResult {
	res := &model.SubmissionResult{
		StudentExamID: payload.StudentExamID,
		ExamID:        payload.ExamID,
		Breakdown:     make([]model.QuestionScore, 0, len(key.MCQ)+len(key.Coding)),
		SubmittedAt:   at,
	}

	for id, k := range key.MCQ {
		line := model.QuestionScore{Kind: string(model.QuestionKindMCQ), Points: k.Points}
		line.QuestionID, _ = uuid.Parse(id)
		if entry, ok := payload.Answers[line.QuestionID]; ok && entry.SelectedOption != nil {
			line.Answered = true
			if *entry.SelectedOption == k.Correct {
				line.Earned = float64(k.Points)
			}
		}
		tally(res, line)
	}

	for id, points := range key.Coding {
		line := model.QuestionScore{Kind: string(model.QuestionKindCoding), Points: points}
		line.QuestionID, _ = uuid.Parse(id)
		if entry, ok := payload.Answers[line.QuestionID]; ok && entry.TestCaseSummary != nil {
			line.Answered = true
			line.Earned = round2(float64(points) * entry.TestCaseSummary.Fraction())
		}
		tally(res, line)
	}

	slices.SortFunc(res.Breakdown, func(a, b model.QuestionScore) int {
		if c := strings.Compare(a.Kind, b.Kind); c != 0 {
			return -c
		}
		return strings.Compare(a.QuestionID.String(), b.QuestionID.String())
	})
	res.Score = round2(res.Score)
	if res.MaxScore > 0 {
		res.Percentage = round2(res.Score / float64(res.MaxScore) * 100)
	}
	return res
}

func tally(res *model.SubmissionResult, line model.QuestionScore) {
	res.Breakdown = append(res.Breakdown, line)
	res.MaxScore += line.Points
	res.Score += line.Earned
	if line.Answered {
		res.Answered++
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
