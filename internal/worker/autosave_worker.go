package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
)

const (
	AnswerPollTimeout = 1 * time.Second
	AnswerRetryDelay  = 5 * time.Second
)

// AutosaveWorker consumes persist_answers_queue and UPSERTs question
// progress into student_answers, the durable copy of the Redis buffer.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

type answerPayload struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	QID       string `json:"q_id"`
	Answer    string `json:"answer"`
}

// answerRow is a validated answerPayload.
type answerRow struct {
	examID     uuid.UUID
	studentID  int
	questionID uuid.UUID
	progress   string
}

func decodeAnswer(raw string) (*answerRow, error) {
	var p answerPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	examID, err := uuid.Parse(p.ExamID)
	if err != nil {
		return nil, fmt.Errorf("exam_id: %w", err)
	}
	questionID, err := uuid.Parse(p.QID)
	if err != nil {
		return nil, fmt.Errorf("q_id: %w", err)
	}
	if p.StudentID <= 0 {
		return nil, fmt.Errorf("student_id: %d", p.StudentID)
	}
	if !json.Valid([]byte(p.Answer)) {
		return nil, errors.New("answer is not a progress document")
	}
	return &answerRow{examID: examID, studentID: p.StudentID, questionID: questionID, progress: p.Answer}, nil
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, AnswerPollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	row, err := decodeAnswer(result[1])
	if err != nil {
		// A malformed item can never succeed, so it is dropped.
		w.log.Error().Err(err).Msg("Dropping invalid answer payload")
		return
	}

	if err := w.persistAnswer(ctx, row); err != nil {
		w.log.Error().Err(err).
			Int("student_id", row.studentID).
			Str("exam_id", row.examID.String()).
			Msg("Persist error, retrying later")
		w.rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, result[1])
		select {
		case <-ctx.Done():
		case <-time.After(AnswerRetryDelay):
		}
	}
}

func (w *AutosaveWorker) persistAnswer(ctx context.Context, r *answerRow) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		r.examID, r.studentID, r.questionID, r.progress,
	)
	return err
}

// drain persists what is left in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		row, err := decodeAnswer(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain decode error")
			continue
		}
		if err := w.persistAnswer(ctx, row); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
