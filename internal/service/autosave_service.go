package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/repository"
)

// AutosaveService buffers per-question progress in a Redis hash and queues
// it for the autosave worker. On resume it reads the hash back, falling back
// to PostgreSQL when the buffer is gone.
type AutosaveService struct {
	answerRepo *repository.StudentAnswerRepository
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewAutosaveService creates a new AutosaveService.
func NewAutosaveService(answerRepo *repository.StudentAnswerRepository, rdb *redis.Client, log zerolog.Logger) *AutosaveService {
	return &AutosaveService{
		answerRepo: answerRepo,
		rdb:        rdb,
		log:        log.With().Str("component", "autosave_service").Logger(),
	}
}

// autosaveItem is the item pushed on persist_answers_queue.
type autosaveItem struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	QID       string `json:"q_id"`
	Answer    string `json:"answer"`
}

// SaveProgress buffers p for one question and queues it for PostgreSQL.
func (s *AutosaveService) SaveProgress(ctx context.Context, examID uuid.UUID, studentID int, questionID uuid.UUID, p examsession.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	item, _ := json.Marshal(autosaveItem{
		StudentID: studentID,
		ExamID:    examID.String(),
		QID:       questionID.String(),
		Answer:    string(raw),
	})

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID), questionID.String(), raw)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, item)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

// LoadProgress returns every saved question progress of a student exam.
func (s *AutosaveService) LoadProgress(ctx context.Context, examID uuid.UUID, studentID int) (map[uuid.UUID]examsession.Progress, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID)).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Redis error reading autosave buffer, falling back to database")
		raw = nil
	}
	if len(raw) == 0 {
		raw, err = s.answerRepo.ListByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("list saved answers: %w", err)
		}
	}
	return decodeProgress(raw, s.log), nil
}

// Discard drops the Redis buffer of a student exam.
func (s *AutosaveService) Discard(ctx context.Context, examID uuid.UUID, studentID int) error {
	return s.rdb.Del(ctx, config.CacheKey.StudentAnswersKey(examID.String(), studentID)).Err()
}

// decodeProgress parses question ID → progress JSON, skipping bad entries.
func decodeProgress(raw map[string]string, log zerolog.Logger) map[uuid.UUID]examsession.Progress {
	out := make(map[uuid.UUID]examsession.Progress, len(raw))
	for k, v := range raw {
		id, err := uuid.Parse(k)
		if err != nil {
			continue
		}
		var p examsession.Progress
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			log.Warn().Str("question_id", k).Msg("Skipping unreadable saved answer")
			continue
		}
		out[id] = p
	}
	return out
}
