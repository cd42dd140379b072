package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/config"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/repository"
)

// Domain errors.
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrExamNotPublished  = errors.New("exam status is not PUBLISHED")
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrSessionCompleted  = errors.New("exam session is already completed")
	ErrAnswerKeyNotReady = errors.New("answer key not cached")
)

// PaperService serves published exam papers from Redis, falling back to
// PostgreSQL, and opens the student's exam session row.
type PaperService struct {
	examRepo    *repository.ExamRepository
	sessionRepo *repository.ExamSessionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewPaperService creates a new PaperService.
func NewPaperService(
	examRepo *repository.ExamRepository,
	sessionRepo *repository.ExamSessionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *PaperService {
	return &PaperService{
		examRepo:    examRepo,
		sessionRepo: sessionRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "paper_service").Logger(),
	}
}

// FetchPaper returns the paper for examID stamped with the student's
// session ID and start time. The session row is created on first fetch.
func (s *PaperService) FetchPaper(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamPaper, error) {
	paper, err := s.cachedPaper(ctx, examID)
	if err != nil {
		return nil, err
	}

	sess, err := s.joinSession(ctx, examID, studentID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionStatusCompleted {
		return nil, ErrSessionCompleted
	}

	sessionID := sess.ID
	paper.StudentExamID = &sessionID
	paper.StartedAt = sess.StartedAt
	return paper, nil
}

// joinSession creates the student's session row, or returns the existing one.
func (s *PaperService) joinSession(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamSession, error) {
	existing, err := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing session: %w", err)
	}

	sess := &model.ExamSession{ExamID: examID, StudentID: studentID}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent join from another device.
			existing, fetchErr := s.sessionRepo.GetByExamAndStudent(ctx, examID, studentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent join detected, but fetch failed: %w", fetchErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Msg("Exam session opened")
	return sess, nil
}

func (s *PaperService) cachedPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
		s.log.Warn().Str("exam_id", examID.String()).Msg("Cached paper unreadable, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Redis error reading paper, falling back to database")
	}

	paper, _, err := s.WarmExamCache(ctx, examID)
	return paper, err
}

// AnswerKey returns the grading key of a published exam, rebuilding the
// cache on a miss.
func (s *PaperService) AnswerKey(ctx context.Context, examID uuid.UUID) (*model.AnswerKey, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamAnswerKey(examID.String())).Bytes()
	if err == nil {
		var key model.AnswerKey
		if err := json.Unmarshal(data, &key); err != nil {
			return nil, fmt.Errorf("unmarshal answer key: %w", err)
		}
		return &key, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get answer key: %w", err)
	}

	_, key, err := s.WarmExamCache(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnswerKeyNotReady, err)
	}
	return key, nil
}

// WarmExamCache loads a published exam from PostgreSQL and caches its
// paper and answer key in Redis.
func (s *PaperService) WarmExamCache(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, *model.AnswerKey, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, nil, ErrExamNotPublished
	}

	subjects, err := s.examRepo.ListSubjects(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("list subjects: %w", err)
	}
	questions, err := s.examRepo.ListQuestions(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	paper, key := BuildPaper(exam, subjects, questions)

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal paper: %w", err)
	}
	keyJSON, err := json.Marshal(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal answer key: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(examID.String()), paperJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamAnswerKey(examID.String()), keyJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		// The paper is still usable without the cache.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache exam")
	}

	s.log.Debug().
		Str("exam_id", examID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return paper, key, nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *PaperService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.examRepo.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if _, _, err := s.WarmExamCache(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

// BuildPaper groups questions under their subjects in subject order and
// splits off the grading data. questions must be sorted by subject and
// question order. Questions of unknown subjects are dropped.
func BuildPaper(exam *model.Exam, subjects []model.ExamSubject, questions []model.Question) (*model.ExamPaper, *model.AnswerKey) {
	paper := &model.ExamPaper{
		ID:              exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		Subjects:        make([]model.Subject, len(subjects)),
	}
	key := &model.AnswerKey{
		MCQ:    make(map[string]model.MCQKey),
		Coding: make(map[string]int),
	}

	slot := make(map[int]int, len(subjects))
	for i, subj := range subjects {
		slot[subj.ID] = i
		paper.Subjects[i] = model.Subject{
			Name:            subj.Name,
			MCQQuestions:    []model.MCQQuestion{},
			CodingQuestions: []model.CodingQuestion{},
		}
	}

	for _, q := range questions {
		i, ok := slot[q.SubjectID]
		if !ok {
			continue
		}
		subj := &paper.Subjects[i]

		switch q.Kind {
		case model.QuestionKindMCQ:
			subj.MCQQuestions = append(subj.MCQQuestions, model.MCQQuestion{
				ID:      q.ID,
				Prompt:  q.Prompt,
				Options: q.Options,
				Points:  q.Points,
			})
			key.MCQ[q.ID.String()] = model.MCQKey{Correct: q.CorrectOption, Points: q.Points}
		case model.QuestionKindCoding:
			subj.CodingQuestions = append(subj.CodingQuestions, model.CodingQuestion{
				ID:           q.ID,
				Prompt:       q.Prompt,
				Constraints:  q.Constraints,
				SampleInput:  q.SampleInput,
				SampleOutput: q.SampleOutput,
				HiddenTests:  q.HiddenTests,
				Points:       q.Points,
			})
			key.Coding[q.ID.String()] = q.Points
		}
	}

	return paper, key
}
