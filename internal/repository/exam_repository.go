package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-runner/internal/model"
)

// ExamRepository handles exam, subject and question data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam header by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, status, created_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.DurationMinutes, &e.Status, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPublishedIDs returns the IDs of every published exam.
func (r *ExamRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exams WHERE status = $1 ORDER BY created_at`, model.ExamStatusPublished,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ListSubjects retrieves an exam's subjects in declaration order.
func (r *ExamRepository) ListSubjects(ctx context.Context, examID uuid.UUID) ([]model.ExamSubject, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, name, order_num
		 FROM exam_subjects WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.ExamSubject
	for rows.Next() {
		var s model.ExamSubject
		if err := rows.Scan(&s.ID, &s.ExamID, &s.Name, &s.OrderNum); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// ListQuestions retrieves every question of an exam, ordered by subject
// and then by question order.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.subject_id, q.kind, q.prompt, q.options, q.correct_option,
		        q.constraints, q.sample_input, q.sample_output, q.hidden_tests,
		        q.points, q.order_num
		 FROM questions q
		 JOIN exam_subjects s ON s.id = q.subject_id
		 WHERE s.exam_id = $1
		 ORDER BY s.order_num, s.id, q.order_num, q.id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.SubjectID, &q.Kind, &q.Prompt, &q.Options, &q.CorrectOption,
			&q.Constraints, &q.SampleInput, &q.SampleOutput, &q.HiddenTests,
			&q.Points, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreatePaper inserts an exam with its subjects and questions in one
// transaction. IDs are written back into draft.
func (r *ExamRepository) CreatePaper(ctx context.Context, draft *model.PaperDraft) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	e := &draft.Exam
	if e.Status == "" {
		e.Status = model.ExamStatusDraft
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO exams (title, duration_minutes, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		e.Title, e.DurationMinutes, e.Status,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	for si := range draft.Subjects {
		subj := &draft.Subjects[si]
		var subjectID int
		err := tx.QueryRow(ctx,
			`INSERT INTO exam_subjects (exam_id, name, order_num)
			 VALUES ($1, $2, $3) RETURNING id`,
			e.ID, subj.Name, si,
		).Scan(&subjectID)
		if err != nil {
			return fmt.Errorf("insert subject %q: %w", subj.Name, err)
		}

		for qi := range subj.Questions {
			q := &subj.Questions[qi]
			q.SubjectID = subjectID
			q.OrderNum = qi
			if q.HiddenTests == nil {
				q.HiddenTests = []model.TestCase{}
			}
			err := tx.QueryRow(ctx,
				`INSERT INTO questions (subject_id, kind, prompt, options, correct_option,
				                        constraints, sample_input, sample_output, hidden_tests,
				                        points, order_num)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				 RETURNING id`,
				q.SubjectID, q.Kind, q.Prompt, q.Options, q.CorrectOption,
				q.Constraints, q.SampleInput, q.SampleOutput, q.HiddenTests,
				q.Points, q.OrderNum,
			).Scan(&q.ID)
			if err != nil {
				return fmt.Errorf("insert question %d of %q: %w", qi, subj.Name, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// UpdateStatus changes an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1 WHERE id = $2`, status, id,
	)
	return err
}
