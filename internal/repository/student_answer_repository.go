package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StudentAnswerRepository reads answers persisted by the autosave worker.
type StudentAnswerRepository struct {
	pool *pgxpool.Pool
}

// NewStudentAnswerRepository creates a new StudentAnswerRepository.
func NewStudentAnswerRepository(pool *pgxpool.Pool) *StudentAnswerRepository {
	return &StudentAnswerRepository{pool: pool}
}

// ListByExamAndStudent returns question ID → raw autosaved progress.
func (r *StudentAnswerRepository) ListByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, answer
		 FROM student_answers
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var qID uuid.UUID
		var answer string
		if err := rows.Scan(&qID, &answer); err != nil {
			return nil, err
		}
		answers[qID.String()] = answer
	}
	return answers, rows.Err()
}
