package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionResult is the graded outcome returned for a submitted answer set.
type SubmissionResult struct {
	StudentExamID uuid.UUID       `json:"student_exam_id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Score         float64         `json:"score"`
	MaxScore      int             `json:"max_score"`
	Percentage    float64         `json:"percentage"`
	Answered      int             `json:"answered"`
	Breakdown     []QuestionScore `json:"breakdown"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// QuestionScore is the per-question line of a SubmissionResult.
type QuestionScore struct {
	QuestionID uuid.UUID `json:"question_id"`
	Kind       string    `json:"kind"`
	Answered   bool      `json:"answered"`
	Earned     float64   `json:"earned"`
	Points     int       `json:"points"`
}

// AnswerKey is the grading data cached next to a published paper.
// It never leaves the server.
type AnswerKey struct {
	MCQ    map[string]MCQKey `json:"mcq"`
	Coding map[string]int    `json:"coding"`
}

// MCQKey holds the correct option and point value of one MCQ.
type MCQKey struct {
	Correct string `json:"correct"`
	Points  int    `json:"points"`
}
