package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// ExamSession represents a student's exam attempt.
type ExamSession struct {
	ID         uuid.UUID       `json:"id"`
	ExamID     uuid.UUID       `json:"exam_id"`
	StudentID  int             `json:"student_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     SessionStatus   `json:"status"`
	FinalScore *float64        `json:"final_score,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// AnswerMCQRequest is the payload for answering a multiple-choice question.
type AnswerMCQRequest struct {
	Index  int    `json:"index" binding:"min=0"`
	Answer string `json:"answer" binding:"required,max=10"`
}

// RunCodeRequest is the payload for running code on the current coding question.
type RunCodeRequest struct {
	Language string `json:"language" binding:"required,oneof=c cpp go java javascript python"`
	Source   string `json:"source" binding:"required,max=65536"`
}
