package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam is the stored header of an exam paper.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ExamSubject is a named section of an exam.
type ExamSubject struct {
	ID       int       `json:"id"`
	ExamID   uuid.UUID `json:"exam_id"`
	Name     string    `json:"name"`
	OrderNum int       `json:"order_num"`
}

// PaperDraft is a complete exam as authored, used to seed the database.
type PaperDraft struct {
	Exam     Exam
	Subjects []SubjectDraft
}

// SubjectDraft is one authored subject with its questions in order.
type SubjectDraft struct {
	Name      string
	Questions []Question
}
