package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionKind distinguishes the two kinds of stored questions.
type QuestionKind string

const (
	QuestionKindMCQ    QuestionKind = "MCQ"
	QuestionKindCoding QuestionKind = "CODING"
)

// Question is the stored form of an MCQ or coding question, answer key included.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	SubjectID     int             `json:"subject_id"`
	Kind          QuestionKind    `json:"kind"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options,omitempty"`
	CorrectOption string          `json:"correct_option,omitempty"`
	Constraints   string          `json:"constraints,omitempty"`
	SampleInput   string          `json:"sample_input,omitempty"`
	SampleOutput  string          `json:"sample_output,omitempty"`
	HiddenTests   []TestCase      `json:"hidden_tests,omitempty"`
	Points        int             `json:"points"`
	OrderNum      int             `json:"order_num"`
}
