package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamPaper is the fetched exam a candidate works through during one session.
// It is never modified after the session loads it.
type ExamPaper struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	Subjects        []Subject  `json:"subjects"`
	StudentExamID   *uuid.UUID `json:"student_exam_id,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
}

// Deadline returns the moment the allotted duration runs out.
func (p *ExamPaper) Deadline() time.Time {
	return p.StartedAt.Add(time.Duration(p.DurationMinutes) * time.Minute)
}

// Subject groups the questions of one subject in declaration order.
type Subject struct {
	Name            string           `json:"name"`
	MCQQuestions    []MCQQuestion    `json:"mcq_questions"`
	CodingQuestions []CodingQuestion `json:"coding_questions"`
}

// MCQQuestion is a multiple-choice question as shown to the candidate.
type MCQQuestion struct {
	ID      uuid.UUID       `json:"id"`
	Prompt  string          `json:"prompt"`
	Options json.RawMessage `json:"options"`
	Points  int             `json:"points"`
}

// CodingQuestion is a programming question graded by hidden test cases.
type CodingQuestion struct {
	ID           uuid.UUID  `json:"id"`
	Prompt       string     `json:"prompt"`
	Constraints  string     `json:"constraints"`
	SampleInput  string     `json:"sample_input"`
	SampleOutput string     `json:"sample_output"`
	HiddenTests  []TestCase `json:"hidden_tests,omitempty"`
	Points       int        `json:"points"`
}

// TestCase is one input/expected-output pair run by the code-execution service.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// TestCaseSummary is the outcome of running candidate code against a
// coding question's test cases.
type TestCaseSummary struct {
	Passed  int              `json:"passed"`
	Total   int              `json:"total"`
	Results []TestCaseResult `json:"results,omitempty"`
}

// TestCaseResult is the verdict for a single test case.
type TestCaseResult struct {
	Index   int    `json:"index"`
	Passed  bool   `json:"passed"`
	Hidden  bool   `json:"hidden"`
	Verdict string `json:"verdict,omitempty"`
	Output  string `json:"output,omitempty"`
}

// Fraction returns the passed share of the test cases, 0 when there are none.
func (s *TestCaseSummary) Fraction() float64 {
	if s == nil || s.Total <= 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}
