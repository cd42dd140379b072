package examsession

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-runner/internal/model"
)

// Payload is the sparse answer set of one session. Only answered questions
// have an entry.
type Payload struct {
	ExamID        uuid.UUID
	StudentExamID uuid.UUID
	Answers       map[uuid.UUID]AnswerEntry
}

// AnswerEntry carries the answer of one question: SelectedOption for an
// MCQ, TestCaseSummary for a coding question.
type AnswerEntry struct {
	SelectedOption  *string                `json:"selected_option,omitempty"`
	TestCaseSummary *model.TestCaseSummary `json:"test_case_summary,omitempty"`
}

// MarshalJSON encodes the payload as one flat object: "exam_id" holds the
// session identifier and every other key is a question ID.
func (p *Payload) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(p.Answers)+1)
	flat["exam_id"] = p.StudentExamID.String()
	for id, entry := range p.Answers {
		flat[id.String()] = entry
	}
	return json.Marshal(flat)
}

// BuildPayload collects the answered questions of store.
func BuildPayload(store *Store) *Payload {
	store.mu.RLock()
	defer store.mu.RUnlock()

	p := &Payload{Answers: make(map[uuid.UUID]AnswerEntry)}
	if store.paper == nil {
		return p
	}
	p.ExamID = store.paper.ID
	p.StudentExamID = store.studentExamID()

	for _, q := range store.mcq {
		prog := store.progress[q.ID]
		if !prog.Answered {
			continue
		}
		answer := prog.Answer
		p.Answers[q.ID] = AnswerEntry{SelectedOption: &answer}
	}
	for _, q := range store.coding {
		prog := store.progress[q.ID]
		if !prog.Answered {
			continue
		}
		entry := AnswerEntry{TestCaseSummary: &model.TestCaseSummary{}}
		if prog.TestCaseSummary != nil {
			summary := *prog.TestCaseSummary
			entry.TestCaseSummary = &summary
		}
		p.Answers[q.ID] = entry
	}
	return p
}
