package examsession

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-runner/internal/model"
)

// ListKind names one of the two question lists of a session.
type ListKind string

const (
	ListMCQ    ListKind = "MCQ"
	ListCoding ListKind = "CODING"
)

// Cursor identifies the question currently displayed.
type Cursor struct {
	List  ListKind `json:"list"`
	Index int      `json:"index"`
}

// Progress is the candidate's mutable state for one question.
type Progress struct {
	Answer          string                 `json:"answer,omitempty"`
	Language        string                 `json:"language,omitempty"`
	Source          string                 `json:"source,omitempty"`
	TestCaseSummary *model.TestCaseSummary `json:"test_case_summary,omitempty"`
	Answered        bool                   `json:"answered"`
	MarkedForReview bool                   `json:"marked_for_review"`
}

// CodingAnswer is merged into the current coding question. Empty fields
// leave the stored value untouched.
type CodingAnswer struct {
	Language        string
	Source          string
	TestCaseSummary *model.TestCaseSummary
}

// record is what gets persisted for resuming after a reload.
type record struct {
	Paper *model.ExamPaper `json:"paper"`
}

// Store owns the loaded paper and the answer state derived from it.
type Store struct {
	mu      sync.RWMutex
	persist Persistence
	key     string

	paper    *model.ExamPaper
	mcq      []model.MCQQuestion
	coding   []model.CodingQuestion
	progress map[uuid.UUID]*Progress
	cursor   Cursor
	closed   bool
}

// NewStore creates an empty Store persisting its record under key.
func NewStore(persist Persistence, key string) *Store {
	return &Store{
		persist:  persist,
		key:      key,
		progress: make(map[uuid.UUID]*Progress),
		cursor:   Cursor{List: ListMCQ},
	}
}

// Load installs paper as the session's paper and persists the session record.
// It refuses to discard an already loaded paper; use Replace for that.
func (s *Store) Load(ctx context.Context, paper *model.ExamPaper) error {
	return s.load(ctx, paper, false)
}

// Replace installs paper even when another paper is loaded, dropping all
// answer state of the previous one.
func (s *Store) Replace(ctx context.Context, paper *model.ExamPaper) error {
	return s.load(ctx, paper, true)
}

// load checks, persists and installs under one write lock, so a concurrent
// Load cannot slip between the check and the install.
func (s *Store) load(ctx context.Context, paper *model.ExamPaper, replace bool) error {
	if paper == nil || paper.ID == uuid.Nil {
		return ErrInvalidPaper
	}
	raw, err := json.Marshal(record{Paper: paper})
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !replace && s.paper != nil && !s.closed {
		return ErrAlreadyLoaded
	}
	if err := s.persist.Save(ctx, s.key, raw); err != nil {
		return fmt.Errorf("persist session record: %w", err)
	}
	s.install(paper)
	return nil
}

// Resume restores the paper from the persisted record, if one exists.
// It reports false when there is nothing to resume.
func (s *Store) Resume(ctx context.Context) (bool, error) {
	raw, found, err := s.persist.Load(ctx, s.key)
	if err != nil {
		return false, fmt.Errorf("load session record: %w", err)
	}
	if !found {
		return false, nil
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false, fmt.Errorf("decode session record: %w", err)
	}
	if rec.Paper == nil || rec.Paper.ID == uuid.Nil {
		return false, ErrInvalidPaper
	}

	s.mu.Lock()
	s.install(rec.Paper)
	s.mu.Unlock()
	return true, nil
}

// install flattens the paper into the two ordered question lists:
// subject declaration order first, then question order within the subject.
// Caller holds s.mu.
func (s *Store) install(paper *model.ExamPaper) {
	var mcq []model.MCQQuestion
	var coding []model.CodingQuestion
	for _, subj := range paper.Subjects {
		mcq = append(mcq, subj.MCQQuestions...)
		coding = append(coding, subj.CodingQuestions...)
	}

	progress := make(map[uuid.UUID]*Progress, len(mcq)+len(coding))
	for _, q := range mcq {
		progress[q.ID] = &Progress{}
	}
	for _, q := range coding {
		progress[q.ID] = &Progress{}
	}

	s.paper = paper
	s.mcq = mcq
	s.coding = coding
	s.progress = progress
	s.closed = false
	s.cursor = Cursor{List: ListMCQ}
	if len(mcq) == 0 && len(coding) > 0 {
		s.cursor.List = ListCoding
	}
}

// UpdateMCQAnswer records value as the answer of the MCQ at index.
func (s *Store) UpdateMCQAnswer(index int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.mcq) {
		return ErrIndexOutOfRange
	}

	p := s.progress[s.mcq[index].ID]
	p.Answer = value
	p.Answered = true
	return nil
}

// UpdateCodingAnswer merges data into the coding question under the cursor.
func (s *Store) UpdateCodingAnswer(data CodingAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	if s.cursor.List != ListCoding || s.cursor.Index >= len(s.coding) {
		return ErrNoCodingQuestion
	}

	p := s.progress[s.coding[s.cursor.Index].ID]
	if data.Language != "" {
		p.Language = data.Language
	}
	if data.Source != "" {
		p.Source = data.Source
	}
	if data.TestCaseSummary != nil {
		summary := *data.TestCaseSummary
		p.TestCaseSummary = &summary
	}
	p.Answered = true
	return nil
}

// MarkCurrentForReview flags the question under the cursor. The flag is
// never cleared.
func (s *Store) MarkCurrentForReview() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writable(); err != nil {
		return err
	}
	id, ok := s.currentID()
	if !ok {
		return ErrNoCurrentQuestion
	}
	s.progress[id].MarkedForReview = true
	return nil
}

// RestoreProgress applies previously autosaved progress by question ID.
// Unknown IDs are ignored.
func (s *Store) RestoreProgress(saved map[uuid.UUID]Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, p := range saved {
		if cur, ok := s.progress[id]; ok {
			restored := p
			restored.MarkedForReview = p.MarkedForReview || cur.MarkedForReview
			*cur = restored
		}
	}
}

// TotalScore is the sum of the point values of every question in the paper.
func (s *Store) TotalScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, q := range s.mcq {
		total += q.Points
	}
	for _, q := range s.coding {
		total += q.Points
	}
	return total
}

// StudentExamID is the session identifier supplied by the fetch, falling
// back to the paper's own ID.
func (s *Store) StudentExamID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.studentExamID()
}

// studentExamID is StudentExamID without locking. Caller holds s.mu.
func (s *Store) studentExamID() uuid.UUID {
	if s.paper == nil {
		return uuid.Nil
	}
	if s.paper.StudentExamID != nil && *s.paper.StudentExamID != uuid.Nil {
		return *s.paper.StudentExamID
	}
	return s.paper.ID
}

// Paper returns the loaded paper, or nil.
func (s *Store) Paper() *model.ExamPaper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paper
}

// Cursor returns the current cursor.
func (s *Store) Cursor() Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Closed reports whether the session ended.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// CodingQuestion returns the coding question under the cursor.
func (s *Store) CodingQuestion() (model.CodingQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cursor.List != ListCoding || s.cursor.Index >= len(s.coding) {
		return model.CodingQuestion{}, ErrNoCodingQuestion
	}
	return s.coding[s.cursor.Index], nil
}

// MCQID returns the ID of the MCQ at index.
func (s *Store) MCQID(index int) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.mcq) {
		return uuid.Nil, ErrIndexOutOfRange
	}
	return s.mcq[index].ID, nil
}

// Progress returns a copy of the progress of question id.
func (s *Store) Progress(id uuid.UUID) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[id]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// Clear ends the session without submitting and removes its record.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.persist.Clear(ctx, s.key)
}

// close ends the session after a successful submission.
func (s *Store) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// moveCursor advances the cursor one step in direction dir. Only the
// Navigator calls it.
func (s *Store) moveCursor(dir int) Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursor = step(s.cursor, len(s.mcq), len(s.coding), dir)
	return s.cursor
}

func (s *Store) writable() error {
	if s.paper == nil {
		return ErrNotLoaded
	}
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// currentID returns the ID of the question under the cursor. Caller holds s.mu.
func (s *Store) currentID() (uuid.UUID, bool) {
	switch s.cursor.List {
	case ListMCQ:
		if s.cursor.Index < len(s.mcq) {
			return s.mcq[s.cursor.Index].ID, true
		}
	case ListCoding:
		if s.cursor.Index < len(s.coding) {
			return s.coding[s.cursor.Index].ID, true
		}
	}
	return uuid.Nil, false
}

// View is a read-only snapshot of the session for presentation.
type View struct {
	ExamID        uuid.UUID    `json:"exam_id"`
	StudentExamID uuid.UUID    `json:"student_exam_id"`
	Title         string       `json:"title"`
	Cursor        Cursor       `json:"cursor"`
	TotalScore    int          `json:"total_score"`
	Answered      int          `json:"answered"`
	Deadline      time.Time    `json:"deadline"`
	Closed        bool         `json:"closed"`
	MCQ           []MCQView    `json:"mcq_questions"`
	Coding        []CodingView `json:"coding_questions"`
}

// MCQView pairs an MCQ with its progress.
type MCQView struct {
	model.MCQQuestion
	Progress
}

// CodingView pairs a coding question with its progress. Hidden tests are
// not exposed.
type CodingView struct {
	model.CodingQuestion
	Progress
}

// Snapshot returns the current View.
func (s *Store) Snapshot() (*View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.paper == nil {
		return nil, ErrNotLoaded
	}

	v := &View{
		ExamID:        s.paper.ID,
		StudentExamID: s.studentExamID(),
		Title:         s.paper.Title,
		Cursor:        s.cursor,
		Deadline:      s.paper.Deadline(),
		Closed:        s.closed,
		MCQ:           make([]MCQView, len(s.mcq)),
		Coding:        make([]CodingView, len(s.coding)),
	}
	for i, q := range s.mcq {
		p := *s.progress[q.ID]
		v.MCQ[i] = MCQView{MCQQuestion: q, Progress: p}
		v.TotalScore += q.Points
		if p.Answered {
			v.Answered++
		}
	}
	for i, q := range s.coding {
		p := *s.progress[q.ID]
		q.HiddenTests = nil
		v.Coding[i] = CodingView{CodingQuestion: q, Progress: p}
		v.TotalScore += q.Points
		if p.Answered {
			v.Answered++
		}
	}
	return v, nil
}
