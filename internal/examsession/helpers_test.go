package examsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-runner/internal/model"
)

type memPersistence struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
}

func newMemPersistence() *memPersistence {
	return &memPersistence{data: make(map[string][]byte)}
}

func (m *memPersistence) Save(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memPersistence) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memPersistence) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memPersistence) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// fakeSubmitter records every dispatched payload. When gate is set each call
// blocks until a value is received from it.
type fakeSubmitter struct {
	calls   atomic.Int32
	gate    chan struct{}
	entered chan struct{}
	err     error

	mu       sync.Mutex
	payloads []*Payload
}

func (f *fakeSubmitter) SubmitAnswers(ctx context.Context, p *Payload) (*model.SubmissionResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.SubmissionResult{
		StudentExamID: p.StudentExamID,
		ExamID:        p.ExamID,
		Answered:      len(p.Answers),
	}, nil
}

func (f *fakeSubmitter) lastPayload() *Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

type fakeFetcher struct {
	paper *model.ExamPaper
	err   error
	calls int
}

func (f *fakeFetcher) FetchPaper(_ context.Context, _ uuid.UUID, _ int) (*model.ExamPaper, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.paper, nil
}

var errBackend = errors.New("backend unavailable")

func mcq(points int) model.MCQQuestion {
	return model.MCQQuestion{
		ID:      uuid.New(),
		Prompt:  "pick one",
		Options: json.RawMessage(`["A","B","C","D"]`),
		Points:  points,
	}
}

func coding(points int) model.CodingQuestion {
	return model.CodingQuestion{
		ID:          uuid.New(),
		Prompt:      "reverse a string",
		HiddenTests: []model.TestCase{{Input: "ab", ExpectedOutput: "ba"}},
		Points:      points,
	}
}

// newPaper builds a single-subject paper with the given question counts,
// 1 point each.
func newPaper(mcqCount, codingCount int) *model.ExamPaper {
	subj := model.Subject{Name: "Informatics"}
	for i := 0; i < mcqCount; i++ {
		subj.MCQQuestions = append(subj.MCQQuestions, mcq(1))
	}
	for i := 0; i < codingCount; i++ {
		subj.CodingQuestions = append(subj.CodingQuestions, coding(1))
	}
	return &model.ExamPaper{
		ID:              uuid.New(),
		Title:           "Mid-term",
		DurationMinutes: 60,
		Subjects:        []model.Subject{subj},
	}
}

func loadedStore(paper *model.ExamPaper) (*Store, *memPersistence) {
	persist := newMemPersistence()
	store := NewStore(persist, "record")
	if err := store.Load(context.Background(), paper); err != nil {
		panic(err)
	}
	return store, persist
}

// moveTo drives the navigator until the cursor equals want.
func moveTo(nav *Navigator, want Cursor) {
	for i := 0; i < 1000; i++ {
		if nav.store.Cursor() == want {
			return
		}
		nav.Next()
	}
	panic("cursor unreachable")
}
