package examsession

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-runner/internal/model"
)

func TestLoadFlattensInSubjectOrder(t *testing.T) {
	math := model.Subject{
		Name:            "Math",
		MCQQuestions:    []model.MCQQuestion{mcq(1), mcq(2)},
		CodingQuestions: []model.CodingQuestion{coding(3)},
	}
	cs := model.Subject{
		Name:            "CS",
		MCQQuestions:    []model.MCQQuestion{mcq(4)},
		CodingQuestions: []model.CodingQuestion{coding(5), coding(6)},
	}
	paper := &model.ExamPaper{ID: uuid.New(), Subjects: []model.Subject{math, cs}}

	store, persist := loadedStore(paper)

	wantMCQ := []uuid.UUID{math.MCQQuestions[0].ID, math.MCQQuestions[1].ID, cs.MCQQuestions[0].ID}
	for i, id := range wantMCQ {
		got, err := store.MCQID(i)
		if err != nil || got != id {
			t.Fatalf("mcq[%d] = %v (%v), want %v", i, got, err, id)
		}
	}

	view, err := store.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	wantCoding := []uuid.UUID{math.CodingQuestions[0].ID, cs.CodingQuestions[0].ID, cs.CodingQuestions[1].ID}
	if len(view.Coding) != len(wantCoding) {
		t.Fatalf("coding len = %d, want %d", len(view.Coding), len(wantCoding))
	}
	for i, id := range wantCoding {
		if view.Coding[i].ID != id {
			t.Errorf("coding[%d] = %v, want %v", i, view.Coding[i].ID, id)
		}
		if view.Coding[i].HiddenTests != nil {
			t.Errorf("coding[%d] exposes hidden tests", i)
		}
	}

	for _, q := range view.MCQ {
		if q.Answered || q.MarkedForReview || q.Answer != "" {
			t.Errorf("mcq %v starts with progress %+v", q.ID, q.Progress)
		}
	}
	if !persist.has("record") {
		t.Error("load did not persist the session record")
	}
	if got := store.Cursor(); got != (Cursor{List: ListMCQ, Index: 0}) {
		t.Errorf("initial cursor = %+v", got)
	}
}

func TestLoadRefusesToDiscardLoadedPaper(t *testing.T) {
	store, _ := loadedStore(newPaper(2, 0))
	if err := store.UpdateMCQAnswer(0, "A"); err != nil {
		t.Fatal(err)
	}

	err := store.Load(context.Background(), newPaper(1, 0))
	if !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("second load err = %v, want ErrAlreadyLoaded", err)
	}
	id, _ := store.MCQID(0)
	if p, _ := store.Progress(id); p.Answer != "A" {
		t.Errorf("answer lost after refused load: %+v", p)
	}
}

func TestConcurrentLoadInstallsOnePaper(t *testing.T) {
	store := NewStore(newMemPersistence(), "record")
	papers := make([]*model.ExamPaper, 16)
	for i := range papers {
		papers[i] = newPaper(1, 0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(papers))
	for _, p := range papers {
		wg.Add(1)
		go func(p *model.ExamPaper) {
			defer wg.Done()
			errs <- store.Load(context.Background(), p)
		}(p)
	}
	wg.Wait()
	close(errs)

	loaded := 0
	for err := range errs {
		switch {
		case err == nil:
			loaded++
		case !errors.Is(err, ErrAlreadyLoaded):
			t.Errorf("unexpected err = %v", err)
		}
	}
	if loaded != 1 {
		t.Fatalf("%d loads succeeded, want 1", loaded)
	}

	if err := store.UpdateMCQAnswer(0, "B"); err != nil {
		t.Fatal(err)
	}
	if err := store.Load(context.Background(), newPaper(1, 0)); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("late load err = %v", err)
	}
	id, _ := store.MCQID(0)
	if p, _ := store.Progress(id); p.Answer != "B" {
		t.Errorf("answer wiped by late load: %+v", p)
	}
}

func TestLoadRejectsInvalidPaper(t *testing.T) {
	store := NewStore(newMemPersistence(), "record")
	if err := store.Load(context.Background(), nil); !errors.Is(err, ErrInvalidPaper) {
		t.Errorf("nil paper err = %v", err)
	}
	if err := store.Load(context.Background(), &model.ExamPaper{}); !errors.Is(err, ErrInvalidPaper) {
		t.Errorf("zero id err = %v", err)
	}
}

func TestLoadPersistFailureLeavesStoreEmpty(t *testing.T) {
	persist := newMemPersistence()
	persist.saveErr = errBackend
	store := NewStore(persist, "record")

	if err := store.Load(context.Background(), newPaper(1, 0)); !errors.Is(err, errBackend) {
		t.Fatalf("err = %v, want backend error", err)
	}
	if store.Paper() != nil {
		t.Error("paper installed despite persist failure")
	}
}

func TestResumeRestoresPersistedPaper(t *testing.T) {
	paper := newPaper(2, 1)
	_, persist := loadedStore(paper)

	resumed := NewStore(persist, "record")
	ok, err := resumed.Resume(context.Background())
	if err != nil || !ok {
		t.Fatalf("resume = %v, %v", ok, err)
	}
	if resumed.Paper().ID != paper.ID {
		t.Errorf("resumed paper %v, want %v", resumed.Paper().ID, paper.ID)
	}
	if resumed.TotalScore() != 3 {
		t.Errorf("total score = %d, want 3", resumed.TotalScore())
	}

	empty := NewStore(newMemPersistence(), "record")
	if ok, err := empty.Resume(context.Background()); ok || err != nil {
		t.Errorf("resume without record = %v, %v", ok, err)
	}
}

func TestUpdateMCQAnswerIsolation(t *testing.T) {
	store, _ := loadedStore(newPaper(3, 0))

	if err := store.UpdateMCQAnswer(1, "B"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateMCQAnswer(0, "A"); err != nil {
		t.Fatal(err)
	}

	want := map[int]Progress{
		0: {Answer: "A", Answered: true},
		1: {Answer: "B", Answered: true},
		2: {},
	}
	for idx, w := range want {
		id, _ := store.MCQID(idx)
		got, _ := store.Progress(id)
		if got != w {
			t.Errorf("mcq[%d] = %+v, want %+v", idx, got, w)
		}
	}
}

func TestUpdateMCQAnswerIdempotent(t *testing.T) {
	once, _ := loadedStore(newPaper(1, 0))
	twice, _ := loadedStore(newPaper(1, 0))

	_ = once.UpdateMCQAnswer(0, "A")
	_ = twice.UpdateMCQAnswer(0, "A")
	_ = twice.UpdateMCQAnswer(0, "A")

	id1, _ := once.MCQID(0)
	id2, _ := twice.MCQID(0)
	p1, _ := once.Progress(id1)
	p2, _ := twice.Progress(id2)
	if p1 != p2 || p2 != (Progress{Answer: "A", Answered: true}) {
		t.Errorf("once=%+v twice=%+v", p1, p2)
	}
}

func TestUpdateMCQAnswerOutOfRange(t *testing.T) {
	store, _ := loadedStore(newPaper(2, 0))
	for _, idx := range []int{-1, 2, 10} {
		if err := store.UpdateMCQAnswer(idx, "A"); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("index %d err = %v", idx, err)
		}
	}
}

func TestUpdateCodingAnswerTargetsCurrentQuestion(t *testing.T) {
	paper := newPaper(1, 2)
	store, _ := loadedStore(paper)
	nav := NewNavigator(store)

	summary := &model.TestCaseSummary{Passed: 3, Total: 5}
	if err := store.UpdateCodingAnswer(CodingAnswer{TestCaseSummary: summary}); !errors.Is(err, ErrNoCodingQuestion) {
		t.Fatalf("update on MCQ cursor err = %v", err)
	}

	moveTo(nav, Cursor{List: ListCoding, Index: 1})
	if err := store.UpdateCodingAnswer(CodingAnswer{Source: "print(1)", TestCaseSummary: summary}); err != nil {
		t.Fatal(err)
	}
	// A later merge without a summary keeps the earlier one.
	if err := store.UpdateCodingAnswer(CodingAnswer{Language: "python"}); err != nil {
		t.Fatal(err)
	}

	first, _ := store.Progress(paper.Subjects[0].CodingQuestions[0].ID)
	if first.Answered {
		t.Errorf("coding[0] touched: %+v", first)
	}
	second, _ := store.Progress(paper.Subjects[0].CodingQuestions[1].ID)
	if !second.Answered || second.TestCaseSummary == nil || second.TestCaseSummary.Passed != 3 {
		t.Errorf("coding[1] = %+v", second)
	}
	if second.Source != "print(1)" || second.Language != "python" {
		t.Errorf("merge lost fields: %+v", second)
	}

	summary.Passed = 0
	if again, _ := store.Progress(paper.Subjects[0].CodingQuestions[1].ID); again.TestCaseSummary.Passed != 3 {
		t.Error("store aliases the caller's summary")
	}
}

func TestMarkCurrentForReview(t *testing.T) {
	paper := newPaper(2, 1)
	store, _ := loadedStore(paper)
	nav := NewNavigator(store)

	nav.Next()
	if err := store.MarkCurrentForReview(); err != nil {
		t.Fatal(err)
	}
	nav.Next()
	if err := store.MarkCurrentForReview(); err != nil {
		t.Fatal(err)
	}

	subj := paper.Subjects[0]
	cases := []struct {
		id   uuid.UUID
		want bool
	}{
		{subj.MCQQuestions[0].ID, false},
		{subj.MCQQuestions[1].ID, true},
		{subj.CodingQuestions[0].ID, true},
	}
	for _, c := range cases {
		p, _ := store.Progress(c.id)
		if p.MarkedForReview != c.want {
			t.Errorf("question %v marked=%v, want %v", c.id, p.MarkedForReview, c.want)
		}
	}
}

func TestMarkForReviewWithoutQuestions(t *testing.T) {
	store, _ := loadedStore(newPaper(0, 0))
	if err := store.MarkCurrentForReview(); !errors.Is(err, ErrNoCurrentQuestion) {
		t.Errorf("err = %v", err)
	}
}

func TestTotalScoreIgnoresAnswers(t *testing.T) {
	paper := &model.ExamPaper{
		ID: uuid.New(),
		Subjects: []model.Subject{{
			MCQQuestions:    []model.MCQQuestion{mcq(5), mcq(5)},
			CodingQuestions: []model.CodingQuestion{coding(10)},
		}},
	}
	store, _ := loadedStore(paper)
	if got := store.TotalScore(); got != 20 {
		t.Fatalf("total = %d, want 20", got)
	}
	_ = store.UpdateMCQAnswer(0, "C")
	if got := store.TotalScore(); got != 20 {
		t.Errorf("total after answer = %d, want 20", got)
	}
}

func TestStudentExamIDDefaultsToPaperID(t *testing.T) {
	paper := newPaper(1, 0)
	store, _ := loadedStore(paper)
	if store.StudentExamID() != paper.ID {
		t.Errorf("default id = %v, want %v", store.StudentExamID(), paper.ID)
	}

	sid := uuid.New()
	withSession := newPaper(1, 0)
	withSession.StudentExamID = &sid
	store2, _ := loadedStore(withSession)
	if store2.StudentExamID() != sid {
		t.Errorf("session id = %v, want %v", store2.StudentExamID(), sid)
	}
}

func TestRestoreProgress(t *testing.T) {
	paper := newPaper(2, 0)
	store, _ := loadedStore(paper)
	_ = store.MarkCurrentForReview()

	first := paper.Subjects[0].MCQQuestions[0].ID
	store.RestoreProgress(map[uuid.UUID]Progress{
		first:      {Answer: "D", Answered: true},
		uuid.New(): {Answer: "X", Answered: true},
	})

	p, _ := store.Progress(first)
	if p.Answer != "D" || !p.Answered || !p.MarkedForReview {
		t.Errorf("restored = %+v", p)
	}
}

func TestClearClosesSession(t *testing.T) {
	store, persist := loadedStore(newPaper(1, 0))
	if err := store.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if persist.has("record") {
		t.Error("record still persisted")
	}
	if err := store.UpdateMCQAnswer(0, "A"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("update after clear err = %v", err)
	}
}
