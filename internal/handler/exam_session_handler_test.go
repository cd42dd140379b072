package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/middleware"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/service"
)

type kvStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *kvStore) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *kvStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *kvStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type nopArchive struct{}

func (nopArchive) SaveProgress(context.Context, uuid.UUID, int, uuid.UUID, examsession.Progress) error {
	return nil
}

func (nopArchive) LoadProgress(context.Context, uuid.UUID, int) (map[uuid.UUID]examsession.Progress, error) {
	return nil, nil
}

func (nopArchive) Discard(context.Context, uuid.UUID, int) error { return nil }

type onePaper struct{ paper model.ExamPaper }

func (f *onePaper) FetchPaper(_ context.Context, examID uuid.UUID, _ int) (*model.ExamPaper, error) {
	if examID != f.paper.ID {
		return nil, service.ErrExamNotFound
	}
	p := f.paper
	return &p, nil
}

type countingGrader struct{}

func (countingGrader) SubmitAnswers(_ context.Context, p *examsession.Payload) (*model.SubmissionResult, error) {
	return &model.SubmissionResult{ExamID: p.ExamID, StudentExamID: p.StudentExamID, Answered: len(p.Answers), Score: 3}, nil
}

type noJudge struct{}

func (noJudge) Run(context.Context, model.CodingQuestion, string, string) (*model.TestCaseSummary, error) {
	return &model.TestCaseSummary{}, nil
}

func newSessionRouter(t *testing.T) (*gin.Engine, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sid := uuid.New()
	paper := model.ExamPaper{
		ID:              uuid.New(),
		Title:           "Try Out",
		DurationMinutes: 60,
		StudentExamID:   &sid,
		StartedAt:       time.Now(),
		Subjects: []model.Subject{{
			Name: "Matematika",
			MCQQuestions: []model.MCQQuestion{
				{ID: uuid.New(), Prompt: "1+1", Options: json.RawMessage(`["1","2"]`), Points: 3},
			},
		}},
	}

	runner := service.NewRunnerService(
		&onePaper{paper: paper}, countingGrader{}, noJudge{},
		&kvStore{data: make(map[string][]byte)}, nopArchive{}, zerolog.Nop(),
	)
	t.Cleanup(runner.Shutdown)

	h := NewExamSessionHandler(runner)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 21})
		c.Next()
	})
	r.POST("/exams/:exam_id/session", h.StartSession)
	r.GET("/exams/:exam_id/session", h.GetSession)
	r.DELETE("/exams/:exam_id/session", h.AbandonSession)
	r.POST("/exams/:exam_id/submit", h.SubmitSession)
	r.GET("/exams/:exam_id/result", h.GetResult)
	return r, paper.ID
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func call(t *testing.T, r *gin.Engine, method, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: bad body %q", method, path, rec.Body.String())
	}
	return rec.Code, env
}

func TestExamSessionLifecycle(t *testing.T) {
	r, examID := newSessionRouter(t)
	base := "/exams/" + examID.String()

	steps := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"view before start", http.MethodGet, base + "/session", http.StatusNotFound, "SESSION_NOT_STARTED"},
		{"result before submit", http.MethodGet, base + "/result", http.StatusNotFound, "NO_RESULT"},
		{"start", http.MethodPost, base + "/session", http.StatusCreated, ""},
		{"start again resumes", http.MethodPost, base + "/session", http.StatusOK, ""},
		{"view", http.MethodGet, base + "/session", http.StatusOK, ""},
		{"submit", http.MethodPost, base + "/submit", http.StatusOK, ""},
		{"submit again returns stored result", http.MethodPost, base + "/submit", http.StatusOK, ""},
		{"result", http.MethodGet, base + "/result", http.StatusOK, ""},
		{"restart after submit", http.MethodPost, base + "/session", http.StatusConflict, "SESSION_COMPLETED"},
		{"abandon after submit", http.MethodDelete, base + "/session", http.StatusNotFound, "SESSION_NOT_STARTED"},
	}

	for _, s := range steps {
		status, env := call(t, r, s.method, s.path)
		if status != s.wantStatus {
			t.Fatalf("%s: status = %d, want %d", s.name, status, s.wantStatus)
		}
		gotCode := ""
		if env.Error != nil {
			gotCode = env.Error.Code
		}
		if gotCode != s.wantCode {
			t.Errorf("%s: code = %q, want %q", s.name, gotCode, s.wantCode)
		}
	}
}

func TestExamSessionBadRequests(t *testing.T) {
	r, _ := newSessionRouter(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"malformed exam id", "/exams/not-a-uuid/session", http.StatusBadRequest, "INVALID_ID"},
		{"unknown exam", "/exams/" + uuid.NewString() + "/session", http.StatusNotFound, "EXAM_NOT_FOUND"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, env := call(t, r, http.MethodPost, tc.path)
			if status != tc.wantStatus || env.Error == nil || env.Error.Code != tc.wantCode {
				t.Errorf("got %d %+v, want %d %s", status, env.Error, tc.wantStatus, tc.wantCode)
			}
		})
	}
}

func TestAbandonDropsSession(t *testing.T) {
	r, examID := newSessionRouter(t)
	base := "/exams/" + examID.String()

	if status, _ := call(t, r, http.MethodPost, base+"/session"); status != http.StatusCreated {
		t.Fatalf("start status = %d", status)
	}
	if status, _ := call(t, r, http.MethodDelete, base+"/session"); status != http.StatusOK {
		t.Fatalf("abandon status = %d", status)
	}
	if status, _ := call(t, r, http.MethodGet, base+"/session"); status != http.StatusNotFound {
		t.Errorf("view after abandon = %d", status)
	}
	if status, _ := call(t, r, http.MethodPost, base+"/session"); status != http.StatusCreated {
		t.Errorf("restart after abandon = %d", status)
	}
}
