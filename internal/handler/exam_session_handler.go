package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/middleware"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
)

// ExamSessionHandler exposes the student's exam session over HTTP.
type ExamSessionHandler struct {
	runner *service.RunnerService
}

// NewExamSessionHandler creates a new ExamSessionHandler.
func NewExamSessionHandler(runner *service.RunnerService) *ExamSessionHandler {
	return &ExamSessionHandler{runner: runner}
}

// studentAndExam reads the caller and the exam_id path parameter, writing
// the error response itself when either is missing.
func studentAndExam(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, examID, true
}

func failWith(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/session
// Starts the exam, or resumes it when the student already entered.
func (h *ExamSessionHandler) StartSession(c *gin.Context) {
	studentID, examID, ok := studentAndExam(c)
	if !ok {
		return
	}

	res, err := h.runner.Start(c.Request.Context(), studentID, examID)
	if err != nil {
		failWith(c, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// GetSession godoc
// GET /api/v1/student/exams/:exam_id/session
// Returns the current view of a started session.
func (h *ExamSessionHandler) GetSession(c *gin.Context) {
	studentID, examID, ok := studentAndExam(c)
	if !ok {
		return
	}

	view, err := h.runner.View(studentID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": view})
}

// AbandonSession godoc
// DELETE /api/v1/student/exams/:exam_id/session
// Drops the live session without submitting.
func (h *ExamSessionHandler) AbandonSession(c *gin.Context) {
	studentID, examID, ok := studentAndExam(c)
	if !ok {
		return
	}

	if err := h.runner.Abandon(c.Request.Context(), studentID, examID); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "abandoned"})
}

// SubmitSession godoc
// POST /api/v1/student/exams/:exam_id/submit
// Submits the answer set. 202 means another submission is still in flight.
func (h *ExamSessionHandler) SubmitSession(c *gin.Context) {
	studentID, examID, ok := studentAndExam(c)
	if !ok {
		return
	}

	res, dispatched, err := h.runner.Submit(c.Request.Context(), studentID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	if res == nil {
		response.Success(c, http.StatusAccepted, gin.H{"status": "submitting"})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res, "dispatched": dispatched})
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the graded outcome of a submitted exam.
func (h *ExamSessionHandler) GetResult(c *gin.Context) {
	studentID, examID, ok := studentAndExam(c)
	if !ok {
		return
	}

	res, err := h.runner.Result(c.Request.Context(), studentID, examID)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}
