package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/judge"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
)

// errorMapping pairs a domain error with its HTTP status and API code.
// Order matters: wrapped errors match the first entry they satisfy.
var errorMapping = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrExamNotPublished, http.StatusForbidden, response.ErrExamNotPublished},
	{service.ErrNoQuestions, http.StatusUnprocessableEntity, response.ErrNoQuestions},
	{service.ErrSessionCompleted, http.StatusConflict, response.ErrSessionCompleted},
	{service.ErrAlreadySubmitted, http.StatusConflict, response.ErrSessionCompleted},
	{service.ErrNoLiveSession, http.StatusNotFound, response.ErrSessionNotStarted},
	{service.ErrNoResult, http.StatusNotFound, response.ErrNoResult},
	{service.ErrAutosaveFailed, http.StatusServiceUnavailable, response.ErrAutosaveFailed},
	{judge.ErrJudgeUnavailable, http.StatusServiceUnavailable, response.ErrJudgeUnavailable},
	{examsession.ErrSessionClosed, http.StatusConflict, response.ErrSessionClosed},
	{examsession.ErrIndexOutOfRange, http.StatusBadRequest, response.ErrIndexOutOfRange},
	{examsession.ErrNoCodingQuestion, http.StatusConflict, response.ErrNotCodingQuestion},
	{examsession.ErrNoCurrentQuestion, http.StatusConflict, response.ErrNoCurrentQuestion},
	{examsession.ErrInvalidPaper, http.StatusUnprocessableEntity, response.ErrLoadFailed},
	{examsession.ErrLoadFailed, http.StatusBadGateway, response.ErrLoadFailed},
	{examsession.ErrSubmissionFailed, http.StatusBadGateway, response.ErrSubmissionFailed},
}

// classify maps err onto an HTTP status and API error code.
// Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}
