package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"completed session", service.ErrSessionCompleted, http.StatusConflict, response.ErrSessionCompleted},
		{"exam missing behind load failure",
			fmt.Errorf("%w: %w", examsession.ErrLoadFailed, service.ErrExamNotFound),
			http.StatusNotFound, response.ErrExamNotFound},
		{"completed behind load failure",
			fmt.Errorf("%w: %w", examsession.ErrLoadFailed, service.ErrSessionCompleted),
			http.StatusConflict, response.ErrSessionCompleted},
		{"bare load failure",
			fmt.Errorf("%w: %w", examsession.ErrLoadFailed, errors.New("dial tcp: refused")),
			http.StatusBadGateway, response.ErrLoadFailed},
		{"grader down",
			fmt.Errorf("%w: %w", examsession.ErrSubmissionFailed, errors.New("redis: connection reset")),
			http.StatusBadGateway, response.ErrSubmissionFailed},
		{"out of range", examsession.ErrIndexOutOfRange, http.StatusBadRequest, response.ErrIndexOutOfRange},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, code := classify(tc.err)
			if status != tc.wantStatus || code != tc.wantCode {
				t.Errorf("classify(%v) = %d %s, want %d %s", tc.err, status, code, tc.wantStatus, tc.wantCode)
			}
		})
	}
}
