package validator

import (
	"errors"
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stemsi/exstem-runner/internal/model"
)

func TestTranslateErrors(t *testing.T) {
	Setup("en")

	tests := []struct {
		name       string
		in         interface{}
		wantFields []string
	}{
		{"valid answer", &model.AnswerMCQRequest{Index: 0, Answer: "B"}, nil},
		{"missing answer", &model.AnswerMCQRequest{Index: 1}, []string{"answer"}},
		{"negative index", &model.AnswerMCQRequest{Index: -1, Answer: "A"}, []string{"index"}},
		{"unknown language", &model.RunCodeRequest{Language: "cobol", Source: "x"}, []string{"language"}},
		{"empty run", &model.RunCodeRequest{}, []string{"language", "source"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(tc.in)
			if len(tc.wantFields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			fields := TranslateErrors(err)
			if len(fields) != len(tc.wantFields) {
				t.Fatalf("fields = %v, want %v", fields, tc.wantFields)
			}
			for _, f := range tc.wantFields {
				if fields[f] == "" {
					t.Errorf("missing message for %q in %v", f, fields)
				}
			}
		})
	}
}

func TestTranslateNonValidationError(t *testing.T) {
	fields := TranslateErrors(errors.New("unexpected EOF"))
	if fields["detail"] != "unexpected EOF" {
		t.Errorf("fields = %v", fields)
	}
}
