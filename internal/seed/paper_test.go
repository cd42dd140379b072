package seed

import (
	"errors"
	"strings"
	"testing"

	"github.com/stemsi/exstem-runner/internal/model"
)

const fixture = `
title: Seleksi OSN Informatika
duration_minutes: 120
publish: true
subjects:
  - name: Logika
    questions:
      - kind: mcq
        prompt: "Jika p benar dan q salah, p AND q bernilai?"
        options: ["Benar", "Salah"]
        correct: B
        points: 2
  - name: Pemrograman
    questions:
      - kind: coding
        prompt: Jumlahkan dua bilangan.
        sample_input: "1 2"
        sample_output: "3"
        hidden_tests:
          - input: "5 7"
            output: "12"
        points: 10
  - name: Kosong
`

func TestParsePaper(t *testing.T) {
	draft, err := ParsePaper(strings.NewReader(fixture))
	if err != nil {
		t.Fatal(err)
	}

	if draft.Exam.Status != model.ExamStatusPublished || draft.Exam.DurationMinutes != 120 {
		t.Errorf("exam = %+v", draft.Exam)
	}
	if len(draft.Subjects) != 3 {
		t.Fatalf("subjects = %d", len(draft.Subjects))
	}

	mcq := draft.Subjects[0].Questions[0]
	if mcq.Kind != model.QuestionKindMCQ || mcq.CorrectOption != "B" || string(mcq.Options) != `["Benar","Salah"]` {
		t.Errorf("mcq = %+v", mcq)
	}

	coding := draft.Subjects[1].Questions[0]
	if coding.Kind != model.QuestionKindCoding || len(coding.HiddenTests) != 1 || coding.HiddenTests[0].ExpectedOutput != "12" {
		t.Errorf("coding = %+v", coding)
	}
	if len(draft.Subjects[2].Questions) != 0 {
		t.Error("empty subject gained questions")
	}
}

func TestParsePaperRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no title", "duration_minutes: 10\n"},
		{"no duration", "title: x\n"},
		{"unknown key", "title: x\nduration_minutes: 10\nshuffle: true\n"},
		{"unknown kind", "title: x\nduration_minutes: 10\nsubjects:\n  - name: a\n    questions:\n      - kind: essay\n"},
		{"mcq without key", "title: x\nduration_minutes: 10\nsubjects:\n  - name: a\n    questions:\n      - kind: mcq\n        options: [a, b]\n"},
		{"negative points", "title: x\nduration_minutes: 10\nsubjects:\n  - name: a\n    questions:\n      - kind: coding\n        points: -1\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePaper(strings.NewReader(tc.doc)); !errors.Is(err, ErrInvalidFixture) {
				t.Errorf("err = %v, want ErrInvalidFixture", err)
			}
		})
	}
}
