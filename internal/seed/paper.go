// Package seed reads authored exam papers from YAML fixtures.
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/stemsi/exstem-runner/internal/model"
	"gopkg.in/yaml.v3"
)

// PaperFile is the YAML layout of one exam fixture.
type PaperFile struct {
	Title           string        `yaml:"title"`
	DurationMinutes int           `yaml:"duration_minutes"`
	Publish         bool          `yaml:"publish"`
	Subjects        []SubjectFile `yaml:"subjects"`
}

type SubjectFile struct {
	Name      string         `yaml:"name"`
	Questions []QuestionFile `yaml:"questions"`
}

// QuestionFile holds either an MCQ or a coding question, told apart by Kind.
type QuestionFile struct {
	Kind   string `yaml:"kind"`
	Prompt string `yaml:"prompt"`
	Points int    `yaml:"points"`

	// mcq
	Options []string `yaml:"options"`
	Correct string   `yaml:"correct"`

	// coding
	Constraints  string     `yaml:"constraints"`
	SampleInput  string     `yaml:"sample_input"`
	SampleOutput string     `yaml:"sample_output"`
	HiddenTests  []TestFile `yaml:"hidden_tests"`
}

type TestFile struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

var ErrInvalidFixture = errors.New("invalid paper fixture")

// LoadPaperFile reads and converts the fixture at path.
func LoadPaperFile(path string) (*model.PaperDraft, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParsePaper(f)
}

// ParsePaper decodes a fixture and converts it into a draft ready for
// ExamRepository.CreatePaper. Unknown keys are rejected.
func ParsePaper(r io.Reader) (*model.PaperDraft, error) {
	var pf PaperFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return pf.Draft()
}

// Draft validates the fixture and converts it.
func (pf *PaperFile) Draft() (*model.PaperDraft, error) {
	if strings.TrimSpace(pf.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidFixture)
	}
	if pf.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidFixture)
	}

	draft := &model.PaperDraft{
		Exam: model.Exam{
			Title:           pf.Title,
			DurationMinutes: pf.DurationMinutes,
			Status:          model.ExamStatusDraft,
		},
	}
	if pf.Publish {
		draft.Exam.Status = model.ExamStatusPublished
	}

	for si, sf := range pf.Subjects {
		subj := model.SubjectDraft{Name: sf.Name}
		for qi, qf := range sf.Questions {
			q, err := qf.question()
			if err != nil {
				return nil, fmt.Errorf("%w: subject %d question %d: %w", ErrInvalidFixture, si, qi, err)
			}
			subj.Questions = append(subj.Questions, *q)
		}
		draft.Subjects = append(draft.Subjects, subj)
	}
	return draft, nil
}

func (qf *QuestionFile) question() (*model.Question, error) {
	if qf.Points < 0 {
		return nil, errors.New("points must not be negative")
	}
	q := &model.Question{Prompt: qf.Prompt, Points: qf.Points}

	switch strings.ToLower(qf.Kind) {
	case "mcq":
		if len(qf.Options) < 2 {
			return nil, errors.New("mcq needs at least two options")
		}
		if qf.Correct == "" {
			return nil, errors.New("mcq needs a correct option")
		}
		opts, err := json.Marshal(qf.Options)
		if err != nil {
			return nil, err
		}
		q.Kind = model.QuestionKindMCQ
		q.Options = opts
		q.CorrectOption = qf.Correct

	case "coding":
		q.Kind = model.QuestionKindCoding
		q.Constraints = qf.Constraints
		q.SampleInput = qf.SampleInput
		q.SampleOutput = qf.SampleOutput
		q.HiddenTests = make([]model.TestCase, 0, len(qf.HiddenTests))
		for _, t := range qf.HiddenTests {
			q.HiddenTests = append(q.HiddenTests, model.TestCase{Input: t.Input, ExpectedOutput: t.Output})
		}

	default:
		return nil, fmt.Errorf("unknown kind %q", qf.Kind)
	}
	return q, nil
}
