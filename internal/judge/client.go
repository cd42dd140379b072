// Package judge talks to the external code-execution service that runs
// candidate programs against a coding question's test cases.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/model"
)

// Verdict codes reported per test case.
const (
	VerdictAccepted      = "AC"
	VerdictWrongAnswer   = "WA"
	VerdictTimeLimit     = "TLE"
	VerdictRuntimeError  = "RTE"
	VerdictInternalError = "IER"
)

// ErrJudgeUnavailable is returned when the execution service cannot be
// reached or answers with a server error.
var ErrJudgeUnavailable = errors.New("code execution service unavailable")

// maxResponseBytes bounds the report read from the service.
const maxResponseBytes = 4 << 20

// Client runs source code through the execution service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Client.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "judge_client").Logger(),
	}
}

type runRequest struct {
	Language string     `json:"language"`
	Source   string     `json:"source"`
	Tests    []testCase `json:"tests"`
}

type testCase struct {
	ID             string `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

type executionReport struct {
	Results []testResult `json:"results"`
}

type testResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	TimeMS  int64  `json:"time_ms"`
	Output  string `json:"output,omitempty"`
	Message string `json:"message,omitempty"`
}

// Run executes source against the sample test of q followed by its hidden
// tests. Output of hidden tests is never returned.
func (c *Client) Run(ctx context.Context, q model.CodingQuestion, language, source string) (*model.TestCaseSummary, error) {
	tests, hidden := buildTests(q)
	if len(tests) == 0 {
		return &model.TestCaseSummary{Results: []model.TestCaseResult{}}, nil
	}

	body, err := json.Marshal(runRequest{Language: language, Source: source, Tests: tests})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJudgeUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrJudgeUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge rejected run: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var report executionReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}

	summary := summarize(report, len(tests), hidden)
	c.log.Debug().
		Str("question_id", q.ID.String()).
		Str("language", language).
		Int("passed", summary.Passed).
		Int("total", summary.Total).
		Dur("elapsed", time.Since(start)).
		Msg("Code run finished")
	return summary, nil
}

// buildTests lists the sample test, when present, then the hidden tests.
// hidden[i] reports whether tests[i] is hidden.
func buildTests(q model.CodingQuestion) (tests []testCase, hidden []bool) {
	if q.SampleInput != "" || q.SampleOutput != "" {
		tests = append(tests, testCase{ID: "0", Input: q.SampleInput, ExpectedOutput: q.SampleOutput})
		hidden = append(hidden, false)
	}
	for _, tc := range q.HiddenTests {
		tests = append(tests, testCase{
			ID:             strconv.Itoa(len(tests)),
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
		hidden = append(hidden, true)
	}
	return tests, hidden
}

// summarize maps the report onto the submitted tests. Tests the report
// leaves out count as failed with an internal error verdict.
func summarize(report executionReport, total int, hidden []bool) *model.TestCaseSummary {
	byID := make(map[string]testResult, len(report.Results))
	for _, r := range report.Results {
		byID[r.ID] = r
	}

	summary := &model.TestCaseSummary{Total: total, Results: make([]model.TestCaseResult, total)}
	for i := 0; i < total; i++ {
		r, ok := byID[strconv.Itoa(i)]
		if !ok {
			r = testResult{Status: VerdictInternalError}
		}
		res := model.TestCaseResult{
			Index:   i,
			Passed:  r.Status == VerdictAccepted,
			Hidden:  hidden[i],
			Verdict: r.Status,
		}
		if !res.Hidden {
			res.Output = r.Output
		}
		if res.Passed {
			summary.Passed++
		}
		summary.Results[i] = res
	}
	return summary
}
