package websocket

import (
	"github.com/stemsi/exstem-runner/internal/examsession"
	"github.com/stemsi/exstem-runner/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionRunCode  Action = "run_code"
	ActionReview   Action = "review"
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is every client message. Fields unused by an action are ignored.
type Request struct {
	Action   Action `json:"action"`
	Index    int    `json:"index"`
	Answer   string `json:"answer"`
	Language string `json:"language"`
	Source   string `json:"source"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession    Event = "session"
	EventSaved      Event = "saved"
	EventCursor     Event = "cursor"
	EventRunResult  Event = "run_result"
	EventSubmitting Event = "submitting"
	EventSubmitted  Event = "submitted"
	EventExpired    Event = "expired"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

type SessionResponse struct {
	Event   Event             `json:"event"`
	Resumed bool              `json:"resumed"`
	Session *examsession.View `json:"session"`
}

type SavedResponse struct {
	Event    Event                 `json:"event"`
	Progress *examsession.Progress `json:"progress"`
}

type CursorResponse struct {
	Event  Event              `json:"event"`
	Cursor examsession.Cursor `json:"cursor"`
}

type RunResultResponse struct {
	Event   Event                  `json:"event"`
	Summary *model.TestCaseSummary `json:"summary"`
}

type SubmittedResponse struct {
	Event  Event                   `json:"event"`
	Result *model.SubmissionResult `json:"result"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// EventResponse is an event without a body, such as pong.
type EventResponse struct {
	Event Event `json:"event"`
}
