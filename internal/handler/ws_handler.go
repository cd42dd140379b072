package handler

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
	"github.com/stemsi/exstem-runner/internal/validator"
	ws "github.com/stemsi/exstem-runner/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler drives an exam session over a WebSocket.
type WSHandler struct {
	runner   *service.RunnerService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(runner *service.RunnerService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		runner:   runner,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsSession is the per-connection state of ExamWebSocketStream.
type wsSession struct {
	conn      *ws.Conn
	studentID int
	examID    uuid.UUID
	log       zerolog.Logger
	// submitted is set once this connection asked for the submission, so the
	// deadline watcher does not report it as expired.
	submitted atomic.Bool
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Starts or resumes the session, then serves navigation, answers, code runs
// and submission until the connection closes.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	studentID, examID, ok := studentAndExam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	start, err := h.runner.Start(ctx, studentID, examID)
	if err != nil {
		failWith(c, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	s := &wsSession{
		conn:      conn,
		studentID: studentID,
		examID:    examID,
		log: h.log.With().
			Int("student_id", studentID).
			Str("exam_id", examID.String()).
			Logger(),
	}
	s.log.Info().Bool("resumed", start.Resumed).Msg("Student connected")

	if err := conn.WriteTyped(ws.SessionResponse{Event: ws.EventSession, Resumed: start.Resumed, Session: start.Session}); err != nil {
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go h.watchDeadline(ctx, s, h.runner.Done(studentID, examID), stop)

	for {
		req, err := conn.ReadRequest()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		if finished := h.dispatch(ctx, s, req); finished {
			h.closeNormally(conn)
			return
		}
	}
}

// dispatch serves one client request and reports whether the session ended.
func (h *WSHandler) dispatch(ctx context.Context, s *wsSession, req *ws.Request) bool {
	switch req.Action {
	case ws.ActionAnswer:
		in := model.AnswerMCQRequest{Index: req.Index, Answer: req.Answer}
		if !h.validate(s, &in) {
			return false
		}
		p, err := h.runner.AnswerMCQ(ctx, s.studentID, s.examID, in.Index, in.Answer)
		if err != nil {
			h.writeErr(s, err)
			return false
		}
		s.conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Progress: p})

	case ws.ActionRunCode:
		in := model.RunCodeRequest{Language: req.Language, Source: req.Source}
		if !h.validate(s, &in) {
			return false
		}
		summary, err := h.runner.RunCode(ctx, s.studentID, s.examID, in.Language, in.Source)
		if err != nil && summary == nil {
			h.writeErr(s, err)
			return false
		}
		s.conn.WriteTyped(ws.RunResultResponse{Event: ws.EventRunResult, Summary: summary})
		if err != nil {
			h.writeErr(s, err)
		}

	case ws.ActionReview:
		p, err := h.runner.MarkReview(ctx, s.studentID, s.examID)
		if err != nil {
			h.writeErr(s, err)
			return false
		}
		s.conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Progress: p})

	case ws.ActionNext, ws.ActionPrevious:
		move := h.runner.Next
		if req.Action == ws.ActionPrevious {
			move = h.runner.Previous
		}
		cur, err := move(s.studentID, s.examID)
		if err != nil {
			h.writeErr(s, err)
			return false
		}
		s.conn.WriteTyped(ws.CursorResponse{Event: ws.EventCursor, Cursor: cur})

	case ws.ActionSubmit:
		s.submitted.Store(true)
		res, _, err := h.runner.Submit(ctx, s.studentID, s.examID)
		if err != nil {
			s.submitted.Store(false)
			h.writeErr(s, err)
			return false
		}
		if res == nil {
			s.conn.WriteTyped(ws.EventResponse{Event: ws.EventSubmitting})
			return false
		}
		s.conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventSubmitted, Result: res})
		s.log.Info().Float64("score", res.Score).Msg("Exam submitted")
		return true

	case ws.ActionPing:
		s.conn.WriteTyped(ws.EventResponse{Event: ws.EventPong})

	default:
		s.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		s.conn.WriteError(string(response.ErrUnknownAction), response.GetMessage(response.ErrUnknownAction), nil)
	}
	return false
}

// validate runs the binding rules of in and reports field errors to the client.
func (h *WSHandler) validate(s *wsSession, in interface{}) bool {
	if err := binding.Validator.ValidateStruct(in); err != nil {
		fields := validator.TranslateErrors(err)
		s.conn.WriteError(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
		return false
	}
	return true
}

func (h *WSHandler) writeErr(s *wsSession, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("Action failed")
	}
	s.conn.WriteError(string(code), response.GetMessage(code), nil)
}

// watchDeadline tells the client when the session was submitted by the
// deadline timer, then closes the connection.
func (h *WSHandler) watchDeadline(ctx context.Context, s *wsSession, done <-chan struct{}, stop <-chan struct{}) {
	select {
	case <-stop:
		return
	case <-done:
	}
	if s.submitted.Load() {
		return
	}

	res, err := h.runner.Result(ctx, s.studentID, s.examID)
	if err != nil {
		s.log.Warn().Err(err).Msg("Session ended without a stored result")
		h.closeNormally(s.conn)
		return
	}
	s.log.Info().Float64("score", res.Score).Msg("Exam time expired, submission pushed to client")
	s.conn.WriteTyped(ws.SubmittedResponse{Event: ws.EventExpired, Result: res})
	h.closeNormally(s.conn)
}

func (h *WSHandler) closeNormally(conn *ws.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
