package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsIncoming is a message from the client. Type is "submit" or "hint".
type wsIncoming struct {
	Type     string `json:"type"`
	Code     string `json:"code"`
	Question string `json:"question"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type      string             `json:"type"`
	Content   string             `json:"content,omitempty"`
	Name      string             `json:"name,omitempty"`
	Args      any                `json:"args,omitempty"`
	Verdict   *evaluator.Verdict `json:"verdict,omitempty"`
	Report    *evaluator.Report  `json:"report,omitempty"`
	AttemptID string             `json:"attempt_id,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	log  *zap.Logger
}

func (c *wsConn) send(v wsOutgoing) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("websocket marshal", zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Debug("websocket write", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	l, err := s.catalog.Get(chi.URLParam(r, "ref"))
	if err != nil {
		http.Error(w, err.Error(), lookupStatus(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn, log: s.log.With(zap.String("level", l.ID))}

	// Cancelled when the connection closes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.Debug("websocket read", zap.Error(err))
			}
			return
		}

		switch {
		case msg.Type == "submit" && msg.Code != "":
			s.processSubmission(ctx, ws, l, msg.Code)
		case msg.Type == "hint" && (msg.Code != "" || msg.Question != ""):
			s.processHint(ctx, ws, l, hintRequest{Code: msg.Code, Question: msg.Question})
		default:
			ws.send(wsOutgoing{Type: "error", Content: "invalid message"})
		}
	}
}

// processSubmission streams one verdict message per test case, then "done",
// "rejected" or "error".
func (s *Server) processSubmission(ctx context.Context, ws *wsConn, l *level.Level, code string) {
	if len(code) > maxCodeBytes {
		ws.send(wsOutgoing{Type: "error", Content: "code is too large"})
		return
	}

	report, err := s.eval.EvaluateStreaming(ctx, code, l.FunctionName, l.TestCases, func(v evaluator.Verdict) {
		ws.send(wsOutgoing{Type: "verdict", Verdict: &v})
	})
	if err != nil {
		ws.send(wsOutgoing{Type: "error", Content: err.Error()})
		return
	}

	out := wsOutgoing{Type: "done", Report: report, Content: report.Summary()}
	if report.Status == evaluator.StatusRejected {
		out.Type = "rejected"
	}
	if a, err := s.recordAttempt(ctx, l, code, report); err != nil {
		ws.log.Error("recording attempt", zap.Error(err))
	} else {
		out.AttemptID = a.ID
	}
	ws.send(out)
}

func (s *Server) processHint(ctx context.Context, ws *wsConn, l *level.Level, req hintRequest) {
	if !s.tutors.Enabled() {
		ws.send(wsOutgoing{Type: "error", Content: "tutor is not configured"})
		return
	}
	at, err := s.tutors.GetOrCreate(ctx, l)
	if err != nil {
		ws.send(wsOutgoing{Type: "error", Content: "initializing tutor: " + err.Error()})
		return
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	hctx, cancel := context.WithCancel(ctx)
	at.Cancel = cancel
	defer func() {
		cancel()
		at.Cancel = nil
	}()

	at.Tutor.OnTextDelta = func(delta string) {
		ws.send(wsOutgoing{Type: "text_delta", Content: delta})
	}
	at.Tutor.OnToolCall = func(name string, args map[string]any) {
		ws.send(wsOutgoing{Type: "tool_call", Name: name, Args: args})
	}
	at.Tutor.OnToolResult = func(name string, result string) {
		ws.send(wsOutgoing{Type: "tool_result", Name: name, Content: result})
	}
	defer func() {
		at.Tutor.OnTextDelta, at.Tutor.OnToolCall, at.Tutor.OnToolResult = nil, nil, nil
	}()

	answer, err := s.askTutor(hctx, at, req)

	if saveErr := s.tutors.Save(context.Background(), l.ID, at); saveErr != nil {
		ws.log.Error("saving conversation", zap.Error(saveErr))
	}
	if err != nil {
		if hctx.Err() != nil {
			ws.send(wsOutgoing{Type: "error", Content: "interrupted"})
		} else {
			ws.send(wsOutgoing{Type: "error", Content: err.Error()})
		}
		return
	}
	ws.send(wsOutgoing{Type: "done", Content: answer})
}
