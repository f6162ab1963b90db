package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/storage"
)

const maxCodeBytes = 64 << 10

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCodeBytes+1024)).Decode(v)
}

// lookupStatus maps catalog and store lookup errors to HTTP status codes.
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, level.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, level.ErrAmbiguous), errors.Is(err, storage.ErrAmbiguous):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) level(w http.ResponseWriter, r *http.Request) (*level.Level, bool) {
	l, err := s.catalog.Get(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return nil, false
	}
	return l, true
}

// --- Level handlers ---

// levelView is a level as shown to learners: no solution, no test cases.
type levelView struct {
	ID           string           `json:"id"`
	Number       int              `json:"number"`
	Title        string           `json:"title"`
	Difficulty   level.Difficulty `json:"difficulty"`
	Concept      string           `json:"concept"`
	Story        string           `json:"story,omitempty"`
	OracleSays   string           `json:"oracle_says,omitempty"`
	Description  string           `json:"description"`
	FunctionName string           `json:"function_name"`
	Example      string           `json:"example,omitempty"`
	Starter      string           `json:"starter"`
	Tests        int              `json:"tests"`
	XPReward     int              `json:"xp_reward"`
	ManaReward   int              `json:"mana_reward"`
}

func newLevelView(l *level.Level) levelView {
	return levelView{
		ID:           l.ID,
		Number:       l.Number,
		Title:        l.Title,
		Difficulty:   l.Difficulty,
		Concept:      l.Concept,
		Story:        l.Story,
		OracleSays:   l.OracleSays,
		Description:  l.Description,
		FunctionName: l.FunctionName,
		Example:      l.Example,
		Starter:      l.StarterCode(),
		Tests:        len(l.TestCases),
		XPReward:     l.XPReward,
		ManaReward:   l.ManaReward,
	}
}

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	all := s.catalog.All()
	views := make([]levelView, len(all))
	for i, l := range all {
		views[i] = newLevelView(l)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	l, ok := s.level(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newLevelView(l))
}

// --- Evaluation ---

type evaluateRequest struct {
	Code string `json:"code"`
}

type evaluateResponse struct {
	AttemptID string            `json:"attempt_id,omitempty"`
	Report    *evaluator.Report `json:"report"`
	Summary   string            `json:"summary"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	l, ok := s.level(w, r)
	if !ok {
		return
	}

	var req evaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if len(req.Code) > maxCodeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "code is too large")
		return
	}

	report, err := s.eval.Evaluate(r.Context(), req.Code, l.FunctionName, l.TestCases)
	if err != nil {
		writeError(w, evaluateStatus(err), err.Error())
		return
	}

	resp := evaluateResponse{Report: report, Summary: report.Summary()}
	if a, err := s.recordAttempt(r.Context(), l, req.Code, report); err != nil {
		s.log.Error("recording attempt", zap.String("level", l.ID), zap.Error(err))
	} else {
		resp.AttemptID = a.ID
	}

	status := http.StatusOK
	if report.Status == evaluator.StatusRejected {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func evaluateStatus(err error) int {
	switch {
	case errors.Is(err, evaluator.ErrEnvironment):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) recordAttempt(ctx context.Context, l *level.Level, code string, report *evaluator.Report) (*storage.Attempt, error) {
	a, err := storage.NewAttempt(l, code, report)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// --- Tutor handlers ---

type hintRequest struct {
	Code     string `json:"code"`
	Question string `json:"question"`
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	if !s.tutors.Enabled() {
		writeError(w, http.StatusNotImplemented, "tutor is not configured")
		return
	}
	l, ok := s.level(w, r)
	if !ok {
		return
	}

	var req hintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Code == "" && req.Question == "" {
		writeError(w, http.StatusBadRequest, "code or question is required")
		return
	}

	at, err := s.tutors.GetOrCreate(r.Context(), l)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("initializing tutor: %v", err))
		return
	}

	at.mu.Lock()
	defer at.mu.Unlock()

	ctx, cancel := context.WithCancel(r.Context())
	at.Cancel = cancel
	defer func() { at.Cancel = nil }()

	answer, err := s.askTutor(ctx, at, req)
	cancel()

	if saveErr := s.tutors.Save(r.Context(), l.ID, at); saveErr != nil {
		s.log.Error("saving conversation", zap.String("level", l.ID), zap.Error(saveErr))
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("tutor error: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": answer})
}

func (s *Server) askTutor(ctx context.Context, at *ActiveTutor, req hintRequest) (string, error) {
	switch {
	case req.Code == "":
		return at.Tutor.Ask(ctx, req.Question)
	case req.Question != "":
		return at.Tutor.Ask(ctx, req.Question+"\n\n```python\n"+req.Code+"\n```")
	}
	l := at.Tutor.Level()
	report, err := s.eval.Evaluate(ctx, req.Code, l.FunctionName, l.TestCases)
	if err != nil {
		s.log.Warn("evaluating code for hint", zap.String("level", l.ID), zap.Error(err))
	}
	return at.Tutor.Hint(ctx, req.Code, report)
}

func (s *Server) handleResetConversation(w http.ResponseWriter, r *http.Request) {
	l, ok := s.level(w, r)
	if !ok {
		return
	}
	s.tutors.Remove(l.ID)
	if err := s.store.SaveConversation(r.Context(), l.ID, nil); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Attempt handlers ---

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.AttemptListOptions{Status: storage.AttemptStatus(q.Get("status"))}

	if ref := q.Get("level"); ref != "" {
		l, err := s.catalog.Get(ref)
		if err != nil {
			writeError(w, lookupStatus(err), err.Error())
			return
		}
		opts.LevelID = l.ID
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	attempts, err := s.store.ListAttempts(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAttempt(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAttempt(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, lookupStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.store.Progress(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if progress == nil {
		progress = []storage.LevelProgress{}
	}
	writeJSON(w, http.StatusOK, progress)
}
