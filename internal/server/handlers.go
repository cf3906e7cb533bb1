package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	errx "github.com/freshcart/support-agent/internal/core/error"
	logx "github.com/freshcart/support-agent/pkg/logger"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID   string `json:"session_id"`
	Response    string `json:"response"`
	Intent      string `json:"intent"`
	Agent       string `json:"agent"`
	Blocked     bool   `json:"blocked"`
	BlockReason string `json:"block_reason,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	reply, err := s.orchestrator.HandleMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		SessionID:   req.SessionID,
		Response:    reply.Text,
		Intent:      string(reply.Intent),
		Agent:       reply.Agent,
		Blocked:     reply.Blocked,
		BlockReason: reply.BlockReason,
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if len(s.evalCases) == 0 {
		writeError(w, http.StatusConflict, "no evaluation cases configured")
		return
	}

	report, err := s.evaluator.RunAll(r.Context(), s.evalCases)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type historyTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type historyResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []historyTurn `json:"turns"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	history, err := s.orchestrator.History(r.Context(), sessionID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	resp := historyResponse{SessionID: sessionID, Turns: []historyTurn{}}
	for _, t := range history.Turns {
		resp.Turns = append(resp.Turns, historyTurn{
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeAppError maps an AppError to its HTTP status; anything else is a 500.
func writeAppError(w http.ResponseWriter, err error) {
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		writeError(w, appErr.Status, appErr.Message)
		return
	}
	logx.Error().Err(err).Msg("unhandled request error")
	writeError(w, http.StatusInternalServerError, errx.SystemErrorMessage)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
