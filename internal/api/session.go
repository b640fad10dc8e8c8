package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aios-dev/aios/internal/log"
	"github.com/aios-dev/aios/internal/store"
)

// Session validation constants.
const (
	MaxTitleLength     = 200
	MaxSessionIDLength = 128
)

// SessionStore is the persistence surface the session endpoints need.
type SessionStore interface {
	CreateSession(ctx context.Context, id, title string) (*store.Session, error)
	ListSessions(ctx context.Context) ([]*store.Session, error)
	History(ctx context.Context, sessionID string) ([]*store.Message, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(st SessionStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: st, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", h.create)
	mux.HandleFunc("GET /sessions", h.list)
	mux.HandleFunc("GET /sessions/{session_id}/history", h.history)
	mux.HandleFunc("DELETE /sessions/{session_id}", h.delete)
}

// CreateSessionRequest is the request body for creating a session.
// SessionID is optional; a UUID is generated when absent.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

// create creates a new session and returns it under a data key.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if len(req.SessionID) > MaxSessionIDLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id too long")
		return
	}
	if len(req.Title) > MaxTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title too long")
		return
	}

	sess, err := h.store.CreateSession(r.Context(), req.SessionID, req.Title)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": sess})
}

// list returns all sessions as a bare array.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// history returns the ordered conversation of a session under a data key.
func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	messages, err := h.store.History(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load history")
		return
	}
	if messages == nil {
		messages = []*store.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": messages})
}

// delete removes a session and its messages. A missing session is a 404
// and mutates nothing.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	if err := h.store.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		h.logger.Error("failed to delete session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
