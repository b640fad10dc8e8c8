package api

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"

	"github.com/aios-dev/aios/internal/chat"
	"github.com/aios-dev/aios/internal/llm"
	"github.com/aios-dev/aios/internal/log"
)

// Relayer is the turn orchestration surface the chat endpoints need.
type Relayer interface {
	Complete(ctx context.Context, req chat.Request) (*chat.Result, error)
	Stream(ctx context.Context, req chat.Request) (iter.Seq[chat.Event], error)
}

// ChatHandler handles chat-related HTTP endpoints.
//
// Endpoints:
//   - POST /chat        - synchronous chat (JSON request/response)
//   - POST /chat/stream - streaming chat (SSE)
//
// Both endpoints run the same turn flow through the relay; the streaming
// variant re-emits relay events as data-only SSE frames.
type ChatHandler struct {
	relay  Relayer
	logger log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(relay Relayer, logger log.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.handleChat)
	mux.HandleFunc("POST /chat/stream", h.handleStream)
}

// ChatRequest is the request body of both chat endpoints. History is
// optional: when present (even empty) it is trusted verbatim and the new
// message is appended to it; when absent the conversation is rebuilt from
// the store. Model optionally overrides the configured model for this
// turn only.
type ChatRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	History   *[]llm.Message `json:"history"`
	Model     string         `json:"model"`
}

func (h *ChatHandler) parseRequest(r *http.Request) (chat.Request, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return chat.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	if req.SessionID == "" {
		return chat.Request{}, fmt.Errorf("session_id is required")
	}
	if req.Message == "" {
		return chat.Request{}, fmt.Errorf("message is required")
	}

	out := chat.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		Model:     req.Model,
	}
	if req.History != nil {
		out.History = *req.History
		out.HistoryGiven = true
	}
	return out, nil
}

// handleChat runs a blocking turn and returns the full response.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.logger.Info("chat request", "session_id", req.SessionID)

	result, err := h.relay.Complete(r.Context(), req)
	if err != nil {
		h.logger.Error("chat turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "chat turn failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleStream runs a streamed turn over SSE. Frames are data-only
// (`data: <json>`) with the event type inside the JSON payload.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	ctx := r.Context()
	h.logger.Info("chat stream started", "session_id", req.SessionID)

	events, err := h.relay.Stream(ctx, req)
	if err != nil {
		h.logger.Error("chat stream setup failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "chat turn failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	for event := range events {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected", "session_id", req.SessionID)
			return
		default:
		}

		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("failed to encode stream event", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	h.logger.Info("chat stream completed", "session_id", req.SessionID)
}
