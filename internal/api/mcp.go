package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aios-dev/aios/internal/log"
	"github.com/aios-dev/aios/internal/toolproxy"
)

// ToolProxy is the outbound surface the tool endpoints need. Calls return
// the unified envelope and never fail.
type ToolProxy interface {
	ListCalendarEvents(ctx context.Context, payload any) toolproxy.Envelope
	CreateCalendarEvent(ctx context.Context, payload any) toolproxy.Envelope
	GetTasks(ctx context.Context, payload any) toolproxy.Envelope
	CreateTask(ctx context.Context, payload any) toolproxy.Envelope
}

// MCPHandler exposes the calendar/todoist tool services through the
// unified proxy endpoints. Every response is a 200 with the envelope;
// failure lives inside the envelope, not in the HTTP status.
type MCPHandler struct {
	tools  ToolProxy
	logger log.Logger
}

// NewMCPHandler creates a new tool proxy handler.
func NewMCPHandler(tools ToolProxy, logger log.Logger) *MCPHandler {
	return &MCPHandler{tools: tools, logger: logger}
}

// RegisterRoutes registers tool proxy routes on the given mux.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	if h.tools == nil {
		h.logger.Warn("MCPHandler: tool proxy not configured, /mcp endpoints not registered")
		return
	}
	mux.HandleFunc("POST /mcp/calendar/list_gcal_events", h.forward(h.tools.ListCalendarEvents))
	mux.HandleFunc("POST /mcp/calendar/create_event", h.forward(h.tools.CreateCalendarEvent))
	mux.HandleFunc("POST /mcp/todoist/get_tasks", h.forward(h.tools.GetTasks))
	mux.HandleFunc("POST /mcp/todoist/create_task", h.forward(h.tools.CreateTask))
}

func (h *MCPHandler) forward(call func(context.Context, any) toolproxy.Envelope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
			return
		}
		writeJSON(w, http.StatusOK, call(r.Context(), payload))
	}
}
