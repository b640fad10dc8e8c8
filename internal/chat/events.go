package chat

import (
	"encoding/json"

	"github.com/aios-dev/aios/internal/store"
)

// Wire event types for a streaming turn, in the order a client can expect
// them: one start, any number of chunk/tool_use/tool_result, then exactly
// one end or error.
const (
	EventStart      = "start"
	EventChunk      = "chunk"
	EventToolUse    = "tool_use"
	EventToolResult = "tool_result"
	EventEnd        = "end"
	EventError      = "error"
)

// Event is one frame of a streaming turn. Which fields are meaningful
// depends on Type; MarshalJSON emits exactly the wire shape for each
// type, nothing more.
type Event struct {
	Type       string
	SessionID  string
	Content    string
	Name       any
	ServerName any
	Input      any
	IsError    bool
	MessageID  int64
	Usage      store.Usage
	Message    string
}

// MarshalJSON shapes the frame per event type. Clients dispatch on the
// embedded "type" field, so every frame carries it.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventChunk:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			SessionID string `json:"session_id"`
		}{e.Type, e.Content, e.SessionID})

	case EventToolUse:
		return json.Marshal(struct {
			Type       string `json:"type"`
			Name       any    `json:"name"`
			ServerName any    `json:"server_name"`
			Input      any    `json:"input"`
			SessionID  string `json:"session_id"`
		}{e.Type, e.Name, e.ServerName, e.Input, e.SessionID})

	case EventToolResult:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Content   string `json:"content"`
			IsError   bool   `json:"is_error"`
			SessionID string `json:"session_id"`
		}{e.Type, e.Content, e.IsError, e.SessionID})

	case EventEnd:
		return json.Marshal(struct {
			Type             string `json:"type"`
			SessionID        string `json:"session_id"`
			MessageID        int64  `json:"message_id"`
			PromptTokens     int64  `json:"prompt_tokens"`
			CompletionTokens int64  `json:"completion_tokens"`
			TotalTokens      int64  `json:"total_tokens"`
		}{e.Type, e.SessionID, e.MessageID,
			e.Usage.PromptTokens, e.Usage.CompletionTokens, e.Usage.TotalTokens})

	case EventError:
		return json.Marshal(struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{e.Type, e.Message})

	default: // EventStart
		return json.Marshal(struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
		}{e.Type, e.SessionID})
	}
}
