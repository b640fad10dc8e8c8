package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aios-dev/aios/internal/store"
)

func marshalEvent(t *testing.T, e Event) string {
	t.Helper()
	b, err := json.Marshal(e)
	assert.NoError(t, err)
	return string(b)
}

func TestEventMarshalShapes(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "start",
			event: Event{Type: EventStart, SessionID: "s1"},
			want:  `{"type":"start","session_id":"s1"}`,
		},
		{
			name:  "chunk",
			event: Event{Type: EventChunk, Content: "Hel", SessionID: "s1"},
			want:  `{"type":"chunk","content":"Hel","session_id":"s1"}`,
		},
		{
			name: "tool_use",
			event: Event{
				Type: EventToolUse, Name: "get_tasks", ServerName: "todoist",
				Input: map[string]any{"filter": "today"}, SessionID: "s1",
			},
			want: `{"type":"tool_use","name":"get_tasks","server_name":"todoist","input":{"filter":"today"},"session_id":"s1"}`,
		},
		{
			name:  "tool_result carries is_error even when false",
			event: Event{Type: EventToolResult, Content: "", IsError: false, SessionID: "s1"},
			want:  `{"type":"tool_result","content":"","is_error":false,"session_id":"s1"}`,
		},
		{
			name: "end",
			event: Event{
				Type: EventEnd, SessionID: "s1", MessageID: 7,
				Usage: store.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6},
			},
			want: `{"type":"end","session_id":"s1","message_id":7,"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}`,
		},
		{
			name:  "error",
			event: Event{Type: EventError, Message: "boom"},
			want:  `{"type":"error","message":"boom"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, marshalEvent(t, tt.event))
		})
	}
}
