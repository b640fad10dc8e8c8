package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aios-dev/aios/internal/chat"
	"github.com/aios-dev/aios/internal/llm"
	"github.com/aios-dev/aios/internal/store"
	"github.com/aios-dev/aios/internal/testutil"
)

func TestChatSync(t *testing.T) {
	total := int64(15)
	relay := &stubRelayer{result: &chat.Result{
		Message:     "hi there",
		ToolCalls:   []llm.ToolCall{},
		TotalTokens: &total,
	}}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"session_id":"s1","message":"hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"message": "hi there",
		"tool_calls": [],
		"prompt_tokens": null,
		"completion_tokens": null,
		"total_tokens": 15
	}`, rec.Body.String())

	require.Len(t, relay.requests, 1)
	assert.Equal(t, "s1", relay.requests[0].SessionID)
	assert.False(t, relay.requests[0].HistoryGiven)
}

func TestChatSyncPassesHistoryThrough(t *testing.T) {
	relay := &stubRelayer{result: &chat.Result{Message: "ok", ToolCalls: []llm.ToolCall{}}}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat",
		`{"session_id":"s1","message":"next","history":[{"role":"user","content":"prev"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, relay.requests, 1)
	req := relay.requests[0]
	assert.True(t, req.HistoryGiven)
	require.Len(t, req.History, 1)
	assert.Equal(t, "prev", req.History[0].Content)
}

func TestChatForwardsModelOverride(t *testing.T) {
	relay := &stubRelayer{
		result: &chat.Result{Message: "ok", ToolCalls: []llm.ToolCall{}},
		events: []chat.Event{{Type: chat.EventStart, SessionID: "s1"}},
	}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat",
		`{"session_id":"s1","message":"hi","model":"claude-3-haiku-20240307"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/chat/stream",
		`{"session_id":"s1","message":"hi","model":"claude-3-haiku-20240307"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, relay.requests, 2)
	assert.Equal(t, "claude-3-haiku-20240307", relay.requests[0].Model)
	assert.Equal(t, "claude-3-haiku-20240307", relay.requests[1].Model)
}

func TestChatSyncEmptyHistoryStillCountsAsGiven(t *testing.T) {
	relay := &stubRelayer{result: &chat.Result{Message: "ok", ToolCalls: []llm.ToolCall{}}}
	h := newTestHandler(nil, relay, nil)

	doJSON(t, h, http.MethodPost, "/chat", `{"session_id":"s1","message":"next","history":[]}`)

	require.Len(t, relay.requests, 1)
	assert.True(t, relay.requests[0].HistoryGiven)
	assert.Empty(t, relay.requests[0].History)
}

func TestChatValidation(t *testing.T) {
	h := newTestHandler(nil, &stubRelayer{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"missing session_id", `{"message":"hello"}`},
		{"missing message", `{"session_id":"s1"}`},
		{"bad json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			rec = doJSON(t, h, http.MethodPost, "/chat/stream", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestChatSyncRelayFailureIs500(t *testing.T) {
	relay := &stubRelayer{err: errors.New("provider down")}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat", `{"session_id":"s1","message":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChatStreamEmitsFrames(t *testing.T) {
	relay := &stubRelayer{events: []chat.Event{
		{Type: chat.EventStart, SessionID: "s1"},
		{Type: chat.EventChunk, Content: "Hel", SessionID: "s1"},
		{Type: chat.EventChunk, Content: "lo", SessionID: "s1"},
		{Type: chat.EventEnd, SessionID: "s1", MessageID: 7,
			Usage: store.Usage{PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6}},
	}}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat/stream", `{"session_id":"s1","message":"Hi"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := testutil.ParseFrames(t, rec.Body.String())
	require.Len(t, frames, 4)
	assert.Equal(t, "start", frames[0].Type)
	assert.Equal(t, "Hel", frames[1].Data["content"])
	assert.Equal(t, "lo", frames[2].Data["content"])

	end := frames[3]
	assert.Equal(t, "end", end.Type)
	assert.Equal(t, float64(7), end.Data["message_id"])
	assert.Equal(t, float64(6), end.Data["total_tokens"])
}

func TestChatStreamToolFrames(t *testing.T) {
	relay := &stubRelayer{events: []chat.Event{
		{Type: chat.EventStart, SessionID: "s1"},
		{Type: chat.EventToolUse, Name: "get_tasks", ServerName: "todoist",
			Input: map[string]any{"filter": "today"}, SessionID: "s1"},
		{Type: chat.EventToolResult, Content: "3 tasks", IsError: false, SessionID: "s1"},
		{Type: chat.EventEnd, SessionID: "s1", MessageID: 1},
	}}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat/stream", `{"session_id":"s1","message":"tasks?"}`)

	frames := testutil.ParseFrames(t, rec.Body.String())
	use := testutil.FindFrame(frames, "tool_use")
	require.NotNil(t, use)
	assert.Equal(t, "get_tasks", use.Data["name"])
	assert.Equal(t, "todoist", use.Data["server_name"])

	result := testutil.FindFrame(frames, "tool_result")
	require.NotNil(t, result)
	assert.Equal(t, "3 tasks", result.Data["content"])
	assert.Equal(t, false, result.Data["is_error"])
}

func TestChatStreamErrorFrameIsTerminal(t *testing.T) {
	relay := &stubRelayer{events: []chat.Event{
		{Type: chat.EventStart, SessionID: "s1"},
		{Type: chat.EventChunk, Content: "par", SessionID: "s1"},
		{Type: chat.EventError, Message: "upstream reset"},
	}}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat/stream", `{"session_id":"s1","message":"q"}`)

	frames := testutil.ParseFrames(t, rec.Body.String())
	require.Len(t, frames, 3)
	last := frames[len(frames)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, "upstream reset", last.Data["message"])
}

func TestChatStreamSetupFailureIsPlainJSONError(t *testing.T) {
	relay := &stubRelayer{streamErr: errors.New("db down")}
	h := newTestHandler(nil, relay, nil)

	rec := doJSON(t, h, http.MethodPost, "/chat/stream", `{"session_id":"s1","message":"q"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
