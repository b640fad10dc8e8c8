// Package store provides persistence for chat sessions, messages and the
// global usage counters, backed by PostgreSQL.
//
// Responsibilities: pure data access. Conversation orchestration lives in
// internal/chat; this package only reads and writes rows.
package store

import "time"

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Session represents a conversation session.
// Token counters accumulate across completed turns; they are never
// decremented when messages are deleted.
type Session struct {
	ID               string    `json:"session_id"`
	CreatedAt        time.Time `json:"created_at"`
	Title            string    `json:"title"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
}

// Message represents a single conversation message. Messages are immutable
// once written; within a session they are totally ordered by TimestampMS.
//
// Token fields are nil for user messages and populated for assistant
// messages. ToolCallsJSON holds the JSON-encoded tool-call record for
// assistant turns, nil for user messages.
type Message struct {
	ID               int64   `json:"id"`
	SessionID        string  `json:"session_id"`
	Role             string  `json:"role"`
	Content          string  `json:"content"`
	TimestampMS      int64   `json:"timestamp_ms"`
	ToolCallsJSON    *string `json:"tool_calls_json"`
	PromptTokens     *int64  `json:"prompt_tokens"`
	CompletionTokens *int64  `json:"completion_tokens"`
	TotalTokens      *int64  `json:"total_tokens"`
}

// UserStats is the single global row of lifetime token sums across all
// sessions. The deleted_* counters are reserved for reconciling removed
// sessions; nothing writes them yet.
type UserStats struct {
	ID                      int64 `json:"id"`
	PromptTokens            int64 `json:"prompt_tokens"`
	CompletionTokens        int64 `json:"completion_tokens"`
	TotalTokens             int64 `json:"total_tokens"`
	DeletedPromptTokens     int64 `json:"deleted_prompt_tokens"`
	DeletedCompletionTokens int64 `json:"deleted_completion_tokens"`
	DeletedTotalTokens      int64 `json:"deleted_total_tokens"`
}

// Usage is a per-turn token delta applied to both the session counters and
// the global UserStats row.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}
