// Package llm adapts the Anthropic Messages API to the small provider
// surface the chat relay consumes: a blocking Chat call and a ChatStream
// event sequence. Tool access goes through Anthropic's MCP connector;
// this package never executes tools itself.
package llm

// Role constants for provider messages. A system message is split out of
// the conversation and sent as the system prompt; unknown roles are
// dropped.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn as sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall records one MCP tool invocation made by the model during a
// blocking Chat call. Fields are JSON-safe values produced by the
// serializer.
type ToolCall struct {
	Type       string `json:"type"`
	Name       any    `json:"name"`
	ServerName any    `json:"server_name"`
	Input      any    `json:"input"`
}

// Response is the provider's answer to a blocking Chat call. Token fields
// are nil when the provider reported no usage.
type Response struct {
	Role             string
	Content          string
	ToolCalls        []ToolCall
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
}

// EventType enumerates the closed stream event vocabulary. Everything the
// provider emits is translated to one of these three at the adapter
// boundary; unrecognized provider events are dropped.
type EventType string

const (
	EventText       EventType = "text"
	EventToolUse    EventType = "mcp_tool_use"
	EventToolResult EventType = "mcp_tool_result"
)

// StreamEvent is one event of a ChatStream sequence. Which fields are
// meaningful depends on Type: Text for EventText; Name, ServerName and
// Input for EventToolUse; Content and IsError for EventToolResult.
type StreamEvent struct {
	Type       EventType
	Text       string
	Name       any
	ServerName any
	Input      any
	Content    string
	IsError    bool
}
