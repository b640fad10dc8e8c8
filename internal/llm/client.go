package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aios-dev/aios/internal/config"
	"github.com/aios-dev/aios/internal/log"
	"github.com/aios-dev/aios/internal/serialize"
)

// Client talks to the Anthropic Messages API. When MCP connector servers
// are configured, requests go through the beta surface with the
// mcp-client-2025-04-04 beta header; otherwise the stable surface is used.
type Client struct {
	client       anthropic.Client
	model        string
	maxTokens    int64
	temperature  float64
	systemPrompt string
	mcpServers   []config.MCPServer
	logger       log.Logger
}

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{
		client:       anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		model:        cfg.ModelName,
		maxTokens:    int64(cfg.MaxTokens),
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		mcpServers:   cfg.MCPServers,
		logger:       logger,
	}
}

// prepare splits the system message out of the conversation and keeps the
// user/assistant turns in order. The last system message wins; when the
// conversation carries none, the configured system prompt applies.
func (c *Client) prepare(messages []Message) (string, []Message) {
	system := ""
	turns := make([]Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = m.Content
		case RoleUser, RoleAssistant:
			turns = append(turns, m)
		}
	}
	if system == "" {
		system = c.systemPrompt
	}
	return system, turns
}

// resolveModel picks the model for one request: the caller's override when
// given, the configured default otherwise.
func (c *Client) resolveModel(model string) string {
	if model == "" {
		return c.model
	}
	return model
}

// Chat sends the conversation and blocks until the full response is
// available. An empty model selects the configured default.
func (c *Client) Chat(ctx context.Context, messages []Message, model string) (*Response, error) {
	system, turns := c.prepare(messages)
	model = c.resolveModel(model)
	if len(c.mcpServers) > 0 {
		return c.chatBeta(ctx, system, turns, model)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages:    messageParams(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages request: %w", err)
	}

	resp := &Response{Role: RoleAssistant}
	for _, block := range msg.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	setUsage(resp, msg.Usage.InputTokens, msg.Usage.OutputTokens)

	c.logger.Debug("chat completed", "model", model, "content_len", len(resp.Content))
	return resp, nil
}

func (c *Client) chatBeta(ctx context.Context, system string, turns []Message, model string) (*Response, error) {
	msg, err := c.client.Beta.Messages.New(ctx, c.betaParams(system, turns, model))
	if err != nil {
		return nil, fmt.Errorf("anthropic beta messages request: %w", err)
	}

	resp := &Response{Role: RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "mcp_tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				Type:       "mcp_tool_use",
				Name:       serialize.Value(block.Name),
				ServerName: serialize.Value(block.ServerName),
				Input:      serialize.Value(block.Input),
			})
		case "mcp_tool_result":
			// Result text is already folded into the model's answer.
		}
	}
	setUsage(resp, msg.Usage.InputTokens, msg.Usage.OutputTokens)

	c.logger.Debug("chat completed", "model", model,
		"content_len", len(resp.Content), "tool_calls", len(resp.ToolCalls))
	return resp, nil
}

// ChatStream sends the conversation and returns the response as a lazy
// event sequence. The underlying network stream is opened when iteration
// starts and closed when iteration stops, including early breaks. A
// non-nil error ends the sequence.
func (c *Client) ChatStream(ctx context.Context, messages []Message, model string) iter.Seq2[StreamEvent, error] {
	system, turns := c.prepare(messages)
	model = c.resolveModel(model)
	if len(c.mcpServers) > 0 {
		return c.streamBeta(ctx, system, turns, model)
	}

	return func(yield func(StreamEvent, error) bool) {
		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(model),
			MaxTokens:   c.maxTokens,
			Temperature: anthropic.Float(c.temperature),
			Messages:    messageParams(turns),
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}

		stream := c.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
				if !yield(StreamEvent{Type: EventText, Text: event.Delta.Text}, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StreamEvent{}, fmt.Errorf("anthropic stream: %w", err))
		}
	}
}

func (c *Client) streamBeta(ctx context.Context, system string, turns []Message, model string) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		stream := c.client.Beta.Messages.NewStreaming(ctx, c.betaParams(system, turns, model))
		defer stream.Close()

		// MCP tool results arrive complete in their start event; they are
		// emitted once the matching stop event closes the block.
		pending := make(map[int64]StreamEvent)

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Type == "text_delta" {
					if !yield(StreamEvent{Type: EventText, Text: event.Delta.Text}, nil) {
						return
					}
				}

			case "content_block_start":
				block := event.ContentBlock
				switch block.Type {
				case "mcp_tool_use":
					ev := StreamEvent{
						Type:       EventToolUse,
						Name:       serialize.Value(block.Name),
						ServerName: serialize.Value(block.ServerName),
						Input:      serialize.Value(block.Input),
					}
					if !yield(ev, nil) {
						return
					}
				case "mcp_tool_result":
					content, isErr := flattenToolResult(block.RawJSON())
					pending[event.Index] = StreamEvent{
						Type:    EventToolResult,
						Content: content,
						IsError: isErr,
					}
				}

			case "content_block_stop":
				if ev, ok := pending[event.Index]; ok {
					delete(pending, event.Index)
					if !yield(ev, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(StreamEvent{}, fmt.Errorf("anthropic stream: %w", err))
		}
	}
}

// betaParams builds the beta request carrying the MCP connector servers.
func (c *Client) betaParams(system string, turns []Message, model string) anthropic.BetaMessageNewParams {
	msgs := make([]anthropic.BetaMessageParam, 0, len(turns))
	for _, m := range turns {
		role := anthropic.BetaMessageParamRoleUser
		if m.Role == RoleAssistant {
			role = anthropic.BetaMessageParamRoleAssistant
		}
		msgs = append(msgs, anthropic.BetaMessageParam{
			Role:    role,
			Content: []anthropic.BetaContentBlockParamUnion{anthropic.NewBetaTextBlock(m.Content)},
		})
	}

	servers := make([]anthropic.BetaRequestMCPServerURLDefinitionParam, 0, len(c.mcpServers))
	for _, srv := range c.mcpServers {
		def := anthropic.BetaRequestMCPServerURLDefinitionParam{
			Name: srv.Name,
			URL:  srv.URL,
		}
		if srv.AuthorizationToken != "" {
			def.AuthorizationToken = anthropic.String(srv.AuthorizationToken)
		}
		servers = append(servers, def)
	}

	params := anthropic.BetaMessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages:    msgs,
		MCPServers:  servers,
		Betas:       []anthropic.AnthropicBeta{anthropic.AnthropicBetaMCPClient2025_04_04},
	}
	if system != "" {
		params.System = []anthropic.BetaTextBlockParam{{Text: system}}
	}
	return params
}

func messageParams(turns []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return params
}

func setUsage(resp *Response, input, output int64) {
	total := input + output
	resp.PromptTokens = &input
	resp.CompletionTokens = &output
	resp.TotalTokens = &total
}

// flattenToolResult extracts a printable content string and the error flag
// from a raw mcp_tool_result block. The block shape varies (plain string
// or a list of typed items), so parsing is defensive and degrades to the
// serialized form rather than failing.
func flattenToolResult(raw string) (string, bool) {
	var block struct {
		IsError bool            `json:"is_error"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal([]byte(raw), &block); err != nil {
		return raw, false
	}
	return flattenResultContent(block.Content), block.IsError
}

func flattenResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err == nil {
		var b strings.Builder
		for _, item := range items {
			if text, ok := item["text"].(string); ok {
				b.WriteString(text)
			} else {
				b.WriteString(fmt.Sprint(serialize.Value(item)))
			}
		}
		return b.String()
	}

	return fmt.Sprint(serialize.Value(raw))
}
