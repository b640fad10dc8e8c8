// Package chat orchestrates one conversation turn: persist the user
// message, assemble the provider context, relay the provider response
// (blocking or streamed) and persist the assistant message together with
// the token counter updates.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/aios-dev/aios/internal/llm"
	"github.com/aios-dev/aios/internal/log"
	"github.com/aios-dev/aios/internal/store"
)

// Store is the persistence surface the relay needs.
type Store interface {
	AddMessage(ctx context.Context, m *store.Message) (*store.Message, error)
	History(ctx context.Context, sessionID string) ([]*store.Message, error)
	CompleteTurn(ctx context.Context, m *store.Message, usage store.Usage) (*store.Message, error)
}

// Provider is the LLM surface the relay needs. An empty model selects the
// provider's configured default.
type Provider interface {
	Chat(ctx context.Context, messages []llm.Message, model string) (*llm.Response, error)
	ChatStream(ctx context.Context, messages []llm.Message, model string) iter.Seq2[llm.StreamEvent, error]
}

// Relay runs conversation turns against a Store and a Provider.
type Relay struct {
	store    Store
	provider Provider
	logger   log.Logger
}

// NewRelay creates a Relay.
func NewRelay(st Store, provider Provider, logger log.Logger) *Relay {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Relay{store: st, provider: provider, logger: logger}
}

// Request is one incoming chat turn. When HistoryGiven is set the client
// history is trusted verbatim and the new user message is appended to it;
// otherwise the context is reconstructed from the store, which already
// contains the just-persisted user message. Never both. Model is an
// optional per-turn override of the provider's configured model.
type Request struct {
	SessionID    string
	Message      string
	History      []llm.Message
	HistoryGiven bool
	Model        string
}

// Result is the blocking-turn response body.
type Result struct {
	Message          string         `json:"message"`
	ToolCalls        []llm.ToolCall `json:"tool_calls"`
	PromptTokens     *int64         `json:"prompt_tokens"`
	CompletionTokens *int64         `json:"completion_tokens"`
	TotalTokens      *int64         `json:"total_tokens"`
}

// storedToolCall is the per-call record kept in tool_calls_json for
// streamed turns.
type storedToolCall struct {
	Name  any `json:"name"`
	Input any `json:"input"`
}

// Complete runs one blocking turn and returns the full response.
func (r *Relay) Complete(ctx context.Context, req Request) (*Result, error) {
	userMsg := &store.Message{
		SessionID:   req.SessionID,
		Role:        store.RoleUser,
		Content:     req.Message,
		TimestampMS: time.Now().UnixMilli(),
	}
	if _, err := r.store.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	messages, err := r.assembleContext(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := r.provider.Chat(ctx, messages, req.Model)
	if err != nil {
		return nil, fmt.Errorf("provider chat: %w", err)
	}

	toolCalls := resp.ToolCalls
	if toolCalls == nil {
		toolCalls = []llm.ToolCall{}
	}
	toolJSON, err := encodeToolCalls(toolCalls)
	if err != nil {
		return nil, fmt.Errorf("encoding tool calls: %w", err)
	}

	usage := store.Usage{
		PromptTokens:     orZero(resp.PromptTokens),
		CompletionTokens: orZero(resp.CompletionTokens),
		TotalTokens:      orZero(resp.TotalTokens),
	}
	assistantMsg := &store.Message{
		SessionID:        req.SessionID,
		Role:             store.RoleAssistant,
		Content:          resp.Content,
		TimestampMS:      time.Now().UnixMilli(),
		ToolCallsJSON:    toolJSON,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}
	if _, err := r.store.CompleteTurn(ctx, assistantMsg, usage); err != nil {
		return nil, fmt.Errorf("persisting assistant message: %w", err)
	}

	return &Result{
		Message:          resp.Content,
		ToolCalls:        toolCalls,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      resp.TotalTokens,
	}, nil
}

// Stream runs one streamed turn. The returned sequence re-emits provider
// events as wire frames and finishes with an end frame after the turn is
// persisted, or with a terminal error frame; after an error frame nothing
// is persisted and no counters move. A non-nil error return means the turn
// never started (the user message could not be persisted or the context
// could not be assembled) and no frames were produced.
func (r *Relay) Stream(ctx context.Context, req Request) (iter.Seq[Event], error) {
	userMsg := &store.Message{
		SessionID:   req.SessionID,
		Role:        store.RoleUser,
		Content:     req.Message,
		TimestampMS: time.Now().UnixMilli(),
	}
	if _, err := r.store.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	messages, err := r.assembleContext(ctx, req)
	if err != nil {
		return nil, err
	}

	return func(yield func(Event) bool) {
		if !yield(Event{Type: EventStart, SessionID: req.SessionID}) {
			return
		}

		var content strings.Builder
		toolCalls := make([]storedToolCall, 0)

		for ev, err := range r.provider.ChatStream(ctx, messages, req.Model) {
			if err != nil {
				r.logger.Error("provider stream failed",
					"session_id", req.SessionID, "error", err)
				yield(Event{Type: EventError, Message: err.Error()})
				return
			}
			switch ev.Type {
			case llm.EventText:
				content.WriteString(ev.Text)
				if !yield(Event{Type: EventChunk, Content: ev.Text, SessionID: req.SessionID}) {
					return
				}
			case llm.EventToolUse:
				toolCalls = append(toolCalls, storedToolCall{Name: ev.Name, Input: ev.Input})
				if !yield(Event{
					Type:       EventToolUse,
					Name:       ev.Name,
					ServerName: ev.ServerName,
					Input:      ev.Input,
					SessionID:  req.SessionID,
				}) {
					return
				}
			case llm.EventToolResult:
				if !yield(Event{
					Type:      EventToolResult,
					Content:   ev.Content,
					IsError:   ev.IsError,
					SessionID: req.SessionID,
				}) {
					return
				}
			}
		}

		// The raw stream carries no usage data, so both sides of the
		// turn are estimated from character counts.
		usage := store.Usage{
			PromptTokens:     estimatePromptTokens(messages),
			CompletionTokens: estimateTokens(content.String()),
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

		toolJSON, err := encodeToolCalls(toolCalls)
		if err != nil {
			yield(Event{Type: EventError, Message: err.Error()})
			return
		}
		assistantMsg := &store.Message{
			SessionID:        req.SessionID,
			Role:             store.RoleAssistant,
			Content:          content.String(),
			TimestampMS:      time.Now().UnixMilli(),
			ToolCallsJSON:    toolJSON,
			PromptTokens:     &usage.PromptTokens,
			CompletionTokens: &usage.CompletionTokens,
			TotalTokens:      &usage.TotalTokens,
		}
		saved, err := r.store.CompleteTurn(ctx, assistantMsg, usage)
		if err != nil {
			r.logger.Error("persisting streamed turn failed",
				"session_id", req.SessionID, "error", err)
			yield(Event{Type: EventError, Message: err.Error()})
			return
		}

		yield(Event{
			Type:      EventEnd,
			SessionID: req.SessionID,
			MessageID: saved.ID,
			Usage:     usage,
		})
	}, nil
}

// assembleContext builds the provider conversation for this turn,
// guaranteeing the new user message appears exactly once.
func (r *Relay) assembleContext(ctx context.Context, req Request) ([]llm.Message, error) {
	if req.HistoryGiven {
		messages := make([]llm.Message, 0, len(req.History)+1)
		messages = append(messages, req.History...)
		return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message}), nil
	}

	stored, err := r.store.History(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	messages := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	return messages, nil
}

// encodeToolCalls renders the tool-call record as the JSON text stored in
// tool_calls_json.
func encodeToolCalls(v any) (*string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func orZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
