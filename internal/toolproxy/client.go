// Package toolproxy forwards tool requests to the external calendar and
// todoist HTTP services and normalizes every outcome into a unified
// envelope. Calls never return a Go error: transport failures, bad JSON
// and remote error payloads all become {success:false, error:...}.
package toolproxy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aios-dev/aios/internal/log"
)

// Service paths on the remote tool host. Both todoist operations forward
// to the same SSE endpoint; the remote dispatches on the payload.
const (
	pathListCalendarEvents = "/mcp/calendar/list_gcal_events"
	pathCreateEvent        = "/mcp/calendar/create_event"
	pathTodoistSSE         = "/mcp/todoist/sse"
)

const requestTimeout = 30 * time.Second

// Envelope is the unified proxy response: {success:true, data:...} or
// {success:false, error:...}.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// Client proxies tool requests to the configured base URL.
type Client struct {
	http   *resty.Client
	logger log.Logger
}

// NewClient creates a proxy client for the given tool service base URL.
func NewClient(baseURL string, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: httpClient, logger: logger}
}

// ListCalendarEvents forwards a calendar listing request.
func (c *Client) ListCalendarEvents(ctx context.Context, payload any) Envelope {
	return c.call(ctx, pathListCalendarEvents, payload)
}

// CreateCalendarEvent forwards a calendar event creation request.
func (c *Client) CreateCalendarEvent(ctx context.Context, payload any) Envelope {
	return c.call(ctx, pathCreateEvent, payload)
}

// GetTasks forwards a todoist task listing request.
func (c *Client) GetTasks(ctx context.Context, payload any) Envelope {
	return c.call(ctx, pathTodoistSSE, payload)
}

// CreateTask forwards a todoist task creation request.
func (c *Client) CreateTask(ctx context.Context, payload any) Envelope {
	return c.call(ctx, pathTodoistSSE, payload)
}

func (c *Client) call(ctx context.Context, path string, payload any) Envelope {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post(path)
	if err != nil {
		c.logger.Error("tool proxy request failed", "path", path, "error", err)
		return failure(err)
	}

	// The remote body is decoded regardless of HTTP status; the envelope
	// rule only cares about the error key.
	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		c.logger.Error("tool proxy returned malformed body",
			"path", path, "status", resp.StatusCode(), "error", err)
		return failure(err)
	}

	if errVal, ok := body["error"]; ok && truthy(errVal) {
		return Envelope{Success: false, Error: errVal}
	}
	return Envelope{Success: true, Data: body}
}

func failure(err error) Envelope {
	return Envelope{
		Success: false,
		Error: map[string]any{
			"type":    "Exception",
			"message": err.Error(),
		},
	}
}

// truthy mirrors the loose error-key check the remote contract implies:
// null, false, zero, empty string and empty containers do not count as an
// error.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
