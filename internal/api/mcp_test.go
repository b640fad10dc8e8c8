package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aios-dev/aios/internal/log"
	"github.com/aios-dev/aios/internal/toolproxy"
)

func TestMCPEndpointsForwardPayload(t *testing.T) {
	tools := &stubTools{envelope: toolproxy.Envelope{
		Success: true,
		Data:    map[string]any{"events": []any{}},
	}}
	h := newTestHandler(nil, nil, tools)

	rec := doJSON(t, h, http.MethodPost, "/mcp/calendar/list_gcal_events",
		`{"time_min":"2025-06-01"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"events":[]}}`, rec.Body.String())

	require.Len(t, tools.payloads, 1)
	payload := tools.payloads[0].(map[string]any)
	assert.Equal(t, "2025-06-01", payload["time_min"])
	assert.Equal(t, []string{"list_gcal_events"}, tools.paths)
}

func TestMCPEndpointsRouteToTheRightOperation(t *testing.T) {
	tools := &stubTools{envelope: toolproxy.Envelope{Success: true, Data: map[string]any{}}}
	h := newTestHandler(nil, nil, tools)

	for _, path := range []string{
		"/mcp/calendar/list_gcal_events",
		"/mcp/calendar/create_event",
		"/mcp/todoist/get_tasks",
		"/mcp/todoist/create_task",
	} {
		rec := doJSON(t, h, http.MethodPost, path, `{}`)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.Equal(t, []string{
		"list_gcal_events", "create_event", "get_tasks", "create_task",
	}, tools.paths)
}

func TestMCPFailureEnvelopeStaysHTTP200(t *testing.T) {
	tools := &stubTools{envelope: toolproxy.Envelope{
		Success: false,
		Error:   "quota_exceeded",
	}}
	h := newTestHandler(nil, nil, tools)

	rec := doJSON(t, h, http.MethodPost, "/mcp/todoist/get_tasks", `{"action":"get"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"quota_exceeded"}`, rec.Body.String())
}

func TestMCPRoutesAbsentWithoutToolProxy(t *testing.T) {
	srv := NewServer(ServerConfig{
		Store:       &stubStore{},
		Relay:       &stubRelayer{},
		CORSOrigins: []string{"*"},
		Logger:      log.NewNop(),
	})

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/mcp/todoist/get_tasks", `{}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMCPRejectsBadBody(t *testing.T) {
	tools := &stubTools{}
	h := newTestHandler(nil, nil, tools)

	rec := doJSON(t, h, http.MethodPost, "/mcp/calendar/create_event", `not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, tools.payloads)
}
