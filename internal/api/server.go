// Package api provides the HTTP surface of the aios backend.
//
// Endpoints:
//
//	POST /chat                            - synchronous chat turn
//	POST /chat/stream                     - streaming chat turn (SSE)
//	POST /sessions                        - create session
//	GET  /sessions                        - list sessions
//	GET  /sessions/{session_id}/history   - ordered conversation
//	DELETE /sessions/{session_id}         - delete session and messages
//	POST /mcp/calendar/list_gcal_events   - tool proxy
//	POST /mcp/calendar/create_event       - tool proxy
//	POST /mcp/todoist/get_tasks           - tool proxy
//	POST /mcp/todoist/create_task         - tool proxy
//	GET  /health                          - liveness probe
//	GET  /ready                           - readiness probe (DB ping)
//	GET  /                                - service banner
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, CORS, logging)
//   - session.go: session management endpoints
//   - chat.go: chat endpoints (sync + SSE)
//   - mcp.go: tool proxy endpoints
//   - health.go: liveness and banner endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aios-dev/aios/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = ":8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Streamed turns can run long; this bounds them.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// ServerConfig carries the dependencies of the HTTP server.
type ServerConfig struct {
	Pool        *pgxpool.Pool
	Store       SessionStore
	Relay       Relayer
	Tools       ToolProxy
	CORSOrigins []string
	Logger      log.Logger
}

// Server is the HTTP server for the aios REST API.
type Server struct {
	mux         *http.ServeMux
	corsOrigins []string

	health  *HealthHandler
	session *SessionHandler
	chat    *ChatHandler
	mcp     *MCPHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:         mux,
		corsOrigins: cfg.CORSOrigins,
		health:      NewHealthHandler(cfg.Pool, cfg.Logger),
		session:     NewSessionHandler(cfg.Store, cfg.Logger),
		chat:        NewChatHandler(cfg.Relay, cfg.Logger),
		mcp:         NewMCPHandler(cfg.Tools, cfg.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.mcp.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → CORS → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, corsMiddleware(s.corsOrigins), loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
