package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/aios-dev/aios/db"
	"github.com/aios-dev/aios/internal/api"
	"github.com/aios-dev/aios/internal/chat"
	"github.com/aios-dev/aios/internal/config"
	"github.com/aios-dev/aios/internal/llm"
	"github.com/aios-dev/aios/internal/log"
	"github.com/aios-dev/aios/internal/store"
	"github.com/aios-dev/aios/internal/toolproxy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires configuration, database, store, provider, relay and tool
// proxy into the HTTP server and blocks until shutdown.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{Level: slog.LevelInfo})
	logger.Info("starting aios server", "version", AppVersion, "model", cfg.ModelName)

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("creating connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	st := store.New(pool, logger)
	provider := llm.NewClient(cfg, logger)
	relay := chat.NewRelay(st, provider, logger)
	// An empty base URL leaves the /mcp/* proxy endpoints unregistered.
	var tools api.ToolProxy
	if cfg.MCPBaseURL != "" {
		tools = toolproxy.NewClient(cfg.MCPBaseURL, logger)
	}

	server := api.NewServer(api.ServerConfig{
		Pool:        pool,
		Store:       st,
		Relay:       relay,
		Tools:       tools,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	return server.Run(ctx, cfg.ListenAddr)
}
