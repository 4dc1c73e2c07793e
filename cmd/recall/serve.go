package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/recallhq/recall"
	"github.com/recallhq/recall/infrastructure/api"
	apimiddleware "github.com/recallhq/recall/infrastructure/api/middleware"
	v1 "github.com/recallhq/recall/infrastructure/api/v1"
	"github.com/recallhq/recall/infrastructure/bus"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/log"
)

func serveCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables

Environment variables:
  HOST                      Server host to bind to (default: 0.0.0.0)
  PORT                      Server port to listen on (default: 3001)
  DB_URL                    Database URL (sqlite:///... or postgres://...)
  LOG_LEVEL                 Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                Log format: pretty, json (default: pretty)

  OPENAI_API_KEY            OpenAI API key
  OPENAI_BASE_URL           Alternate OpenAI-compatible endpoint
  EMBEDDING_MODEL           Embedding model (default: text-embedding-3-small)
  EMBEDDING_DIMENSIONS      Vector width (default: 1536)
  EMBEDDING_BATCH_SIZE      Documents per embedding batch (default: 50)
  EMBEDDING_CRON_SCHEDULE   Cron expression for the periodic embedding run
  LLM_CHAT_MODEL            Chat model (default: gpt-4o-mini)

  DEFAULT_TOP_K             Retrieval candidate count (default: 20)
  DEFAULT_MIN_SIMILARITY    Similarity cut-off (default: 0.5)
  MAX_CONTEXT_TOKENS        Context token budget (default: 28000)

  FRONTEND_URL              Allowed CORS origin
  CORS_ORIGIN               Additional allowed CORS origins, comma separated`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	return cmd
}

func runServe(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.New(log.Format(cfg.LogFormat()), cfg.LogLevel())
	slogger := logger.Slog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slogger.Info("starting recall",
		slog.String("version", version),
		slog.String("addr", cfg.Server().Addr()))

	client, err := recall.New(ctx,
		recall.WithConfig(cfg),
		recall.WithLogger(slogger),
	)
	if err != nil {
		return fmt.Errorf("create recall client: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			slogger.Error("failed to close recall client", slog.Any("error", closeErr))
		}
	}()

	server := api.NewServer(cfg.Server().Addr(), cfg.Server().CORSOrigins(), slogger)
	router := server.Router()
	router.Use(apimiddleware.Logging(slogger))

	chatHandler := v1.NewChatHandler(client.RAG, client.Conversations, slogger)
	syncHandler := v1.NewSyncHandler(client.Sync, slogger)
	embeddingHandler := v1.NewEmbeddingHandler(client.Embeddings, client.Documents, client.Costs, client.Embedder, slogger)

	router.Route("/api", func(r chi.Router) {
		chatHandler.RegisterRoutes(r)
		syncHandler.RegisterRoutes(r)
		embeddingHandler.RegisterRoutes(r)
	})

	router.Handle("/ws", bus.NewWebsocketHandler(client.Hub, cfg.Server().CORSOrigins(), slogger))
	router.Get("/health", healthHandler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
