// Package recall provides a retrieval-augmented question answering
// service over a user's personal data: emails, calendar events and
// listening history.
//
// Basic usage:
//
//	client, err := recall.New(
//	    recall.WithSQLite("recall.db"),
//	    recall.WithOpenAI(os.Getenv("OPENAI_API_KEY")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Ingest a source
//	syncID, err := client.Sync.StartSync(ctx, "me", document.SourceEmail, false)
//
//	// Ask a question
//	answer, err := client.RAG.Ask(ctx, "me", "what did Sarah email me last week?", "")
package recall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recallhq/recall/application/service"
	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/prompt"
	"github.com/recallhq/recall/domain/rank"
	"github.com/recallhq/recall/infrastructure/bus"
	"github.com/recallhq/recall/infrastructure/connector"
	"github.com/recallhq/recall/infrastructure/persistence"
	"github.com/recallhq/recall/infrastructure/provider"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/database"
)

// Client is the main entry point for the recall library.
//
// Access services via struct fields:
//
//	client.Sync.StartSync(ctx, userID, source, full)
//	client.RAG.Ask(ctx, userID, question, conversationID)
//	client.Search.VectorSearch(ctx, text, opts)
type Client struct {
	// Public service fields (direct access)
	Sync          *service.Coordinator
	Embeddings    *service.EmbeddingService
	Search        *service.SearchService
	RAG           *service.RAGService
	Conversations *service.ConversationService
	Hub           *bus.Hub

	// Stores, exposed for admin surfaces
	Documents   document.Store
	SyncLogs    document.SyncLogStore
	Costs       document.CostStore
	Credentials *persistence.CredentialStore

	Embedder  provider.Embedder
	Generator provider.Generator

	db       database.Database
	periodic *service.PeriodicEmbedding
	logger   *slog.Logger
}

// New creates a Client, opening the database, migrating the schema and
// wiring every service.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	appCfg := cfg.appConfig
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	dbURL := cfg.dbURL
	if dbURL == "" {
		dbURL = appCfg.Storage().DBURL()
	}
	if dbURL == "" {
		dbURL = "sqlite:///recall.db"
	}

	db, err := database.New(ctx, dbURL, appCfg.Storage().ConnectTimeout())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.ConfigurePool(appCfg.Storage().MaxConns(), appCfg.Storage().MaxConns()/2, 0); err != nil {
		return nil, err
	}

	dimensions := appCfg.Embedding().Dimensions()
	if err := persistence.Migrate(ctx, db, dimensions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	embedder, generator, err := resolveProviders(cfg, appCfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !cfg.skipProviderCheck {
		if err := embedder.HealthCheck(ctx); err != nil {
			logger.Warn("embedding provider health check failed", slog.Any("error", err))
		}
	}

	documents := persistence.NewDocumentStore(db, dimensions)
	syncLogs := persistence.NewSyncLogStore(db)
	costs := persistence.NewCostStore(db)
	conversations := persistence.NewConversationStore(db)
	credentials, err := persistence.NewCredentialStore(db, cfg.credentialKey)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	hub := bus.NewHub(logger)

	retrieval := appCfg.Retrieval()
	weights := rank.NewWeights(
		retrieval.Weights().Vector(),
		retrieval.Weights().Recency(),
		retrieval.Weights().Keyword(),
		retrieval.Weights().Source(),
		retrieval.Weights().Length(),
	)
	ranker := rank.NewRanker(
		rank.WithWeights(weights),
		rank.WithDecayDays(retrieval.RecencyDecayDays()),
		rank.WithDiversityThreshold(retrieval.DiversityThreshold()),
		rank.WithIntentBoost(retrieval.IntentBoost()),
	)
	fallbackRanker := rank.NewRanker(
		rank.WithWeights(weights),
		rank.WithDecayDays(retrieval.RecencyDecayDays()),
		rank.WithIntentBoost(retrieval.IntentBoost()),
		rank.WithDiversification(false),
	)

	embeddings := service.NewEmbeddingService(
		documents, costs, embedder, hub, logger,
		appCfg.Embedding().BatchSize(),
		appCfg.Embedding().CostPerMillionTokens(),
	)
	search := service.NewSearchService(documents, embedder, logger)
	builder := service.NewContextBuilder(retrieval.MaxContextTokens())
	conversationService := service.NewConversationService(conversations)
	rag := service.NewRAGService(
		search, ranker, fallbackRanker, builder,
		prompt.DefaultLibrary(), generator, conversations,
		hub, logger, retrieval,
	)

	registry := connector.NewRegistry(
		connector.NewEmailConnector("", nil, logger),
		connector.NewCalendarConnector("", nil, logger),
		connector.NewMusicConnector("", nil, logger),
	)
	coordinator := service.NewCoordinator(documents, syncLogs, credentials, registry, embeddings, hub, logger)

	periodic := service.NewPeriodicEmbedding(embeddings, appCfg.Embedding().CronSchedule(), logger)
	if err := periodic.Start(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Client{
		Sync:          coordinator,
		Embeddings:    embeddings,
		Search:        search,
		RAG:           rag,
		Conversations: conversationService,
		Hub:           hub,
		Documents:     documents,
		SyncLogs:      syncLogs,
		Costs:         costs,
		Credentials:   credentials,
		Embedder:      embedder,
		Generator:     generator,
		db:            db,
		periodic:      periodic,
		logger:        logger,
	}, nil
}

// DB returns the underlying database handle.
func (c *Client) DB() database.Database { return c.db }

// Close stops background work and closes the database.
func (c *Client) Close() error {
	c.periodic.Stop()
	c.Hub.Shutdown()
	return c.db.Close()
}

func resolveProviders(cfg *clientConfig, appCfg config.AppConfig) (provider.Embedder, provider.Generator, error) {
	if cfg.embedder != nil && cfg.generator != nil {
		return cfg.embedder, cfg.generator, nil
	}

	apiKey := cfg.openAIKey
	if apiKey == "" {
		apiKey = appCfg.OpenAIAPIKey()
	}
	if apiKey == "" {
		return nil, nil, fmt.Errorf("no provider configured: set an OpenAI API key or inject providers")
	}

	openAI := provider.NewOpenAIProvider(provider.OpenAIConfig{
		APIKey:          apiKey,
		BaseURL:         appCfg.OpenAIBaseURL(),
		EmbeddingModel:  appCfg.Embedding().Model(),
		Dimensions:      appCfg.Embedding().Dimensions(),
		ChatModel:       appCfg.LLM().ChatModel(),
		Temperature:     appCfg.LLM().Temperature(),
		TopP:            appCfg.LLM().TopP(),
		MaxOutputTokens: appCfg.LLM().MaxOutputTokens(),
	})

	embedder := cfg.embedder
	if embedder == nil {
		embedder = openAI
	}
	generator := cfg.generator
	if generator == nil {
		generator = openAI
	}
	return embedder, generator, nil
}
