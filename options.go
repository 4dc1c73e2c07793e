package recall

import (
	"log/slog"

	"github.com/recallhq/recall/infrastructure/provider"
	"github.com/recallhq/recall/internal/config"
)

// clientConfig holds configuration for Client construction.
type clientConfig struct {
	dbURL             string
	appConfig         config.AppConfig
	appConfigSet      bool
	embedder          provider.Embedder
	generator         provider.Generator
	logger            *slog.Logger
	credentialKey     []byte
	openAIKey         string
	skipProviderCheck bool
}

func newClientConfig() *clientConfig {
	return &clientConfig{
		appConfig: config.DefaultAppConfig(),
	}
}

// Option configures a Client.
type Option func(*clientConfig)

// WithSQLite stores data in a SQLite file at the given path.
func WithSQLite(path string) Option {
	return func(c *clientConfig) { c.dbURL = "sqlite:///" + path }
}

// WithPostgres stores data in PostgreSQL with pgvector search.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) { c.dbURL = dsn }
}

// WithConfig replaces the default application configuration, usually
// with one assembled from the environment.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.appConfig = cfg
		c.appConfigSet = true
	}
}

// WithOpenAI selects the OpenAI provider for embeddings and generation
// using the configured models.
func WithOpenAI(apiKey string) Option {
	return func(c *clientConfig) { c.openAIKey = apiKey }
}

// WithEmbedder injects a custom embedding provider, mainly for tests.
func WithEmbedder(embedder provider.Embedder) Option {
	return func(c *clientConfig) { c.embedder = embedder }
}

// WithGenerator injects a custom generation provider, mainly for tests.
func WithGenerator(generator provider.Generator) Option {
	return func(c *clientConfig) { c.generator = generator }
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithCredentialKey sets the AES key sealing stored upstream tokens.
func WithCredentialKey(key []byte) Option {
	return func(c *clientConfig) { c.credentialKey = key }
}

// WithSkipProviderCheck disables the provider health check during
// construction.
func WithSkipProviderCheck() Option {
	return func(c *clientConfig) { c.skipProviderCheck = true }
}
