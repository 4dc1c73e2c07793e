package config

import (
	"fmt"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultHost               = "0.0.0.0"
	DefaultPort               = 3001
	DefaultLogLevel           = "INFO"
	DefaultDBMaxConns         = 10
	DefaultDBConnectTimeout   = 5 * time.Second
	DefaultEmbeddingBatchSize = 50
	DefaultEmbeddingChunkSize = 10
	DefaultTopN               = 10
	DefaultTopK               = 20
	DefaultMinSimilarity      = 0.5
	DefaultMinSimilarityFloor = 0.25
	DefaultMaxContextTokens   = 28000
	DefaultHybridThreshold    = 2
	DefaultDiversityThreshold = 0.85
	DefaultRecencyDecayDays   = 60
	DefaultIntentBoost        = 1.3
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	host        string
	port        int
	frontendURL string
	corsOrigins []string
}

// Host returns the bind host.
func (s ServerConfig) Host() string { return s.host }

// Port returns the listen port.
func (s ServerConfig) Port() int { return s.port }

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.host, s.port) }

// FrontendURL returns the frontend origin.
func (s ServerConfig) FrontendURL() string { return s.frontendURL }

// CORSOrigins returns the allowed CORS origins. The frontend URL is
// always included.
func (s ServerConfig) CORSOrigins() []string {
	out := make([]string, len(s.corsOrigins))
	copy(out, s.corsOrigins)
	return out
}

// StorageConfig configures the database connection.
type StorageConfig struct {
	dbURL          string
	maxConns       int
	connectTimeout time.Duration
}

// DBURL returns the database connection URL.
func (s StorageConfig) DBURL() string { return s.dbURL }

// MaxConns returns the connection pool cap.
func (s StorageConfig) MaxConns() int { return s.maxConns }

// ConnectTimeout returns the initial connection timeout.
func (s StorageConfig) ConnectTimeout() time.Duration { return s.connectTimeout }

// EmbeddingConfig configures the embedding provider and pipeline.
type EmbeddingConfig struct {
	model                string
	dimensions           int
	batchSize            int
	cronSchedule         string
	costPerMillionTokens float64
}

// Model returns the embedding model selector.
func (e EmbeddingConfig) Model() string { return e.model }

// Dimensions returns the configured vector width.
func (e EmbeddingConfig) Dimensions() int { return e.dimensions }

// BatchSize returns the pipeline batch size.
func (e EmbeddingConfig) BatchSize() int { return e.batchSize }

// CronSchedule returns the optional periodic trigger expression.
func (e EmbeddingConfig) CronSchedule() string { return e.cronSchedule }

// CostPerMillionTokens returns the configured embedding price.
func (e EmbeddingConfig) CostPerMillionTokens() float64 { return e.costPerMillionTokens }

// LLMConfig configures the generative model.
type LLMConfig struct {
	chatModel       string
	temperature     float64
	topK            int
	topP            float64
	maxOutputTokens int
}

// ChatModel returns the generative model selector.
func (l LLMConfig) ChatModel() string { return l.chatModel }

// Temperature returns the sampling temperature.
func (l LLMConfig) Temperature() float64 { return l.temperature }

// TopK returns the top-k sampling limit.
func (l LLMConfig) TopK() int { return l.topK }

// TopP returns the nucleus sampling threshold.
func (l LLMConfig) TopP() float64 { return l.topP }

// MaxOutputTokens returns the reply length cap.
func (l LLMConfig) MaxOutputTokens() int { return l.maxOutputTokens }

// RankWeights holds the ranker signal weights.
type RankWeights struct {
	vector  float64
	recency float64
	keyword float64
	source  float64
	length  float64
}

// NewRankWeights creates RankWeights from explicit values.
func NewRankWeights(vector, recency, keyword, source, length float64) RankWeights {
	return RankWeights{vector: vector, recency: recency, keyword: keyword, source: source, length: length}
}

// DefaultRankWeights returns the default signal weights.
func DefaultRankWeights() RankWeights {
	return NewRankWeights(0.45, 0.15, 0.25, 0.10, 0.05)
}

// Vector returns the vector similarity weight.
func (w RankWeights) Vector() float64 { return w.vector }

// Recency returns the recency weight.
func (w RankWeights) Recency() float64 { return w.recency }

// Keyword returns the keyword weight.
func (w RankWeights) Keyword() float64 { return w.keyword }

// Source returns the source priority weight.
func (w RankWeights) Source() float64 { return w.source }

// Length returns the content length weight.
func (w RankWeights) Length() float64 { return w.length }

// RetrievalConfig configures search, ranking and context packing.
type RetrievalConfig struct {
	topN               int
	topK               int
	minSimilarity      float64
	minSimilarityFloor float64
	maxContextTokens   int
	hybridThreshold    int
	diversityThreshold float64
	recencyDecayDays   int
	intentBoost        float64
	weights            RankWeights
}

// TopN returns the number of documents handed to the formatter.
func (r RetrievalConfig) TopN() int { return r.topN }

// TopK returns the retrieval candidate count.
func (r RetrievalConfig) TopK() int { return r.topK }

// MinSimilarity returns the similarity cut-off.
func (r RetrievalConfig) MinSimilarity() float64 { return r.minSimilarity }

// MinSimilarityFloor returns the lowest cut-off the fallback may use.
func (r RetrievalConfig) MinSimilarityFloor() float64 { return r.minSimilarityFloor }

// MaxContextTokens returns the context token budget.
func (r RetrievalConfig) MaxContextTokens() int { return r.maxContextTokens }

// HybridThreshold returns the keyword count that selects hybrid search.
func (r RetrievalConfig) HybridThreshold() int { return r.hybridThreshold }

// DiversityThreshold returns the near-duplicate Jaccard threshold.
func (r RetrievalConfig) DiversityThreshold() float64 { return r.diversityThreshold }

// RecencyDecayDays returns the recency half-life in days.
func (r RetrievalConfig) RecencyDecayDays() int { return r.recencyDecayDays }

// IntentBoost returns the intent-match score multiplier.
func (r RetrievalConfig) IntentBoost() float64 { return r.intentBoost }

// Weights returns the ranker signal weights.
func (r RetrievalConfig) Weights() RankWeights { return r.weights }

// AppConfig is the immutable application configuration assembled from the
// environment.
type AppConfig struct {
	server    ServerConfig
	storage   StorageConfig
	embedding EmbeddingConfig
	llm       LLMConfig
	retrieval RetrievalConfig

	openAIAPIKey  string
	openAIBaseURL string
	logLevel      string
	logFormat     string
}

// NewAppConfig builds an AppConfig from an EnvConfig.
func NewAppConfig(env EnvConfig) AppConfig {
	origins := []string{env.FrontendURL}
	for _, o := range strings.Split(env.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" && o != env.FrontendURL {
			origins = append(origins, o)
		}
	}

	return AppConfig{
		server: ServerConfig{
			host:        env.Host,
			port:        env.Port,
			frontendURL: env.FrontendURL,
			corsOrigins: origins,
		},
		storage: StorageConfig{
			dbURL:          env.DBURL,
			maxConns:       env.DBMaxConns,
			connectTimeout: time.Duration(env.DBConnectTimeout) * time.Second,
		},
		embedding: EmbeddingConfig{
			model:                env.EmbeddingModel,
			dimensions:           env.EmbeddingDimensions,
			batchSize:            env.EmbeddingBatchSize,
			cronSchedule:         env.EmbeddingCronSchedule,
			costPerMillionTokens: env.CostPerMillionTokens,
		},
		llm: LLMConfig{
			chatModel:       env.LLMChatModel,
			temperature:     env.LLMTemperature,
			topK:            env.LLMTopK,
			topP:            env.LLMTopP,
			maxOutputTokens: env.LLMMaxOutputTokens,
		},
		retrieval: RetrievalConfig{
			topN:               env.DefaultTopN,
			topK:               env.DefaultTopK,
			minSimilarity:      env.DefaultMinSimilarity,
			minSimilarityFloor: env.MinSimilarityFloor,
			maxContextTokens:   env.MaxContextTokens,
			hybridThreshold:    env.HybridKeywordThreshold,
			diversityThreshold: env.DiversityThreshold,
			recencyDecayDays:   env.RecencyDecayDays,
			intentBoost:        env.IntentBoost,
			weights: NewRankWeights(
				env.RankWeightVector,
				env.RankWeightRecency,
				env.RankWeightKeyword,
				env.RankWeightSource,
				env.RankWeightLength,
			),
		},
		openAIAPIKey:  env.OpenAIAPIKey,
		openAIBaseURL: env.OpenAIBaseURL,
		logLevel:      env.LogLevel,
		logFormat:     env.LogFormat,
	}
}

// DefaultAppConfig returns an AppConfig with all defaults applied and no
// environment consulted. Useful for tests.
func DefaultAppConfig() AppConfig {
	return NewAppConfig(EnvConfig{
		Host:                   DefaultHost,
		Port:                   DefaultPort,
		DBMaxConns:             DefaultDBMaxConns,
		DBConnectTimeout:       5,
		LogLevel:               DefaultLogLevel,
		LogFormat:              "pretty",
		EmbeddingModel:         "text-embedding-3-small",
		EmbeddingDimensions:    1536,
		EmbeddingBatchSize:     DefaultEmbeddingBatchSize,
		CostPerMillionTokens:   0.02,
		LLMChatModel:           "gpt-4o-mini",
		LLMTemperature:         0.7,
		LLMTopK:                40,
		LLMTopP:                0.95,
		LLMMaxOutputTokens:     2048,
		DefaultTopN:            DefaultTopN,
		DefaultTopK:            DefaultTopK,
		DefaultMinSimilarity:   DefaultMinSimilarity,
		MinSimilarityFloor:     DefaultMinSimilarityFloor,
		MaxContextTokens:       DefaultMaxContextTokens,
		HybridKeywordThreshold: DefaultHybridThreshold,
		DiversityThreshold:     DefaultDiversityThreshold,
		RecencyDecayDays:       DefaultRecencyDecayDays,
		IntentBoost:            DefaultIntentBoost,
		RankWeightVector:       0.45,
		RankWeightRecency:      0.15,
		RankWeightKeyword:      0.25,
		RankWeightSource:       0.10,
		RankWeightLength:       0.05,
		FrontendURL:            "http://localhost:3000",
	})
}

// Load reads the environment (optionally preceded by a .env file) and
// assembles the AppConfig.
func Load(envFile string) (AppConfig, error) {
	if err := LoadDotEnv(envFile); err != nil {
		return AppConfig{}, fmt.Errorf("load env file: %w", err)
	}
	env, err := LoadEnvConfig()
	if err != nil {
		return AppConfig{}, fmt.Errorf("process environment: %w", err)
	}
	return NewAppConfig(env), nil
}

// Server returns the HTTP listener configuration.
func (c AppConfig) Server() ServerConfig { return c.server }

// Storage returns the database configuration.
func (c AppConfig) Storage() StorageConfig { return c.storage }

// Embedding returns the embedding configuration.
func (c AppConfig) Embedding() EmbeddingConfig { return c.embedding }

// LLM returns the generative model configuration.
func (c AppConfig) LLM() LLMConfig { return c.llm }

// Retrieval returns the retrieval configuration.
func (c AppConfig) Retrieval() RetrievalConfig { return c.retrieval }

// OpenAIAPIKey returns the provider API key.
func (c AppConfig) OpenAIAPIKey() string { return c.openAIAPIKey }

// OpenAIBaseURL returns the provider base URL override.
func (c AppConfig) OpenAIBaseURL() string { return c.openAIBaseURL }

// LogLevel returns the log verbosity.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log output format.
func (c AppConfig) LogFormat() string { return c.logFormat }
