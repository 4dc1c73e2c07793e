// Package config provides application configuration.
package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration. Field names map
// directly to environment variables.
type EnvConfig struct {
	// Host is the server host to bind to.
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Port is the server port to listen on.
	Port int `envconfig:"PORT" default:"3001"`

	// DBURL is the database connection URL
	// (postgres://... or sqlite:///path/to.db).
	DBURL string `envconfig:"DB_URL"`

	// DBMaxConns caps the connection pool.
	DBMaxConns int `envconfig:"DB_MAX_CONNS" default:"10"`

	// DBConnectTimeout bounds the initial connection attempt, in seconds.
	DBConnectTimeout int `envconfig:"DB_CONNECT_TIMEOUT" default:"5"`

	// LogLevel is the log verbosity: DEBUG, INFO, WARN, ERROR.
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format: pretty or json.
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// OpenAIAPIKey authenticates against the embedding and chat APIs.
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// OpenAIBaseURL overrides the API base URL (proxies, compatible servers).
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	// EmbeddingModel selects the embedding model.
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`

	// EmbeddingDimensions is the vector width of the configured model.
	EmbeddingDimensions int `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	// EmbeddingBatchSize is the coordinator batch size for pending documents.
	EmbeddingBatchSize int `envconfig:"EMBEDDING_BATCH_SIZE" default:"50"`

	// EmbeddingCronSchedule optionally enables periodic embedding runs
	// (standard cron expression; empty disables the trigger).
	EmbeddingCronSchedule string `envconfig:"EMBEDDING_CRON_SCHEDULE"`

	// CostPerMillionTokens prices embedding usage for cost accounting.
	CostPerMillionTokens float64 `envconfig:"COST_PER_MILLION_TOKENS" default:"0.02"`

	// LLMChatModel selects the generative model.
	LLMChatModel string `envconfig:"LLM_CHAT_MODEL" default:"gpt-4o-mini"`

	// LLMTemperature is the sampling temperature.
	LLMTemperature float64 `envconfig:"LLM_TEMPERATURE" default:"0.7"`

	// LLMTopK limits sampling candidates (ignored by providers without it).
	LLMTopK int `envconfig:"LLM_TOP_K" default:"40"`

	// LLMTopP is the nucleus sampling threshold.
	LLMTopP float64 `envconfig:"LLM_TOP_P" default:"0.95"`

	// LLMMaxOutputTokens caps generated reply length.
	LLMMaxOutputTokens int `envconfig:"LLM_MAX_OUTPUT_TOKENS" default:"2048"`

	// DefaultTopN is the number of documents handed to the formatter.
	DefaultTopN int `envconfig:"DEFAULT_TOP_N" default:"10"`

	// DefaultTopK is the number of candidates retrieved from the store.
	DefaultTopK int `envconfig:"DEFAULT_TOP_K" default:"20"`

	// DefaultMinSimilarity is the cosine similarity cut-off.
	DefaultMinSimilarity float64 `envconfig:"DEFAULT_MIN_SIMILARITY" default:"0.5"`

	// MinSimilarityFloor is the lowest cut-off the fallback retry may use.
	MinSimilarityFloor float64 `envconfig:"MIN_SIMILARITY_FLOOR" default:"0.25"`

	// MaxContextTokens bounds the packed context block.
	MaxContextTokens int `envconfig:"MAX_CONTEXT_TOKENS" default:"28000"`

	// HybridKeywordThreshold is the keyword count at which hybrid search
	// is preferred over plain vector search.
	HybridKeywordThreshold int `envconfig:"HYBRID_KEYWORD_THRESHOLD" default:"2"`

	// DiversityThreshold is the Jaccard overlap above which a result is
	// considered a near-duplicate.
	DiversityThreshold float64 `envconfig:"DIVERSITY_THRESHOLD" default:"0.85"`

	// RecencyDecayDays is the half-life of the recency score.
	RecencyDecayDays int `envconfig:"RECENCY_DECAY_DAYS" default:"60"`

	// IntentBoost multiplies scores of documents matching the query intent.
	IntentBoost float64 `envconfig:"INTENT_BOOST" default:"1.3"`

	// Ranker weight overrides. They should sum to 1 but are not forced to.
	RankWeightVector  float64 `envconfig:"RANK_WEIGHT_VECTOR" default:"0.45"`
	RankWeightRecency float64 `envconfig:"RANK_WEIGHT_RECENCY" default:"0.15"`
	RankWeightKeyword float64 `envconfig:"RANK_WEIGHT_KEYWORD" default:"0.25"`
	RankWeightSource  float64 `envconfig:"RANK_WEIGHT_SOURCE" default:"0.10"`
	RankWeightLength  float64 `envconfig:"RANK_WEIGHT_LENGTH" default:"0.05"`

	// FrontendURL is the origin of the frontend for links and CORS.
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	// CORSOrigin is a comma-separated list of allowed origins.
	CORSOrigin string `envconfig:"CORS_ORIGIN"`
}

// LoadEnvConfig reads configuration from environment variables.
func LoadEnvConfig() (EnvConfig, error) {
	var env EnvConfig
	if err := envconfig.Process("", &env); err != nil {
		return EnvConfig{}, err
	}
	return env, nil
}
