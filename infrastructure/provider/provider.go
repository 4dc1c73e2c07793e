// Package provider wraps the external embedding and generative model
// APIs behind narrow interfaces with retry and rate-limit handling.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyInput indicates an embed or generate call with no text.
var ErrEmptyInput = errors.New("empty input")

// ErrRateLimited classifies upstream throttling; callers retry with
// backoff. Matched with errors.Is through ProviderError wrapping.
var ErrRateLimited = errors.New("rate limited")

// ProviderError carries upstream failure detail.
type ProviderError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{Operation: operation, StatusCode: statusCode, Message: message, Err: err}
}

// Embedding is one embedding result: the vector plus the token estimate
// used for cost accounting (1 token per ~4 characters, never used for
// correctness).
type Embedding struct {
	vector []float32
	tokens int
}

// NewEmbedding creates an Embedding.
func NewEmbedding(vector []float32, tokens int) Embedding {
	return Embedding{vector: vector, tokens: tokens}
}

// Vector returns the embedding vector.
func (e Embedding) Vector() []float32 { return e.vector }

// Tokens returns the token estimate.
func (e Embedding) Tokens() int { return e.tokens }

// Embedder wraps an external embedding model.
type Embedder interface {
	// Embed embeds a single text. Empty input is rejected.
	Embed(ctx context.Context, text string) (Embedding, error)

	// EmbedBatch embeds texts sequentially with a small inter-call delay
	// to respect external quotas, aborting on non-rate-limit failure.
	EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error)

	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error

	// Model returns the embedding model selector.
	Model() string

	// Dimensions returns the configured vector width.
	Dimensions() int
}

// TokenStats summarizes model token usage for one generation.
type TokenStats struct {
	Prompt     int
	Completion int
	Total      int
}

// Generation is the result of one blocking LLM call.
type Generation struct {
	text     string
	stats    TokenStats
	duration time.Duration
	model    string
}

// NewGeneration creates a Generation.
func NewGeneration(text string, stats TokenStats, duration time.Duration, model string) Generation {
	return Generation{text: text, stats: stats, duration: duration, model: model}
}

// Text returns the generated text.
func (g Generation) Text() string { return g.text }

// Stats returns the token usage.
func (g Generation) Stats() TokenStats { return g.stats }

// Duration returns the wall-clock time of the call.
func (g Generation) Duration() time.Duration { return g.duration }

// Model returns the serving model.
func (g Generation) Model() string { return g.model }

// StreamChunk is one piece of a streamed generation. Done is true on the
// final chunk, which carries no text.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Message is one prior conversation turn replayed to the model.
type Message struct {
	Role    string
	Content string
}

// Generator wraps an external generative model. All operations are
// one-shot; context cancellation aborts any in-flight request.
type Generator interface {
	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string) (Generation, error)

	// GenerateStream produces a completion as a chunk sequence terminated
	// by a done marker. The channel is closed after the done chunk.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error)

	// Chat produces a completion that replays prior role/content pairs.
	Chat(ctx context.Context, messages []Message) (Generation, error)
}

// EstimateTokens approximates token usage: one token per four characters.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
