package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Rate-limit retry schedule: 2s, 4s, 8s, three attempts after the first.
const (
	maxRateLimitRetries = 3
	initialRetryDelay   = 2 * time.Second
	backoffFactor       = 2.0

	// batchCallDelay paces sequential EmbedBatch calls.
	batchCallDelay = 200 * time.Millisecond

	// maxEmbedChars is a conservative character budget applied before
	// calling the model.
	maxEmbedChars = 20000
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// OpenAIConfig holds configuration for the OpenAI-backed providers.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	EmbeddingModel  string
	Dimensions      int
	ChatModel       string
	Temperature     float64
	TopP            float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// OpenAIProvider implements Embedder and Generator over the OpenAI API.
type OpenAIProvider struct {
	client          *openai.Client
	embeddingModel  string
	dimensions      int
	chatModel       string
	temperature     float32
	topP            float32
	maxOutputTokens int
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &OpenAIProvider{
		client:          openai.NewClientWithConfig(clientCfg),
		embeddingModel:  embeddingModel,
		dimensions:      dimensions,
		chatModel:       chatModel,
		temperature:     float32(cfg.Temperature),
		topP:            float32(cfg.TopP),
		maxOutputTokens: cfg.MaxOutputTokens,
	}
}

// Model returns the embedding model selector.
func (p *OpenAIProvider) Model() string { return p.embeddingModel }

// Dimensions returns the configured vector width.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// Embed embeds a single text. Whitespace is normalized and the text is
// truncated to a conservative character budget before the call.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (Embedding, error) {
	prepared := prepareText(text)
	if prepared == "" {
		return Embedding{}, fmt.Errorf("embed: %w", ErrEmptyInput)
	}

	var resp openai.EmbeddingResponse
	err := p.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(p.embeddingModel),
			Input: []string{prepared},
		})
		return callErr
	})
	if err != nil {
		return Embedding{}, p.wrapError("embed", err)
	}

	if len(resp.Data) == 0 {
		return Embedding{}, NewProviderError("embed", 0, "no embedding in response", nil)
	}

	return NewEmbedding(resp.Data[0].Embedding, EstimateTokens(prepared)), nil
}

// EmbedBatch embeds texts one at a time with a small delay between calls.
// A non-rate-limit failure aborts the batch; rate limits are retried
// inside each call.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embed batch: %w", ErrEmptyInput)
	}

	results := make([]Embedding, 0, len(texts))
	for i, text := range texts {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(batchCallDelay):
			}
		}

		emb, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		results = append(results, emb)
	}
	return results, nil
}

// HealthCheck embeds a probe string to verify reachability and reports a
// dimension mismatch against the configured width.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	emb, err := p.Embed(ctx, "health probe")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if len(emb.Vector()) != p.dimensions {
		return fmt.Errorf("health check: model returned %d dimensions, configured %d", len(emb.Vector()), p.dimensions)
	}
	return nil
}

// Generate produces a completion for a single prompt.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (Generation, error) {
	return p.Chat(ctx, []Message{{Role: openai.ChatMessageRoleUser, Content: prompt}})
}

// Chat produces a completion that replays prior role/content pairs.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (Generation, error) {
	if len(messages) == 0 {
		return Generation{}, fmt.Errorf("chat: %w", ErrEmptyInput)
	}

	req := p.chatRequest(messages)
	start := time.Now()

	var resp openai.ChatCompletionResponse
	err := p.withRetry(ctx, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return Generation{}, p.wrapError("chat_completion", err)
	}

	if len(resp.Choices) == 0 {
		return Generation{}, NewProviderError("chat_completion", 0, "no choices in response", nil)
	}

	stats := TokenStats{
		Prompt:     resp.Usage.PromptTokens,
		Completion: resp.Usage.CompletionTokens,
		Total:      resp.Usage.TotalTokens,
	}
	return NewGeneration(resp.Choices[0].Message.Content, stats, time.Since(start), resp.Model), nil
}

// GenerateStream produces a completion as a chunk sequence. The returned
// channel is closed after a terminal done or error chunk; cancelling the
// context aborts the upstream request and releases the producer even if
// the consumer has stopped reading.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("generate stream: %w", ErrEmptyInput)
	}

	req := p.chatRequest([]Message{{Role: openai.ChatMessageRoleUser, Content: prompt}})
	req.Stream = true

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError("chat_stream", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		// Terminal sends must not block when the consumer has stopped
		// reading; cancellation releases the goroutine.
		for {
			resp, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				select {
				case out <- StreamChunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if recvErr != nil {
				if ctx.Err() != nil {
					recvErr = ctx.Err()
				}
				select {
				case out <- StreamChunk{Err: p.wrapError("chat_stream", recvErr)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				select {
				case out <- StreamChunk{Text: delta}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (p *OpenAIProvider) chatRequest(messages []Message) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: msgs,
	}
	if p.temperature > 0 {
		req.Temperature = p.temperature
	}
	if p.topP > 0 {
		req.TopP = p.topP
	}
	if p.maxOutputTokens > 0 {
		req.MaxTokens = p.maxOutputTokens
	}
	return req
}

// prepareText normalizes whitespace and truncates to the character
// budget.
func prepareText(text string) string {
	text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) > maxEmbedChars {
		return string(runes[:maxEmbedChars])
	}
	return text
}

// withRetry retries fn on rate-limit errors with exponential backoff
// (2s, 4s, 8s). Other errors propagate immediately.
func (p *OpenAIProvider) withRetry(ctx context.Context, fn func() error) error {
	delay := initialRetryDelay
	var lastErr error

	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRateLimit(lastErr) {
			return lastErr
		}

		if attempt < maxRateLimitRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * backoffFactor)
			}
		}
	}

	return fmt.Errorf("%w: retries exhausted: %s", ErrRateLimited, lastErr)
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return errors.Is(err, ErrRateLimited)
}

// wrapError wraps an OpenAI error into a ProviderError, preserving the
// rate-limit classification and timeout detail.
func (p *OpenAIProvider) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := err
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			wrapped = fmt.Errorf("%w: %s", ErrRateLimited, err)
		}
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, wrapped)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewProviderError(operation, 0, "request timed out", err)
	}

	return NewProviderError(operation, 0, err.Error(), err)
}

// Interface checks.
var (
	_ Embedder  = (*OpenAIProvider)(nil)
	_ Generator = (*OpenAIProvider)(nil)
)
