package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

// fakeOpenAI is a minimal OpenAI-compatible endpoint for provider tests.
type fakeOpenAI struct {
	server        *httptest.Server
	embedRequests int
	chatRequests  int
	embedStatus   int
	vector        []float32
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{embedStatus: http.StatusOK, vector: []float32{0.1, 0.2, 0.3}}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		f.embedRequests++
		if f.embedStatus != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.embedStatus)
			fmt.Fprint(w, `{"error":{"message":"simulated failure","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		parts := make([]string, len(f.vector))
		for i, v := range f.vector {
			parts[i] = fmt.Sprintf("%g", v)
		}
		fmt.Fprintf(w, `{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[%s]}],"usage":{"prompt_tokens":4,"total_tokens":4}}`, strings.Join(parts, ","))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		f.chatRequests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"the answer"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOpenAI) provider(dimensions int) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    f.server.URL + "/v1",
		Dimensions: dimensions,
	})
}

func TestOpenAIProvider_Embed(t *testing.T) {
	fake := newFakeOpenAI(t)
	p := fake.provider(3)

	emb, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector())
	require.Equal(t, EstimateTokens("hello world"), emb.Tokens())
	require.Equal(t, 1, fake.embedRequests)
}

func TestOpenAIProvider_Embed_EmptyInput(t *testing.T) {
	fake := newFakeOpenAI(t)
	p := fake.provider(3)

	_, err := p.Embed(context.Background(), "   \n\t ")
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Zero(t, fake.embedRequests)
}

func TestOpenAIProvider_Embed_ClientErrorNoRetry(t *testing.T) {
	fake := newFakeOpenAI(t)
	fake.embedStatus = http.StatusBadRequest
	p := fake.provider(3)

	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, "embed", provErr.Operation)
	require.Equal(t, http.StatusBadRequest, provErr.StatusCode)
	require.Equal(t, 1, fake.embedRequests)
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	fake := newFakeOpenAI(t)
	p := fake.provider(3)

	embeddings, err := p.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	require.Equal(t, 2, fake.embedRequests)
}

func TestOpenAIProvider_EmbedBatch_Empty(t *testing.T) {
	fake := newFakeOpenAI(t)
	p := fake.provider(3)

	_, err := p.EmbedBatch(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_HealthCheck_DimensionMismatch(t *testing.T) {
	fake := newFakeOpenAI(t)

	require.NoError(t, fake.provider(3).HealthCheck(context.Background()))

	err := fake.provider(1536).HealthCheck(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimensions")
}

func TestOpenAIProvider_Generate(t *testing.T) {
	fake := newFakeOpenAI(t)
	p := fake.provider(3)

	gen, err := p.Generate(context.Background(), "question")
	require.NoError(t, err)
	require.Equal(t, "the answer", gen.Text())
	require.Equal(t, TokenStats{Prompt: 12, Completion: 4, Total: 16}, gen.Stats())
	require.Equal(t, "gpt-4o-mini", gen.Model())
}

func TestOpenAIProvider_Chat_EmptyMessages(t *testing.T) {
	fake := newFakeOpenAI(t)
	p := fake.provider(3)

	_, err := p.Chat(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

// newStreamingChatServer serves a chat completion stream of the given
// deltas followed by the done marker.
func newStreamingChatServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, delta := range deltas {
			fmt.Fprintf(w, `data: {"object":"chat.completion.chunk","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q}}]}`+"\n\n", delta)
			fl.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIProvider_GenerateStream(t *testing.T) {
	server := newStreamingChatServer(t, []string{"the ", "answer"})
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Dimensions: 3})

	ch, err := p.GenerateStream(context.Background(), "question")
	require.NoError(t, err)

	var text strings.Builder
	done := false
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		if chunk.Done {
			done = true
			continue
		}
		text.WriteString(chunk.Text)
	}
	require.True(t, done)
	require.Equal(t, "the answer", text.String())
}

func TestOpenAIProvider_GenerateStream_AbandonedConsumerReleasesProducer(t *testing.T) {
	server := newStreamingChatServer(t, []string{"hello"})
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Dimensions: 3})

	baseline := runtime.NumGoroutine()

	// Take one chunk from each stream, cancel, and never read the
	// terminal chunk.
	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := p.GenerateStream(ctx, "question")
		require.NoError(t, err)

		chunk := <-ch
		require.Equal(t, "hello", chunk.Text)
		cancel()
	}

	require.Eventually(t, func() bool {
		http.DefaultTransport.(*http.Transport).CloseIdleConnections()
		return runtime.NumGoroutine() <= baseline+2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestPrepareText(t *testing.T) {
	require.Equal(t, "a b c", prepareText("  a\n\nb\t c  "))
	require.Equal(t, "", prepareText("   "))

	long := strings.Repeat("x", maxEmbedChars+100)
	require.Len(t, prepareText(long), maxEmbedChars)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 3, EstimateTokens("ninechars"))
}

func TestIsRateLimit(t *testing.T) {
	require.True(t, isRateLimit(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	require.False(t, isRateLimit(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}))
	require.True(t, isRateLimit(fmt.Errorf("wrapped: %w", ErrRateLimited)))
	require.False(t, isRateLimit(errors.New("other")))
}

func TestWrapError_RateLimitClassification(t *testing.T) {
	p := &OpenAIProvider{}

	err := p.wrapError("embed", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"})
	require.ErrorIs(t, err, ErrRateLimited)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
}

func TestProviderError_Error(t *testing.T) {
	withStatus := NewProviderError("embed", 502, "bad gateway", nil)
	require.Equal(t, "embed: status 502: bad gateway", withStatus.Error())

	withoutStatus := NewProviderError("chat_completion", 0, "boom", nil)
	require.Equal(t, "chat_completion: boom", withoutStatus.Error())
}
