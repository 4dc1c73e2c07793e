package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/application/service"
	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/prompt"
	"github.com/recallhq/recall/domain/rank"
	"github.com/recallhq/recall/infrastructure/connector"
	"github.com/recallhq/recall/infrastructure/persistence"
	"github.com/recallhq/recall/infrastructure/provider"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/database"
)

const stubAnswer = "Here is what I found."

// stubEmbedder returns a fixed unit vector for every text.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) (provider.Embedding, error) {
	return provider.NewEmbedding([]float32{1, 0, 0}, provider.EstimateTokens(text)), nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]provider.Embedding, error) {
	out := make([]provider.Embedding, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func (stubEmbedder) HealthCheck(context.Context) error { return nil }
func (stubEmbedder) Model() string                     { return "stub-embedding-model" }
func (stubEmbedder) Dimensions() int                   { return 3 }

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string) (provider.Generation, error) {
	return provider.NewGeneration(stubAnswer,
		provider.TokenStats{Prompt: 10, Completion: 5, Total: 15},
		time.Millisecond, "stub-chat-model"), nil
}

func (stubGenerator) GenerateStream(context.Context, string) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 3)
	ch <- provider.StreamChunk{Text: "Here is "}
	ch <- provider.StreamChunk{Text: "what I found."}
	ch <- provider.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (g stubGenerator) Chat(ctx context.Context, _ []provider.Message) (provider.Generation, error) {
	return g.Generate(ctx, "")
}

// stubConnector serves canned documents for the email source.
type stubConnector struct {
	docs     []document.Document
	fetchErr error
}

func (c *stubConnector) Source() document.Source { return document.SourceEmail }

func (c *stubConnector) Validate(context.Context, string) error { return nil }

func (c *stubConnector) Fetch(context.Context, connector.FetchRequest) ([]document.Document, error) {
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	return c.docs, nil
}

type apiFixture struct {
	router http.Handler
	store  *persistence.DocumentStore
	conn   *stubConnector
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, "sqlite:///:memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.Migrate(ctx, db, 3))

	store := persistence.NewDocumentStore(db, 3)
	syncLogs := persistence.NewSyncLogStore(db)
	costs := persistence.NewCostStore(db)
	conversations := persistence.NewConversationStore(db)

	credentials, err := persistence.NewCredentialStore(db, nil)
	require.NoError(t, err)
	require.NoError(t, credentials.Save(ctx, defaultUserID, document.SourceEmail, "stub-token", "", time.Time{}))

	embedder := stubEmbedder{}
	conn := &stubConnector{}

	embeddings := service.NewEmbeddingService(store, costs, embedder, nil, nil, 50, 0.02)
	coordinator := service.NewCoordinator(store, syncLogs, credentials, connector.NewRegistry(conn), embeddings, nil, nil)

	retrieval := config.DefaultAppConfig().Retrieval()
	search := service.NewSearchService(store, embedder, nil)
	rag := service.NewRAGService(
		search,
		rank.NewRanker(),
		rank.NewRanker(rank.WithDiversification(false)),
		service.NewContextBuilder(retrieval.MaxContextTokens()),
		prompt.DefaultLibrary(),
		stubGenerator{},
		conversations,
		nil, nil, retrieval,
	)

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		NewSyncHandler(coordinator, nil).RegisterRoutes(r)
		NewChatHandler(rag, service.NewConversationService(conversations), nil).RegisterRoutes(r)
		NewEmbeddingHandler(embeddings, store, costs, embedder, nil).RegisterRoutes(r)
	})

	return &apiFixture{router: router, store: store, conn: conn}
}

// seedEmbeddedDocs stores documents that will match the stub query
// vector exactly.
func (f *apiFixture) seedEmbeddedDocs(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		doc := document.New(
			fmt.Sprintf("email_seed%02d", i), defaultUserID,
			document.SourceEmail, document.TypeMessage,
			fmt.Sprintf("distinct stored email body number %d about the launch", i),
			time.Now().Add(-time.Duration(i+1)*time.Hour),
		).WithAuthor("sarah@example.com").
			WithEmbedding([]float32{1, 0, 0}, "stub-embedding-model", 8, time.Now().UTC())

		outcome, err := f.store.Create(context.Background(), doc)
		require.NoError(t, err)
		require.Equal(t, document.OutcomeInserted, outcome)
	}
}

type testEnvelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *apiError      `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env testEnvelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}
