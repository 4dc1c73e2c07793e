package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/infrastructure/provider"
)

const (
	// Query embedding cache: repeated questions skip the provider call
	// entirely within the TTL.
	queryCacheSize = 100
	queryCacheTTL  = 5 * time.Minute

	// expansionMinResults triggers a looser retry when a search returns
	// fewer hits; expansionFloor is the relaxed similarity cut-off.
	expansionMinResults = 3
	expansionFloor      = 0.3
)

// SearchService runs vector and hybrid searches, caching query
// embeddings in an expiring LRU.
type SearchService struct {
	store    document.Store
	embedder provider.Embedder
	cache    *expirable.LRU[string, []float32]
	logger   *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(store document.Store, embedder provider.Embedder, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{
		store:    store,
		embedder: embedder,
		cache:    expirable.NewLRU[string, []float32](queryCacheSize, nil, queryCacheTTL),
		logger:   logger,
	}
}

// embedQuery returns the embedding for a query text, serving repeats
// from the cache. The key is the trimmed, lowercased text.
func (s *SearchService) embedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	if key == "" {
		return nil, ErrEmptyQuery
	}

	if vec, ok := s.cache.Get(key); ok {
		s.logger.Debug("query embedding cache hit", slog.String("query", key))
		return vec, nil
	}

	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.cache.Add(key, emb.Vector())
	return emb.Vector(), nil
}

// VectorSearch embeds the query and returns similarity-ordered matches.
func (s *SearchService) VectorSearch(ctx context.Context, text string, opts document.SearchOptions) ([]document.Match, error) {
	vec, err := s.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.Search(ctx, vec, opts)
	if err != nil {
		return nil, err
	}
	return roundSimilarities(matches), nil
}

// HybridSearch embeds the query and returns matches ordered by
// similarity plus keyword boost.
func (s *SearchService) HybridSearch(ctx context.Context, text string, keywords []string, opts document.SearchOptions) ([]document.Match, error) {
	vec, err := s.embedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.HybridSearch(ctx, vec, keywords, opts)
	if err != nil {
		return nil, err
	}
	return roundSimilarities(matches), nil
}

// SearchWithExpansion runs a vector search and, when it comes back
// nearly empty under a strict cut-off, retries once with the relaxed
// floor.
func (s *SearchService) SearchWithExpansion(ctx context.Context, text string, opts document.SearchOptions) ([]document.Match, error) {
	matches, err := s.VectorSearch(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	if len(matches) < expansionMinResults && opts.MinSimilarity() > expansionFloor {
		s.logger.Debug("expanding search with relaxed similarity floor",
			slog.Int("results", len(matches)),
			slog.Float64("floor", expansionFloor))
		return s.VectorSearch(ctx, text, opts.WithMinSimilarity(expansionFloor))
	}
	return matches, nil
}

// FindSimilar returns the k nearest stored documents to a document.
func (s *SearchService) FindSimilar(ctx context.Context, documentID string, k int) ([]document.Match, error) {
	matches, err := s.store.FindSimilar(ctx, documentID, k)
	if err != nil {
		return nil, err
	}
	return roundSimilarities(matches), nil
}

// roundSimilarities rounds scores to four decimals so responses are
// stable across backends.
func roundSimilarities(matches []document.Match) []document.Match {
	out := make([]document.Match, len(matches))
	for i, m := range matches {
		out[i] = document.NewMatch(m.Document(), round4(m.Similarity()), m.KeywordBoost())
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
