package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/progress"
	"github.com/recallhq/recall/domain/prompt"
	"github.com/recallhq/recall/domain/query"
	"github.com/recallhq/recall/domain/rank"
	"github.com/recallhq/recall/infrastructure/provider"
	"github.com/recallhq/recall/internal/config"
)

// fallbackMinResults triggers the relaxed retrieval retry; ranked
// result sets below it re-run with the floor cut-off and no
// diversification.
const fallbackMinResults = 3

// Answer is the assembled response to one question.
type Answer struct {
	QueryID   string              `json:"queryId"`
	Text      string              `json:"answer"`
	Citations []Citation          `json:"citations"`
	Intent    query.Intent        `json:"intent"`
	QueryType query.Type          `json:"queryType"`
	Included  int                 `json:"documentsUsed"`
	Usage     provider.TokenStats `json:"usage"`
	Duration  time.Duration       `json:"-"`
	Model     string              `json:"model,omitempty"`
}

// StreamedAnswer is the streaming variant: the retrieval metadata is
// available up front, the answer text arrives over Chunks.
type StreamedAnswer struct {
	QueryID   string
	Citations []Citation
	Intent    query.Intent
	QueryType query.Type
	Included  int
	Chunks    <-chan provider.StreamChunk
}

// RAGService runs the query pipeline: parse, retrieve, rank, pack
// context, assemble the prompt and generate the answer.
type RAGService struct {
	search        *SearchService
	ranker        *rank.Ranker
	fallbackRank  *rank.Ranker
	builder       *ContextBuilder
	prompts       *prompt.Library
	generator     provider.Generator
	conversations document.ConversationStore
	publisher     progress.Publisher
	logger        *slog.Logger
	retrieval     config.RetrievalConfig
}

// NewRAGService creates a RAGService. The fallback ranker mirrors the
// primary one with diversification disabled, used when strict retrieval
// comes back nearly empty.
func NewRAGService(
	search *SearchService,
	ranker *rank.Ranker,
	fallbackRanker *rank.Ranker,
	builder *ContextBuilder,
	prompts *prompt.Library,
	generator provider.Generator,
	conversations document.ConversationStore,
	publisher progress.Publisher,
	logger *slog.Logger,
	retrieval config.RetrievalConfig,
) *RAGService {
	if publisher == nil {
		publisher = progress.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if fallbackRanker == nil {
		fallbackRanker = ranker
	}
	return &RAGService{
		search:        search,
		ranker:        ranker,
		fallbackRank:  fallbackRanker,
		builder:       builder,
		prompts:       prompts,
		generator:     generator,
		conversations: conversations,
		publisher:     publisher,
		logger:        logger,
		retrieval:     retrieval,
	}
}

// Ask answers a question against the user's documents. When
// conversationID is non-empty the turn is appended to that
// conversation.
func (s *RAGService) Ask(ctx context.Context, userID, question, conversationID string) (Answer, error) {
	prepared, err := s.prepare(ctx, userID, question)
	if err != nil {
		return Answer{}, err
	}

	s.publishStage(prepared.queryID, userID, "generating", "generating answer", 80)

	gen, err := s.generator.Generate(ctx, prepared.promptText)
	if err != nil {
		s.publishError(prepared.queryID, userID, err)
		return Answer{}, err
	}

	answer := Answer{
		QueryID:   prepared.queryID,
		Text:      gen.Text(),
		Citations: prepared.packed.Citations,
		Intent:    prepared.processed.Intent(),
		QueryType: prepared.processed.QueryType(),
		Included:  prepared.packed.Included,
		Usage:     gen.Stats(),
		Duration:  gen.Duration(),
		Model:     gen.Model(),
	}

	s.appendTurn(ctx, conversationID, userID, question, answer)

	s.publisher.Publish(progress.NewEvent(
		progress.ChannelRAGComplete,
		prepared.queryID,
		userID,
		map[string]any{
			"stage":         "complete",
			"percentage":    100,
			"documentsUsed": answer.Included,
		},
	))
	return answer, nil
}

// AskStream answers a question as a chunk stream. Retrieval metadata is
// returned before generation starts so callers can emit a context frame
// first.
func (s *RAGService) AskStream(ctx context.Context, userID, question, conversationID string) (StreamedAnswer, error) {
	prepared, err := s.prepare(ctx, userID, question)
	if err != nil {
		return StreamedAnswer{}, err
	}

	s.publishStage(prepared.queryID, userID, "generating", "streaming answer", 80)

	upstream, err := s.generator.GenerateStream(ctx, prepared.promptText)
	if err != nil {
		s.publishError(prepared.queryID, userID, err)
		return StreamedAnswer{}, err
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)

		var full strings.Builder
		for chunk := range upstream {
			if chunk.Err != nil {
				s.publishError(prepared.queryID, userID, chunk.Err)
				out <- chunk
				return
			}
			if chunk.Text != "" {
				full.WriteString(chunk.Text)
			}
			if chunk.Done {
				answer := Answer{
					QueryID:   prepared.queryID,
					Text:      full.String(),
					Citations: prepared.packed.Citations,
					Intent:    prepared.processed.Intent(),
					QueryType: prepared.processed.QueryType(),
					Included:  prepared.packed.Included,
				}
				s.appendTurn(ctx, conversationID, userID, question, answer)
				s.publisher.Publish(progress.NewEvent(
					progress.ChannelRAGComplete,
					prepared.queryID,
					userID,
					map[string]any{"stage": "complete", "percentage": 100},
				))
			}
			out <- chunk
		}
	}()

	return StreamedAnswer{
		QueryID:   prepared.queryID,
		Citations: prepared.packed.Citations,
		Intent:    prepared.processed.Intent(),
		QueryType: prepared.processed.QueryType(),
		Included:  prepared.packed.Included,
		Chunks:    out,
	}, nil
}

// preparedQuery carries the pipeline state between retrieval and
// generation.
type preparedQuery struct {
	queryID    string
	processed  query.Processed
	packed     BuiltContext
	promptText string
}

// prepare runs everything before generation: parse the question,
// retrieve and rank candidates, pack context and assemble the prompt.
func (s *RAGService) prepare(ctx context.Context, userID, question string) (preparedQuery, error) {
	if strings.TrimSpace(question) == "" {
		return preparedQuery{}, ErrEmptyQuery
	}

	queryID := uuid.NewString()
	s.publishStage(queryID, userID, "processing_query", "parsing question", 10)

	processed := query.Process(question)
	opts := s.searchOptions(userID, processed, s.retrieval.MinSimilarity())

	s.publishStage(queryID, userID, "searching", "retrieving documents", 30)

	matches, err := s.retrieve(ctx, question, processed, opts)
	if err != nil {
		s.publishError(queryID, userID, err)
		return preparedQuery{}, err
	}

	s.publishStage(queryID, userID, "ranking", "ranking candidates", 60)

	results := s.ranker.Rank(matches, processed)
	if len(results) < fallbackMinResults && s.retrieval.MinSimilarity() > s.retrieval.MinSimilarityFloor() {
		s.logger.Debug("retrying retrieval at similarity floor",
			slog.String("query_id", queryID),
			slog.Int("results", len(results)))

		floorOpts := opts.WithMinSimilarity(s.retrieval.MinSimilarityFloor())
		if floorMatches, floorErr := s.retrieve(ctx, question, processed, floorOpts); floorErr == nil {
			results = s.fallbackRank.Rank(floorMatches, processed)
		}
	}

	if len(results) > s.retrieval.TopN() {
		results = results[:s.retrieval.TopN()]
	}

	packed := s.builder.Build(results)
	variant := s.prompts.Select(processed.QueryType())
	promptText := s.prompts.Build(variant, packed.Text, question)

	return preparedQuery{
		queryID:    queryID,
		processed:  processed,
		packed:     packed,
		promptText: promptText,
	}, nil
}

// retrieve picks the search strategy: hybrid when the parsed query has
// enough keywords to make the lexical signal meaningful, otherwise
// plain vector search with expansion.
func (s *RAGService) retrieve(ctx context.Context, question string, processed query.Processed, opts document.SearchOptions) ([]document.Match, error) {
	if len(processed.Keywords()) >= s.retrieval.HybridThreshold() {
		return s.search.HybridSearch(ctx, question, processed.Keywords(), opts)
	}
	return s.search.SearchWithExpansion(ctx, question, opts)
}

// searchOptions assembles store search options from the parsed query.
func (s *RAGService) searchOptions(userID string, processed query.Processed, minSimilarity float64) document.SearchOptions {
	filterOpts := []document.FiltersOption{document.FilterUser(userID)}

	qf := processed.Filters()
	if qf.Source != "" {
		filterOpts = append(filterOpts, document.FilterSource(document.Source(qf.Source)))
	}
	if qf.Author != "" {
		filterOpts = append(filterOpts, document.FilterAuthor(qf.Author))
	}
	if !qf.TimeStart.IsZero() || !qf.TimeEnd.IsZero() {
		filterOpts = append(filterOpts, document.FilterTimeRange(qf.TimeStart, qf.TimeEnd))
	}

	return document.NewSearchOptions(s.retrieval.TopK(), minSimilarity, document.NewFilters(filterOpts...))
}

// appendTurn records a completed exchange on its conversation. Failures
// are logged, never surfaced: the answer was already produced.
func (s *RAGService) appendTurn(ctx context.Context, conversationID, userID, question string, answer Answer) {
	if conversationID == "" {
		return
	}

	turn := document.NewTurn(conversationID, userID, question, answer.Text, document.Metadata{
		"query_id":       answer.QueryID,
		"intent":         string(answer.Intent),
		"documents_used": answer.Included,
	})
	if err := s.conversations.AppendTurn(ctx, turn); err != nil {
		s.logger.Warn("failed to append conversation turn",
			slog.String("conversation_id", conversationID),
			slog.Any("error", err))
	}
}

func (s *RAGService) publishStage(queryID, userID, stage, message string, percentage int) {
	s.publisher.Publish(progress.NewEvent(
		progress.ChannelRAGProgress,
		queryID,
		userID,
		progress.StagePayload(stage, message, percentage, nil),
	))
}

func (s *RAGService) publishError(queryID, userID string, err error) {
	s.publisher.Publish(progress.NewEvent(
		progress.ChannelRAGError,
		queryID,
		userID,
		map[string]any{"stage": "failed", "message": err.Error()},
	))
}

// ExplainTopResult is a debugging helper: it re-runs retrieval and
// ranking for a question and returns the score breakdown of each ranked
// result.
func (s *RAGService) ExplainTopResult(ctx context.Context, userID, question string) ([]rank.Explanation, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuery
	}

	processed := query.Process(question)
	opts := s.searchOptions(userID, processed, s.retrieval.MinSimilarity())

	matches, err := s.retrieve(ctx, question, processed, opts)
	if err != nil {
		return nil, err
	}

	results := s.ranker.Rank(matches, processed)
	explanations := make([]rank.Explanation, len(results))
	for i, res := range results {
		explanations[i] = s.ranker.Explain(res)
	}
	return explanations, nil
}
