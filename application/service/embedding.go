package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/domain/progress"
	"github.com/recallhq/recall/infrastructure/provider"
)

const (
	// embedChunkSize is the per-provider-call document count inside one
	// batch; chunkPause paces consecutive chunks and drainPause paces
	// consecutive batches when draining the whole backlog.
	embedChunkSize = 10
	chunkPause     = 300 * time.Millisecond
	drainPause     = 500 * time.Millisecond
)

// BatchReport summarizes one embedding batch run.
type BatchReport struct {
	BatchID   string
	Processed int
	Failed    int
	Tokens    int
	Cost      float64
	Remaining int64
}

// Merge folds another report into this one, keeping the latest batch id
// and backlog figure.
func (r BatchReport) Merge(other BatchReport) BatchReport {
	return BatchReport{
		BatchID:   other.BatchID,
		Processed: r.Processed + other.Processed,
		Failed:    r.Failed + other.Failed,
		Tokens:    r.Tokens + other.Tokens,
		Cost:      r.Cost + other.Cost,
		Remaining: other.Remaining,
	}
}

// EmbeddingService drives the embedding backlog: it picks up pending
// documents in batches, embeds them in small chunks and applies each
// chunk transactionally. A failed chunk is logged and skipped; the rest
// of the batch proceeds.
type EmbeddingService struct {
	store     document.Store
	costs     document.CostStore
	embedder  provider.Embedder
	publisher progress.Publisher
	logger    *slog.Logger

	batchSize      int
	costPerMillion float64
}

// NewEmbeddingService creates an EmbeddingService.
func NewEmbeddingService(
	store document.Store,
	costs document.CostStore,
	embedder provider.Embedder,
	publisher progress.Publisher,
	logger *slog.Logger,
	batchSize int,
	costPerMillion float64,
) *EmbeddingService {
	if publisher == nil {
		publisher = progress.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &EmbeddingService{
		store:          store,
		costs:          costs,
		embedder:       embedder,
		publisher:      publisher,
		logger:         logger,
		batchSize:      batchSize,
		costPerMillion: costPerMillion,
	}
}

// ProcessPending embeds up to one batch of pending documents and writes
// a cost audit row for the run. An empty backlog returns a zero report.
func (s *EmbeddingService) ProcessPending(ctx context.Context) (BatchReport, error) {
	return s.processPending(ctx, "", "")
}

// processPending runs one batch. Progress events are scoped by scopeID
// and userID so a drain triggered by a sync reports on that sync's
// stream; an empty scope falls back to the batch id.
func (s *EmbeddingService) processPending(ctx context.Context, scopeID, userID string) (BatchReport, error) {
	docs, err := s.store.FindNeedingEmbedding(ctx, s.batchSize)
	if err != nil {
		return BatchReport{}, err
	}
	if len(docs) == 0 {
		return BatchReport{}, nil
	}

	report := BatchReport{BatchID: uuid.NewString()}
	if scopeID == "" {
		scopeID = report.BatchID
	}
	total := len(docs)

	for start := 0; start < total; start += embedChunkSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(chunkPause):
			}
		}

		end := min(start+embedChunkSize, total)
		chunk := docs[start:end]

		processed, tokens, chunkErr := s.embedChunk(ctx, chunk)
		if chunkErr != nil {
			s.logger.Warn("embedding chunk failed, continuing with next",
				slog.String("batch_id", report.BatchID),
				slog.Int("chunk_size", len(chunk)),
				slog.Any("error", chunkErr))
			report.Failed += len(chunk)
		} else {
			report.Processed += processed
			report.Tokens += tokens
		}

		s.publishProgress(scopeID, userID, report, end, total)
	}

	report.Cost = document.EstimateCost(report.Tokens, s.costPerMillion)
	if err := s.recordCost(ctx, report); err != nil {
		s.logger.Error("failed to record embedding cost", slog.Any("error", err))
	}

	remaining, err := s.store.CountNeedingEmbedding(ctx)
	if err != nil {
		return report, err
	}
	report.Remaining = remaining
	return report, nil
}

// DrainAllPending runs batches until the backlog is empty, publishing
// progress under syncID and userID when set. A batch that makes no
// progress stops the drain so a persistently failing backlog cannot
// spin forever.
func (s *EmbeddingService) DrainAllPending(ctx context.Context, syncID, userID string) (BatchReport, error) {
	var total BatchReport

	for {
		report, err := s.processPending(ctx, syncID, userID)
		if err != nil {
			return total.Merge(report), err
		}
		total = total.Merge(report)

		if report.Remaining == 0 || report.Processed == 0 {
			return total, nil
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(drainPause):
		}
	}
}

// Backlog returns the number of documents waiting for embedding.
func (s *EmbeddingService) Backlog(ctx context.Context) (int64, error) {
	return s.store.CountNeedingEmbedding(ctx)
}

// embedChunk embeds one chunk and applies its updates in a single
// transaction.
func (s *EmbeddingService) embedChunk(ctx context.Context, chunk []document.Document) (int, int, error) {
	texts := make([]string, len(chunk))
	for i, doc := range chunk {
		texts[i] = doc.Content()
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, 0, err
	}
	if len(embeddings) != len(chunk) {
		return 0, 0, fmt.Errorf("embedder returned %d vectors for %d texts", len(embeddings), len(chunk))
	}

	updates := make([]document.EmbeddingUpdate, len(chunk))
	tokens := 0
	for i, emb := range embeddings {
		updates[i] = document.NewEmbeddingUpdate(chunk[i].DocumentID(), emb.Vector(), emb.Tokens(), s.embedder.Model())
		tokens += emb.Tokens()
	}

	if err := s.store.BatchUpdateEmbeddings(ctx, updates); err != nil {
		return 0, 0, err
	}
	return len(chunk), tokens, nil
}

// publishProgress emits a backlog progress event. The percentage is
// capped at 99 until the caller decides the run is complete.
func (s *EmbeddingService) publishProgress(scopeID, userID string, report BatchReport, done, total int) {
	percentage := min(done*100/total, 99)
	s.publisher.Publish(progress.NewEvent(
		progress.ChannelEmbeddings,
		scopeID,
		userID,
		progress.StagePayload("embedding", fmt.Sprintf("embedded %d of %d documents", done, total), percentage, map[string]int{
			"processed": report.Processed,
			"failed":    report.Failed,
		}),
	))
}

// recordCost writes the audit row for a batch run.
func (s *EmbeddingService) recordCost(ctx context.Context, report BatchReport) error {
	status := document.CostCompleted
	switch {
	case report.Processed == 0:
		status = document.CostFailed
	case report.Failed > 0:
		status = document.CostPartial
	}

	cost := document.NewEmbeddingCost(
		report.BatchID,
		s.embedder.Model(),
		report.Processed,
		report.Tokens,
		report.Cost,
		status,
	)
	return s.costs.Create(ctx, cost)
}
