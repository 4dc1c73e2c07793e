package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recallhq/recall/application/service"
	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/infrastructure/provider"
)

// EmbeddingHandler serves the embedding admin endpoints.
type EmbeddingHandler struct {
	embeddings *service.EmbeddingService
	store      document.Store
	costs      document.CostStore
	embedder   provider.Embedder
	logger     *slog.Logger
}

// NewEmbeddingHandler creates an EmbeddingHandler.
func NewEmbeddingHandler(
	embeddings *service.EmbeddingService,
	store document.Store,
	costs document.CostStore,
	embedder provider.Embedder,
	logger *slog.Logger,
) *EmbeddingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingHandler{
		embeddings: embeddings,
		store:      store,
		costs:      costs,
		embedder:   embedder,
		logger:     logger,
	}
}

// RegisterRoutes mounts the embedding endpoints.
func (h *EmbeddingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/embedding/generate", h.generate)
	r.Post("/embedding/reprocess", h.reprocess)
	r.Post("/embedding/mark-pending", h.markPending)
	r.Get("/embedding/status", h.status)
	r.Get("/embedding/stats", h.stats)
	r.Get("/embedding/diagnose", h.diagnose)
}

type batchResponse struct {
	BatchID   string  `json:"batchId,omitempty"`
	Processed int     `json:"processed"`
	Failed    int     `json:"failed"`
	Tokens    int     `json:"tokens"`
	Cost      float64 `json:"estimatedCost"`
	Remaining int64   `json:"remaining"`
}

func batchToResponse(report service.BatchReport) batchResponse {
	return batchResponse{
		BatchID:   report.BatchID,
		Processed: report.Processed,
		Failed:    report.Failed,
		Tokens:    report.Tokens,
		Cost:      report.Cost,
		Remaining: report.Remaining,
	}
}

// generate runs one embedding batch over the pending backlog.
func (h *EmbeddingHandler) generate(w http.ResponseWriter, r *http.Request) {
	report, err := h.embeddings.ProcessPending(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, batchToResponse(report))
}

type markRequest struct {
	DocumentIDs []string `json:"documentIds"`
}

// reprocess flags documents for re-embedding and immediately runs a
// batch over them.
func (h *EmbeddingHandler) reprocess(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	marked, err := h.store.MarkForReembedding(r.Context(), req.DocumentIDs...)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	report, err := h.embeddings.ProcessPending(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := struct {
		Marked int64 `json:"marked"`
		batchResponse
	}{Marked: marked, batchResponse: batchToResponse(report)}
	writeData(w, http.StatusOK, resp)
}

// markPending flags documents for re-embedding without running a batch.
func (h *EmbeddingHandler) markPending(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	marked, err := h.store.MarkForReembedding(r.Context(), req.DocumentIDs...)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int64{"marked": marked})
}

func (h *EmbeddingHandler) status(w http.ResponseWriter, r *http.Request) {
	backlog, err := h.embeddings.Backlog(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"pending": backlog,
		"model":   h.embedder.Model(),
	})
}

func (h *EmbeddingHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	tokens, cost, err := h.costs.Totals(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	bySource := map[string]int64{}
	for source, count := range stats.BySource {
		bySource[string(source)] = count
	}

	resp := map[string]any{
		"total":       stats.Total,
		"embedded":    stats.Embedded,
		"pending":     stats.Pending,
		"bySource":    bySource,
		"totalTokens": tokens,
		"totalCost":   cost,
	}
	if !stats.LastBatch.IsZero() {
		resp["lastBatchAt"] = stats.LastBatch.Format(time.RFC3339)
	}
	writeData(w, http.StatusOK, resp)
}

// diagnose verifies the provider is reachable and returns vectors of
// the configured width.
func (h *EmbeddingHandler) diagnose(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := h.embedder.HealthCheck(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"healthy":    true,
		"model":      h.embedder.Model(),
		"dimensions": h.embedder.Dimensions(),
		"latencyMs":  time.Since(start).Milliseconds(),
	})
}
