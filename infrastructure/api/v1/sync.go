package v1

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recallhq/recall/application/service"
	"github.com/recallhq/recall/domain/document"
)

const defaultHistoryLimit = 20

// SyncHandler serves the ingestion endpoints.
type SyncHandler struct {
	coordinator *service.Coordinator
	logger      *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(coordinator *service.Coordinator, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{coordinator: coordinator, logger: logger}
}

// RegisterRoutes mounts the sync endpoints.
func (h *SyncHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sync/{source}", h.start)
	r.Get("/sync/status/{syncID}", h.status)
	r.Get("/sync/history", h.history)
}

type syncRequest struct {
	UserID string `json:"userId"`
	Full   bool   `json:"full"`
}

// start launches a sync run and returns its id immediately; progress
// flows over the event bus and the status endpoint.
func (h *SyncHandler) start(w http.ResponseWriter, r *http.Request) {
	source := document.Source(chi.URLParam(r, "source"))
	if !document.ValidSource(source) {
		writeError(w, h.logger, fmt.Errorf("%w: unknown source %q", document.ErrValidation, source))
		return
	}

	var req syncRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	syncID, err := h.coordinator.StartSync(r.Context(), userIDOrDefault(req.UserID), source, req.Full)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeData(w, http.StatusAccepted, map[string]string{
		"syncId": syncID,
		"status": string(document.SyncInProgress),
	})
}

type syncLogResponse struct {
	SyncID           string     `json:"syncId"`
	UserID           string     `json:"userId"`
	Source           string     `json:"source"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	DocumentsFetched int        `json:"documentsFetched"`
	DocumentsStored  int        `json:"documentsStored"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
}

func syncLogToResponse(log document.SyncLog) syncLogResponse {
	resp := syncLogResponse{
		SyncID:           log.ID(),
		UserID:           log.UserID(),
		Source:           string(log.Source()),
		Status:           string(log.Status()),
		StartedAt:        log.StartedAt(),
		DocumentsFetched: log.DocumentsFetched(),
		DocumentsStored:  log.DocumentsStored(),
		ErrorMessage:     log.ErrorMessage(),
	}
	if !log.CompletedAt().IsZero() {
		t := log.CompletedAt()
		resp.CompletedAt = &t
	}
	return resp
}

func (h *SyncHandler) status(w http.ResponseWriter, r *http.Request) {
	log, err := h.coordinator.Status(r.Context(), chi.URLParam(r, "syncID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, syncLogToResponse(log))
}

func (h *SyncHandler) history(w http.ResponseWriter, r *http.Request) {
	userID := userIDOrDefault(r.URL.Query().Get("userId"))
	source := document.Source(r.URL.Query().Get("source"))
	if source != "" && !document.ValidSource(source) {
		writeError(w, h.logger, fmt.Errorf("%w: unknown source %q", document.ErrValidation, source))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, h.logger, fmt.Errorf("%w: invalid limit %q", document.ErrValidation, raw))
			return
		}
		limit = parsed
	}

	logs, err := h.coordinator.History(r.Context(), userID, source, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]syncLogResponse, len(logs))
	for i, log := range logs {
		out[i] = syncLogToResponse(log)
	}
	writeData(w, http.StatusOK, map[string]any{"history": out})
}
