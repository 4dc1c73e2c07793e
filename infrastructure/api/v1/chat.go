package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recallhq/recall/application/service"
)

// ChatHandler serves the question answering endpoints.
type ChatHandler struct {
	rag           *service.RAGService
	conversations *service.ConversationService
	logger        *slog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(rag *service.RAGService, conversations *service.ConversationService, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{rag: rag, conversations: conversations, logger: logger}
}

// RegisterRoutes mounts the chat endpoints.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/message", h.message)
	r.Post("/chat/message/stream", h.messageStream)
	r.Post("/chat/conversation", h.createConversation)
	r.Get("/chat/history/{conversationID}", h.history)
}

type messageRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

func (h *ChatHandler) message(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	answer, err := h.rag.Ask(r.Context(), userIDOrDefault(req.UserID), req.Message, req.ConversationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, answer)
}

// messageStream answers over Server-Sent Events: one context frame with
// the retrieval metadata, text frames as the model produces tokens, a
// done frame, then the [DONE] terminator.
func (h *ChatHandler) messageStream(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	streamed, err := h.rag.AskStream(r.Context(), userIDOrDefault(req.UserID), req.Message, req.ConversationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeSSE(w, "context", map[string]any{
		"queryId":       streamed.QueryID,
		"intent":        streamed.Intent,
		"queryType":     streamed.QueryType,
		"documentsUsed": streamed.Included,
		"citations":     streamed.Citations,
	})
	flusher.Flush()

	for chunk := range streamed.Chunks {
		switch {
		case chunk.Err != nil:
			writeSSE(w, "error", map[string]any{"message": chunk.Err.Error()})
		case chunk.Done:
			writeSSE(w, "done", map[string]any{"queryId": streamed.QueryID})
		case chunk.Text != "":
			writeSSE(w, "text", map[string]any{"text": chunk.Text})
		}
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

type conversationRequest struct {
	UserID string `json:"userId"`
}

func (h *ChatHandler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	conversationID, err := h.conversations.Create(r.Context(), userIDOrDefault(req.UserID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"conversationId": conversationID})
}

type turnResponse struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *ChatHandler) history(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	turns, err := h.conversations.History(r.Context(), conversationID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]turnResponse, len(turns))
	for i, turn := range turns {
		out[i] = turnResponse{Query: turn.Query(), Answer: turn.Answer(), CreatedAt: turn.CreatedAt()}
	}
	writeData(w, http.StatusOK, map[string]any{
		"conversationId": conversationID,
		"turns":          out,
	})
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
