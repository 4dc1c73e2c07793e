// Package v1 implements the HTTP handlers for the versioned API.
package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/recallhq/recall/application/service"
	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/infrastructure/connector"
	"github.com/recallhq/recall/infrastructure/provider"
)

// envelope is the uniform response wrapper: data on success, a typed
// error object on failure.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// writeError maps an error to its taxonomy entry and renders the
// failure envelope.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", slog.String("type", kind), slog.Any("error", err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Type: kind, Message: err.Error()},
	})
}

// classify maps errors onto HTTP statuses: invalid input to 400, missing
// resources to 404, concurrent sync to 409, provider throttling to 429
// and upstream faults to 502.
func classify(err error) (int, string) {
	var providerErr *provider.ProviderError

	switch {
	case errors.Is(err, document.ErrValidation),
		errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, document.ErrDimensionMismatch),
		errors.Is(err, connector.ErrUnknownSource):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, document.ErrNotFound),
		errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrSyncInProgress):
		return http.StatusConflict, "sync_in_progress"
	case errors.Is(err, connector.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, provider.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.As(err, &providerErr), errors.Is(err, connector.ErrUpstream):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON parses a request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Join(document.ErrValidation, err)
	}
	return nil
}

// defaultUserID is assumed when a request does not name a principal;
// the service is single-tenant by default.
const defaultUserID = "default"

func userIDOrDefault(userID string) string {
	if userID == "" {
		return defaultUserID
	}
	return userID
}
