package v1

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/application/service"
	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/infrastructure/connector"
	"github.com/recallhq/recall/infrastructure/provider"
)

func TestClassify_ValidationErrors(t *testing.T) {
	for _, err := range []error{
		document.ErrValidation,
		service.ErrEmptyQuery,
		document.ErrDimensionMismatch,
		connector.ErrUnknownSource,
		fmt.Errorf("wrapped: %w", document.ErrValidation),
	} {
		status, kind := classify(err)
		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "validation_error", kind)
	}
}

func TestClassify_NotFound(t *testing.T) {
	status, kind := classify(fmt.Errorf("%w: document x", document.ErrNotFound))
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", kind)

	status, kind = classify(service.ErrConversationNotFound)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", kind)
}

func TestClassify_SyncInProgress(t *testing.T) {
	status, kind := classify(service.ErrSyncInProgress)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "sync_in_progress", kind)
}

func TestClassify_Unauthorized(t *testing.T) {
	status, kind := classify(fmt.Errorf("validate: %w", connector.ErrUnauthorized))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthorized", kind)
}

func TestClassify_RateLimited(t *testing.T) {
	// A throttled provider error classifies as 429, not as a generic
	// provider fault.
	err := provider.NewProviderError("embed", http.StatusTooManyRequests, "slow down", provider.ErrRateLimited)
	status, kind := classify(err)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "rate_limited", kind)
}

func TestClassify_ProviderError(t *testing.T) {
	status, kind := classify(provider.NewProviderError("embed", http.StatusBadGateway, "boom", nil))
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "provider_error", kind)

	status, kind = classify(fmt.Errorf("list: %w", connector.ErrUpstream))
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "provider_error", kind)
}

func TestClassify_Default(t *testing.T) {
	status, kind := classify(fmt.Errorf("something odd"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "internal_error", kind)
}

func TestUserIDOrDefault(t *testing.T) {
	require.Equal(t, defaultUserID, userIDOrDefault(""))
	require.Equal(t, "u1", userIDOrDefault("u1"))
}
