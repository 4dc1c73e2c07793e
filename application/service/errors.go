// Package service orchestrates the domain: ingestion runs, the
// embedding worker, retrieval and answer assembly.
package service

import "errors"

// Service-level sentinels. Domain stores surface their own typed errors;
// these cover orchestration states the domain has no word for.
var (
	// ErrSyncInProgress indicates a sync for the same user and source is
	// already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrEmptyQuery indicates a blank question was submitted.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrConversationNotFound indicates an unknown conversation id.
	ErrConversationNotFound = errors.New("conversation not found")
)
