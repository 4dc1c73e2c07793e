package document

import "errors"

// Error kinds shared across the retrieval and ingestion engine. They are
// matched with errors.Is so wrapped errors keep their classification.
var (
	// ErrValidation indicates malformed input: empty query, missing user
	// id, unknown source or type, vector dimension mismatch.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a missing document, sync, user or conversation.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique-constraint violation on document_id.
	// Not fatal; ingestion surfaces it as a skip counter.
	ErrDuplicate = errors.New("duplicate document")

	// ErrDimensionMismatch indicates a vector whose width differs from the
	// configured embedding dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
