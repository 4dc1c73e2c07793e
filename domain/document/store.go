package document

import (
	"context"
	"time"
)

// CreateOutcome reports whether Create inserted a new row or found an
// existing one with the same document_id.
type CreateOutcome int

// CreateOutcome values.
const (
	OutcomeInserted CreateOutcome = iota
	OutcomeDuplicate
)

// EmbeddingUpdate carries one vector to apply to a stored document.
type EmbeddingUpdate struct {
	documentID  string
	vector      []float32
	tokens      int
	model       string
	generatedAt time.Time
}

// NewEmbeddingUpdate creates an EmbeddingUpdate.
func NewEmbeddingUpdate(documentID string, vector []float32, tokens int, model string) EmbeddingUpdate {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	return EmbeddingUpdate{
		documentID:  documentID,
		vector:      cp,
		tokens:      tokens,
		model:       model,
		generatedAt: time.Now().UTC(),
	}
}

// DocumentID returns the target document id.
func (u EmbeddingUpdate) DocumentID() string { return u.documentID }

// Vector returns the embedding vector.
func (u EmbeddingUpdate) Vector() []float32 { return u.vector }

// Tokens returns the token estimate for the embedded text.
func (u EmbeddingUpdate) Tokens() int { return u.tokens }

// Model returns the producing model.
func (u EmbeddingUpdate) Model() string { return u.model }

// GeneratedAt returns when the vector was produced.
func (u EmbeddingUpdate) GeneratedAt() time.Time { return u.generatedAt }

// EmbeddingStats summarizes embedding coverage for admin endpoints.
type EmbeddingStats struct {
	Total     int64
	Embedded  int64
	Pending   int64
	BySource  map[Source]int64
	LastBatch time.Time
}

// Store is the durable home of documents and their vectors.
//
// The search primitives are parameterized end to end: all user-influenced
// values traverse placeholders, cosine distance is the ordering operator
// and similarity is 1 - distance.
type Store interface {
	// Create inserts a document, reporting a typed duplicate outcome when
	// a row with the same document_id already exists.
	Create(ctx context.Context, doc Document) (CreateOutcome, error)

	// FindByID returns the document with the given document_id, or
	// ErrNotFound.
	FindByID(ctx context.Context, documentID string) (Document, error)

	// FindNeedingEmbedding returns up to limit documents flagged for
	// embedding, oldest first.
	FindNeedingEmbedding(ctx context.Context, limit int) ([]Document, error)

	// CountNeedingEmbedding returns the pending backlog size.
	CountNeedingEmbedding(ctx context.Context) (int64, error)

	// BatchUpdateEmbeddings applies a chunk of vectors in one
	// transaction: either all updates land or none.
	BatchUpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error

	// MarkForReembedding flags the given documents (all with content when
	// ids is empty) and returns the affected count.
	MarkForReembedding(ctx context.Context, ids ...string) (int64, error)

	// Search returns documents ordered by cosine similarity to the query
	// vector, subject to options.
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Match, error)

	// HybridSearch orders by similarity + keyword boost, where the boost
	// is HybridKeywordBoost when any keyword substring-matches the
	// document.
	HybridSearch(ctx context.Context, vector []float32, keywords []string, opts SearchOptions) ([]Match, error)

	// FindSimilar returns the k nearest documents to a stored document,
	// excluding the seed itself.
	FindSimilar(ctx context.Context, documentID string, k int) ([]Match, error)

	// Stats summarizes embedding coverage.
	Stats(ctx context.Context) (EmbeddingStats, error)
}

// SyncLogStore persists ingestion run records.
type SyncLogStore interface {
	// Create writes a new in-progress log row.
	Create(ctx context.Context, log SyncLog) error

	// Update persists a state transition. Rows already in a terminal
	// status are immutable and must not be overwritten.
	Update(ctx context.Context, log SyncLog) error

	// FindByID returns the log with the given sync id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (SyncLog, error)

	// History returns recent logs, newest first, optionally filtered by
	// user and source.
	History(ctx context.Context, userID string, source Source, limit int) ([]SyncLog, error)

	// LastSuccessful returns the most recent success row for a
	// (user, source); its cursor seeds the next incremental run.
	LastSuccessful(ctx context.Context, userID string, source Source) (SyncLog, error)
}

// CostStore persists embedding cost audit rows.
type CostStore interface {
	Create(ctx context.Context, cost EmbeddingCost) error
	Recent(ctx context.Context, limit int) ([]EmbeddingCost, error)
	Totals(ctx context.Context) (tokens int64, cost float64, err error)
}

// ConversationStore persists conversations and their turns.
type ConversationStore interface {
	// CreateConversation allocates a conversation for a user.
	CreateConversation(ctx context.Context, conversationID, userID string) error

	// Exists reports whether a conversation is known.
	Exists(ctx context.Context, conversationID string) (bool, error)

	// AppendTurn records a query/answer pair.
	AppendTurn(ctx context.Context, turn Turn) error

	// Turns returns the chronological turns of a conversation, capped at
	// limit when positive.
	Turns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
}

// CredentialStore is the external credential collaborator. The ingestion
// core only ever receives a currently valid access token for a
// (user, source); token refresh and encryption live behind this contract.
type CredentialStore interface {
	AccessToken(ctx context.Context, userID string, source Source) (string, error)
}
