package document

import "time"

// CostStatus marks whether an embedding batch completed.
type CostStatus string

// CostStatus values.
const (
	CostCompleted CostStatus = "completed"
	CostPartial   CostStatus = "partial"
	CostFailed    CostStatus = "failed"
)

// EmbeddingCost is the audit row written once per embedding run.
type EmbeddingCost struct {
	batchID       string
	model         string
	documentCount int
	totalTokens   int
	estimatedCost float64
	status        CostStatus
	createdAt     time.Time
}

// NewEmbeddingCost creates an EmbeddingCost row.
func NewEmbeddingCost(batchID, model string, documentCount, totalTokens int, estimatedCost float64, status CostStatus) EmbeddingCost {
	return EmbeddingCost{
		batchID:       batchID,
		model:         model,
		documentCount: documentCount,
		totalTokens:   totalTokens,
		estimatedCost: estimatedCost,
		status:        status,
		createdAt:     time.Now().UTC(),
	}
}

// EstimateCost prices a token count at the configured rate per million.
func EstimateCost(tokens int, pricePerMillion float64) float64 {
	return float64(tokens) / 1_000_000 * pricePerMillion
}

// BatchID returns the generated batch identifier.
func (c EmbeddingCost) BatchID() string { return c.batchID }

// Model returns the embedding model used.
func (c EmbeddingCost) Model() string { return c.model }

// DocumentCount returns the number of documents embedded.
func (c EmbeddingCost) DocumentCount() int { return c.documentCount }

// TotalTokens returns the aggregate token estimate.
func (c EmbeddingCost) TotalTokens() int { return c.totalTokens }

// EstimatedCost returns the priced cost.
func (c EmbeddingCost) EstimatedCost() float64 { return c.estimatedCost }

// Status returns the batch outcome.
func (c EmbeddingCost) Status() CostStatus { return c.status }

// CreatedAt returns when the row was written.
func (c EmbeddingCost) CreatedAt() time.Time { return c.createdAt }
