package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/internal/database"
)

// CostStore implements document.CostStore on GORM.
type CostStore struct {
	db database.Database
}

// NewCostStore creates a CostStore.
func NewCostStore(db database.Database) *CostStore {
	return &CostStore{db: db}
}

// Create writes an embedding cost audit row.
func (s *CostStore) Create(ctx context.Context, cost document.EmbeddingCost) error {
	entity := costToEntity(cost)
	if err := s.db.Session(ctx).Create(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: cost batch %s", document.ErrDuplicate, cost.BatchID())
		}
		return fmt.Errorf("create cost record: %w", err)
	}
	return nil
}

// Recent returns the newest cost rows, most recent first.
func (s *CostStore) Recent(ctx context.Context, limit int) ([]document.EmbeddingCost, error) {
	query := s.db.Session(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entities []EmbeddingCostEntity
	if err := query.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("recent cost records: %w", err)
	}

	costs := make([]document.EmbeddingCost, len(entities))
	for i, entity := range entities {
		costs[i] = costFromEntity(entity)
	}
	return costs, nil
}

// Totals returns cumulative token and cost figures across all batches.
func (s *CostStore) Totals(ctx context.Context) (int64, float64, error) {
	var totals struct {
		Tokens int64
		Cost   float64
	}
	err := s.db.Session(ctx).Model(&EmbeddingCostEntity{}).
		Select("COALESCE(SUM(total_tokens), 0) AS tokens, COALESCE(SUM(estimated_cost), 0) AS cost").
		Scan(&totals).Error
	if err != nil {
		return 0, 0, fmt.Errorf("cost totals: %w", err)
	}
	return totals.Tokens, totals.Cost, nil
}

// Interface check.
var _ document.CostStore = (*CostStore)(nil)
