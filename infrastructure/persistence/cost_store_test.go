package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/domain/document"
)

func TestCostStore_CreateAndRecent(t *testing.T) {
	store := NewCostStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx,
		document.NewEmbeddingCost("batch-1", "test-model", 10, 4000, 0.00008, document.CostCompleted)))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.Create(ctx,
		document.NewEmbeddingCost("batch-2", "test-model", 5, 2000, 0.00004, document.CostPartial)))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "batch-2", recent[0].BatchID())
	require.Equal(t, document.CostPartial, recent[0].Status())
	require.Equal(t, "batch-1", recent[1].BatchID())

	limited, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "batch-2", limited[0].BatchID())
}

func TestCostStore_Create_DuplicateBatch(t *testing.T) {
	store := NewCostStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx,
		document.NewEmbeddingCost("batch-1", "test-model", 10, 4000, 0.00008, document.CostCompleted)))

	err := store.Create(ctx,
		document.NewEmbeddingCost("batch-1", "test-model", 3, 1200, 0.00002, document.CostFailed))
	require.ErrorIs(t, err, document.ErrDuplicate)
}

func TestCostStore_Totals(t *testing.T) {
	store := NewCostStore(newTestDB(t))
	ctx := context.Background()

	// Empty table sums to zero instead of erroring.
	tokens, cost, err := store.Totals(ctx)
	require.NoError(t, err)
	require.Zero(t, tokens)
	require.Zero(t, cost)

	require.NoError(t, store.Create(ctx,
		document.NewEmbeddingCost("batch-1", "test-model", 10, 4000, 0.00008, document.CostCompleted)))
	require.NoError(t, store.Create(ctx,
		document.NewEmbeddingCost("batch-2", "test-model", 5, 2000, 0.00004, document.CostPartial)))

	tokens, cost, err = store.Totals(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 6000, tokens)
	require.InDelta(t, 0.00012, cost, 1e-9)
}
