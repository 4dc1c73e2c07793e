package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/database"
)

// testDimensions keeps test vectors small.
const testDimensions = 3

func newTestDB(t *testing.T) database.Database {
	t.Helper()

	db, err := database.New(context.Background(), "sqlite:///:memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(context.Background(), db, testDimensions))
	return db
}
