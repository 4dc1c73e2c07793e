package persistence

import (
	"context"
	"fmt"

	"github.com/recallhq/recall/internal/database"
)

// Migrate creates or updates the schema. On PostgreSQL the embedding
// column is converted to a native pgvector type of the configured width
// and given an approximate-nearest-neighbour index.
func Migrate(ctx context.Context, db database.Database, dimensions int) error {
	err := db.Session(ctx).AutoMigrate(
		&DocumentEntity{},
		&SyncLogEntity{},
		&EmbeddingCostEntity{},
		&ConversationEntity{},
		&TurnEntity{},
		&UserEntity{},
		&CredentialEntity{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if db.IsPostgres() {
		if err := migratePgvector(ctx, db, dimensions); err != nil {
			return err
		}
	}
	return nil
}

func migratePgvector(ctx context.Context, db database.Database, dimensions int) error {
	session := db.Session(ctx)

	if err := session.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	// Idempotent: the USING cast is a no-op once the column is already a
	// vector of the right width.
	alter := fmt.Sprintf(
		"ALTER TABLE documents ALTER COLUMN embedding TYPE vector(%d) USING NULLIF(embedding::text, '')::vector",
		dimensions,
	)
	if err := session.Exec(alter).Error; err != nil {
		return fmt.Errorf("convert embedding column: %w", err)
	}

	index := "CREATE INDEX IF NOT EXISTS idx_documents_embedding ON documents " +
		"USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)"
	if err := session.Exec(index).Error; err != nil {
		return fmt.Errorf("create embedding index: %w", err)
	}
	return nil
}
