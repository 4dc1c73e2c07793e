// Package persistence provides database storage implementations.
package persistence

import (
	"time"

	"github.com/recallhq/recall/internal/database"
)

// DocumentEntity is the GORM model for the documents table. The
// embedding column is plain text on SQLite and converted to
// vector(dimensions) on PostgreSQL during migration.
type DocumentEntity struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"uniqueIndex;size:255;not null"`
	UserID     string `gorm:"index;size:255;not null"`
	Source     string `gorm:"index;size:32;not null"`
	Type       string `gorm:"size:32;not null"`
	Content    string `gorm:"type:text"`
	Title      string `gorm:"size:1024"`
	Author     string `gorm:"size:512"`
	Timestamp  time.Time
	Metadata   string `gorm:"type:text"`

	Embedding            database.Vector `gorm:"type:text"`
	NeedsEmbedding       bool            `gorm:"index"`
	EmbeddingModel       string          `gorm:"size:128"`
	EmbeddingTokens      int
	EmbeddingGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements the GORM table name convention.
func (DocumentEntity) TableName() string { return "documents" }

// SyncLogEntity is the GORM model for sync_logs.
type SyncLogEntity struct {
	ID                string `gorm:"primaryKey;size:64"`
	UserID            string `gorm:"index;size:255;not null"`
	Source            string `gorm:"index;size:32;not null"`
	Status            string `gorm:"size:32;not null"`
	StartedAt         time.Time
	CompletedAt       *time.Time
	DocumentsFetched  int
	DocumentsStored   int
	LastSyncTimestamp *time.Time
	ErrorMessage      string `gorm:"type:text"`
}

// TableName implements the GORM table name convention.
func (SyncLogEntity) TableName() string { return "sync_logs" }

// EmbeddingCostEntity is the GORM model for embedding_costs.
type EmbeddingCostEntity struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	BatchID       string `gorm:"uniqueIndex;size:64"`
	Model         string `gorm:"size:128"`
	DocumentCount int
	TotalTokens   int
	EstimatedCost float64
	Status        string `gorm:"size:32"`
	CreatedAt     time.Time
}

// TableName implements the GORM table name convention.
func (EmbeddingCostEntity) TableName() string { return "embedding_costs" }

// ConversationEntity is the GORM model for conversations.
type ConversationEntity struct {
	ID        string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"index;size:255;not null"`
	CreatedAt time.Time
}

// TableName implements the GORM table name convention.
func (ConversationEntity) TableName() string { return "conversations" }

// TurnEntity is the GORM model for conversation turns.
type TurnEntity struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	ConversationID string `gorm:"index;size:64;not null"`
	UserID         string `gorm:"size:255;not null"`
	Query          string `gorm:"type:text"`
	Answer         string `gorm:"type:text"`
	Metadata       string `gorm:"type:text"`
	CreatedAt      time.Time
}

// TableName implements the GORM table name convention.
func (TurnEntity) TableName() string { return "conversation_turns" }

// UserEntity is the GORM model for users.
type UserEntity struct {
	ID        string `gorm:"primaryKey;size:255"`
	Email     string `gorm:"uniqueIndex;size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements the GORM table name convention.
func (UserEntity) TableName() string { return "users" }

// CredentialEntity is the GORM model for the single converged credential
// table: one row per (user, source) with encrypted token material.
type CredentialEntity struct {
	ID                    int64  `gorm:"primaryKey;autoIncrement"`
	UserID                string `gorm:"index:idx_credentials_user_source,unique;size:255;not null"`
	Source                string `gorm:"index:idx_credentials_user_source,unique;size:32;not null"`
	AccessTokenCiphertext string `gorm:"type:text"`
	RefreshTokenCipher    string `gorm:"type:text"`
	ExpiresAt             *time.Time
	Scopes                string `gorm:"type:text"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TableName implements the GORM table name convention.
func (CredentialEntity) TableName() string { return "credentials" }
