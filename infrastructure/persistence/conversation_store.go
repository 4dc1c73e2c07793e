package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/internal/database"
)

// ConversationStore implements document.ConversationStore on GORM.
type ConversationStore struct {
	db database.Database
}

// NewConversationStore creates a ConversationStore.
func NewConversationStore(db database.Database) *ConversationStore {
	return &ConversationStore{db: db}
}

// CreateConversation allocates a conversation for a user.
func (s *ConversationStore) CreateConversation(ctx context.Context, conversationID, userID string) error {
	entity := ConversationEntity{
		ID:        conversationID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Session(ctx).Create(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: conversation %s", document.ErrDuplicate, conversationID)
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// Exists reports whether a conversation is known.
func (s *ConversationStore) Exists(ctx context.Context, conversationID string) (bool, error) {
	var count int64
	err := s.db.Session(ctx).Model(&ConversationEntity{}).
		Where("id = ?", conversationID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	return count > 0, nil
}

// AppendTurn records a query/answer pair.
func (s *ConversationStore) AppendTurn(ctx context.Context, turn document.Turn) error {
	entity := turnToEntity(turn)
	if err := s.db.Session(ctx).Create(&entity).Error; err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Turns returns the chronological turns of a conversation. A positive
// limit keeps the most recent turns, still in chronological order.
func (s *ConversationStore) Turns(ctx context.Context, conversationID string, limit int) ([]document.Turn, error) {
	query := s.db.Session(ctx).Where("conversation_id = ?", conversationID)
	if limit > 0 {
		query = query.Order("created_at DESC").Limit(limit)
	} else {
		query = query.Order("created_at ASC")
	}

	var entities []TurnEntity
	if err := query.Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("conversation turns: %w", err)
	}

	if limit > 0 {
		for i, j := 0, len(entities)-1; i < j; i, j = i+1, j-1 {
			entities[i], entities[j] = entities[j], entities[i]
		}
	}

	turns := make([]document.Turn, len(entities))
	for i, entity := range entities {
		turns[i] = turnFromEntity(entity)
	}
	return turns, nil
}

// Interface check.
var _ document.ConversationStore = (*ConversationStore)(nil)
