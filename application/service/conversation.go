package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/recallhq/recall/domain/document"
)

// historyTokenBudget bounds how much past conversation is returned;
// older turns drop first.
const historyTokenBudget = 4000

// ConversationService manages conversations and their turn history.
type ConversationService struct {
	store document.ConversationStore
}

// NewConversationService creates a ConversationService.
func NewConversationService(store document.ConversationStore) *ConversationService {
	return &ConversationService{store: store}
}

// Create allocates a new conversation and returns its id.
func (s *ConversationService) Create(ctx context.Context, userID string) (string, error) {
	conversationID := uuid.NewString()
	if err := s.store.CreateConversation(ctx, conversationID, userID); err != nil {
		return "", err
	}
	return conversationID, nil
}

// History returns the chronological turns of a conversation, bounded by
// the history token budget.
func (s *ConversationService) History(ctx context.Context, conversationID string) ([]document.Turn, error) {
	exists, err := s.store.Exists(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	turns, err := s.store.Turns(ctx, conversationID, 0)
	if err != nil {
		return nil, err
	}
	return document.BoundTurns(turns, historyTokenBudget), nil
}
