package document

import "time"

// Turn is one user query / model answer pair inside a conversation.
type Turn struct {
	conversationID string
	userID         string
	query          string
	answer         string
	metadata       Metadata
	createdAt      time.Time
}

// NewTurn creates a conversation turn.
func NewTurn(conversationID, userID, query, answer string, metadata Metadata) Turn {
	return Turn{
		conversationID: conversationID,
		userID:         userID,
		query:          query,
		answer:         answer,
		metadata:       metadata,
		createdAt:      time.Now().UTC(),
	}
}

// HydrateTurn reconstructs a Turn from persisted state.
func HydrateTurn(conversationID, userID, query, answer string, metadata Metadata, createdAt time.Time) Turn {
	return Turn{
		conversationID: conversationID,
		userID:         userID,
		query:          query,
		answer:         answer,
		metadata:       metadata,
		createdAt:      createdAt,
	}
}

// ConversationID returns the owning conversation.
func (t Turn) ConversationID() string { return t.conversationID }

// UserID returns the owning principal.
func (t Turn) UserID() string { return t.userID }

// Query returns the user query.
func (t Turn) Query() string { return t.query }

// Answer returns the model answer.
func (t Turn) Answer() string { return t.answer }

// Metadata returns turn metadata (intent, tokens, model).
func (t Turn) Metadata() Metadata { return t.metadata }

// CreatedAt returns when the turn was recorded.
func (t Turn) CreatedAt() time.Time { return t.createdAt }

// EstimateTokens approximates token usage of a text: one token per four
// characters. Used only for budget accounting, never for correctness.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// BoundTurns returns the most recent turns whose combined query+answer
// token estimate fits within budget, preserving chronological order.
func BoundTurns(turns []Turn, budget int) []Turn {
	if budget <= 0 || len(turns) == 0 {
		return nil
	}

	used := 0
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		cost := EstimateTokens(turns[i].Query()) + EstimateTokens(turns[i].Answer())
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return turns[start:]
}
