package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/domain/document"
)

func appendTurns(t *testing.T, store *ConversationStore, conversationID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		turn := document.NewTurn(conversationID, "u1",
			fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i), nil)
		require.NoError(t, store.AppendTurn(context.Background(), turn))
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConversationStore_CreateAndExists(t *testing.T) {
	store := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, "conv-1", "u1"))

	exists, err := store.Exists(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(ctx, "conv-missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestConversationStore_CreateConversation_Duplicate(t *testing.T) {
	store := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, "conv-1", "u1"))

	err := store.CreateConversation(ctx, "conv-1", "u2")
	require.ErrorIs(t, err, document.ErrDuplicate)
}

func TestConversationStore_Turns_Chronological(t *testing.T) {
	store := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, "conv-1", "u1"))
	appendTurns(t, store, "conv-1", 3)

	turns, err := store.Turns(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "question 1", turns[0].Query())
	require.Equal(t, "answer 3", turns[2].Answer())
}

func TestConversationStore_Turns_LimitKeepsMostRecent(t *testing.T) {
	store := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, "conv-1", "u1"))
	appendTurns(t, store, "conv-1", 4)

	// The cap keeps the newest turns but reads back oldest first.
	turns, err := store.Turns(ctx, "conv-1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "question 3", turns[0].Query())
	require.Equal(t, "question 4", turns[1].Query())
}

func TestConversationStore_Turns_MetadataRoundTrip(t *testing.T) {
	store := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.CreateConversation(ctx, "conv-1", "u1"))
	turn := document.NewTurn("conv-1", "u1", "what changed?", "the deadline moved",
		document.Metadata{"intent": "search_email", "query_id": "q-7"})
	require.NoError(t, store.AppendTurn(ctx, turn))

	turns, err := store.Turns(ctx, "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "search_email", turns[0].Metadata().String("intent"))
	require.Equal(t, "q-7", turns[0].Metadata().String("query_id"))
}

func TestConversationStore_Turns_EmptyConversation(t *testing.T) {
	store := NewConversationStore(newTestDB(t))

	turns, err := store.Turns(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Empty(t, turns)
}
