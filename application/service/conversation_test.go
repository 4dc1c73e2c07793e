package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/domain/document"
)

func TestConversationService_CreateAndHistory(t *testing.T) {
	store := newFakeConversationStore()
	svc := NewConversationService(store)

	id, err := svc.Create(context.Background(), "u1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, store.AppendTurn(context.Background(),
		document.NewTurn(id, "u1", "first question", "first answer", nil)))
	require.NoError(t, store.AppendTurn(context.Background(),
		document.NewTurn(id, "u1", "second question", "second answer", nil)))

	turns, err := svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "first question", turns[0].Query())
	require.Equal(t, "second answer", turns[1].Answer())
}

func TestConversationService_History_NotFound(t *testing.T) {
	svc := NewConversationService(newFakeConversationStore())

	_, err := svc.History(context.Background(), "missing")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationService_History_BoundedByTokenBudget(t *testing.T) {
	store := newFakeConversationStore()
	svc := NewConversationService(store)

	id, err := svc.Create(context.Background(), "u1")
	require.NoError(t, err)

	// Each turn costs about 2000 tokens; only the last two fit the
	// 4000 token history budget.
	big := strings.Repeat("w", 4000)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendTurn(context.Background(),
			document.NewTurn(id, "u1", big, big, nil)))
	}

	turns, err := svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
}
