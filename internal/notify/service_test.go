package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feedflow/feedflow/internal/shared"
)

func TestInboxIsScopedToActor(t *testing.T) {
	store := &memoryStore{}
	_, err := store.InsertBatch(context.Background(), []Notification{
		{ReceiverID: 1, Type: TypeOrderPlaced},
		{ReceiverID: 1, Type: TypeOrderForwarded},
		{ReceiverID: 2, Type: TypeOrderPlaced},
	})
	require.NoError(t, err)
	svc := NewService(store, newMemorySubs())
	actor := shared.Actor{ID: 1, Role: shared.RoleAdmin}

	items, err := svc.List(context.Background(), actor, false, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	n, err := svc.MarkRead(context.Background(), actor, []int64{1, 3})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	count, err := svc.UnreadCount(context.Background(), actor)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = svc.MarkRead(context.Background(), actor, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSubscribeUpsertsPerBrowser(t *testing.T) {
	subs := newMemorySubs()
	svc := NewService(&memoryStore{}, subs)
	actor := shared.Actor{ID: 5, Role: shared.RolePlantHead}
	input := SubscribeInput{BrowserID: "laptop", Endpoint: "https://push/one", Keys: PushKeys{P256dh: "k", Auth: "a"}}

	first, err := svc.Subscribe(context.Background(), actor, input)
	require.NoError(t, err)
	input.Endpoint = "https://push/two"
	second, err := svc.Subscribe(context.Background(), actor, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, shared.RolePlantHead, second.Role)

	input.BrowserID = "phone"
	_, err = svc.Subscribe(context.Background(), actor, input)
	require.NoError(t, err)
	require.Len(t, subs.ids(), 2)

	require.NoError(t, svc.Unsubscribe(context.Background(), actor, "laptop"))
	require.ErrorIs(t, svc.Unsubscribe(context.Background(), actor, "laptop"), shared.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	subs := newMemorySubs(
		Subscription{EmployeeID: 1, BrowserID: "old", ExpiresAt: &past},
		Subscription{EmployeeID: 1, BrowserID: "new"},
	)
	svc := NewService(&memoryStore{}, subs)
	n, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Equal(t, []int64{2}, subs.ids())
}

func TestSubscribeRequiresKeys(t *testing.T) {
	svc := NewService(&memoryStore{}, newMemorySubs())
	_, err := svc.Subscribe(context.Background(), shared.Actor{ID: 1, Role: shared.RoleAdmin}, SubscribeInput{BrowserID: "b", Endpoint: "https://x"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
